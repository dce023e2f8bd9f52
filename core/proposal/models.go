package proposal

import (
	"time"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/block"
)

// Target hierarchies (learner tiers).
const (
	MinHierarchy = 1
	MaxHierarchy = 6
)

type Category string

const (
	CategoryTheoretical Category = "theoretical"
	CategoryPractical   Category = "practical"
	CategoryCheckpoint  Category = "checkpoint"
)

var Categories = []Category{CategoryTheoretical, CategoryPractical, CategoryCheckpoint}

func (c Category) Valid() bool {
	switch c {
	case CategoryTheoretical, CategoryPractical, CategoryCheckpoint:
		return true
	}
	return false
}

type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var Statuses = []Status{StatusDraft, StatusPending, StatusApproved, StatusRejected}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == Approve || d == Reject
}

type (
	// Votes holds the committee of a pending proposal and the ballots cast so far.
	// Approvals and Rejections are disjoint subsets of Maestros.
	Votes struct {
		Maestros   []string `json:"maestros" yaml:"maestros"`
		Approvals  []string `json:"approvals" yaml:"approvals"`
		Rejections []string `json:"rejections" yaml:"rejections"`
	}

	Proposal struct {
		ID              string        `json:"id" yaml:"id"`
		Title           string        `json:"title" yaml:"title"`
		Description     string        `json:"description" yaml:"description"`
		Category        Category      `json:"category" yaml:"category"`
		TargetHierarchy int           `json:"targetHierarchy" yaml:"targetHierarchy"`
		Module1         string        `json:"module1,omitempty" yaml:"module1,omitempty"`
		Module2         string        `json:"module2,omitempty" yaml:"module2,omitempty"`
		Content         []block.Block `json:"content" yaml:"content"`
		AuthorID        string        `json:"authorId" yaml:"authorId"`
		AuthorName      string        `json:"authorName" yaml:"authorName"`
		AuthorLevel     int           `json:"authorLevel" yaml:"authorLevel"`
		AuthorEmail     string        `json:"authorEmail,omitempty" yaml:"authorEmail,omitempty"`
		Status          Status        `json:"status" yaml:"status"`
		Votes           Votes         `json:"votes" yaml:"votes"`
		CreatedAt       time.Time     `json:"createdAt" yaml:"createdAt"`
		UpdatedAt       time.Time     `json:"updatedAt" yaml:"updatedAt"`
		SubmittedAt     *time.Time    `json:"submittedAt,omitempty" yaml:"submittedAt,omitempty"`
		ApprovedAt      *time.Time    `json:"approvedAt,omitempty" yaml:"approvedAt,omitempty"`
		RejectedAt      *time.Time    `json:"rejectedAt,omitempty" yaml:"rejectedAt,omitempty"`
		RejectionReason string        `json:"rejectionReason,omitempty" yaml:"rejectionReason,omitempty"`
	}

	NewProposal struct {
		Title           string        `json:"title" yaml:"title"`
		Description     string        `json:"description" yaml:"description"`
		Category        Category      `json:"category" yaml:"category" validate:"required,category"`
		TargetHierarchy int           `json:"targetHierarchy" yaml:"targetHierarchy" validate:"required,hierarchy"`
		Module1         string        `json:"module1" yaml:"module1"`
		Module2         string        `json:"module2" yaml:"module2"`
		Content         []block.Block `json:"content" yaml:"content"`
	}

	// Rejection is an override decision on a pending proposal.
	Rejection struct {
		Reason string `json:"reason" validate:"notblank"`
	}

	// UpdateProposal holds the draft fields to change; nil fields are left as they are.
	UpdateProposal struct {
		Title           *string       `json:"title"`
		Description     *string       `json:"description"`
		Category        *Category     `json:"category" validate:"omitempty,category"`
		TargetHierarchy *int          `json:"targetHierarchy" validate:"omitempty,hierarchy"`
		Module1         *string       `json:"module1"`
		Module2         *string       `json:"module2"`
		Content         []block.Block `json:"content"`
	}

	// QueryFilter applies an AND on its non-zero fields.
	QueryFilter struct {
		Status          Status
		Category        Category
		AuthorID        string
		TargetHierarchy int
		// Search does a case-insensitive match on the title or the description.
		Search    string
		Orderings []core.Ordering
	}

	// Event notifies watchers that the proposal collection changed.
	Event struct {
		Version   int64
		Proposals []Proposal
	}
)

// Clone returns a deep copy of the proposal.
func (p Proposal) Clone() Proposal {
	out := p
	out.Content = block.Clone(p.Content)
	out.Votes = p.Votes.clone()
	out.SubmittedAt = cloneTime(p.SubmittedAt)
	out.ApprovedAt = cloneTime(p.ApprovedAt)
	out.RejectedAt = cloneTime(p.RejectedAt)
	return out
}

// ResolvedTitle is the explicit title if any, else the content of the first title block.
func (p Proposal) ResolvedTitle() string {
	if t := core.CleanString(p.Title); t != "" {
		return t
	}
	for _, b := range p.Content {
		if b.Type == block.TypeTitle && b.HasContent() {
			return core.CleanString(b.Content)
		}
	}
	return ""
}

// HasContent reports whether at least one non-fixed block holds real content.
func (p Proposal) HasContent() bool {
	for _, b := range p.Content {
		if !b.IsFixed && b.HasContent() {
			return true
		}
	}
	return false
}

func (p Proposal) Author() core.Author {
	return core.Author{ID: p.AuthorID, Name: p.AuthorName, Level: p.AuthorLevel, Email: p.AuthorEmail}
}

func (v Votes) clone() Votes {
	return Votes{
		Maestros:   cloneIDs(v.Maestros),
		Approvals:  cloneIDs(v.Approvals),
		Rejections: cloneIDs(v.Rejections),
	}
}

func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tt := *t
	return &tt
}

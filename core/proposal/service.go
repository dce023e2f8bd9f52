// Package proposal is the Tribunal: the moderation workflow lesson content goes through before learners see it.
//
// A proposal is created as a draft by its author, submitted for review (pending), then settled
// by the votes of a committee of maestros (approved or rejected). Approved and rejected are terminal.
package proposal

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/asset"
	"github.com/trezcool/tribunal/core/block"
	"github.com/trezcool/tribunal/core/editor"
	"github.com/trezcool/tribunal/core/render"
)

const (
	DefaultOverrideLevel      = 6
	DefaultMaxConflictRetries = 10
)

var (
	nowFunc = time.Now // mockable

	errInvalidDecision = errors.New("decision must be approve or reject")
)

type (
	Options struct {
		Repo      Repository
		Directory core.ReviewerDirectory
		Logger    core.Logger
		Mailer    core.EmailService // optional
		Validate  *validator.Validate
		Quorum    QuorumPolicy
		// OverrideLevel is the reviewer level needed to reject a pending proposal outright.
		OverrideLevel int
		// MaxConflictRetries bounds how many times a write is re-applied on concurrent changes.
		MaxConflictRetries int
	}

	Service struct {
		repo          Repository
		dir           core.ReviewerDirectory
		logger        core.Logger
		mailer        core.EmailService
		validate      *validator.Validate
		quorum        QuorumPolicy
		overrideLevel int
		maxRetries    int
		submits       singleflight.Group
	}
)

func NewService(opts Options) *Service {
	svc := &Service{
		repo:          opts.Repo,
		dir:           opts.Directory,
		logger:        opts.Logger,
		mailer:        opts.Mailer,
		validate:      opts.Validate,
		quorum:        opts.Quorum,
		overrideLevel: opts.OverrideLevel,
		maxRetries:    opts.MaxConflictRetries,
	}
	if svc.validate == nil {
		svc.validate, _ = NewValidator()
	}
	if svc.quorum == nil {
		svc.quorum = MajorityQuorum{}
	}
	if svc.overrideLevel <= 0 {
		svc.overrideLevel = DefaultOverrideLevel
	}
	if svc.maxRetries <= 0 {
		svc.maxRetries = DefaultMaxConflictRetries
	}
	if svc.logger == nil {
		svc.logger = nopLogger{}
	}
	if svc.dir == nil {
		svc.dir = core.NewStaticDirectory(0)
	}
	return svc
}

// update runs fn against the latest collection and saves what it returns.
// On a concurrent change fn is run again against the fresh collection, so it must only depend on its argument.
func (svc *Service) update(ctx context.Context, fn func(proposals []Proposal) ([]Proposal, error)) error {
	for attempt := 1; ; attempt++ {
		proposals, version, err := svc.repo.Load(ctx)
		if err != nil {
			return errors.Wrap(err, "loading proposals")
		}
		updated, err := fn(proposals)
		if err != nil {
			return err
		}
		_, err = svc.repo.Save(ctx, updated, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return errors.Wrap(err, "saving proposals")
		}
		if attempt > svc.maxRetries {
			return errors.Wrapf(ErrConflict, "gave up after %d attempts", attempt)
		}
		if err = ctx.Err(); err != nil {
			return err
		}
	}
}

// mutate applies fn to the proposal id and saves it. all is the rest of the collection, read only.
func (svc *Service) mutate(ctx context.Context, id string, fn func(p *Proposal, all []Proposal) error) (Proposal, error) {
	id = core.CleanString(id)
	var result Proposal
	err := svc.update(ctx, func(all []Proposal) ([]Proposal, error) {
		i := indexOf(all, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		if err := fn(&all[i], all); err != nil {
			return nil, err
		}
		result = all[i].Clone()
		return all, nil
	})
	return result, err
}

func indexOf(proposals []Proposal, id string) int {
	for i := range proposals {
		if proposals[i].ID == id {
			return i
		}
	}
	return -1
}

// prepareContent normalizes blocks the way the editor does; no blocks at all yields the canonical heading.
func prepareContent(blocks []block.Block) ([]block.Block, error) {
	if len(blocks) == 0 {
		return editor.NewDocument().Snapshot(), nil
	}
	content := editor.NewStore(blocks...).Snapshot()
	if err := block.Validate(content); err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "content", Error: err.Error()})
	}
	return content, nil
}

func checkDraftAuthor(p Proposal, author core.Author) error {
	if p.AuthorID != core.CleanString(author.ID) {
		return ErrNotAuthor
	}
	if p.Status != StatusDraft {
		return ErrNotDraft
	}
	return nil
}

// Create stores a new draft. Without content, the draft starts with a fixed title and subtitle.
func (svc *Service) Create(ctx context.Context, author core.Author, np NewProposal) (Proposal, error) {
	if core.CleanString(author.ID) == "" {
		return Proposal{}, ErrNotAuthor
	}
	if err := svc.validate.Struct(np); err != nil {
		return Proposal{}, err
	}
	content, err := prepareContent(np.Content)
	if err != nil {
		return Proposal{}, err
	}

	now := nowFunc().UTC()
	p := Proposal{
		ID:              uuid.NewString(),
		Title:           core.CleanString(np.Title),
		Description:     core.CleanString(np.Description),
		Category:        np.Category,
		TargetHierarchy: np.TargetHierarchy,
		Module1:         core.CleanString(np.Module1),
		Module2:         core.CleanString(np.Module2),
		Content:         content,
		AuthorID:        core.CleanString(author.ID),
		AuthorName:      core.CleanString(author.Name),
		AuthorLevel:     author.Level,
		AuthorEmail:     core.CleanString(author.Email, true /* lower */),
		Status:          StatusDraft,
		Votes:           Votes{Maestros: []string{}, Approvals: []string{}, Rejections: []string{}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = svc.update(ctx, func(all []Proposal) ([]Proposal, error) {
		return append(all, p.Clone()), nil
	})
	if err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// UpdateDraft changes the fields of a draft. Only its author can.
func (svc *Service) UpdateDraft(ctx context.Context, id string, author core.Author, up UpdateProposal) (Proposal, error) {
	if err := svc.validate.Struct(up); err != nil {
		return Proposal{}, err
	}
	var content []block.Block
	if up.Content != nil {
		var err error
		if content, err = prepareContent(up.Content); err != nil {
			return Proposal{}, err
		}
	}

	return svc.mutate(ctx, id, func(p *Proposal, _ []Proposal) error {
		if err := checkDraftAuthor(*p, author); err != nil {
			return err
		}
		if up.Title != nil {
			p.Title = core.CleanString(*up.Title)
		}
		if up.Description != nil {
			p.Description = core.CleanString(*up.Description)
		}
		if up.Category != nil {
			p.Category = *up.Category
		}
		if up.TargetHierarchy != nil {
			p.TargetHierarchy = *up.TargetHierarchy
		}
		if up.Module1 != nil {
			p.Module1 = core.CleanString(*up.Module1)
		}
		if up.Module2 != nil {
			p.Module2 = core.CleanString(*up.Module2)
		}
		if content != nil {
			p.Content = block.Clone(content)
		}
		p.UpdatedAt = nowFunc().UTC()
		return nil
	})
}

// EditContent applies editor operations to the content of a draft.
func (svc *Service) EditContent(ctx context.Context, id string, author core.Author, ops ...editor.Op) (Proposal, error) {
	return svc.mutate(ctx, id, func(p *Proposal, _ []Proposal) error {
		if err := checkDraftAuthor(*p, author); err != nil {
			return err
		}
		store := editor.NewStore(p.Content...)
		store.Apply(ops...)
		p.Content = store.Snapshot()
		p.UpdatedAt = nowFunc().UTC()
		return nil
	})
}

// AttachAsset uploads a and makes it the content of the media block blockID of a draft.
// The upload happens once; only the block update is retried on concurrent changes.
func (svc *Service) AttachAsset(ctx context.Context, id, blockID string, author core.Author, uploader asset.Uploader, a asset.Asset) (Proposal, error) {
	p, err := svc.Get(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	if err = checkDraftAuthor(p, author); err != nil {
		return Proposal{}, err
	}
	if err = editor.CheckMedia(p.Content, blockID); err != nil {
		return Proposal{}, err
	}

	stored, err := uploader.Upload(ctx, a)
	if err != nil {
		return Proposal{}, err
	}
	return svc.mutate(ctx, id, func(p *Proposal, _ []Proposal) error {
		if err := checkDraftAuthor(*p, author); err != nil {
			return err
		}
		if err := editor.CheckMedia(p.Content, blockID); err != nil {
			return err
		}
		store := editor.NewStore(p.Content...)
		err := store.UpdateContentStrict(blockID, stored.Content, block.Metadata{
			block.KeyFileName: stored.FileName,
			block.KeyFileType: stored.FileType,
		})
		if err != nil {
			return err
		}
		p.Content = store.Snapshot()
		p.UpdatedAt = nowFunc().UTC()
		return nil
	})
}

// Submit sends a draft to the Tribunal: its content is frozen and the committee of maestros is set.
// Concurrent submits of the same draft by the same author are collapsed into one.
func (svc *Service) Submit(ctx context.Context, id string, author core.Author) (Proposal, error) {
	key := core.CleanString(id) + "/" + core.CleanString(author.ID)
	// the shared call must outlive the caller that happened to start it
	shared := context.WithoutCancel(ctx)
	v, err, _ := svc.submits.Do(key, func() (interface{}, error) {
		return svc.submit(shared, id, author)
	})
	if err != nil {
		return Proposal{}, err
	}
	return v.(Proposal).Clone(), nil
}

func (svc *Service) submit(ctx context.Context, id string, author core.Author) (Proposal, error) {
	var committee []core.Reviewer
	p, err := svc.mutate(ctx, id, func(p *Proposal, all []Proposal) error {
		if err := checkDraftAuthor(*p, author); err != nil {
			return err
		}
		if err := validateSubmission(*p, all); err != nil {
			return err
		}

		reviewers, err := svc.dir.Maestros(ctx, p.TargetHierarchy)
		if err != nil {
			return errors.Wrap(err, "getting maestros")
		}
		committee = lo.UniqBy(
			lo.Filter(reviewers, func(r core.Reviewer, _ int) bool { return r.ID != "" && r.ID != p.AuthorID }),
			func(r core.Reviewer) string { return r.ID },
		)

		now := nowFunc().UTC()
		p.Title = p.ResolvedTitle()
		p.Content = editor.NewStore(p.Content...).Snapshot()
		p.Status = StatusPending
		p.SubmittedAt = &now
		p.UpdatedAt = now
		p.Votes = Votes{
			Maestros:   lo.Map(committee, func(r core.Reviewer, _ int) string { return r.ID }),
			Approvals:  []string{},
			Rejections: []string{},
		}
		return nil
	})
	if err != nil {
		return Proposal{}, err
	}

	svc.logger.Info("proposal submitted", map[string]interface{}{"id": p.ID, "maestros": len(p.Votes.Maestros)}, author)
	if len(committee) == 0 {
		svc.logger.Warn("proposal has no maestro, only an override can settle it", map[string]interface{}{"id": p.ID})
	}
	svc.notifySubmitted(p, committee)
	return p, nil
}

func validateSubmission(p Proposal, all []Proposal) error {
	if p.ResolvedTitle() == "" {
		return &SubmitError{Kind: MissingTitle}
	}
	if !p.HasContent() {
		return &SubmitError{Kind: EmptyContent}
	}
	if p.Category != CategoryCheckpoint {
		return nil
	}

	m1, m2 := core.CleanString(p.Module1), core.CleanString(p.Module2)
	if m1 == "" || m2 == "" || m1 == m2 || m1 == p.ID || m2 == p.ID {
		return &SubmitError{Kind: CheckpointReferenceMissing}
	}
	for _, ref := range []string{m1, m2} {
		i := indexOf(all, ref)
		if i < 0 || all[i].Status != StatusApproved {
			return &SubmitError{Kind: CheckpointReferenceNotApproved, Module: ref}
		}
		if all[i].TargetHierarchy != p.TargetHierarchy {
			return &SubmitError{Kind: CheckpointHierarchyMismatch, Module: ref}
		}
	}
	return nil
}

// CastVote records the ballot of a maestro. The first quorum reached settles the proposal.
func (svc *Service) CastVote(ctx context.Context, id string, reviewer core.Reviewer, decision Decision) (Proposal, error) {
	if !decision.Valid() {
		return Proposal{}, core.NewValidationError(
			errInvalidDecision, core.FieldError{Field: "decision", Error: errInvalidDecision.Error()},
		)
	}
	reviewerID := core.CleanString(reviewer.ID)

	var settled bool
	p, err := svc.mutate(ctx, id, func(p *Proposal, _ []Proposal) error {
		settled = false
		if p.Status != StatusPending {
			return &VoteError{Kind: NotPending}
		}
		if !lo.Contains(p.Votes.Maestros, reviewerID) {
			return &VoteError{Kind: NotEligible}
		}
		if lo.Contains(p.Votes.Approvals, reviewerID) || lo.Contains(p.Votes.Rejections, reviewerID) {
			return &VoteError{Kind: AlreadyVoted}
		}

		now := nowFunc().UTC()
		committee := len(p.Votes.Maestros)
		switch decision {
		case Approve:
			p.Votes.Approvals = append(p.Votes.Approvals, reviewerID)
			if reached(svc.quorum, len(p.Votes.Approvals), committee) {
				p.Status = StatusApproved
				p.ApprovedAt = &now
			}
		case Reject:
			p.Votes.Rejections = append(p.Votes.Rejections, reviewerID)
			if reached(svc.quorum, len(p.Votes.Rejections), committee) {
				p.Status = StatusRejected
				p.RejectedAt = &now
			}
		}
		p.UpdatedAt = now
		settled = p.Status.Terminal()
		return nil
	})
	if err != nil {
		return Proposal{}, err
	}

	svc.logger.Info("vote cast", map[string]interface{}{"id": p.ID, "decision": decision, "status": p.Status}, reviewer)
	if settled {
		svc.notifySettled(p)
	}
	return p, nil
}

// Reject settles a pending proposal as rejected, whatever the ballots. Reserved to high level reviewers.
func (svc *Service) Reject(ctx context.Context, id string, actor core.Reviewer, reason string) (Proposal, error) {
	if actor.Level < svc.overrideLevel {
		return Proposal{}, &VoteError{Kind: NotAuthorized}
	}
	rejection := Rejection{Reason: core.CleanString(reason)}
	if err := svc.validate.Struct(rejection); err != nil {
		return Proposal{}, err
	}

	p, err := svc.mutate(ctx, id, func(p *Proposal, _ []Proposal) error {
		if p.Status != StatusPending {
			return &VoteError{Kind: NotPending}
		}
		now := nowFunc().UTC()
		p.Status = StatusRejected
		p.RejectedAt = &now
		p.RejectionReason = rejection.Reason
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Proposal{}, err
	}

	svc.logger.Info("proposal rejected by override", map[string]interface{}{"id": p.ID}, actor)
	svc.notifySettled(p)
	return p, nil
}

// Withdraw deletes a draft. Only its author can.
func (svc *Service) Withdraw(ctx context.Context, id string, author core.Author) error {
	id = core.CleanString(id)
	return svc.update(ctx, func(all []Proposal) ([]Proposal, error) {
		i := indexOf(all, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		if err := checkDraftAuthor(all[i], author); err != nil {
			return nil, err
		}
		return append(all[:i], all[i+1:]...), nil
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Proposal, error) {
	proposals, _, err := svc.repo.Load(ctx)
	if err != nil {
		return Proposal{}, errors.Wrap(err, "loading proposals")
	}
	i := indexOf(proposals, core.CleanString(id))
	if i < 0 {
		return Proposal{}, ErrNotFound
	}
	return proposals[i], nil
}

// Query returns the proposals matching filter, by creation date unless other orderings are given.
func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Proposal, error) {
	proposals, _, err := svc.repo.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading proposals")
	}
	search := core.CleanString(filter.Search, true /* lower */)
	out := lo.Filter(proposals, func(p Proposal, _ int) bool {
		switch {
		case filter.Status != "" && p.Status != filter.Status,
			filter.Category != "" && p.Category != filter.Category,
			filter.AuthorID != "" && p.AuthorID != filter.AuthorID,
			filter.TargetHierarchy != 0 && p.TargetHierarchy != filter.TargetHierarchy:
			return false
		case search != "":
			return strings.Contains(strings.ToLower(p.ResolvedTitle()), search) ||
				strings.Contains(strings.ToLower(p.Description), search)
		}
		return true
	})
	sortProposals(out, filter.Orderings)
	return out, nil
}

// Approved returns the proposals learners of hierarchy may see (all approved proposals if hierarchy is 0).
func (svc *Service) Approved(ctx context.Context, hierarchy int) ([]Proposal, error) {
	return svc.Query(ctx, QueryFilter{Status: StatusApproved, TargetHierarchy: hierarchy})
}

// Render projects an approved proposal for learners.
func (svc *Service) Render(ctx context.Context, id string) (render.Document, error) {
	p, err := svc.Get(ctx, id)
	if err != nil {
		return render.Document{}, err
	}
	if p.Status != StatusApproved {
		return render.Document{}, ErrNotApproved
	}
	return render.ProjectDocument(p.ResolvedTitle(), p.TargetHierarchy, p.Content), nil
}

// Preview projects a proposal for its author, whatever its status.
func (svc *Service) Preview(ctx context.Context, id string, author core.Author) (render.Document, error) {
	p, err := svc.Get(ctx, id)
	if err != nil {
		return render.Document{}, err
	}
	if p.AuthorID != core.CleanString(author.ID) {
		return render.Document{}, ErrNotAuthor
	}
	return render.ProjectDocument(p.ResolvedTitle(), p.TargetHierarchy, p.Content), nil
}

// Watch sends the whole collection every time it changes, until ctx is done.
func (svc *Service) Watch(ctx context.Context) (<-chan Event, error) {
	versions, err := svc.repo.Watch(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		var last int64
		for range versions {
			proposals, version, err := svc.repo.Load(ctx)
			if err != nil {
				if ctx.Err() == nil {
					svc.logger.Error("proposal.Watch", errors.Wrap(err, "loading proposals"))
				}
				continue
			}
			if version <= last { // several notifications, one read
				continue
			}
			last = version
			select {
			case out <- Event{Version: version, Proposals: proposals}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

var sortFields = map[string]func(a, b Proposal) int{
	"createdAt": func(a, b Proposal) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updatedAt": func(a, b Proposal) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	"submittedAt": func(a, b Proposal) int {
		return lo.FromPtr(a.SubmittedAt).Compare(lo.FromPtr(b.SubmittedAt))
	},
	"title": func(a, b Proposal) int {
		return strings.Compare(strings.ToLower(a.ResolvedTitle()), strings.ToLower(b.ResolvedTitle()))
	},
	"targetHierarchy": func(a, b Proposal) int { return a.TargetHierarchy - b.TargetHierarchy },
	"status":          func(a, b Proposal) int { return strings.Compare(string(a.Status), string(b.Status)) },
}

func sortProposals(proposals []Proposal, orderings []core.Ordering) {
	orderings = append(orderings[:len(orderings):len(orderings)], core.Ordering{Field: "createdAt", Ascending: true})
	sort.SliceStable(proposals, func(i, j int) bool {
		for _, ord := range orderings {
			cmp, ok := sortFields[ord.Field]
			if !ok {
				continue
			}
			c := cmp(proposals[i], proposals[j])
			if !ord.Ascending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return proposals[i].ID < proposals[j].ID
	})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

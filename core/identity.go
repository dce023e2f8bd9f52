package core

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

// Author is the identity of a proposal's creator, as supplied by the identity provider.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
	Email string `json:"email,omitempty"`
}

// Reviewer is an identity entitled to vote on proposals (a "maestro").
type Reviewer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
	Email string `json:"email,omitempty"`
}

// ReviewerDirectory supplies the committee of maestros entitled to vote on proposals of a given hierarchy.
type ReviewerDirectory interface {
	Maestros(ctx context.Context, hierarchy int) ([]Reviewer, error)
}

// StaticDirectory is a ReviewerDirectory backed by a fixed list of reviewers.
// A reviewer serves a hierarchy when its level is at least MinLevel and at least the hierarchy itself.
type StaticDirectory struct {
	MinLevel  int
	Reviewers []Reviewer
}

var _ ReviewerDirectory = (*StaticDirectory)(nil)

func NewStaticDirectory(minLevel int, reviewers ...Reviewer) *StaticDirectory {
	return &StaticDirectory{MinLevel: minLevel, Reviewers: reviewers}
}

func (d *StaticDirectory) Maestros(_ context.Context, hierarchy int) ([]Reviewer, error) {
	out := make([]Reviewer, 0, len(d.Reviewers))
	seen := make(map[string]bool, len(d.Reviewers))
	for _, r := range d.Reviewers {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		if r.Level < d.MinLevel || r.Level < hierarchy {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ParseReviewers parses a reviewers list of the form "id:name:level[:email];id:name:level[:email]".
// Malformed entries are skipped.
func ParseReviewers(s string) []Reviewer {
	s = CleanString(s)
	if s == "" {
		return nil
	}
	var reviewers []Reviewer
	for _, entry := range strings.Split(s, ";") {
		parts := strings.Split(CleanString(entry), ":")
		if len(parts) < 3 {
			continue
		}
		level, err := strconv.Atoi(CleanString(parts[2]))
		if err != nil {
			continue
		}
		r := Reviewer{
			ID:    CleanString(parts[0]),
			Name:  CleanString(parts[1]),
			Level: level,
		}
		if len(parts) > 3 {
			r.Email = CleanString(parts[3], true /* lower */)
		}
		if r.ID != "" {
			reviewers = append(reviewers, r)
		}
	}
	return reviewers
}

package proposal

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound    = errors.New("proposal not found")
	ErrNotDraft    = errors.New("proposal is not a draft")
	ErrNotAuthor   = errors.New("only the author can do this")
	ErrNotApproved = errors.New("proposal is not approved")
	// ErrConflict is returned when the proposal collection kept changing under a write. It is retryable.
	ErrConflict = errors.New("proposals changed concurrently, please retry")
)

// SubmitErrorKind tells why a draft could not be submitted.
type SubmitErrorKind string

const (
	MissingTitle                   SubmitErrorKind = "MissingTitle"
	EmptyContent                   SubmitErrorKind = "EmptyContent"
	CheckpointReferenceMissing     SubmitErrorKind = "CheckpointReferenceMissing"
	CheckpointReferenceNotApproved SubmitErrorKind = "CheckpointReferenceNotApproved"
	CheckpointHierarchyMismatch    SubmitErrorKind = "CheckpointHierarchyMismatch"
)

var submitErrorTexts = map[SubmitErrorKind]string{
	MissingTitle:                   "a title is required",
	EmptyContent:                   "at least one block must have content",
	CheckpointReferenceMissing:     "a checkpoint must reference two distinct modules",
	CheckpointReferenceNotApproved: "checkpoint modules must be approved",
	CheckpointHierarchyMismatch:    "checkpoint modules must target the same hierarchy",
}

// SubmitError is a recoverable validation failure: the proposal stays a draft.
type SubmitError struct {
	Kind   SubmitErrorKind
	Module string // offending module reference, if any
}

func (err *SubmitError) Error() string {
	if err.Module != "" {
		return fmt.Sprintf("%s (module %s)", submitErrorTexts[err.Kind], err.Module)
	}
	return submitErrorTexts[err.Kind]
}

type VoteErrorKind string

const (
	NotEligible   VoteErrorKind = "NotEligible"
	AlreadyVoted  VoteErrorKind = "AlreadyVoted"
	NotPending    VoteErrorKind = "NotPending"
	NotAuthorized VoteErrorKind = "NotAuthorized"
)

var voteErrorTexts = map[VoteErrorKind]string{
	NotEligible:   "reviewer is not a maestro of this proposal",
	AlreadyVoted:  "reviewer has already voted",
	NotPending:    "proposal is not pending",
	NotAuthorized: "reviewer is not allowed to override the vote",
}

// VoteError is a recoverable vote failure; nothing changed.
type VoteError struct {
	Kind VoteErrorKind
}

func (err *VoteError) Error() string {
	return voteErrorTexts[err.Kind]
}

// IsSubmitError reports whether err is a SubmitError of the given kind.
func IsSubmitError(err error, kind SubmitErrorKind) bool {
	var serr *SubmitError
	return errors.As(err, &serr) && serr.Kind == kind
}

// IsVoteError reports whether err is a VoteError of the given kind.
func IsVoteError(err error, kind VoteErrorKind) bool {
	var verr *VoteError
	return errors.As(err, &verr) && verr.Kind == kind
}

package proposal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/asset"
	"github.com/trezcool/tribunal/core/block"
	"github.com/trezcool/tribunal/core/editor"
	"github.com/trezcool/tribunal/core/render"
	inmemdb "github.com/trezcool/tribunal/storage/database/inmem"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	author = core.Author{ID: "author", Name: "Ada", Level: 3, Email: "ada@test.test"}
	r1     = core.Reviewer{ID: "r1", Name: "Rui", Level: 5, Email: "r1@test.test"}
	r2     = core.Reviewer{ID: "r2", Name: "Rosa", Level: 5}
	r3     = core.Reviewer{ID: "r3", Name: "Remy", Level: 6, Email: "r3@test.test"}
	junior = core.Reviewer{ID: "junior", Name: "Jo", Level: 2}
)

type fakeMailer struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

func (m *fakeMailer) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, messages...)
}

func (m *fakeMailer) sent() []*core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*core.EmailMessage(nil), m.messages...)
}

type never struct{}

func (never) Required(int) int { return 0 }

type testEnv struct {
	svc    *Service
	store  *inmemdb.KVStore
	mailer *fakeMailer
}

func newTestEnv(t *testing.T, opts ...func(*Options)) testEnv {
	t.Helper()
	store := inmemdb.NewKVStore()
	t.Cleanup(func() { _ = store.Close() })

	mailer := &fakeMailer{}
	o := Options{
		Repo: NewRepository(store, ""),
		// the author is a maestro too, but never of its own proposals
		Directory: core.NewStaticDirectory(5, r3, r1, r2, junior, core.Reviewer{ID: author.ID, Level: 5}),
		Mailer:    mailer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return testEnv{svc: NewService(o), store: store, mailer: mailer}
}

func str(s string) *string { return &s }

// draft creates a draft with a title and one text block, ready to be submitted.
func (env testEnv) draft(t *testing.T, np NewProposal) Proposal {
	t.Helper()
	ctx := context.Background()
	if np.Category == "" {
		np.Category = CategoryTheoretical
	}
	if np.TargetHierarchy == 0 {
		np.TargetHierarchy = 3
	}
	p, err := env.svc.Create(ctx, author, np)
	require.NoError(t, err)
	p, err = env.svc.EditContent(ctx, p.ID, author,
		editor.Op{Op: editor.OpUpdate, ID: p.Content[0].ID, Content: str("A lesson")},
		editor.Op{Op: editor.OpAdd, Type: block.TypeText, Content: str("Hello")},
	)
	require.NoError(t, err)
	return p
}

func (env testEnv) submitted(t *testing.T, np NewProposal) Proposal {
	t.Helper()
	p := env.draft(t, np)
	p, err := env.svc.Submit(context.Background(), p.ID, author)
	require.NoError(t, err)
	return p
}

func (env testEnv) approved(t *testing.T, np NewProposal) Proposal {
	t.Helper()
	ctx := context.Background()
	p := env.submitted(t, np)
	_, err := env.svc.CastVote(ctx, p.ID, r1, Approve)
	require.NoError(t, err)
	p, err = env.svc.CastVote(ctx, p.ID, r2, Approve)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, p.Status)
	return p
}

func TestService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.Create(ctx, author, NewProposal{
		Title: "  Fractions ", Category: CategoryPractical, TargetHierarchy: 2,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Fractions", p.Title)
	assert.Equal(t, StatusDraft, p.Status)
	assert.Equal(t, author, p.Author())
	assert.False(t, p.CreatedAt.IsZero())
	require.Len(t, p.Content, 2)
	assert.Equal(t, block.TypeTitle, p.Content[0].Type)
	assert.True(t, p.Content[0].IsFixed)
	assert.Equal(t, block.TypeSubtitle, p.Content[1].Type)
	assert.Empty(t, p.Votes.Maestros)

	got, err := env.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = env.svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Create_validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		author core.Author
		np     NewProposal
		fields []string // invalid fields, nil when another error is expected
		err    error
	}{
		{name: "no author", np: NewProposal{Category: CategoryPractical, TargetHierarchy: 1}, err: ErrNotAuthor},
		{name: "no category", author: author, np: NewProposal{TargetHierarchy: 1}, fields: []string{"category"}},
		{name: "bad category", author: author, np: NewProposal{Category: "poetry", TargetHierarchy: 1}, fields: []string{"category"}},
		{name: "bad hierarchy", author: author, np: NewProposal{Category: CategoryPractical, TargetHierarchy: 7}, fields: []string{"targetHierarchy"}},
		{
			name:   "bad block",
			author: author,
			np: NewProposal{Category: CategoryPractical, TargetHierarchy: 1, Content: []block.Block{
				{ID: "a", Type: "poll"},
			}},
			err: block.ErrInvalidType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Create(ctx, tt.author, tt.np)
			require.Error(t, err)
			if tt.fields != nil {
				var verrs validator.ValidationErrors
				require.True(t, errors.As(err, &verrs), "got %v", err)
				var fields []string
				for _, fe := range verrs {
					fields = append(fields, fe.Field())
				}
				assert.Equal(t, tt.fields, fields)
				return
			}
			if tt.err == block.ErrInvalidType {
				var verr *core.ValidationError
				require.True(t, errors.As(err, &verr), "got %v", err)
				assert.ErrorIs(t, verr.Err, block.ErrInvalidType)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}

	all, err := env.svc.Query(ctx, QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_UpdateDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.draft(t, NewProposal{})

	cat, h := CategoryCheckpoint, 4
	updated, err := env.svc.UpdateDraft(ctx, p.ID, author, UpdateProposal{
		Description:     str("about halves"),
		Category:        &cat,
		TargetHierarchy: &h,
		Content: []block.Block{
			{ID: "x", Type: block.TypeText, Order: 5, Content: ""},
			{ID: "t", Type: block.TypeTitle, Order: 9, Content: "New", IsFixed: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "about halves", updated.Description)
	assert.Equal(t, CategoryCheckpoint, updated.Category)
	assert.Equal(t, 4, updated.TargetHierarchy)
	assert.Equal(t, p.Title, updated.Title, "nil fields are left as they are")
	require.Len(t, updated.Content, 2)
	assert.Equal(t, "t", updated.Content[0].ID, "fixed blocks lead")
	assert.Equal(t, block.Placeholder, updated.Content[1].Content)
	assert.Equal(t, 1, updated.Content[1].Order)

	_, err = env.svc.UpdateDraft(ctx, p.ID, core.Author{ID: "intruder"}, UpdateProposal{Title: str("x")})
	assert.ErrorIs(t, err, ErrNotAuthor)

	bad := 0
	_, err = env.svc.UpdateDraft(ctx, p.ID, author, UpdateProposal{TargetHierarchy: &bad})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

// A fixed title left empty cannot be submitted; filled in along with a text block, it can.
func TestService_Submit_missingTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.Create(ctx, author, NewProposal{Category: CategoryTheoretical, TargetHierarchy: 3})
	require.NoError(t, err)
	title := p.Content[0].ID

	_, err = env.svc.Submit(ctx, p.ID, author)
	assert.True(t, IsSubmitError(err, MissingTitle), "got %v", err)
	got, _ := env.svc.Get(ctx, p.ID)
	assert.Equal(t, StatusDraft, got.Status)

	_, err = env.svc.EditContent(ctx, p.ID, author,
		editor.Op{Op: editor.OpUpdate, ID: title, Content: str("Intro")},
		editor.Op{Op: editor.OpAdd, Type: block.TypeText, Content: str("Hello")},
	)
	require.NoError(t, err)

	p, err = env.svc.Submit(ctx, p.ID, author)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "Intro", p.Title)
	require.NotNil(t, p.SubmittedAt)
	assert.Equal(t, []string{"r1", "r2", "r3"}, p.Votes.Maestros, "junior and the author are not maestros")
	assert.Empty(t, p.Votes.Approvals)
	assert.Empty(t, p.Votes.Rejections)

	// maestros with an email are asked for a vote
	sent := env.mailer.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, submittedTemplate, sent[0].TemplateName)
	assert.Equal(t, "r1@test.test", sent[0].To[0].Address)
	assert.Equal(t, "r3@test.test", sent[1].To[0].Address)
}

func TestService_Submit_emptyContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.Create(ctx, author, NewProposal{Title: "Intro", Category: CategoryTheoretical, TargetHierarchy: 3})
	require.NoError(t, err)

	// fixed blocks and untouched defaults do not count
	_, err = env.svc.EditContent(ctx, p.ID, author,
		editor.Op{Op: editor.OpUpdate, ID: p.Content[1].ID, Content: str("a subtitle")},
		editor.Op{Op: editor.OpAdd, Type: block.TypeCode},
		editor.Op{Op: editor.OpAdd, Type: block.TypeText, Content: str("")},
	)
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, p.ID, author)
	assert.True(t, IsSubmitError(err, EmptyContent), "got %v", err)
}

func TestService_Submit_checkpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.approved(t, NewProposal{})
	b := env.submitted(t, NewProposal{})
	other := env.approved(t, NewProposal{TargetHierarchy: 2})

	tests := []struct {
		name    string
		m1, m2  string
		kind    SubmitErrorKind
		module  string
		success bool
	}{
		{name: "missing reference", m1: a.ID, kind: CheckpointReferenceMissing},
		{name: "same reference twice", m1: a.ID, m2: a.ID, kind: CheckpointReferenceMissing},
		{name: "unknown reference", m1: a.ID, m2: "nope", kind: CheckpointReferenceNotApproved, module: "nope"},
		{name: "pending reference", m1: a.ID, m2: b.ID, kind: CheckpointReferenceNotApproved, module: b.ID},
		{name: "other hierarchy", m1: other.ID, m2: a.ID, kind: CheckpointHierarchyMismatch, module: other.ID},
		{name: "approved references", m1: a.ID, m2: other.ID, success: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := 3
			if tt.success {
				h = 2
			}
			p := env.draft(t, NewProposal{Category: CategoryCheckpoint, TargetHierarchy: h, Module1: tt.m1, Module2: tt.m2})
			if tt.success {
				// both modules must target the checkpoint's hierarchy
				_, err := env.svc.Submit(ctx, p.ID, author)
				assert.True(t, IsSubmitError(err, CheckpointHierarchyMismatch), "got %v", err)

				same := env.approved(t, NewProposal{TargetHierarchy: 2})
				_, err = env.svc.UpdateDraft(ctx, p.ID, author, UpdateProposal{Module1: &same.ID})
				require.NoError(t, err)
				p, err = env.svc.Submit(ctx, p.ID, author)
				require.NoError(t, err)
				assert.Equal(t, StatusPending, p.Status)
				return
			}

			_, err := env.svc.Submit(ctx, p.ID, author)
			var serr *SubmitError
			require.True(t, errors.As(err, &serr), "got %v", err)
			assert.Equal(t, tt.kind, serr.Kind)
			assert.Equal(t, tt.module, serr.Module)

			got, _ := env.svc.Get(ctx, p.ID)
			assert.Equal(t, StatusDraft, got.Status)
		})
	}
}

func TestService_Submit_freezesContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.submitted(t, NewProposal{})

	_, err := env.svc.EditContent(ctx, p.ID, author, editor.Op{Op: editor.OpAdd, Type: block.TypeText, Content: str("late")})
	assert.ErrorIs(t, err, ErrNotDraft)
	_, err = env.svc.UpdateDraft(ctx, p.ID, author, UpdateProposal{Title: str("late")})
	assert.ErrorIs(t, err, ErrNotDraft)
	_, err = env.svc.Submit(ctx, p.ID, author)
	assert.ErrorIs(t, err, ErrNotDraft)
	assert.ErrorIs(t, env.svc.Withdraw(ctx, p.ID, author), ErrNotDraft)

	got, err := env.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, block.Changed(p.Content, got.Content), block.Diff(p.Content, got.Content))
	assert.NoError(t, block.Validate(got.Content))

	_, err = env.svc.Submit(ctx, p.ID, core.Author{ID: "intruder"})
	assert.ErrorIs(t, err, ErrNotAuthor)
}

// gatedDirectory blocks Maestros until release is closed.
type gatedDirectory struct {
	core.ReviewerDirectory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *gatedDirectory) Maestros(ctx context.Context, hierarchy int) ([]core.Reviewer, error) {
	d.once.Do(func() { close(d.entered) })
	<-d.release
	return d.ReviewerDirectory.Maestros(ctx, hierarchy)
}

func TestService_Submit_firstCallerCancelled(t *testing.T) {
	dir := &gatedDirectory{
		ReviewerDirectory: core.NewStaticDirectory(5, r1, r2, r3),
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	env := newTestEnv(t, func(o *Options) { o.Directory = dir })
	p := env.draft(t, NewProposal{})

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := env.svc.Submit(first, p.ID, author)
		firstDone <- err
	}()
	<-dir.entered

	secondDone := make(chan error, 1)
	var second Proposal
	go func() {
		var err error
		second, err = env.svc.Submit(context.Background(), p.ID, author)
		secondDone <- err
	}()
	time.Sleep(50 * time.Millisecond) // let the second click join the first

	cancel()
	close(dir.release)

	require.NoError(t, <-secondDone)
	assert.Equal(t, StatusPending, second.Status)
	assert.Equal(t, []string{r1.ID, r2.ID, r3.ID}, second.Votes.Maestros)
	<-firstDone

	got, err := env.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestService_Submit_concurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.draft(t, NewProposal{})

	const clicks = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Submit(ctx, p.ID, author)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrNotDraft)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, successes, 1)
	got, err := env.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Len(t, env.mailer.sent(), 2, "maestros are notified once")
}

func TestService_CastVote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.submitted(t, NewProposal{})

	_, err := env.svc.CastVote(ctx, p.ID, junior, Approve)
	assert.True(t, IsVoteError(err, NotEligible), "got %v", err)
	_, err = env.svc.CastVote(ctx, p.ID, core.Reviewer{ID: author.ID, Level: 5}, Approve)
	assert.True(t, IsVoteError(err, NotEligible), "author cannot vote on its own proposal")

	p, err = env.svc.CastVote(ctx, p.ID, r1, Approve)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status, "1/2")
	assert.Equal(t, []string{"r1"}, p.Votes.Approvals)

	_, err = env.svc.CastVote(ctx, p.ID, r1, Approve)
	assert.True(t, IsVoteError(err, AlreadyVoted), "got %v", err)
	_, err = env.svc.CastVote(ctx, p.ID, r1, Reject)
	assert.True(t, IsVoteError(err, AlreadyVoted), "no dual vote")

	p, err = env.svc.CastVote(ctx, p.ID, r2, Approve)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, p.Status)
	require.NotNil(t, p.ApprovedAt)
	assert.Nil(t, p.RejectedAt)

	_, err = env.svc.CastVote(ctx, p.ID, r3, Reject)
	assert.True(t, IsVoteError(err, NotPending), "got %v", err)

	got, _ := env.svc.Get(ctx, p.ID)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Empty(t, got.Votes.Rejections)

	_, err = env.svc.CastVote(ctx, p.ID, r3, "abstain")
	var verr *core.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = env.svc.CastVote(ctx, "nope", r3, Approve)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_CastVote_rejectionQuorum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.submitted(t, NewProposal{})

	_, err := env.svc.CastVote(ctx, p.ID, r1, Approve)
	require.NoError(t, err)
	_, err = env.svc.CastVote(ctx, p.ID, r2, Reject)
	require.NoError(t, err)
	p, err = env.svc.CastVote(ctx, p.ID, r3, Reject)
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, p.Status)
	require.NotNil(t, p.RejectedAt)
	assert.Nil(t, p.ApprovedAt)

	// the author (who has an email) hears the verdict
	sent := env.mailer.sent()
	last := sent[len(sent)-1]
	assert.Equal(t, rejectedTemplate, last.TemplateName)
	assert.Equal(t, author.Email, last.To[0].Address)
}

func TestService_Reject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.submitted(t, NewProposal{})

	_, err := env.svc.Reject(ctx, p.ID, r1, "off topic")
	assert.True(t, IsVoteError(err, NotAuthorized), "got %v", err)
	_, err = env.svc.Reject(ctx, p.ID, r3, "  ")
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs), "got %v", err)
	assert.Equal(t, "reason", verrs[0].Field())
	assert.Equal(t, "notblank", verrs[0].Tag())

	p, err = env.svc.Reject(ctx, p.ID, r3, " off topic ")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, p.Status)
	assert.Equal(t, "off topic", p.RejectionReason)
	require.NotNil(t, p.RejectedAt)

	_, err = env.svc.Reject(ctx, p.ID, r3, "again")
	assert.True(t, IsVoteError(err, NotPending))
	_, err = env.svc.CastVote(ctx, p.ID, r1, Approve)
	assert.True(t, IsVoteError(err, NotPending))

	draft := env.draft(t, NewProposal{})
	_, err = env.svc.Reject(ctx, draft.ID, r3, "too early")
	assert.True(t, IsVoteError(err, NotPending), "drafts cannot skip pending")
}

func TestService_emptyCommittee(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Directory = core.NewStaticDirectory(5) })
	ctx := context.Background()

	p := env.submitted(t, NewProposal{})
	assert.Empty(t, p.Votes.Maestros)

	_, err := env.svc.CastVote(ctx, p.ID, r1, Approve)
	assert.True(t, IsVoteError(err, NotEligible))

	p, err = env.svc.Reject(ctx, p.ID, r3, "nobody to review it")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, p.Status)
}

func TestService_CastVote_concurrent(t *testing.T) {
	reviewers := make([]core.Reviewer, 10)
	for i := range reviewers {
		reviewers[i] = core.Reviewer{ID: fmt.Sprintf("m%02d", i), Level: 5}
	}
	env := newTestEnv(t, func(o *Options) {
		o.Directory = core.NewStaticDirectory(5, reviewers...)
		o.Quorum = never{} // keep the proposal pending so that every ballot counts
		o.MaxConflictRetries = 100
	})
	ctx := context.Background()
	p := env.submitted(t, NewProposal{})
	require.Len(t, p.Votes.Maestros, len(reviewers))

	var wg sync.WaitGroup
	errs := make(chan error, 3*len(reviewers))
	for i, r := range reviewers {
		decision := Approve
		if i%3 == 0 {
			decision = Reject
		}
		for j := 0; j < 3; j++ { // each reviewer double clicks
			wg.Add(1)
			go func(r core.Reviewer, d Decision) {
				defer wg.Done()
				_, err := env.svc.CastVote(ctx, p.ID, r, d)
				errs <- err
			}(r, decision)
		}
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case IsVoteError(err, AlreadyVoted):
			already++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, len(reviewers), ok)
	assert.Equal(t, 2*len(reviewers), already)

	got, err := env.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Votes.Approvals, 6)
	assert.Len(t, got.Votes.Rejections, 4)
	assert.ElementsMatch(t, got.Votes.Maestros, append(got.Votes.Approvals, got.Votes.Rejections...))
}

type conflictingRepo struct {
	Repository
	saves int
}

func (r *conflictingRepo) Save(context.Context, []Proposal, int64) (int64, error) {
	r.saves++
	return 0, ErrConflict
}

func TestService_conflictRetries(t *testing.T) {
	store := inmemdb.NewKVStore()
	defer store.Close()
	repo := &conflictingRepo{Repository: NewRepository(store, "")}
	svc := NewService(Options{Repo: repo, MaxConflictRetries: 3})

	_, err := svc.Create(context.Background(), author, NewProposal{Category: CategoryPractical, TargetHierarchy: 1})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 4, repo.saves)
}

func TestService_Withdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.draft(t, NewProposal{})

	assert.ErrorIs(t, env.svc.Withdraw(ctx, p.ID, core.Author{ID: "intruder"}), ErrNotAuthor)
	require.NoError(t, env.svc.Withdraw(ctx, p.ID, author))
	_, err := env.svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.svc.Withdraw(ctx, p.ID, author), ErrNotFound)
}

func TestService_Query(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	nowFunc = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }
	defer func() { nowFunc = time.Now }()

	approved := env.approved(t, NewProposal{Title: "Zebra crossings", TargetHierarchy: 2})
	pending := env.submitted(t, NewProposal{Title: "Apples", Category: CategoryPractical})
	draft := env.draft(t, NewProposal{Title: "Moon", Description: "all about apples"})

	tests := []struct {
		name   string
		filter QueryFilter
		want   []string
	}{
		{name: "all by creation", want: []string{approved.ID, pending.ID, draft.ID}},
		{name: "status", filter: QueryFilter{Status: StatusPending}, want: []string{pending.ID}},
		{name: "category", filter: QueryFilter{Category: CategoryTheoretical}, want: []string{approved.ID, draft.ID}},
		{name: "hierarchy", filter: QueryFilter{TargetHierarchy: 2}, want: []string{approved.ID}},
		{name: "author", filter: QueryFilter{AuthorID: "nobody"}, want: []string{}},
		{name: "search", filter: QueryFilter{Search: " APPLES"}, want: []string{pending.ID, draft.ID}},
		{
			name:   "ordering",
			filter: QueryFilter{Orderings: core.ParseOrderings("title,-createdAt")},
			want:   []string{pending.ID, draft.ID, approved.ID},
		},
		{
			name:   "descending",
			filter: QueryFilter{Orderings: core.ParseOrderings("-createdAt")},
			want:   []string{draft.ID, pending.ID, approved.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.svc.Query(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	got, err := env.svc.Approved(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, approved.ID, got[0].ID)
	got, err = env.svc.Approved(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_Render(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	approved := env.approved(t, NewProposal{})
	doc, err := env.svc.Render(ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, "A lesson", doc.Title)
	assert.Equal(t, 3, doc.TargetHierarchy)
	assert.Equal(t, render.Project(approved.Content), doc.Tree)

	draft := env.draft(t, NewProposal{})
	_, err = env.svc.Render(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrNotApproved)

	preview, err := env.svc.Preview(ctx, draft.ID, author)
	require.NoError(t, err)
	assert.Len(t, preview.Nodes, 3)
	_, err = env.svc.Preview(ctx, draft.ID, core.Author{ID: "intruder"})
	assert.ErrorIs(t, err, ErrNotAuthor)
}

func TestService_Watch(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := env.svc.Watch(ctx)
	require.NoError(t, err)

	p := env.draft(t, NewProposal{})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-events:
			require.NotEmpty(t, evt.Proposals)
			if evt.Proposals[0].Content[0].Content != "A lesson" {
				continue // the draft before its content was edited
			}
			assert.Equal(t, p.ID, evt.Proposals[0].ID)
			cancel()
			for range events {
			}
			return
		case <-deadline:
			cancel()
			t.Fatal("no event")
		}
	}
}

func TestService_AttachAsset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := asset.DataURIUploader{}
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	p, err := env.svc.Create(ctx, author, NewProposal{Category: CategoryPractical, TargetHierarchy: 1})
	require.NoError(t, err)
	p, err = env.svc.EditContent(ctx, p.ID, author, editor.Op{Op: editor.OpAdd, Type: block.TypeImage})
	require.NoError(t, err)
	img := p.Content[2].ID

	p, err = env.svc.AttachAsset(ctx, p.ID, img, author, uploader, asset.Asset{FileName: "cat.png", Data: png})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Content[2].Content, "data:image/png;base64,"))
	assert.Equal(t, "cat.png", p.Content[2].Metadata.String(block.KeyFileName))

	_, err = env.svc.AttachAsset(ctx, p.ID, img, author, uploader, asset.Asset{FileName: "notes.txt", Data: []byte("hello")})
	assert.ErrorIs(t, err, asset.ErrType)
	_, err = env.svc.AttachAsset(ctx, p.ID, "nope", author, uploader, asset.Asset{FileName: "cat.png", Data: png})
	assert.ErrorIs(t, err, editor.ErrBlockNotFound)
	_, err = env.svc.AttachAsset(ctx, p.ID, img, core.Author{ID: "intruder"}, uploader, asset.Asset{FileName: "cat.png", Data: png})
	assert.ErrorIs(t, err, ErrNotAuthor)
	_, err = env.svc.AttachAsset(ctx, p.ID, p.Content[0].ID, author, uploader, asset.Asset{FileName: "cat.png", Data: png})
	assert.ErrorIs(t, err, editor.ErrNotMedia)

	got, err := env.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Content[2].Content, got.Content[2].Content, "failed uploads leave the block unchanged")
}

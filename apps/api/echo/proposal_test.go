package echoapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/tribunal/apps/api/echo"
	"github.com/trezcool/tribunal/core/block"
	"github.com/trezcool/tribunal/core/editor"
	"github.com/trezcool/tribunal/core/proposal"
	"github.com/trezcool/tribunal/core/render"
	inmemdb "github.com/trezcool/tribunal/storage/database/inmem"
)

var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func str(s string) *string { return &s }

func createDraft(t *testing.T, app Server, token string, np proposal.NewProposal) proposal.Proposal {
	t.Helper()
	var p proposal.Proposal
	rec := do(t, app, http.MethodPost, "/v1/proposals", token, np, &p)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return p
}

func lesson(t *testing.T, app Server, token string) proposal.Proposal {
	t.Helper()
	p := createDraft(t, app, token, proposal.NewProposal{
		Title:           "A lesson",
		Category:        proposal.CategoryTheoretical,
		TargetHierarchy: 3,
	})
	rec := do(t, app, http.MethodPost, "/v1/proposals/"+p.ID+"/content", token, EditContentRequest{
		Ops: []editor.Op{{Op: editor.OpAdd, Type: block.TypeText, Content: str("Hello")}},
	}, &p)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return p
}

func Test_home(t *testing.T) {
	app := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Tribunal API!", rec.Body.String())
}

func Test_proposalApi_auth(t *testing.T) {
	app := setup(t)
	juniorToken := getToken(t, junior)
	reviewerToken := getToken(t, r1)

	tests := []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/v1/proposals",
			wantCode: http.StatusUnauthorized,
			wantErr:  &httpErr{Error: "missing or malformed jwt"},
		},
		{
			name:     "bad token",
			method:   http.MethodGet,
			path:     "/v1/proposals",
			token:    "not.a.token",
			wantCode: http.StatusUnauthorized,
			wantErr:  &httpErr{},
		},
		{
			name:     "token signed with another key",
			method:   http.MethodGet,
			path:     "/v1/proposals",
			token:    foreignToken(t),
			wantCode: http.StatusUnauthorized,
			wantErr:  &httpErr{},
		},
		{
			name:     "queue below maestro level",
			method:   http.MethodGet,
			path:     "/v1/proposals/queue",
			token:    juniorToken,
			wantCode: http.StatusForbidden,
			wantErr:  &httpErr{Error: "permission denied"},
		},
		{
			name:     "queue",
			method:   http.MethodGet,
			path:     "/v1/proposals/queue",
			token:    reviewerToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "unknown proposal",
			method:   http.MethodGet,
			path:     "/v1/proposals/nope",
			token:    juniorToken,
			wantCode: http.StatusNotFound,
			wantErr:  &httpErr{Error: proposal.ErrNotFound.Error()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndErr(t, tt, rec)
		})
	}
}

func foreignToken(t *testing.T) string {
	token, err := GenerateToken("another key", NewClaims("test", author, time.Hour))
	require.NoError(t, err)
	return token
}

func Test_proposalApi_create(t *testing.T) {
	app := setup(t)
	token := getToken(t, author)

	p := createDraft(t, app, token, proposal.NewProposal{Category: proposal.CategoryPractical, TargetHierarchy: 2})
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, proposal.StatusDraft, p.Status)
	assert.Equal(t, author.ID, p.AuthorID)
	require.Len(t, p.Content, 2, "a fresh draft starts with its heading")
	assert.Equal(t, block.TypeTitle, p.Content[0].Type)

	rec := do(t, app, http.MethodPost, "/v1/proposals", token, map[string]interface{}{
		"category":        "poetry",
		"targetHierarchy": 42,
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var fldErrs map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fldErrs))
	assert.Contains(t, fldErrs, "category")
	assert.Contains(t, fldErrs, "targetHierarchy")

	// other authors cannot touch the draft
	rec = do(t, app, http.MethodPatch, "/v1/proposals/"+p.ID, getToken(t, r1), map[string]string{"title": "mine"}, nil)
	checkCodeAndErr(t, httpTest{wantCode: http.StatusForbidden, wantErr: &httpErr{Error: proposal.ErrNotAuthor.Error()}}, rec)

	rec = do(t, app, http.MethodPatch, "/v1/proposals/"+p.ID, token, map[string]string{"title": "Mine"}, &p)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Mine", p.Title)

	var list []proposal.Proposal
	rec = do(t, app, http.MethodGet, "/v1/proposals?author=author&status=draft", token, nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	rec = do(t, app, http.MethodDelete, "/v1/proposals/"+p.ID, token, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = do(t, app, http.MethodGet, "/v1/proposals/"+p.ID, token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_proposalApi_submitErrors(t *testing.T) {
	app := setup(t)
	token := getToken(t, author)

	untitled := createDraft(t, app, token, proposal.NewProposal{Category: proposal.CategoryTheoretical, TargetHierarchy: 3})
	empty := createDraft(t, app, token, proposal.NewProposal{Title: "Empty", Category: proposal.CategoryTheoretical, TargetHierarchy: 3})
	checkpoint := createDraft(t, app, token, proposal.NewProposal{
		Title:           "Checkpoint",
		Category:        proposal.CategoryCheckpoint,
		TargetHierarchy: 3,
		Module1:         "m1",
		Module2:         "m2",
		Content:         []block.Block{{Type: block.TypeText, Content: "Quiz"}},
	})

	tests := []httpTest{
		{
			name:     "missing title",
			path:     "/v1/proposals/" + untitled.ID + "/submit",
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  &httpErr{Kind: string(proposal.MissingTitle)},
		},
		{
			name:     "empty content",
			path:     "/v1/proposals/" + empty.ID + "/submit",
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  &httpErr{Kind: string(proposal.EmptyContent)},
		},
		{
			name:     "checkpoint of unknown modules",
			path:     "/v1/proposals/" + checkpoint.ID + "/submit",
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  &httpErr{Kind: string(proposal.CheckpointReferenceNotApproved), Module: "m1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, tt.path, token)
			app.ServeHTTP(rec, req)
			checkCodeAndErr(t, tt, rec)
		})
	}
}

func Test_proposalApi_review(t *testing.T) {
	app := setup(t)
	authorToken := getToken(t, author)
	r1Token, r2Token, r3Token := getToken(t, r1), getToken(t, r2), getToken(t, r3)

	p := lesson(t, app, authorToken)
	path := "/v1/proposals/" + p.ID

	// not rendered before approval
	rec := do(t, app, http.MethodGet, path+"/render", r1Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var doc render.Document
	rec = do(t, app, http.MethodGet, path+"/preview", authorToken, nil, &doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A lesson", doc.Title)

	rec = do(t, app, http.MethodPost, path+"/submit", authorToken, nil, &p)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, proposal.StatusPending, p.Status)
	assert.Equal(t, []string{"r1", "r2", "r3"}, p.Votes.Maestros)

	var queue []proposal.Proposal
	rec = do(t, app, http.MethodGet, "/v1/proposals/queue", r1Token, nil, &queue)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, queue, 1)
	assert.Equal(t, p.ID, queue[0].ID)

	approve := VoteRequest{Decision: proposal.Approve}
	steps := []struct {
		name     string
		token    string
		body     interface{}
		path     string
		wantCode int
		wantErr  *httpErr
		status   proposal.Status
	}{
		{name: "submit twice", token: authorToken, path: path + "/submit", wantCode: http.StatusConflict, wantErr: &httpErr{Error: proposal.ErrNotDraft.Error()}},
		{name: "edit frozen content", token: authorToken, path: path + "/content", body: EditContentRequest{}, wantCode: http.StatusConflict},
		{name: "author is no maestro", token: authorToken, path: path + "/votes", body: approve, wantCode: http.StatusForbidden, wantErr: &httpErr{Kind: string(proposal.NotEligible)}},
		{name: "invalid decision", token: r1Token, path: path + "/votes", body: VoteRequest{Decision: "maybe"}, wantCode: http.StatusBadRequest},
		{name: "first approval", token: r1Token, path: path + "/votes", body: approve, wantCode: http.StatusOK, status: proposal.StatusPending},
		{name: "second click", token: r1Token, path: path + "/votes", body: approve, wantCode: http.StatusConflict, wantErr: &httpErr{Kind: string(proposal.AlreadyVoted)}},
		{name: "override below level", token: r1Token, path: path + "/reject", body: RejectRequest{Reason: "no"}, wantCode: http.StatusForbidden, wantErr: &httpErr{Kind: string(proposal.NotAuthorized)}},
		{name: "quorum", token: r2Token, path: path + "/votes", body: approve, wantCode: http.StatusOK, status: proposal.StatusApproved},
		{name: "settled", token: r3Token, path: path + "/votes", body: approve, wantCode: http.StatusConflict, wantErr: &httpErr{Kind: string(proposal.NotPending)}},
	}
	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			var got proposal.Proposal
			rec := do(t, app, http.MethodPost, step.path, step.token, step.body, &got)
			checkCodeAndErr(t, httpTest{wantCode: step.wantCode, wantErr: step.wantErr}, rec)
			if step.status != "" {
				assert.Equal(t, step.status, got.Status)
			}
		})
	}

	rec = do(t, app, http.MethodGet, path+"/render", junior.ID, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, app, http.MethodGet, path+"/render", getToken(t, junior), nil, &doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A lesson", doc.Title)
	assert.Equal(t, 3, doc.TargetHierarchy)

	var approved []proposal.Proposal
	rec = do(t, app, http.MethodGet, "/v1/proposals/approved?hierarchy=3", getToken(t, junior), nil, &approved)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, approved, 1)
	rec = do(t, app, http.MethodGet, "/v1/proposals/approved?hierarchy=4", getToken(t, junior), nil, &approved)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, approved)
}

func Test_proposalApi_reject(t *testing.T) {
	app := setup(t)
	authorToken, r3Token := getToken(t, author), getToken(t, r3)

	p := lesson(t, app, authorToken)
	path := "/v1/proposals/" + p.ID
	rec := do(t, app, http.MethodPost, path+"/submit", authorToken, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, app, http.MethodPost, path+"/reject", r3Token, RejectRequest{Reason: "  "}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fldErrs map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fldErrs))
	assert.Equal(t, "this field cannot be blank", fldErrs["reason"])

	rec = do(t, app, http.MethodPost, path+"/reject", r3Token, RejectRequest{Reason: "off topic"}, &p)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, proposal.StatusRejected, p.Status)
	assert.Equal(t, "off topic", p.RejectionReason)
}

func Test_proposalApi_attachAsset(t *testing.T) {
	app := setup(t)
	token := getToken(t, author)

	p := createDraft(t, app, token, proposal.NewProposal{
		Title:           "Pictures",
		Category:        proposal.CategoryTheoretical,
		TargetHierarchy: 3,
		Content:         []block.Block{{Type: block.TypeImage}},
	})
	var imageID string
	for _, b := range p.Content {
		if b.Type == block.TypeImage {
			imageID = b.ID
		}
	}
	require.NotEmpty(t, imageID)

	upload := func(blockID, fileName string, data []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		fw, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/proposals/"+p.ID+"/blocks/"+blockID+"/asset", &body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		return rec
	}

	rec := upload(imageID, "notes.txt", []byte("just text"))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = upload(p.Content[0].ID, "title.png", pngData)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "block does not hold an asset")

	rec = upload(imageID, "huge.png", append(pngData, bytes.Repeat([]byte{1}, 2<<10)...))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	rec = upload("nope", "pic.png", pngData)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = upload(imageID, "pic.png", pngData)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	for _, b := range p.Content {
		if b.ID == imageID {
			assert.True(t, strings.HasPrefix(b.Content, "data:image/png;base64,"), b.Content)
			assert.Equal(t, "pic.png", b.Metadata[block.KeyFileName])
		}
	}
}

func Test_proposalApi_stream(t *testing.T) {
	app := setup(t)
	token := getToken(t, author)
	ts := httptest.NewServer(app)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/proposals/stream?status=draft", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	reader := bufio.NewReader(res.Body)
	readEvent := func() (id string, data []proposal.Proposal) {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return id, data
			case strings.HasPrefix(line, "id: "):
				id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
			}
		}
	}

	id, data := readEvent()
	assert.Equal(t, "0", id)
	assert.Empty(t, data)

	p := createDraft(t, app, token, proposal.NewProposal{Title: "Live", Category: proposal.CategoryPractical, TargetHierarchy: 1})
	id, data = readEvent()
	assert.Equal(t, "1", id)
	require.Len(t, data, 1)
	assert.Equal(t, p.ID, data[0].ID)

	cancel()
}

func Test_proposalApi_storeClosed(t *testing.T) {
	store := inmemdb.NewKVStore()
	var signals int
	app := newTestServer(t, store, func() { signals++ })
	token := getToken(t, author)

	p := createDraft(t, app, token, proposal.NewProposal{Category: proposal.CategoryPractical, TargetHierarchy: 2})
	require.NoError(t, store.Close())

	rec := do(t, app, http.MethodGet, "/v1/proposals/"+p.ID, token, nil, nil)
	checkCodeAndErr(t, httpTest{
		wantCode: http.StatusServiceUnavailable,
		wantErr:  &httpErr{Error: http.StatusText(http.StatusServiceUnavailable)},
	}, rec)
	assert.Equal(t, 1, signals)

	rec = do(t, app, http.MethodPost, "/v1/proposals", token, proposal.NewProposal{Category: proposal.CategoryPractical, TargetHierarchy: 2}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, 2, signals)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	"reddit_monitor/internal/broadcast"
	"reddit_monitor/internal/model"
	"reddit_monitor/internal/monitor"
	"reddit_monitor/internal/reddit"
	"reddit_monitor/internal/storage"
)

type stubSource struct{}

func (stubSource) Search(_ context.Context, _, _ []string, _ int) ([]reddit.Candidate, error) {
	return nil, nil
}

type stubPublisher struct {
	canPost   bool
	err       error
	submitted []string
}

func (p *stubPublisher) CanPost() bool { return p.canPost }

func (p *stubPublisher) SubmitComment(_ context.Context, parentFullname, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.submitted = append(p.submitted, parentFullname)
	return nil
}

func newTestServer(t *testing.T, publisher *stubPublisher) (*gin.Engine, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := broadcast.New(log)
	mon := monitor.New(store, stubSource{}, nil, events, log)
	t.Cleanup(func() { _ = mon.Stop(context.Background()) })

	h := NewHandler(mon, store, events, publisher, log)
	return NewServer(h), store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func seedPost(t *testing.T, store *storage.SQLite, externalID, draftReply string) *model.Post {
	t.Helper()
	post := &model.Post{
		ExternalID:      externalID,
		Subreddit:       "golang",
		Title:           "Need help with goroutine deadlock",
		Author:          "gopher42",
		MatchedKeywords: []string{"goroutine"},
		Priority:        model.PriorityHigh,
		Score:           0.71,
		Highlighted:     true,
		DraftReply:      draftReply,
		CreatedAt:       time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	}
	if err := store.CreatePost(context.Background(), post); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return post
}

func TestHealth(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestStartMonitoring(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodPost, "/api/monitoring/start", map[string]any{
		"subreddits":      []string{"golang"},
		"keywords":        []string{"help"},
		"intervalMinutes": 60,
	})
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got): %s\nbody: %s", diff, w.Body.String())
	}

	state := decodeBody[model.MonitorState](t, w)
	if !state.IsActive {
		t.Error("expected active state after start")
	}
	if diff := cmp.Diff([]string{"golang"}, state.Subreddits); diff != "" {
		t.Errorf("subreddits mismatch (-want +got):\n%s", diff)
	}
}

func TestStartMonitoringValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{
			name: "missing subreddits",
			body: map[string]any{"keywords": []string{"help"}, "intervalMinutes": 5},
		},
		{
			name: "missing keywords",
			body: map[string]any{"subreddits": []string{"golang"}, "intervalMinutes": 5},
		},
		{
			name: "zero interval",
			body: map[string]any{"subreddits": []string{"golang"}, "keywords": []string{"help"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestServer(t, nil)
			w := doJSON(t, r, http.MethodPost, "/api/monitoring/start", tt.body)
			if diff := cmp.Diff(http.StatusBadRequest, w.Code); diff != "" {
				t.Errorf("status mismatch (-want +got): %s\nbody: %s", diff, w.Body.String())
			}
		})
	}
}

func TestStopMonitoring(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodPost, "/api/monitoring/stop", nil)
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	state := decodeBody[model.MonitorState](t, w)
	if state.IsActive {
		t.Error("expected inactive state after stop")
	}
}

func TestGetStatus(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodGet, "/api/monitoring/status", nil)
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	state := decodeBody[model.MonitorState](t, w)
	if state.IsActive {
		t.Error("expected inactive initial state")
	}
}

type postPage struct {
	Posts  []model.Post `json:"posts"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func TestListPosts(t *testing.T) {
	r, store := newTestServer(t, nil)
	for i := 0; i < 5; i++ {
		seedPost(t, store, fmt.Sprintf("t3_%03d", i), "")
	}

	w := doJSON(t, r, http.MethodGet, "/api/posts?limit=2&offset=0", nil)
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	page := decodeBody[postPage](t, w)
	if diff := cmp.Diff(5, page.Total); diff != "" {
		t.Errorf("total mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, len(page.Posts)); diff != "" {
		t.Errorf("page size mismatch (-want +got):\n%s", diff)
	}

	// Out-of-range limits fall back to the default.
	w = doJSON(t, r, http.MethodGet, "/api/posts?limit=500", nil)
	page = decodeBody[postPage](t, w)
	if diff := cmp.Diff(20, page.Limit); diff != "" {
		t.Errorf("limit mismatch (-want +got):\n%s", diff)
	}
}

func TestListPostsEmpty(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodGet, "/api/posts", nil)
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	page := decodeBody[postPage](t, w)
	if page.Posts == nil {
		t.Error("expected empty array, not null")
	}
}

func TestUpdatePost(t *testing.T) {
	r, store := newTestServer(t, nil)
	post := seedPost(t, store, "t3_edit", "original draft")

	w := doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/posts/%d", post.ID),
		map[string]any{"draftReply": "edited draft"})
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got): %s\nbody: %s", diff, w.Body.String())
	}
	got := decodeBody[model.Post](t, w)
	if diff := cmp.Diff("edited draft", got.DraftReply); diff != "" {
		t.Errorf("draft reply mismatch (-want +got):\n%s", diff)
	}

	w = doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/posts/%d", post.ID), map[string]any{})
	if diff := cmp.Diff(http.StatusBadRequest, w.Code); diff != "" {
		t.Errorf("missing draftReply status mismatch (-want +got):\n%s", diff)
	}

	w = doJSON(t, r, http.MethodPatch, "/api/posts/9999", map[string]any{"draftReply": "x"})
	if diff := cmp.Diff(http.StatusNotFound, w.Code); diff != "" {
		t.Errorf("unknown id status mismatch (-want +got):\n%s", diff)
	}

	w = doJSON(t, r, http.MethodPatch, "/api/posts/not-a-number", map[string]any{"draftReply": "x"})
	if diff := cmp.Diff(http.StatusBadRequest, w.Code); diff != "" {
		t.Errorf("bad id status mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishPost(t *testing.T) {
	publisher := &stubPublisher{canPost: true}
	r, store := newTestServer(t, publisher)
	post := seedPost(t, store, "t3_pub", "my reply")

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/posts/%d/publish", post.ID), nil)
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got): %s\nbody: %s", diff, w.Body.String())
	}
	got := decodeBody[model.Post](t, w)
	if !got.Posted {
		t.Error("expected post to be marked posted")
	}
	if got.PostedAt == nil {
		t.Error("expected postedAt to be set")
	}
	if diff := cmp.Diff([]string{"t3_pub"}, publisher.submitted); diff != "" {
		t.Errorf("submitted comments mismatch (-want +got):\n%s", diff)
	}

	// Republishing is rejected; the flag is one-way.
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/posts/%d/publish", post.ID), nil)
	if diff := cmp.Diff(http.StatusConflict, w.Code); diff != "" {
		t.Errorf("republish status mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, len(publisher.submitted)); diff != "" {
		t.Errorf("submit count mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishPostWithoutDraft(t *testing.T) {
	r, store := newTestServer(t, &stubPublisher{canPost: true})
	post := seedPost(t, store, "t3_nodraft", "")

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/posts/%d/publish", post.ID), nil)
	if diff := cmp.Diff(http.StatusBadRequest, w.Code); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishPostNotFound(t *testing.T) {
	r, _ := newTestServer(t, &stubPublisher{canPost: true})

	w := doJSON(t, r, http.MethodPost, "/api/posts/9999/publish", nil)
	if diff := cmp.Diff(http.StatusNotFound, w.Code); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishPostSubmitFailure(t *testing.T) {
	publisher := &stubPublisher{canPost: true, err: fmt.Errorf("reddit said no")}
	r, store := newTestServer(t, publisher)
	post := seedPost(t, store, "t3_fail", "my reply")

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/posts/%d/publish", post.ID), nil)
	if diff := cmp.Diff(http.StatusBadGateway, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}

	// The post stays unposted when submission fails.
	got, err := store.GetPost(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Posted {
		t.Error("post must not be marked posted after a failed submit")
	}
}

func TestPublishPostWithoutCredentials(t *testing.T) {
	publisher := &stubPublisher{canPost: false}
	r, store := newTestServer(t, publisher)
	post := seedPost(t, store, "t3_local", "my reply")

	// Without credentials the post is still marked posted locally.
	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/posts/%d/publish", post.ID), nil)
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	got := decodeBody[model.Post](t, w)
	if !got.Posted {
		t.Error("expected post to be marked posted")
	}
	if len(publisher.submitted) != 0 {
		t.Errorf("no comment should be submitted without credentials, got %v", publisher.submitted)
	}
}

func TestSnippetEndpoints(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodPost, "/api/knowledge",
		map[string]any{"title": "Pricing", "content": "Free tier covers 100 requests."})
	if diff := cmp.Diff(http.StatusCreated, w.Code); diff != "" {
		t.Fatalf("create status mismatch (-want +got): %s\nbody: %s", diff, w.Body.String())
	}
	created := decodeBody[model.KnowledgeSnippet](t, w)
	if created.ID == "" {
		t.Fatal("expected generated snippet id")
	}

	w = doJSON(t, r, http.MethodPost, "/api/knowledge", map[string]any{"title": "empty"})
	if diff := cmp.Diff(http.StatusBadRequest, w.Code); diff != "" {
		t.Errorf("missing content status mismatch (-want +got):\n%s", diff)
	}

	w = doJSON(t, r, http.MethodGet, "/api/knowledge", nil)
	list := decodeBody[struct {
		Snippets []model.KnowledgeSnippet `json:"snippets"`
	}](t, w)
	if diff := cmp.Diff(1, len(list.Snippets)); diff != "" {
		t.Fatalf("snippet count mismatch (-want +got):\n%s", diff)
	}

	w = doJSON(t, r, http.MethodPut, "/api/knowledge/"+created.ID,
		map[string]any{"title": "Pricing", "content": "Free tier covers 500 requests."})
	if diff := cmp.Diff(http.StatusOK, w.Code); diff != "" {
		t.Errorf("update status mismatch (-want +got):\n%s", diff)
	}

	w = doJSON(t, r, http.MethodPut, "/api/knowledge/no-such-id",
		map[string]any{"content": "x"})
	if diff := cmp.Diff(http.StatusNotFound, w.Code); diff != "" {
		t.Errorf("update unknown id status mismatch (-want +got):\n%s", diff)
	}

	w = doJSON(t, r, http.MethodDelete, "/api/knowledge/"+created.ID, nil)
	if diff := cmp.Diff(http.StatusNoContent, w.Code); diff != "" {
		t.Errorf("delete status mismatch (-want +got):\n%s", diff)
	}

	w = doJSON(t, r, http.MethodDelete, "/api/knowledge/"+created.ID, nil)
	if diff := cmp.Diff(http.StatusNotFound, w.Code); diff != "" {
		t.Errorf("second delete status mismatch (-want +got):\n%s", diff)
	}
}

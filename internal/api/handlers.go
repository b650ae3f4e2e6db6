package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reddit_monitor/internal/broadcast"
	"reddit_monitor/internal/model"
	"reddit_monitor/internal/monitor"
	"reddit_monitor/internal/storage"
)

// Publisher submits reply comments back to Reddit.
type Publisher interface {
	CanPost() bool
	SubmitComment(ctx context.Context, parentFullname, text string) error
}

// Handler handles HTTP requests for the monitoring API.
type Handler struct {
	monitor   *monitor.Monitor
	store     storage.Storage
	events    *broadcast.Broadcaster
	publisher Publisher
	log       *slog.Logger
}

// NewHandler creates an API handler.
func NewHandler(m *monitor.Monitor, store storage.Storage, events *broadcast.Broadcaster,
	publisher Publisher, log *slog.Logger) *Handler {
	return &Handler{
		monitor:   m,
		store:     store,
		events:    events,
		publisher: publisher,
		log:       log,
	}
}

// Health reports service liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type startRequest struct {
	Subreddits      []string `json:"subreddits"`
	Keywords        []string `json:"keywords"`
	IntervalMinutes int      `json:"intervalMinutes"`
}

// StartMonitoring starts the scan timer with the given parameters.
func (h *Handler) StartMonitoring(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if err := h.monitor.Start(c.Request.Context(), req.Subreddits, req.Keywords, req.IntervalMinutes); err != nil {
		if errors.Is(err, monitor.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("start monitoring", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start monitoring"})
		return
	}

	h.respondStatus(c)
}

// StopMonitoring stops the scan timer.
func (h *Handler) StopMonitoring(c *gin.Context) {
	if err := h.monitor.Stop(c.Request.Context()); err != nil {
		h.log.Error("stop monitoring", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop monitoring"})
		return
	}
	h.respondStatus(c)
}

// GetStatus returns the monitor state snapshot.
func (h *Handler) GetStatus(c *gin.Context) {
	h.respondStatus(c)
}

func (h *Handler) respondStatus(c *gin.Context) {
	state, err := h.monitor.Status(c.Request.Context())
	if err != nil {
		h.log.Error("get status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load status"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// ListPosts returns a page of discovered posts, most recent first.
func (h *Handler) ListPosts(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	posts, total, err := h.store.ListPosts(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error("list posts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load posts"})
		return
	}
	if posts == nil {
		posts = []model.Post{}
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "total": total, "limit": limit, "offset": offset})
}

type updatePostRequest struct {
	DraftReply *string `json:"draftReply"`
}

// UpdatePost edits the drafted reply of a post.
func (h *Handler) UpdatePost(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.DraftReply == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "draftReply is required"})
		return
	}

	if err := h.store.UpdatePostReply(c.Request.Context(), id, *req.DraftReply); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		h.log.Error("update post reply", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update post"})
		return
	}

	post, err := h.store.GetPost(c.Request.Context(), id)
	if err != nil {
		h.log.Error("get post", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load post"})
		return
	}
	c.JSON(http.StatusOK, post)
}

// PublishPost submits the drafted reply as a Reddit comment (when
// credentials are configured) and marks the post as posted. The posted
// flag is one-way: republishing an already-posted item is rejected.
func (h *Handler) PublishPost(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	post, err := h.store.GetPost(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		h.log.Error("get post", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load post"})
		return
	}

	if post.Posted {
		c.JSON(http.StatusConflict, gin.H{"error": "post already published"})
		return
	}
	if post.DraftReply == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "post has no drafted reply"})
		return
	}

	if h.publisher != nil && h.publisher.CanPost() {
		if err := h.publisher.SubmitComment(c.Request.Context(), post.ExternalID, post.DraftReply); err != nil {
			h.log.Error("submit comment", "id", id, "external_id", post.ExternalID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to submit comment to reddit"})
			return
		}
	}

	if err := h.store.MarkPostPosted(c.Request.Context(), id); err != nil {
		h.log.Error("mark post posted", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark post as posted"})
		return
	}

	post, err = h.store.GetPost(c.Request.Context(), id)
	if err != nil {
		h.log.Error("get post", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load post"})
		return
	}
	c.JSON(http.StatusOK, post)
}

// ListSnippets returns all knowledge snippets.
func (h *Handler) ListSnippets(c *gin.Context) {
	snippets, err := h.store.ListSnippets(c.Request.Context())
	if err != nil {
		h.log.Error("list snippets", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load snippets"})
		return
	}
	if snippets == nil {
		snippets = []model.KnowledgeSnippet{}
	}
	c.JSON(http.StatusOK, gin.H{"snippets": snippets})
}

type snippetRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CreateSnippet adds a knowledge snippet.
func (h *Handler) CreateSnippet(c *gin.Context) {
	var req snippetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	snippet := &model.KnowledgeSnippet{
		ID:      uuid.NewString(),
		Title:   req.Title,
		Content: req.Content,
	}
	if err := h.store.CreateSnippet(c.Request.Context(), snippet); err != nil {
		h.log.Error("create snippet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create snippet"})
		return
	}
	c.JSON(http.StatusCreated, snippet)
}

// UpdateSnippet edits an existing knowledge snippet.
func (h *Handler) UpdateSnippet(c *gin.Context) {
	var req snippetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	snippet := &model.KnowledgeSnippet{
		ID:      c.Param("id"),
		Title:   req.Title,
		Content: req.Content,
	}
	if err := h.store.UpdateSnippet(c.Request.Context(), snippet); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snippet not found"})
			return
		}
		h.log.Error("update snippet", "id", snippet.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update snippet"})
		return
	}
	c.JSON(http.StatusOK, snippet)
}

// DeleteSnippet removes a knowledge snippet.
func (h *Handler) DeleteSnippet(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteSnippet(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snippet not found"})
			return
		}
		h.log.Error("delete snippet", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete snippet"})
		return
	}
	c.Status(http.StatusNoContent)
}

// StreamEvents bridges a broadcast subscriber to a server-sent events
// stream. The subscription lasts for the lifetime of the connection;
// events published while no client is connected are not replayed.
func (h *Handler) StreamEvents(c *gin.Context) {
	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case evt, ok := <-sub.Events:
			if !ok {
				return false
			}
			c.SSEvent(string(evt.Type), evt.Data)
			return true
		}
	})
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

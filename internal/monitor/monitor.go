// Package monitor drives the scan loop: fetch candidates, deduplicate
// against storage, score, draft replies, persist, and broadcast.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reddit_monitor/internal/broadcast"
	"reddit_monitor/internal/drafter"
	"reddit_monitor/internal/model"
	"reddit_monitor/internal/reddit"
	"reddit_monitor/internal/scoring"
	"reddit_monitor/internal/storage"
)

// ErrValidation marks start parameters rejected before any state change.
var ErrValidation = errors.New("invalid parameters")

const (
	defaultFetchLimit = 25
	cycleTimeout      = 2 * time.Minute
)

// Source is the content search interface the monitor consumes.
type Source interface {
	Search(ctx context.Context, subreddits, keywords []string, limit int) ([]reddit.Candidate, error)
}

// ReplyDrafter generates suggested replies for new posts.
type ReplyDrafter interface {
	Draft(ctx context.Context, subreddit, title, body string, knowledge []model.KnowledgeSnippet) (*drafter.Draft, error)
}

// Monitor owns the repeating scan timer and runs scan cycles. At most
// one timer is active at a time; cycles run sequentially inside one
// goroutine, so two cycles never overlap.
type Monitor struct {
	store  storage.Storage
	source Source
	draft  ReplyDrafter // nil when drafting is not configured
	events *broadcast.Broadcaster
	log    *slog.Logger

	fetchLimit int
	now        func() time.Time

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	subreddits []string
	keywords   []string
}

// New creates a Monitor. draft may be nil, in which case posts are
// persisted without reply suggestions.
func New(store storage.Storage, source Source, draft ReplyDrafter, events *broadcast.Broadcaster, log *slog.Logger) *Monitor {
	return &Monitor{
		store:      store,
		source:     source,
		draft:      draft,
		events:     events,
		log:        log,
		fetchLimit: defaultFetchLimit,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source (useful for testing).
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// SetFetchLimit overrides the per-cycle candidate fetch limit.
func (m *Monitor) SetFetchLimit(limit int) {
	m.fetchLimit = limit
}

// Start begins monitoring the given subreddits for the given keywords.
// Any previously running timer is fully stopped first, so exactly one
// timer exists afterwards. Counters start a fresh epoch, but stored
// posts are kept and deduplication against them still applies. One
// scan cycle is triggered immediately, before the first interval
// elapses.
func (m *Monitor) Start(ctx context.Context, subreddits, keywords []string, intervalMinutes int) error {
	if len(subreddits) == 0 {
		return fmt.Errorf("%w: at least one subreddit is required", ErrValidation)
	}
	if len(keywords) == 0 {
		return fmt.Errorf("%w: at least one keyword is required", ErrValidation)
	}
	if intervalMinutes <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLoopLocked()

	state := &model.MonitorState{
		Subreddits:      subreddits,
		Keywords:        keywords,
		IntervalMinutes: intervalMinutes,
		IsActive:        true,
	}
	if err := m.store.SaveState(ctx, state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	m.subreddits = subreddits
	m.keywords = keywords

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx, m.done, time.Duration(intervalMinutes)*time.Minute)

	m.events.Publish(broadcast.Event{
		Type: broadcast.EventMonitoringStarted,
		Data: broadcast.StartedData{
			Subreddits:      subreddits,
			Keywords:        keywords,
			IntervalMinutes: intervalMinutes,
		},
	})

	m.log.Info("monitoring started",
		"subreddits", subreddits, "keywords", keywords, "interval_minutes", intervalMinutes)
	return nil
}

// Stop halts the scan timer and marks monitoring inactive. Calling
// Stop when already stopped is a no-op beyond flipping the flag; each
// call emits exactly one monitoring_stopped event.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLoopLocked()

	state, err := m.store.GetState(ctx)
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}
	state.IsActive = false
	if err := m.store.SaveState(ctx, state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	m.events.Publish(broadcast.Event{Type: broadcast.EventMonitoringStopped, Data: struct{}{}})
	m.log.Info("monitoring stopped")
	return nil
}

// Shutdown stops the scan timer without marking monitoring inactive or
// emitting an event, so a restarted process resumes from the persisted
// state. Used on process shutdown; operator-initiated stops go through
// Stop.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLoopLocked()
}

// Status returns the current monitor state snapshot.
func (m *Monitor) Status(ctx context.Context) (*model.MonitorState, error) {
	return m.store.GetState(ctx)
}

// Running reports whether a scan timer is currently active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// stopLoopLocked cancels the run loop and waits for it to exit, so the
// old timer can never tick once a new one is installed. Requires m.mu.
func (m *Monitor) stopLoopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

// run executes one immediate cycle and then one cycle per tick until
// cancelled. Cancellation stops future ticks; a cycle that already
// started runs to completion (see RunCycle).
func (m *Monitor) run(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)

	m.RunCycle()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle()
		}
	}
}

// RunCycle performs one scan cycle: fetch, deduplicate, score, draft,
// persist, broadcast, and update aggregate counters. The cycle runs on
// its own deadline rather than the loop's context, so stopping the
// monitor lets an in-flight cycle finish its persistence and
// broadcast steps.
func (m *Monitor) RunCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	candidates, err := m.source.Search(ctx, m.subreddits, m.keywords, m.fetchLimit)
	if err != nil {
		m.log.Error("scan cycle fetch failed", "error", err)
		m.events.Publish(broadcast.Event{
			Type: broadcast.EventScanError,
			Data: broadcast.ScanErrorData{Message: err.Error()},
		})
		return
	}

	var knowledge []model.KnowledgeSnippet
	if m.draft != nil {
		knowledge, err = m.store.ListSnippets(ctx)
		if err != nil {
			m.log.Error("list knowledge snippets", "error", err)
		}
	}

	newCount := 0
	for _, cand := range candidates {
		seen, err := m.store.HasPost(ctx, cand.ExternalID)
		if err != nil {
			m.log.Error("check post exists", "external_id", cand.ExternalID, "error", err)
			continue
		}
		if seen {
			continue
		}

		post := m.buildPost(ctx, cand, knowledge)
		if err := m.store.CreatePost(ctx, post); err != nil {
			m.log.Error("create post", "external_id", cand.ExternalID, "error", err)
			continue
		}
		newCount++

		m.events.Publish(broadcast.Event{
			Type: broadcast.EventNewPost,
			Data: broadcast.NewPostData{Post: *post},
		})
	}

	now := m.now()
	state, err := m.store.GetState(ctx)
	if err != nil {
		m.log.Error("get state", "error", err)
	} else {
		state.LastScanAt = &now
		state.TotalSeen += len(candidates)
		state.LastNewCount = newCount
		if err := m.store.SaveState(ctx, state); err != nil {
			m.log.Error("save state", "error", err)
		}
	}

	m.events.Publish(broadcast.Event{
		Type: broadcast.EventScanComplete,
		Data: broadcast.ScanCompleteData{
			TotalFetched: len(candidates),
			NewCount:     newCount,
			Timestamp:    now,
		},
	})

	m.log.Info("scan cycle complete", "fetched", len(candidates), "new", newCount)
}

// buildPost scores a candidate and attempts to draft a reply. Drafting
// failures are tolerated: the post is returned without a suggestion.
func (m *Monitor) buildPost(ctx context.Context, cand reddit.Candidate, knowledge []model.KnowledgeSnippet) *model.Post {
	score, priority := scoring.Score(scoring.Input{
		Title:     cand.Title,
		Body:      cand.Body,
		Upvotes:   cand.Upvotes,
		Comments:  cand.Comments,
		CreatedAt: cand.CreatedAt,
	}, cand.MatchedKeywords, m.keywords, m.now())

	post := &model.Post{
		ExternalID:      cand.ExternalID,
		Subreddit:       cand.Subreddit,
		Title:           cand.Title,
		Body:            cand.Body,
		Author:          cand.Author,
		Upvotes:         cand.Upvotes,
		Comments:        cand.Comments,
		MatchedKeywords: cand.MatchedKeywords,
		Priority:        priority,
		Score:           score,
		Highlighted:     priority.Highlighted(),
		URL:             cand.URL,
		MatchReason:     scoring.Reason(cand.MatchedKeywords, score, priority),
		CreatedAt:       m.now(),
	}

	if m.draft != nil {
		d, err := m.draft.Draft(ctx, cand.Subreddit, cand.Title, cand.Body, knowledge)
		if err != nil {
			m.log.Warn("draft reply failed, persisting without draft",
				"external_id", cand.ExternalID, "error", err)
		} else {
			post.DraftReply = d.Reply
			post.DraftConfidence = d.Confidence
		}
	}
	return post
}

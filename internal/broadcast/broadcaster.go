// Package broadcast delivers typed events to all currently-connected
// subscribers. Delivery is best-effort and at-most-once: a subscriber
// that is not connected, or whose buffer is full, misses the event.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reddit_monitor/internal/model"
)

// EventType identifies the kind of a broadcast event.
type EventType string

// Event types produced by the monitor.
const (
	EventMonitoringStarted EventType = "monitoring_started"
	EventMonitoringStopped EventType = "monitoring_stopped"
	EventNewPost           EventType = "new_post"
	EventScanComplete      EventType = "scan_complete"
	EventScanError         EventType = "scan_error"
)

// Event is a typed notification message.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// StartedData is the payload of a monitoring_started event.
type StartedData struct {
	Subreddits      []string `json:"subreddits"`
	Keywords        []string `json:"keywords"`
	IntervalMinutes int      `json:"intervalMinutes"`
}

// ScanCompleteData is the payload of a scan_complete event.
type ScanCompleteData struct {
	TotalFetched int       `json:"totalFetched"`
	NewCount     int       `json:"newCount"`
	Timestamp    time.Time `json:"timestamp"`
}

// ScanErrorData is the payload of a scan_error event.
type ScanErrorData struct {
	Message string `json:"message"`
}

// NewPostData is the payload of a new_post event.
type NewPostData struct {
	Post model.Post `json:"post"`
}

const subscriberBuffer = 64

// Subscriber receives broadcast events on its Events channel until it
// is unsubscribed.
type Subscriber struct {
	ID     string
	Events chan Event
}

// Broadcaster fans events out to a registry of subscribers.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
	log  *slog.Logger
}

// New creates an empty Broadcaster.
func New(log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]*Subscriber),
		log:  log,
	}
}

// Subscribe registers a new subscriber and returns it.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Events: make(chan Event, subscriberBuffer),
	}
	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids
// are a no-op.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.Events)
	}
}

// SubscriberCount returns the number of connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers an event to every current subscriber. A subscriber
// whose buffer is full is skipped so one slow consumer cannot stall
// the scan loop.
func (b *Broadcaster) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.Events <- evt:
		default:
			b.log.Warn("dropping event for slow subscriber", "subscriber", sub.ID, "type", string(evt.Type))
		}
	}
}

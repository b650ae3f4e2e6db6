// Package model defines the domain types used across the application.
package model

import "time"

// Priority categorizes how urgently a post deserves operator attention.
type Priority string

// Priority levels, lowest to highest.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the sort order of a priority (higher is more urgent).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// PriorityForScore maps a score in [0,1] to a priority category.
// Thresholds: >=0.80 critical, >=0.60 high, >=0.40 medium, else low.
// Downstream sorting and highlighting depend on these exact cutoffs.
func PriorityForScore(score float64) Priority {
	switch {
	case score >= 0.80:
		return PriorityCritical
	case score >= 0.60:
		return PriorityHigh
	case score >= 0.40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Highlighted reports whether posts of this priority are surfaced
// prominently in the dashboard.
func (p Priority) Highlighted() bool {
	return p == PriorityHigh || p == PriorityCritical
}

// Post is a discovered Reddit post that passed keyword matching.
// ExternalID is Reddit's immutable post id and the deduplication key:
// the store never holds two posts with the same ExternalID.
type Post struct {
	ID              int64      `json:"id"`
	ExternalID      string     `json:"externalId"`
	Subreddit       string     `json:"subreddit"`
	Title           string     `json:"title"`
	Body            string     `json:"body"`
	Author          string     `json:"author"`
	Upvotes         int        `json:"upvotes"`
	Comments        int        `json:"comments"`
	MatchedKeywords []string   `json:"matchedKeywords"`
	Priority        Priority   `json:"priority"`
	Score           float64    `json:"score"`
	Highlighted     bool       `json:"highlighted"`
	URL             string     `json:"url"`
	MatchReason     string     `json:"matchReason"`
	DraftReply      string     `json:"draftReply"`
	DraftConfidence float64    `json:"draftConfidence"`
	Posted          bool       `json:"posted"`
	CreatedAt       time.Time  `json:"createdAt"`
	PostedAt        *time.Time `json:"postedAt,omitempty"`
}

// MonitorState is the singleton monitoring configuration and its
// aggregate counters. It is overwritten on every start/stop and after
// each scan cycle, never deleted.
type MonitorState struct {
	Subreddits      []string   `json:"subreddits"`
	Keywords        []string   `json:"keywords"`
	IntervalMinutes int        `json:"intervalMinutes"`
	IsActive        bool       `json:"isActive"`
	LastScanAt      *time.Time `json:"lastScanAt"`
	TotalSeen       int        `json:"totalSeen"`
	LastNewCount    int        `json:"lastNewCount"`
}

// KnowledgeSnippet is operator-maintained context text fed to the
// reply drafter. The scan loop reads snippets but never mutates them.
type KnowledgeSnippet struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

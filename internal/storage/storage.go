// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"reddit_monitor/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id int64) (*model.Post, error)
	GetPostByExternalID(ctx context.Context, externalID string) (*model.Post, error)
	HasPost(ctx context.Context, externalID string) (bool, error)
	ListPosts(ctx context.Context, limit, offset int) ([]model.Post, int, error)
	UpdatePostReply(ctx context.Context, id int64, reply string) error
	MarkPostPosted(ctx context.Context, id int64) error

	GetState(ctx context.Context) (*model.MonitorState, error)
	SaveState(ctx context.Context, state *model.MonitorState) error

	CreateSnippet(ctx context.Context, s *model.KnowledgeSnippet) error
	GetSnippet(ctx context.Context, id string) (*model.KnowledgeSnippet, error)
	ListSnippets(ctx context.Context) ([]model.KnowledgeSnippet, error)
	UpdateSnippet(ctx context.Context, s *model.KnowledgeSnippet) error
	DeleteSnippet(ctx context.Context, id string) error

	Close() error
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"reddit_monitor/internal/model"
	"reddit_monitor/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreatePost inserts a new post and populates its ID.
// The external_id column carries a UNIQUE constraint, so inserting a
// duplicate external id fails rather than silently creating a second row.
func (s *SQLite) CreatePost(ctx context.Context, post *model.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (external_id, subreddit, title, body, author, upvotes, comments,
		                    matched_keywords, priority, score, highlighted, url, match_reason,
		                    draft_reply, draft_confidence, posted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ExternalID, post.Subreddit, post.Title, post.Body, post.Author,
		post.Upvotes, post.Comments, strings.Join(post.MatchedKeywords, ","),
		string(post.Priority), post.Score, boolToInt(post.Highlighted), post.URL,
		post.MatchReason, post.DraftReply, post.DraftConfidence, boolToInt(post.Posted),
		post.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	post.ID = id
	return nil
}

const postColumns = `id, external_id, subreddit, title, body, author, upvotes, comments,
	matched_keywords, priority, score, highlighted, url, match_reason,
	draft_reply, draft_confidence, posted, created_at, posted_at`

// GetPost returns a single post by its database ID.
func (s *SQLite) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// GetPostByExternalID returns a single post by its Reddit id.
func (s *SQLite) GetPostByExternalID(ctx context.Context, externalID string) (*model.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE external_id = ?`, externalID)
	return scanPost(row)
}

// HasPost checks whether a post with the given Reddit id already exists.
func (s *SQLite) HasPost(ctx context.Context, externalID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE external_id = ?`, externalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check post exists: %w", err)
	}
	return count > 0, nil
}

// ListPosts returns a page of posts ordered most-recent-first along
// with the total post count.
func (s *SQLite) ListPosts(ctx context.Context, limit, offset int) ([]model.Post, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, *p)
	}
	return posts, total, rows.Err()
}

// UpdatePostReply replaces the drafted reply of an existing post.
func (s *SQLite) UpdatePostReply(ctx context.Context, id int64, reply string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET draft_reply = ? WHERE id = ?`, reply, id)
	if err != nil {
		return fmt.Errorf("update post reply: %w", err)
	}
	return requireRow(res)
}

// MarkPostPosted flips the posted flag on. The transition is one-way:
// there is no operation that resets it.
func (s *SQLite) MarkPostPosted(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET posted = 1, posted_at = COALESCE(posted_at, ?) WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("mark post posted: %w", err)
	}
	return requireRow(res)
}

// GetState returns the singleton monitor state, or a zero-value state
// if monitoring has never been configured.
func (s *SQLite) GetState(ctx context.Context) (*model.MonitorState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subreddits, keywords, interval_minutes, is_active, last_scan_at, total_seen, last_new_count
		 FROM monitor_state WHERE id = 1`)

	var st model.MonitorState
	var subs, kws string
	var isActive int
	var lastScan sql.NullString
	err := row.Scan(&subs, &kws, &st.IntervalMinutes, &isActive, &lastScan, &st.TotalSeen, &st.LastNewCount)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.MonitorState{IntervalMinutes: 5}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan state: %w", err)
	}
	st.Subreddits = splitList(subs)
	st.Keywords = splitList(kws)
	st.IsActive = isActive == 1
	if lastScan.Valid {
		t, _ := time.Parse(timeLayout, lastScan.String)
		st.LastScanAt = &t
	}
	return &st, nil
}

// SaveState upserts the singleton monitor state row.
func (s *SQLite) SaveState(ctx context.Context, state *model.MonitorState) error {
	var lastScan *string
	if state.LastScanAt != nil {
		v := state.LastScanAt.UTC().Format(timeLayout)
		lastScan = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_state (id, subreddits, keywords, interval_minutes, is_active, last_scan_at, total_seen, last_new_count)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   subreddits = excluded.subreddits,
		   keywords = excluded.keywords,
		   interval_minutes = excluded.interval_minutes,
		   is_active = excluded.is_active,
		   last_scan_at = excluded.last_scan_at,
		   total_seen = excluded.total_seen,
		   last_new_count = excluded.last_new_count`,
		strings.Join(state.Subreddits, ","), strings.Join(state.Keywords, ","),
		state.IntervalMinutes, boolToInt(state.IsActive), lastScan,
		state.TotalSeen, state.LastNewCount,
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// CreateSnippet inserts a new knowledge snippet.
func (s *SQLite) CreateSnippet(ctx context.Context, sn *model.KnowledgeSnippet) error {
	if sn.CreatedAt.IsZero() {
		sn.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_snippets (id, title, content, created_at) VALUES (?, ?, ?, ?)`,
		sn.ID, sn.Title, sn.Content, sn.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert snippet: %w", err)
	}
	return nil
}

// GetSnippet returns a single knowledge snippet by its id.
func (s *SQLite) GetSnippet(ctx context.Context, id string) (*model.KnowledgeSnippet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at FROM knowledge_snippets WHERE id = ?`, id)
	var sn model.KnowledgeSnippet
	var created string
	err := row.Scan(&sn.ID, &sn.Title, &sn.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snippet: %w", err)
	}
	sn.CreatedAt, _ = time.Parse(timeLayout, created)
	return &sn, nil
}

// ListSnippets returns all knowledge snippets, oldest first.
func (s *SQLite) ListSnippets(ctx context.Context) ([]model.KnowledgeSnippet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, created_at FROM knowledge_snippets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query snippets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snippets []model.KnowledgeSnippet
	for rows.Next() {
		var sn model.KnowledgeSnippet
		var created string
		if err := rows.Scan(&sn.ID, &sn.Title, &sn.Content, &created); err != nil {
			return nil, fmt.Errorf("scan snippet: %w", err)
		}
		sn.CreatedAt, _ = time.Parse(timeLayout, created)
		snippets = append(snippets, sn)
	}
	return snippets, rows.Err()
}

// UpdateSnippet persists changes to an existing snippet.
func (s *SQLite) UpdateSnippet(ctx context.Context, sn *model.KnowledgeSnippet) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_snippets SET title = ?, content = ? WHERE id = ?`,
		sn.Title, sn.Content, sn.ID)
	if err != nil {
		return fmt.Errorf("update snippet: %w", err)
	}
	return requireRow(res)
}

// DeleteSnippet removes a snippet by its id.
func (s *SQLite) DeleteSnippet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snippet: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPost(row scannable) (*model.Post, error) {
	var p model.Post
	var keywords, created string
	var highlighted, posted int
	var postedAt sql.NullString
	err := row.Scan(
		&p.ID, &p.ExternalID, &p.Subreddit, &p.Title, &p.Body, &p.Author,
		&p.Upvotes, &p.Comments, &keywords, &p.Priority, &p.Score, &highlighted,
		&p.URL, &p.MatchReason, &p.DraftReply, &p.DraftConfidence, &posted,
		&created, &postedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	p.MatchedKeywords = splitList(keywords)
	p.Highlighted = highlighted == 1
	p.Posted = posted == 1
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	if postedAt.Valid {
		t, _ := time.Parse(timeLayout, postedAt.String)
		p.PostedAt = &t
	}
	return &p, nil
}

// Package reddit implements the client for Reddit's listing and
// comment APIs.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL  = "https://www.reddit.com"
	defaultOAuthURL = "https://oauth.reddit.com"
	defaultAgent    = "RedditMonitor/1.0"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials holds OAuth script-app credentials. All four fields are
// required for posting comments; listing reads work without them.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

func (c Credentials) complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.Username != "" && c.Password != ""
}

// Candidate is a Reddit post returned by Search, not yet deduplicated
// against storage. ExternalID is the post's fullname (t3_...).
type Candidate struct {
	ExternalID      string
	Subreddit       string
	Title           string
	Body            string
	Author          string
	Upvotes         int
	Comments        int
	URL             string
	CreatedAt       time.Time
	MatchedKeywords []string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL overrides the listing API base URL (useful for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithOAuthURLs overrides the token and OAuth API base URLs (useful for testing).
func WithOAuthURLs(tokenURL, apiURL string) ClientOption {
	return func(c *Client) {
		c.tokenURL = tokenURL
		c.oauthURL = strings.TrimRight(apiURL, "/")
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(agent string) ClientOption {
	return func(c *Client) {
		c.userAgent = agent
	}
}

// WithCredentials enables authenticated operations (comment posting).
func WithCredentials(creds Credentials) ClientOption {
	return func(c *Client) {
		c.creds = creds
	}
}

// Client talks to Reddit's public listing API and, when credentials
// are configured, its OAuth comment API.
type Client struct {
	httpClient HTTPClient
	baseURL    string
	tokenURL   string
	oauthURL   string
	userAgent  string
	creds      Credentials
	log        *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a Reddit client.
func NewClient(log *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		tokenURL:   defaultBaseURL + "/api/v1/access_token",
		oauthURL:   defaultOAuthURL,
		userAgent:  defaultAgent,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CanPost reports whether the client is configured for comment posting.
func (c *Client) CanPost() bool {
	return c.creds.complete()
}

// Search fetches the newest posts from each subreddit and returns
// those whose title or body contains at least one keyword
// (case-insensitive). The overall limit is split evenly across
// subreddits, rounded up.
//
// A subreddit fetch failure is fatal only while no fetch has succeeded
// yet; after the first successful fetch, later failures are logged and
// skipped so a partial scan still completes.
func (c *Client) Search(ctx context.Context, subreddits, keywords []string, limit int) ([]Candidate, error) {
	if len(subreddits) == 0 {
		return nil, nil
	}
	perSubreddit := (limit + len(subreddits) - 1) / len(subreddits)

	var results []Candidate
	succeeded := 0
	for _, sub := range subreddits {
		posts, err := c.fetchNew(ctx, sub, perSubreddit)
		if err != nil {
			if succeeded == 0 {
				return nil, fmt.Errorf("fetch r/%s: %w", sub, err)
			}
			c.log.Warn("skipping subreddit after fetch error", "subreddit", sub, "error", err)
			continue
		}
		succeeded++

		for _, p := range posts {
			matched := matchKeywords(p.Title+" "+p.Body, keywords)
			if len(matched) == 0 {
				continue
			}
			p.MatchedKeywords = matched
			results = append(results, p)
		}
	}
	return results, nil
}

// listing mirrors the subset of Reddit's listing JSON the client reads.
type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Name        string  `json:"name"`
				Subreddit   string  `json:"subreddit"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Author      string  `json:"author"`
				Ups         int     `json:"ups"`
				NumComments int     `json:"num_comments"`
				Permalink   string  `json:"permalink"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (c *Client) fetchNew(ctx context.Context, subreddit string, limit int) ([]Candidate, error) {
	u := fmt.Sprintf("%s/r/%s/new.json?limit=%d&raw_json=1", c.baseURL, url.PathEscape(subreddit), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	posts := make([]Candidate, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		d := child.Data
		externalID := d.Name
		if externalID == "" {
			externalID = "t3_" + d.ID
		}
		posts = append(posts, Candidate{
			ExternalID: externalID,
			Subreddit:  d.Subreddit,
			Title:      d.Title,
			Body:       d.Selftext,
			Author:     d.Author,
			Upvotes:    d.Ups,
			Comments:   d.NumComments,
			URL:        defaultBaseURL + d.Permalink,
			CreatedAt:  time.Unix(int64(d.CreatedUTC), 0).UTC(),
		})
	}
	return posts, nil
}

// SubmitComment posts a reply under the given fullname (t3_... for a
// post). Requires OAuth credentials.
func (c *Client) SubmitComment(ctx context.Context, parentFullname, text string) error {
	if !c.CanPost() {
		return fmt.Errorf("reddit credentials not configured")
	}

	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("get access token: %w", err)
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", parentFullname)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.oauthURL+"/api/comment", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// token returns a cached OAuth access token, refreshing it via the
// password grant when missing or expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	c.accessToken = tok.AccessToken
	// Refresh one minute early to avoid using a token at the edge of expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

func matchKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

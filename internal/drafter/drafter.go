// Package drafter generates suggested replies for discovered posts
// using an OpenAI-compatible chat completions API.
package drafter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reddit_monitor/internal/model"
)

// DefaultTemplate is the prompt used when no override is configured.
// The four placeholders are substituted by plain string replacement.
const DefaultTemplate = `You are a helpful community member writing a reply to a post in r/{{subreddit}}.

Post title: {{title}}
Post body: {{body}}

Background knowledge you may draw on:
{{knowledge}}

Write a concise, friendly, genuinely helpful reply. Do not sound like an advertisement.
Respond with a JSON object: {"reply": string, "confidence": number between 0 and 1, "rationale": string}`

// Fallback values used when the model response is missing fields.
const (
	FallbackReply      = "I'd be happy to help with this question!"
	FallbackConfidence = 0.5
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Draft is a generated reply suggestion.
type Draft struct {
	Reply      string
	Confidence float64
	Rationale  string
}

// Option configures the Drafter.
type Option func(*Drafter)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(d *Drafter) {
		d.httpClient = httpClient
	}
}

// WithTemplate overrides the prompt template. The template must keep
// the {{subreddit}}, {{title}}, {{body}} and {{knowledge}} placeholders.
func WithTemplate(template string) Option {
	return func(d *Drafter) {
		d.template = template
	}
}

// Drafter requests reply drafts from a chat completions endpoint.
type Drafter struct {
	httpClient HTTPClient
	apiURL     string
	apiKey     string
	model      string
	template   string
	log        *slog.Logger
}

// New creates a Drafter. apiURL is the API base, e.g.
// https://api.openai.com/v1.
func New(apiURL, apiKey, modelName string, log *slog.Logger, opts ...Option) *Drafter {
	d := &Drafter{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		model:      modelName,
		template:   DefaultTemplate,
		log:        log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Draft requests a reply suggestion for the given post. An error is
// returned only on transport, HTTP, or envelope-parse failure; a
// response with missing fields yields the documented fallback values.
func (d *Drafter) Draft(ctx context.Context, subreddit, title, body string, knowledge []model.KnowledgeSnippet) (*Draft, error) {
	prompt := d.buildPrompt(subreddit, title, body, knowledge)

	payload, err := json.Marshal(chatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope chatResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}

	return parseDraft(envelope.Choices[0].Message.Content, d.log), nil
}

func (d *Drafter) buildPrompt(subreddit, title, body string, knowledge []model.KnowledgeSnippet) string {
	var sb strings.Builder
	for _, sn := range knowledge {
		sb.WriteString("- ")
		if sn.Title != "" {
			sb.WriteString(sn.Title)
			sb.WriteString(": ")
		}
		sb.WriteString(sn.Content)
		sb.WriteString("\n")
	}
	knowledgeText := sb.String()
	if knowledgeText == "" {
		knowledgeText = "(none)"
	}

	return strings.NewReplacer(
		"{{subreddit}}", subreddit,
		"{{title}}", title,
		"{{body}}", body,
		"{{knowledge}}", knowledgeText,
	).Replace(d.template)
}

// parseDraft extracts the structured fields from the model's message
// content, falling back to the documented literal defaults when the
// content is not valid JSON or fields are absent.
func parseDraft(content string, log *slog.Logger) *Draft {
	var fields struct {
		Reply      *string  `json:"reply"`
		Confidence *float64 `json:"confidence"`
		Rationale  string   `json:"rationale"`
	}

	draft := &Draft{Reply: FallbackReply, Confidence: FallbackConfidence}

	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		log.Warn("draft response is not valid JSON, using fallback", "error", err)
		return draft
	}
	if fields.Reply != nil && *fields.Reply != "" {
		draft.Reply = *fields.Reply
	}
	if fields.Confidence != nil {
		draft.Confidence = clamp01(*fields.Confidence)
	}
	draft.Rationale = fields.Rationale
	return draft
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

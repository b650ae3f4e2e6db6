// Package notifier pushes monitoring events to Telegram.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reddit_monitor/internal/broadcast"
	"reddit_monitor/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram subscribes to broadcast events and forwards start/stop
// notices and high-priority finds to a Telegram chat.
type Telegram struct {
	api    telegramAPI
	chatID int64
	events *broadcast.Broadcaster
	log    *slog.Logger
}

// NewTelegram creates a Telegram notifier with the given bot token and
// target chat.
func NewTelegram(token string, chatID int64, events *broadcast.Broadcaster, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, events: events, log: log}, nil
}

// Run consumes broadcast events until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) {
	sub := t.events.Subscribe()
	defer t.events.Unsubscribe(sub.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			t.handle(evt)
		}
	}
}

func (t *Telegram) handle(evt broadcast.Event) {
	switch evt.Type {
	case broadcast.EventMonitoringStarted:
		data, ok := evt.Data.(broadcast.StartedData)
		if !ok {
			return
		}
		t.send(fmt.Sprintf("Monitoring started: r/%s every %d min, keywords: %s",
			strings.Join(data.Subreddits, ", r/"), data.IntervalMinutes,
			strings.Join(data.Keywords, ", ")))
	case broadcast.EventMonitoringStopped:
		t.send("Monitoring stopped.")
	case broadcast.EventNewPost:
		data, ok := evt.Data.(broadcast.NewPostData)
		if !ok || !data.Post.Highlighted {
			return
		}
		t.send(formatPost(data.Post))
	}
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("send telegram message", "chat_id", t.chatID, "error", err)
	}
}

func formatPost(p model.Post) string {
	body := p.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", strings.ToUpper(string(p.Priority)), p.Title)
	fmt.Fprintf(&sb, "r/%s by u/%s (%d upvotes, %d comments)\n", p.Subreddit, p.Author, p.Upvotes, p.Comments)
	if body != "" {
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Score %.2f, matched: %s\n%s", p.Score, strings.Join(p.MatchedKeywords, ", "), p.URL)
	return sb.String()
}

// Package notify turns new posts into user-facing notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/feedwatch/internal/feed"
	"github.com/ppiankov/feedwatch/internal/metrics"
)

const (
	DefaultMaxPerCycle = 5
	DefaultDelay       = 500 * time.Millisecond

	maxBodyRunes    = 200
	placeholderBody = "New post"
)

// Notification is what a sink delivers. Link is advisory; not every sink can
// open it.
type Notification struct {
	Title string
	Body  string
	Link  string
	Sound string
}

type Sink interface {
	Send(ctx context.Context, n Notification) error
}

type Dispatcher struct {
	MaxPerCycle int
	Sound       string
	Delay       time.Duration

	sink Sink
	log  *slog.Logger
}

// NewDispatcher returns a dispatcher with default limits. A nil sink falls
// back to logging each notification.
func NewDispatcher(sink Sink, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = NewLogSink(log)
	}
	return &Dispatcher{
		MaxPerCycle: DefaultMaxPerCycle,
		Sound:       "default",
		Delay:       DefaultDelay,
		sink:        sink,
		log:         log,
	}
}

// Notify sends one notification per post up to MaxPerCycle, then a single
// summary for the rest. It returns how many notifications the sink accepted.
func (d *Dispatcher) Notify(ctx context.Context, handle string, posts []feed.Post) int {
	if len(posts) == 0 {
		return 0
	}

	shown := min(len(posts), max(d.MaxPerCycle, 0))
	batch := make([]Notification, 0, shown+1)
	for _, p := range posts[:shown] {
		batch = append(batch, Notification{
			Title: "@" + handle + " posted",
			Body:  FormatBody(p),
			Link:  p.Link,
			Sound: d.Sound,
		})
	}
	if rest := len(posts) - shown; rest > 0 {
		batch = append(batch, Notification{
			Title: "@" + handle,
			Body:  fmt.Sprintf("And %d more new posts...", rest),
			Sound: d.Sound,
		})
	}

	// Every send after the first waits Delay, the overflow summary included.
	sent := 0
	for i, n := range batch {
		if i > 0 && d.Delay > 0 {
			if !sleep(ctx, d.Delay) {
				return sent
			}
		}
		if d.send(ctx, handle, n) {
			sent++
		}
	}

	return sent
}

func (d *Dispatcher) send(ctx context.Context, handle string, n Notification) bool {
	if err := d.sink.Send(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues(metrics.OutcomeFailed).Inc()
		d.log.WarnContext(ctx, "Failed to send notification",
			"error", err,
			"handle", handle,
			"title", n.Title)
		return false
	}
	metrics.Notifications.WithLabelValues(metrics.OutcomeOK).Inc()
	return true
}

// FormatBody picks the post title, then its content, then a placeholder, and
// truncates the result to 200 characters.
func FormatBody(p feed.Post) string {
	body := p.Title
	if body == "" {
		body = p.Content
	}
	if body == "" {
		body = placeholderBody
	}
	return truncate(body, maxBodyRunes)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

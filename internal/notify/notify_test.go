package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/feedwatch/internal/feed"
)

type recordingSink struct {
	mu    sync.Mutex
	sent  []Notification
	fail  map[int]bool
	calls int
}

func (s *recordingSink) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail[s.calls] {
		return errors.New("sink unavailable")
	}
	s.sent = append(s.sent, n)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makePosts(n int) []feed.Post {
	posts := make([]feed.Post, n)
	for i := range posts {
		posts[i] = feed.NewPost(fmt.Sprintf("post %d", i+1), fmt.Sprintf("https://x/%d", i+1), "", "")
	}
	return posts
}

func newTestDispatcher(sink Sink) *Dispatcher {
	d := NewDispatcher(sink, testLogger())
	d.Delay = 0
	return d
}

func TestNotifyOverflowSummary(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(sink)
	d.MaxPerCycle = 5

	sent := d.Notify(context.Background(), "alice", makePosts(7))

	if sent != 6 {
		t.Fatalf("sent = %d, want 6", sent)
	}
	if len(sink.sent) != 6 {
		t.Fatalf("sink got %d notifications, want 6", len(sink.sent))
	}
	for i, n := range sink.sent[:5] {
		if n.Title != "@alice posted" {
			t.Errorf("notification %d title = %q", i, n.Title)
		}
		if n.Body != fmt.Sprintf("post %d", i+1) {
			t.Errorf("notification %d body = %q", i, n.Body)
		}
		if n.Link != fmt.Sprintf("https://x/%d", i+1) {
			t.Errorf("notification %d link = %q", i, n.Link)
		}
	}
	summary := sink.sent[5]
	if summary.Title != "@alice" {
		t.Errorf("summary title = %q", summary.Title)
	}
	if summary.Body != "And 2 more new posts..." {
		t.Errorf("summary body = %q", summary.Body)
	}
}

func TestNotifyWithinLimitHasNoSummary(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(sink)
	d.MaxPerCycle = 5

	if sent := d.Notify(context.Background(), "alice", makePosts(5)); sent != 5 {
		t.Fatalf("sent = %d, want 5", sent)
	}
	for _, n := range sink.sent {
		if strings.HasPrefix(n.Body, "And ") {
			t.Fatalf("unexpected summary %q", n.Body)
		}
	}
}

func TestNotifyNoPosts(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(sink)

	if sent := d.Notify(context.Background(), "alice", nil); sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
	if sink.calls != 0 {
		t.Fatalf("sink called %d times", sink.calls)
	}
}

func TestNotifyZeroLimitSendsOnlySummary(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(sink)
	d.MaxPerCycle = 0

	if sent := d.Notify(context.Background(), "alice", makePosts(3)); sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if sink.sent[0].Body != "And 3 more new posts..." {
		t.Fatalf("body = %q", sink.sent[0].Body)
	}
}

func TestNotifySinkFailureContinues(t *testing.T) {
	sink := &recordingSink{fail: map[int]bool{2: true}}
	d := newTestDispatcher(sink)
	d.MaxPerCycle = 5

	sent := d.Notify(context.Background(), "alice", makePosts(4))

	if sink.calls != 4 {
		t.Fatalf("sink calls = %d, want 4", sink.calls)
	}
	if sent != 3 {
		t.Fatalf("sent = %d, want 3", sent)
	}
}

func TestNotifyPassesSound(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(sink)
	d.Sound = "Glass"

	d.Notify(context.Background(), "alice", makePosts(1))

	if sink.sent[0].Sound != "Glass" {
		t.Fatalf("sound = %q", sink.sent[0].Sound)
	}
}

func TestNotifyNilSinkFallsBackToLog(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewDispatcher(nil, log)
	d.Delay = 0

	if sent := d.Notify(context.Background(), "alice", makePosts(2)); sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if strings.Count(buf.String(), "msg=Notification") != 2 {
		t.Fatalf("expected two log lines, got:\n%s", buf.String())
	}
}

func TestNotifyDelayBetweenSends(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, testLogger())
	d.Delay = 20 * time.Millisecond

	start := time.Now()
	d.Notify(context.Background(), "alice", makePosts(3))
	elapsed := time.Since(start)

	if elapsed < 40*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least two delays", elapsed)
	}
}

type timedSink struct {
	mu    sync.Mutex
	times []time.Time
}

func (s *timedSink) Send(_ context.Context, _ Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times = append(s.times, time.Now())
	return nil
}

func TestNotifyDelayBeforeSummary(t *testing.T) {
	sink := &timedSink{}
	d := NewDispatcher(sink, testLogger())
	d.MaxPerCycle = 1
	d.Delay = 30 * time.Millisecond

	if sent := d.Notify(context.Background(), "alice", makePosts(3)); sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(sink.times) != 2 {
		t.Fatalf("sends = %d, want 2", len(sink.times))
	}
	if gap := sink.times[1].Sub(sink.times[0]); gap < d.Delay {
		t.Fatalf("gap before summary = %v, want at least %v", gap, d.Delay)
	}
}

func TestNotifyCancelSkipsSummary(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, testLogger())
	d.MaxPerCycle = 1
	d.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sent := d.Notify(ctx, "alice", makePosts(3)); sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if sink.sent[0].Title != "@alice posted" {
		t.Fatalf("first title = %q, want the post", sink.sent[0].Title)
	}
}

func TestNotifyStopsOnCancel(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, testLogger())
	d.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sent := d.Notify(ctx, "alice", makePosts(3)); sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
}

func TestFormatBody(t *testing.T) {
	long := strings.Repeat("a", 250)

	tests := []struct {
		name string
		post feed.Post
		want string
	}{
		{"title", feed.Post{Title: "hello", Content: "body"}, "hello"},
		{"content fallback", feed.Post{Content: "body"}, "body"},
		{"placeholder", feed.Post{}, "New post"},
		{"exactly 200", feed.Post{Title: strings.Repeat("b", 200)}, strings.Repeat("b", 200)},
		{"truncated", feed.Post{Title: long}, strings.Repeat("a", 197) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatBody(tt.post); got != tt.want {
				t.Errorf("FormatBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatBodyLengthIs200(t *testing.T) {
	got := FormatBody(feed.Post{Title: strings.Repeat("x", 250)})
	if len(got) != 200 {
		t.Fatalf("len = %d, want 200", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("missing ellipsis: %q", got[190:])
	}
}

func TestFormatBodyTruncatesRunes(t *testing.T) {
	got := FormatBody(feed.Post{Title: strings.Repeat("ж", 250)})
	if n := utf8.RuneCountInString(got); n != 200 {
		t.Fatalf("rune count = %d, want 200", n)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a rune")
	}
}

func newBufLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

package mirror

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

const testFeed = `<rss version="2.0"><channel><item><title>hi</title></item></channel></rss>`

func newTestFetcher() *Fetcher {
	return NewFetcher(Options{Timeout: 2 * time.Second}, slog.Default())
}

func TestFetchFailsOverAndShortCircuits(t *testing.T) {
	var hitsA, hitsB, hitsC atomic.Int32

	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hitsA.Add(1)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer a.Close()

	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsB.Add(1)
		if r.URL.Path != "/someone/rss" {
			t.Errorf("path = %q, want /someone/rss", r.URL.Path)
		}
		_, _ = w.Write([]byte(testFeed))
	}))
	defer b.Close()

	c := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hitsC.Add(1)
		_, _ = w.Write([]byte(testFeed))
	}))
	defer c.Close()

	res, err := newTestFetcher().Fetch(context.Background(), "someone", []string{a.URL, b.URL, c.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if string(res.Body) != testFeed {
		t.Errorf("body = %q, want mirror B content", res.Body)
	}
	if res.Mirror != b.URL {
		t.Errorf("mirror = %q, want %q", res.Mirror, b.URL)
	}
	if hitsA.Load() != 1 || hitsB.Load() != 1 {
		t.Errorf("hits A=%d B=%d, want 1 each", hitsA.Load(), hitsB.Load())
	}
	if hitsC.Load() != 0 {
		t.Errorf("mirror C was attempted %d times, want 0", hitsC.Load())
	}
}

func TestFetchAllMirrorsFail(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer empty.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	_, err := newTestFetcher().Fetch(context.Background(), "someone", []string{failing.URL, empty.URL, closedURL})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Errorf("expected wrapped 502 status error, got %v", err)
	}
}

func TestFetchNoMirrors(t *testing.T) {
	_, err := newTestFetcher().Fetch(context.Background(), "someone", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchSendsIdentificationHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	if _, err := newTestFetcher().Fetch(context.Background(), "someone", []string{srv.URL}); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	if gotAccept != acceptHeader {
		t.Errorf("Accept = %q, want %q", gotAccept, acceptHeader)
	}
}

func TestFetchTimeoutAdvancesToNextMirror(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer slow.Close()
	defer close(release)

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testFeed))
	}))
	defer fast.Close()

	f := NewFetcher(Options{Timeout: 100 * time.Millisecond}, slog.Default())
	res, err := f.Fetch(context.Background(), "someone", []string{slow.URL, fast.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Mirror != fast.URL {
		t.Errorf("mirror = %q, want %q", res.Mirror, fast.URL)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher().Fetch(ctx, "someone", []string{"http://127.0.0.1:1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFeedURL(t *testing.T) {
	tests := []struct {
		mirror, handle, want string
	}{
		{"https://nitter.example", "user", "https://nitter.example/user/rss"},
		{"https://nitter.example/", "user", "https://nitter.example/user/rss"},
		{"https://nitter.example", "a/b", "https://nitter.example/a%2Fb/rss"},
	}

	for _, tt := range tests {
		if got := FeedURL(tt.mirror, tt.handle); got != tt.want {
			t.Errorf("FeedURL(%q, %q) = %q, want %q", tt.mirror, tt.handle, got, tt.want)
		}
	}
}

func TestOrder(t *testing.T) {
	mirrors := []string{"https://a", "https://b", "https://c", "https://b/"}

	tests := []struct {
		name      string
		preferred string
		want      []string
	}{
		{"preferred in list", "https://b", []string{"https://b", "https://a", "https://c"}},
		{"preferred absent", "https://z", []string{"https://z", "https://a", "https://b", "https://c"}},
		{"no preferred", "", []string{"https://a", "https://b", "https://c"}},
		{"preferred already first", "https://a/", []string{"https://a", "https://b", "https://c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Order(tt.preferred, mirrors); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Order = %v, want %v", got, tt.want)
			}
		})
	}
}

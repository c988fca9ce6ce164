// Package mirror fetches account feeds from an ordered list of read-only
// mirrors, failing over until one answers.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/feedwatch/internal/metrics"
	"github.com/samber/lo"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	acceptHeader     = "application/rss+xml, application/xml, text/xml, */*"
	maxBodyBytes     = 8 << 20
)

// ErrNotFound is returned when every mirror failed for a handle.
var ErrNotFound = errors.New("feed not available from any mirror")

var errEmptyBody = errors.New("empty response body")

// StatusError is a non-2xx mirror response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected status " + e.Status
}

// Result is the raw feed served by the first healthy mirror.
type Result struct {
	Mirror string
	URL    string
	Body   []byte
}

// Options configures a Fetcher. Zero values fall back to defaults.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper
}

// Fetcher tries mirrors strictly in order.
type Fetcher struct {
	client *http.Client
	log    *slog.Logger
}

// NewFetcher builds a Fetcher whose requests carry browser-like headers.
func NewFetcher(opts Options, log *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		log = slog.Default()
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &mirrorTransport{base: base, userAgent: opts.UserAgent},
		},
		log: log,
	}
}

// mirrorTransport injects the identification headers mirrors expect.
type mirrorTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *mirrorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", acceptHeader)
	return t.base.RoundTrip(req)
}

// FeedURL builds {mirror}/{handle}/rss.
func FeedURL(mirror, handle string) string {
	return strings.TrimRight(mirror, "/") + "/" + url.PathEscape(handle) + "/rss"
}

// Order puts the preferred mirror first and drops duplicates, keeping the
// relative order of the rest.
func Order(preferred string, mirrors []string) []string {
	all := append([]string{preferred}, mirrors...)
	trimmed := lo.Map(all, func(m string, _ int) string {
		return strings.TrimRight(strings.TrimSpace(m), "/")
	})
	nonEmpty := lo.Filter(trimmed, func(m string, _ int) bool {
		return m != ""
	})
	return lo.Uniq(nonEmpty)
}

// Fetch returns the feed from the first mirror that answers with a 2xx and a
// non-empty body. Every failure is logged and the next mirror is tried;
// ErrNotFound is returned only when the list is exhausted.
func (f *Fetcher) Fetch(ctx context.Context, handle string, mirrors []string) (Result, error) {
	var errs []error

	for _, m := range mirrors {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		feedURL := FeedURL(m, handle)
		started := time.Now()

		body, err := f.get(ctx, feedURL)
		if err != nil {
			metrics.MirrorRequests.WithLabelValues(m, outcome(err)).Inc()
			f.log.WarnContext(ctx, "Failed to fetch feed from mirror",
				"error", err,
				"handle", handle,
				"mirror", m,
				"elapsed", time.Since(started))

			errs = append(errs, fmt.Errorf("%s: %w", m, err))
			continue
		}

		metrics.MirrorRequests.WithLabelValues(m, metrics.OutcomeOK).Inc()
		f.log.DebugContext(ctx, "Feed is fetched",
			"handle", handle,
			"mirror", m,
			"bytes", len(body),
			"elapsed", time.Since(started))

		return Result{Mirror: m, URL: feedURL, Body: body}, nil
	}

	if len(errs) == 0 {
		return Result{}, ErrNotFound
	}
	return Result{}, fmt.Errorf("%w: %w", ErrNotFound, errors.Join(errs...))
}

func (f *Fetcher) get(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errEmptyBody
	}

	return body, nil
}

func outcome(err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return metrics.OutcomeHTTPError
	case errors.Is(err, errEmptyBody):
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeTransportError
	}
}

// Package monitor runs the fetch, parse, filter, notify and persist cycle
// for each monitored account.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/feedwatch/internal/feed"
	"github.com/ppiankov/feedwatch/internal/ledger"
	"github.com/ppiankov/feedwatch/internal/metrics"
	"github.com/ppiankov/feedwatch/internal/mirror"
)

type Fetcher interface {
	Fetch(ctx context.Context, handle string, mirrors []string) (mirror.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, handle string, posts []feed.Post) int
}

type Store interface {
	SaveEntry(ctx context.Context, handle string, e ledger.Entry) error
}

// Options configures a Monitor. Mirrors are tried in the given order.
type Options struct {
	Mirrors     []string
	Concurrency int
}

type Monitor struct {
	fetcher     Fetcher
	ledger      *ledger.Ledger
	store       Store
	notifier    Notifier
	mirrors     []string
	concurrency int
	now         func() time.Time
	log         *slog.Logger
}

// New builds a Monitor. A nil notifier only records new posts; a nil store
// keeps the ledger in memory.
func New(f Fetcher, l *ledger.Ledger, st Store, n Notifier, opts Options, log *slog.Logger) *Monitor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		fetcher:     f,
		ledger:      l,
		store:       st,
		notifier:    n,
		mirrors:     opts.Mirrors,
		concurrency: opts.Concurrency,
		now:         time.Now,
		log:         log,
	}
}

// Result is the outcome of checking one account. FetchErr and ParseErr are
// informational: neither fails the run.
type Result struct {
	Handle   string
	Mirror   string
	NewPosts []feed.Post
	Notified int
	FetchErr error
	ParseErr error
	SaveErr  error
}

// Summary aggregates one run over all accounts. Results keep input order.
type Summary struct {
	RunID    string
	Results  []Result
	NewPosts int
	Notified int
	Failed   int
	Duration time.Duration
}

// CheckAccount runs a single-account cycle.
func (m *Monitor) CheckAccount(ctx context.Context, handle string) Result {
	return m.check(ctx, m.log.With("run", uuid.NewString()), handle)
}

// CheckAll checks every handle with at most Concurrency in flight. A failing
// account never stops the others.
func (m *Monitor) CheckAll(ctx context.Context, handles []string) Summary {
	started := time.Now()
	runID := uuid.NewString()
	log := m.log.With("run", runID)

	log.InfoContext(ctx, "Starting check run", "accounts", len(handles))

	results := make([]Result, len(handles))
	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, h := range handles {
		g.Go(func() error {
			results[i] = m.check(ctx, log, h)
			return nil
		})
	}
	_ = g.Wait()

	s := Summary{RunID: runID, Results: results, Duration: time.Since(started)}
	for _, r := range results {
		s.NewPosts += len(r.NewPosts)
		s.Notified += r.Notified
		if r.FetchErr != nil {
			s.Failed++
		}
	}

	metrics.LastRun.SetToCurrentTime()
	log.InfoContext(ctx, "Finished check run",
		"accounts", len(handles),
		"newPosts", s.NewPosts,
		"notified", s.Notified,
		"failed", s.Failed,
		"duration", s.Duration)

	return s
}

func (m *Monitor) check(ctx context.Context, log *slog.Logger, handle string) Result {
	started := time.Now()
	defer func() {
		metrics.CheckDuration.Observe(time.Since(started).Seconds())
	}()

	res := Result{Handle: handle}
	log = log.With("handle", handle)

	fetched, err := m.fetcher.Fetch(ctx, handle, m.mirrors)
	if err != nil {
		res.FetchErr = err
		if errors.Is(err, mirror.ErrNotFound) {
			metrics.FeedsNotFound.Inc()
		}
		log.WarnContext(ctx, "Failed to fetch feed from all mirrors", "error", err)
		return res
	}
	res.Mirror = fetched.Mirror

	posts, err := feed.Parse(fetched.Body)
	if err != nil {
		res.ParseErr = err
		format := feed.FormatUnknown
		var pe *feed.ParseError
		if errors.As(err, &pe) {
			format = pe.Format
		}
		metrics.ParseFailures.WithLabelValues(format.String()).Inc()
		log.WarnContext(ctx, "Failed to parse feed",
			"error", err,
			"mirror", fetched.Mirror)
	}

	res.NewPosts = m.ledger.FilterNew(handle, posts, m.now())
	if n := len(res.NewPosts); n > 0 {
		metrics.NewPosts.WithLabelValues(handle).Add(float64(n))
		log.InfoContext(ctx, "Found new posts", "count", n, "mirror", fetched.Mirror)
	}

	if m.notifier != nil {
		res.Notified = m.notifier.Notify(ctx, handle, res.NewPosts)
	}

	// Saved after Notify: a crash in between re-notifies on the next run.
	if m.store != nil {
		entry, _ := m.ledger.Entry(handle)
		if err := m.store.SaveEntry(ctx, handle, entry); err != nil {
			res.SaveErr = err
			log.ErrorContext(ctx, "Failed to save ledger entry", "error", err)
		}
	}

	return res
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ppiankov/feedwatch/internal/config"
	"github.com/ppiankov/feedwatch/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const metricsShutdownTimeout = 5 * time.Second

var (
	watchMetricsAddr string

	// Overridable in tests.
	watchRunOnce = runChecksOnce
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Check immediately, then keep checking every configured interval",
	Args:  cobra.NoArgs,
	RunE:  watchAction,
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(watchCmd)
}

func watchAction(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if watchMetricsAddr != "" {
		addr, stop, err := serveMetrics(ctx, watchMetricsAddr)
		if err != nil {
			return err
		}
		defer stop()
		printf("Serving metrics on http://%s/metrics\n", addr)
	}

	printf("Watching %d account(s) every %s. Press Ctrl+C to stop.\n",
		len(cfg.Accounts), formatInterval(cfg.CheckInterval.Duration))

	return runWatch(ctx, cfg.CheckInterval.Duration, func() error {
		return watchRunOnce(ctx)
	})
}

// runWatch calls runOnce now and then on every interval until ctx is done.
// A failing first run is returned; later failures are logged. Runs never
// overlap.
func runWatch(ctx context.Context, interval time.Duration, runOnce func() error) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}

	if err := runOnce(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	cl := cronLogger{log: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if err := runOnce(); err != nil {
			logger.ErrorContext(ctx, "Failed to run scheduled check", "error", err)
		}
	}))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}

// serveMetrics exposes /metrics on addr and returns the bound address.
func serveMetrics(ctx context.Context, addr string) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "Metrics server stopped", "error", err)
		}
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return ln.Addr().String(), stop, nil
}

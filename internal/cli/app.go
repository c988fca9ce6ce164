package cli

import (
	"context"
	"fmt"

	"github.com/ppiankov/feedwatch/internal/config"
	"github.com/ppiankov/feedwatch/internal/ledger"
	"github.com/ppiankov/feedwatch/internal/mirror"
	"github.com/ppiankov/feedwatch/internal/monitor"
	"github.com/ppiankov/feedwatch/internal/notify"
	"github.com/ppiankov/feedwatch/internal/store"
)

// app is everything a check needs, wired from config.yaml.
type app struct {
	cfg     *config.Config
	store   *store.Store
	ledger  *ledger.Ledger
	monitor *monitor.Monitor
}

func openApp(ctx context.Context, withNotifications bool) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, l, err := store.OpenLedger(ctx, cfg.Storage.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	var n monitor.Notifier
	if withNotifications {
		sink, err := notify.NewSink(cfg.Notification, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("create notification sink: %w", err)
		}
		d := notify.NewDispatcher(sink, logger)
		d.MaxPerCycle = cfg.MaxNotificationsPerCheck
		d.Sound = cfg.Notification.Sound
		d.Delay = cfg.Notification.Delay.Duration
		n = d
	}

	fetcher := mirror.NewFetcher(mirror.Options{
		Timeout:   cfg.Fetch.Timeout.Duration,
		UserAgent: cfg.Fetch.UserAgent,
	}, logger)

	m := monitor.New(fetcher, l, st, n, monitor.Options{
		Mirrors:     mirror.Order(cfg.PreferredMirror, cfg.Mirrors),
		Concurrency: cfg.Fetch.Concurrency,
	}, logger)

	return &app{cfg: cfg, store: st, ledger: l, monitor: m}, nil
}

func (a *app) Close() error {
	if a == nil {
		return nil
	}
	return a.store.Close()
}

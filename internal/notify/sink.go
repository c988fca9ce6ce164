package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/feedwatch/internal/config"
)

// LogSink writes each notification as a log line.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Send(ctx context.Context, n Notification) error {
	s.log.InfoContext(ctx, "Notification",
		"title", n.Title,
		"body", n.Body,
		"link", n.Link)
	return nil
}

type discardSink struct{}

func (discardSink) Send(context.Context, Notification) error { return nil }

// NewSink builds the sink named by cfg.Sink.
func NewSink(cfg config.NotificationConfig, log *slog.Logger) (Sink, error) {
	switch cfg.Sink {
	case config.SinkDesktop, "":
		return NewDesktopSink(log), nil
	case config.SinkTelegram:
		s, err := NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SinkLog:
		return NewLogSink(log), nil
	case config.SinkNone:
		return discardSink{}, nil
	default:
		return nil, fmt.Errorf("unknown notification sink %q", cfg.Sink)
	}
}

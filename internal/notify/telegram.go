package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
)

// TelegramSink posts notifications to one chat through the Bot API.
type TelegramSink struct {
	bot    *bot.Bot
	chatID string
}

func NewTelegramSink(token, chatID string, opts ...bot.Option) (*TelegramSink, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	if chatID == "" {
		return nil, errors.New("telegram chat id is required")
	}

	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramSink{bot: b, chatID: chatID}, nil
}

func (s *TelegramSink) Send(ctx context.Context, n Notification) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: s.chatID,
		Text:   telegramText(n),
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func telegramText(n Notification) string {
	lines := []string{n.Title, n.Body}
	if n.Link != "" {
		lines = append(lines, n.Link)
	}
	return strings.Join(lines, "\n")
}

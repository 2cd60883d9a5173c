package notify

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"
)

type TelegramConfig struct {
	Token  string
	ChatID int64
}

// telegramSink pushes notifications to a Telegram chat. Useful when the
// desktop notifier isn't in view (pace pings to a phone).
type telegramSink struct {
	bot    *tele.Bot
	chatID int64
}

// NewTelegramSink builds a Telegram sink. The bot token is verified on
// construction (telebot performs a getMe call).
func NewTelegramSink(cfg TelegramConfig) (Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &telegramSink{bot: b, chatID: cfg.ChatID}, nil
}

func (s *telegramSink) Name() string { return "telegram" }

func (s *telegramSink) Send(ctx context.Context, title, body string) error {
	_ = ctx // telebot's send API carries its own HTTP timeout

	text := title
	if body != "" {
		text = title + "\n" + body
	}
	_, err := s.bot.Send(
		&tele.Chat{ID: s.chatID},
		text,
		&tele.SendOptions{DisableWebPagePreview: true},
	)
	return err
}

package alerts

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"
)

// TelegramSender delivers alerts to one chat through the Bot API
type TelegramSender struct {
	bot  *tb.Bot
	chat *tb.Chat
}

// NewTelegramSender creates a sender for chatID. Creating the bot calls
// getMe, so an invalid token fails here rather than on the first alert.
func NewTelegramSender(apiURL, token, chatID string) (*TelegramSender, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	bot, err := tb.NewBot(tb.Settings{
		URL:       apiURL,
		Token:     token,
		ParseMode: tb.ModeMarkdown,
		Client:    &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramSender{bot: bot, chat: &tb.Chat{ID: id}}, nil
}

// Deliver sends message as Markdown. The Bot API client has no context
// support, so the send runs on its own goroutine and Deliver returns as
// soon as ctx is done; the HTTP client timeout bounds the abandoned call.
func (s *TelegramSender) Deliver(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(s.chat, message, &tb.SendOptions{
			ParseMode:             tb.ModeMarkdown,
			DisableWebPagePreview: true,
		})
		errc <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
		return nil
	}
}

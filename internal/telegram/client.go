// Package telegram delivers messages through the Bot API and runs the
// companion bot that links chats to accounts.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/pkg/config"
)

// Client wraps telebot.Bot for outgoing messages.
type Client struct {
	bot *telebot.Bot
	log *slog.Logger
}

// NewClient builds a Bot API client. When cfg.Poll is false the client stays
// offline and only sends messages.
func NewClient(cfg config.TelegramConfig, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, apperrors.NewConfigError("telegram.token")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "telegram")

	settings := telebot.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Client:  &http.Client{Timeout: cfg.SendTimeout},
		Offline: !cfg.Poll,
		OnError: func(err error, c telebot.Context) {
			var chatID int64
			if c != nil && c.Chat() != nil {
				chatID = c.Chat().ID
			}
			log.Error("telegram update failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
		},
	}

	if cfg.Poll {
		settings.Poller = &telebot.LongPoller{Timeout: cfg.PollTimeout}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return &Client{bot: tb, log: log}, nil
}

// Send delivers text to chatID. The call returns when ctx is done even if the
// request is still in flight; the HTTP client timeout bounds it.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(telebot.ChatID(chatID), text, &telebot.SendOptions{DisableWebPagePreview: true})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send message to chat %d: %w", chatID, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HealthCheck calls getMe to verify the token and API reachability.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c == nil || c.bot == nil {
		return apperrors.NewConfigError("telegram.token")
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Raw("getMe", map[string]string{})
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

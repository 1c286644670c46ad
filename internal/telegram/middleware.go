package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/pkg/metrics"
)

const fallbackReply = "Произошла ошибка. Попробуйте позже"

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next Handler) Handler {
		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in bot handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					reply := fallbackReply
					if errHandler != nil {
						appErr := apperrors.NewDatabaseError(fmt.Errorf("panic recovered: %v", r))
						if msg, _ := errHandler.Handle(context.Background(), appErr); msg != "" {
							reply = msg
						}
					}

					if sendErr := c.Send(reply); sendErr != nil {
						log.Error("failed to notify user about panic", slog.Any("error", sendErr))
					}
					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware reports handler errors and replies with the user-facing message.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler) Middleware {
	return func(next Handler) Handler {
		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			reply := fallbackReply
			if errHandler != nil {
				if msg, _ := errHandler.Handle(context.Background(), err); msg != "" {
					reply = msg
				}
			}

			_ = c.Send(reply)
			return nil
		}
	}
}

// LoggingMiddleware logs every handled command.
func LoggingMiddleware(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next Handler) Handler {
		return func(c telebot.Context) error {
			start := time.Now()
			var chatID int64
			if c.Chat() != nil {
				chatID = c.Chat().ID
			}

			err := next(c)
			log.Info("handled update",
				slog.Int64("chat_id", chatID),
				slog.String("command", commandName(c.Text())),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// MetricsMiddleware counts commands by outcome.
func MetricsMiddleware(next Handler) Handler {
	return func(c telebot.Context) error {
		command := commandName(c.Text())
		if command == "" {
			command = "text"
		}

		err := next(c)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordCommand(command, status)

		return err
	}
}

// Package handlers processes queued notification tasks.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/jobs"
	"github.com/Proton-105/flowkat/internal/notification"
)

// Engine is the part of the notification engine the handlers drive.
type Engine interface {
	Run(ctx context.Context, now time.Time) (notification.Summary, error)
	SendTest(ctx context.Context, userID int64) error
}

type NotificationHandler struct {
	engine Engine
	log    *slog.Logger
	now    func() time.Time
}

func NewNotificationHandler(engine Engine, log *slog.Logger) *NotificationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationHandler{engine: engine, log: log, now: time.Now}
}

// ProcessTask dispatches on the task type so one handler serves both tasks.
func (h *NotificationHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	switch t.Type() {
	case jobs.TaskTypeNotificationPass:
		return h.pass(ctx, t)
	case jobs.TaskTypeNotificationTest:
		return h.test(ctx, t)
	default:
		return fmt.Errorf("unexpected task type %q: %w", t.Type(), asynq.SkipRetry)
	}
}

func (h *NotificationHandler) pass(ctx context.Context, t *asynq.Task) error {
	var payload jobs.NotificationPassPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "notification pass: failed to decode payload", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	at := payload.ScheduledAt
	if at.IsZero() {
		at = h.now()
	}

	summary, err := h.engine.Run(ctx, at)
	if err != nil {
		return err
	}

	h.log.InfoContext(ctx, "notification pass processed",
		slog.Int("checked", summary.Checked),
		slog.Int("sent", summary.Total),
		slog.Int("failed", summary.Failed),
	)
	return nil
}

func (h *NotificationHandler) test(ctx context.Context, t *asynq.Task) error {
	var payload jobs.NotificationTestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.UserID == 0 {
		return fmt.Errorf("invalid test payload: %w", asynq.SkipRetry)
	}

	err := h.engine.SendTest(ctx, payload.UserID)
	if err != nil && apperrors.StatusOf(err) < http.StatusInternalServerError {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/jobs"
	"github.com/Proton-105/flowkat/internal/middleware"
	"github.com/Proton-105/flowkat/internal/notification"
)

// CronSecretHeader authenticates external schedulers.
const CronSecretHeader = "X-Cron-Secret"

type checkResponse struct {
	notification.Summary
	Time string `json:"time"`
}

// checkNotifications runs one pass for an external scheduler. With ?async=1
// the pass is queued for the worker instead.
func (a *api) checkNotifications(w http.ResponseWriter, r *http.Request) {
	if a.CronSecret == "" {
		a.fail(w, r, apperrors.NewConfigError("server.cron_secret"))
		return
	}
	got := r.Header.Get(CronSecretHeader)
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.CronSecret)) != 1 {
		a.fail(w, r, apperrors.NewUnauthorizedError("Неверный секрет"))
		return
	}

	now := a.now()
	if r.URL.Query().Get("async") == "1" && a.Queue != nil {
		id, err := a.Queue.EnqueuePass(r.Context(), now)
		switch {
		case errors.Is(err, jobs.ErrPassQueued):
			middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "already_queued"})
		case err != nil:
			a.fail(w, r, err)
		default:
			middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "task_id": id})
		}
		return
	}

	summary, err := a.Notifier.Run(r.Context(), now)
	if err != nil {
		a.fail(w, r, apperrors.NewDatabaseError(err))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, checkResponse{Summary: summary, Time: now.UTC().Format(time.RFC3339)})
}

// testNotification sends a sample reminder to the caller's chat. With
// ?async=1 the message is queued and retried by the worker.
func (a *api) testNotification(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "1" && a.Queue != nil {
		id, err := a.Queue.EnqueueTest(r.Context(), userID(r))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusAccepted, map[string]any{
			"success": true,
			"status":  "queued",
			"task_id": id,
		})
		return
	}

	if err := a.Notifier.SendTest(r.Context(), userID(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Тестовое уведомление отправлено",
	})
}

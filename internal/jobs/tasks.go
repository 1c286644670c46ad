// Package jobs runs the notification pass on an asynq queue backed by Redis.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeNotificationPass = "notifications:pass"
	TaskTypeNotificationTest = "notifications:test"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// Queues is the weighted queue set the worker consumes.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
}

// passUniqueTTL keeps a second pass from being queued while one is pending.
const passUniqueTTL = 4 * time.Minute

type NotificationPassPayload struct {
	// ScheduledAt is the evaluation instant; zero means "when processed".
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
}

type NotificationTestPayload struct {
	UserID int64 `json:"user_id"`
}

// NewNotificationPassTask builds a pass task. Passes are not retried: the
// next scheduled pass covers anything a failed one missed.
func NewNotificationPassTask(at time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(NotificationPassPayload{ScheduledAt: at})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeNotificationPass, payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Timeout(4*time.Minute),
		asynq.Unique(passUniqueTTL),
	), nil
}

func NewNotificationTestTask(userID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(NotificationTestPayload{UserID: userID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeNotificationTest, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Second),
	), nil
}

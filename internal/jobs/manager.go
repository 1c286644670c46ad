package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// ErrPassQueued is returned when a pass is already waiting in the queue.
var ErrPassQueued = errors.New("notification pass already queued")

// Enqueuer submits tasks to the queue.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager queues notification work from request handlers.
type Manager interface {
	EnqueuePass(ctx context.Context, at time.Time) (string, error)
	EnqueueTest(ctx context.Context, userID int64) (string, error)
	Close() error
}

type manager struct {
	client Enqueuer
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	return newManager(asynq.NewClient(redisOpt), log)
}

func newManager(client Enqueuer, log *slog.Logger) *manager {
	if log == nil {
		log = slog.Default()
	}
	return &manager{client: client, log: log}
}

func (m *manager) EnqueuePass(ctx context.Context, at time.Time) (string, error) {
	task, err := NewNotificationPassTask(at)
	if err != nil {
		return "", err
	}

	info, err := m.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", ErrPassQueued
	}
	if err != nil {
		return "", err
	}

	m.log.InfoContext(ctx, "notification pass queued", slog.String("task_id", info.ID))
	return info.ID, nil
}

func (m *manager) EnqueueTest(ctx context.Context, userID int64) (string, error) {
	task, err := NewNotificationTestTask(userID)
	if err != nil {
		return "", err
	}

	info, err := m.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}

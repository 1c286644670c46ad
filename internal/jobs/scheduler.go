package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks(cronspec string) error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	log            *slog.Logger
}

// NewScheduler builds a scheduler that evaluates cron specs in UTC.
func NewScheduler(redisOpt asynq.RedisConnOpt, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.WarnLevel,
		}),
		log: log,
	}
}

// RegisterTasks enqueues a notification pass on cronspec. Each pass evaluates
// the clock at processing time.
func (s *scheduler) RegisterTasks(cronspec string) error {
	task, err := NewNotificationPassTask(time.Time{})
	if err != nil {
		return err
	}

	entryID, err := s.asynqScheduler.Register(cronspec, task)
	if err != nil {
		return err
	}

	s.log.InfoContext(context.Background(), "scheduler: registered notification pass",
		slog.String("cron", cronspec),
		slog.String("entry_id", entryID),
	)
	return nil
}

func (s *scheduler) Run() {
	s.log.InfoContext(context.Background(), "scheduler: starting")

	go func() {
		if err := s.asynqScheduler.Run(); err != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", slog.Any("error", err))
		}
	}()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}

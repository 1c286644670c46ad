// Package notification decides which scheduled Telegram messages each user is
// due and delivers them.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Proton-105/flowkat/internal/domain"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/pkg/config"
	"github.com/Proton-105/flowkat/pkg/logger"
	"github.com/Proton-105/flowkat/pkg/metrics"
)

// UserStore is the part of the user repository the engine needs.
type UserStore interface {
	ListNotifiable(ctx context.Context) ([]domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	MarkSent(ctx context.Context, id int64, kind domain.NotificationKind, at time.Time) error
}

// EntryStore is the part of the entry repository the engine needs.
type EntryStore interface {
	ListRange(ctx context.Context, userID int64, from, to time.Time) ([]domain.Entry, error)
	Recent(ctx context.Context, userID int64, limit int) ([]domain.Entry, error)
}

// Sender delivers a text message to a Telegram chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Config tunes a notification pass. DefaultDailyTime ("HH:MM") applies to
// users without their own reminder time.
type Config struct {
	DefaultLocation    *time.Location
	DefaultDailyTime   string
	WeeklyReportHour   int
	BurnoutWarningHour int
	Concurrency        int
	SendTimeout        time.Duration
}

// NewConfig builds the engine config from application settings.
func NewConfig(n config.NotificationsConfig, sendTimeout time.Duration) (Config, error) {
	loc, err := time.LoadLocation(n.DefaultTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("load default timezone %q: %w", n.DefaultTimezone, err)
	}

	return Config{
		DefaultLocation:    loc,
		DefaultDailyTime:   n.DefaultDailyTime,
		WeeklyReportHour:   n.WeeklyReportHour,
		BurnoutWarningHour: n.BurnoutWarningHour,
		Concurrency:        n.Concurrency,
		SendTimeout:        sendTimeout,
	}, nil
}

func (c Config) defaultDailyHour() int {
	hour, _, ok := domain.ParseClock(c.DefaultDailyTime)
	if !ok {
		return domain.DefaultReminderHour
	}
	return hour
}

// Summary aggregates the outcome of one pass.
type Summary struct {
	Checked int `json:"checked"`
	Daily   int `json:"daily"`
	Weekly  int `json:"weekly"`
	Burnout int `json:"burnout"`
	Failed  int `json:"failed"`
	Total   int `json:"sent"`
}

func (s *Summary) add(r userResult) {
	s.Checked++
	s.Daily += r.daily
	s.Weekly += r.weekly
	s.Burnout += r.burnout
	s.Failed += r.failed
	s.Total += r.daily + r.weekly + r.burnout
}

type userResult struct {
	daily, weekly, burnout, failed int
}

// Engine runs notification passes.
type Engine struct {
	users    UserStore
	entries  EntryStore
	sender   Sender
	composer *Composer
	cfg      Config
	log      *slog.Logger

	dailyHour int
	zones     sync.Map
}

// NewEngine wires an engine. A nil sender disables delivery: every due message counts as failed.
func NewEngine(users UserStore, entries EntryStore, sender Sender, composer *Composer, cfg Config, log *slog.Logger) *Engine {
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		users:    users,
		entries:  entries,
		sender:   sender,
		composer: composer,
		cfg:      cfg,
		log:      log.With("component", "notification"),

		dailyHour: cfg.defaultDailyHour(),
	}
}

// Run evaluates every notifiable user against now. Per-user failures are
// counted in the summary; only a failure to list users is returned.
func (e *Engine) Run(ctx context.Context, now time.Time) (Summary, error) {
	started := time.Now()
	log := e.log.With("correlation_id", logger.CorrelationIDFromContext(ctx))

	users, err := e.users.ListNotifiable(ctx)
	if err != nil {
		log.Error("list notifiable users", "error", err)
		return Summary{}, fmt.Errorf("list notifiable users: %w", err)
	}

	var (
		mu      sync.Mutex
		summary Summary
		group   errgroup.Group
	)
	group.SetLimit(e.cfg.Concurrency)

	for i := range users {
		if ctx.Err() != nil {
			break
		}

		user := users[i]
		group.Go(func() error {
			res := e.evaluate(ctx, log, &user, now)

			mu.Lock()
			summary.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	metrics.RecordNotificationPass(summary.Checked, time.Since(started))
	log.Info("notification pass finished",
		"checked", summary.Checked,
		"daily", summary.Daily,
		"weekly", summary.Weekly,
		"burnout", summary.Burnout,
		"failed", summary.Failed,
		"duration", time.Since(started),
	)

	return summary, nil
}

func (e *Engine) evaluate(ctx context.Context, log *slog.Logger, user *domain.User, now time.Time) (res userResult) {
	log = log.With("user_id", user.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while evaluating user", "panic", r)
			metrics.RecordError("notification_panic", string(apperrors.SeverityHigh))
			res.failed++
		}
	}()

	if !user.HasChat() {
		return res
	}

	loc := e.location(log, user.Settings.Timezone)
	local := now.In(loc)
	today := domain.DateOf(local)
	name := user.DisplayName()

	if DailyDue(user.Settings, user.LastDailySentAt, local, e.dailyHour) {
		if e.deliver(ctx, log, user, domain.KindDaily, e.composer.Daily(name), now) {
			res.daily++
		} else {
			res.failed++
		}
	}

	if WeeklyDue(user.Settings, user.LastWeeklySentAt, local, e.cfg.WeeklyReportHour) {
		entries, err := e.entries.ListRange(ctx, user.ID, today.AddDate(0, 0, -14), today)
		switch {
		case err != nil:
			log.Error("load weekly entries", "error", err)
			res.failed++
		default:
			if stats, ok := WeeklyStatsFrom(entries, today); ok {
				if e.deliver(ctx, log, user, domain.KindWeekly, e.composer.Weekly(name, stats), now) {
					res.weekly++
				} else {
					res.failed++
				}
			}
		}
	}

	if BurnoutDue(user.Settings, user.LastBurnoutSentAt, now, local, e.cfg.BurnoutWarningHour) {
		recent, err := e.entries.Recent(ctx, user.ID, burnoutWindow)
		switch {
		case err != nil:
			log.Error("load recent entries", "error", err)
			res.failed++
		default:
			if risk := BurnoutRiskFrom(recent); risk != nil {
				if e.deliver(ctx, log, user, domain.KindBurnout, e.composer.Burnout(name, *risk), now) {
					res.burnout++
				} else {
					res.failed++
				}
			}
		}
	}

	return res
}

// deliver sends text and records the marker. A marker write failure is logged
// but the message still counts as sent.
func (e *Engine) deliver(ctx context.Context, log *slog.Logger, user *domain.User, kind domain.NotificationKind, text string, now time.Time) bool {
	if err := e.send(ctx, *user.TelegramChatID, text); err != nil {
		log.Warn("notification delivery failed", "kind", kind, "error", err)
		metrics.RecordNotification(string(kind), false)
		return false
	}
	metrics.RecordNotification(string(kind), true)

	if err := e.users.MarkSent(ctx, user.ID, kind, now); err != nil {
		log.Error("update last sent marker", "kind", kind, "error", err)
		metrics.RecordError("notification_marker", string(apperrors.SeverityMedium))
	}

	log.Debug("notification sent", "kind", kind)
	return true
}

func (e *Engine) send(ctx context.Context, chatID int64, text string) error {
	if e.sender == nil {
		return apperrors.NewConfigError("telegram.token")
	}

	if e.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SendTimeout)
		defer cancel()
	}

	return e.sender.Send(ctx, chatID, text)
}

// location resolves and caches a user's zone, falling back to the default one.
func (e *Engine) location(log *slog.Logger, name string) *time.Location {
	if name != "" {
		if cached, ok := e.zones.Load(name); ok {
			return cached.(*time.Location)
		}
	}

	loc, ok := ResolveLocation(name, e.cfg.DefaultLocation)
	if !ok {
		if name != "" {
			log.Warn("unknown timezone, using default", "timezone", name, "default", e.cfg.DefaultLocation.String())
		}
		return loc
	}

	e.zones.Store(name, loc)
	return loc
}

// SendTest delivers the test message to the user's linked chat.
func (e *Engine) SendTest(ctx context.Context, userID int64) error {
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasChat() {
		return apperrors.NewValidationError("Telegram не подключён. Подключите бота в профиле")
	}

	reminder := user.Settings.DailyReminderTime
	if _, _, ok := domain.ParseClock(reminder); !ok {
		reminder = e.cfg.DefaultDailyTime
	}
	if reminder == "" {
		reminder = fmt.Sprintf("%02d:00", domain.DefaultReminderHour)
	}
	loc := e.location(e.log, user.Settings.Timezone)

	text := e.composer.Test(user.DisplayName(), reminder, loc.String())
	if err := e.send(ctx, *user.TelegramChatID, text); err != nil {
		metrics.RecordNotification("test", false)
		if appErr, ok := apperrors.As(err); ok {
			return appErr
		}
		return apperrors.NewExternalAPIError("Telegram", err.Error(), err)
	}
	metrics.RecordNotification("test", true)

	return nil
}

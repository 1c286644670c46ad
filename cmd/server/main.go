package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/flowkat/internal/auth"
	"github.com/Proton-105/flowkat/internal/database"
	"github.com/Proton-105/flowkat/internal/entry"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/goal"
	"github.com/Proton-105/flowkat/internal/health"
	"github.com/Proton-105/flowkat/internal/httpapi"
	"github.com/Proton-105/flowkat/internal/i18n"
	"github.com/Proton-105/flowkat/internal/idempotency"
	"github.com/Proton-105/flowkat/internal/insight"
	"github.com/Proton-105/flowkat/internal/jobs"
	"github.com/Proton-105/flowkat/internal/jobs/handlers"
	"github.com/Proton-105/flowkat/internal/lifecycle"
	"github.com/Proton-105/flowkat/internal/middleware"
	"github.com/Proton-105/flowkat/internal/notification"
	"github.com/Proton-105/flowkat/internal/profile"
	"github.com/Proton-105/flowkat/internal/ratelimit"
	"github.com/Proton-105/flowkat/internal/repository"
	"github.com/Proton-105/flowkat/internal/telegram"
	"github.com/Proton-105/flowkat/internal/usercache"
	"github.com/Proton-105/flowkat/pkg/config"
	"github.com/Proton-105/flowkat/pkg/graceful"
	"github.com/Proton-105/flowkat/pkg/logger"
	"github.com/Proton-105/flowkat/pkg/metrics"
	appredis "github.com/Proton-105/flowkat/pkg/redis"
)

const (
	rateLimitSweepInterval = 5 * time.Minute
	rateLimitMaxAge        = 2 * time.Hour
	recipientsInterval     = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "flowkat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: sentryEnvironment(cfg),
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	appLog := logger.New(cfg.Logger, cfg.Sentry)
	log := appLog.Logger
	slog.SetDefault(log)

	config.Watch(v, func(next *config.Config) {
		appLog.SetLevel(next.Logger.Level)
		log.Info("configuration reloaded", slog.String("log_level", next.Logger.Level))
	}, func(err error) {
		log.Warn("configuration reload rejected", slog.Any("error", err))
	})

	log.Info("starting flowkat",
		slog.String("env", cfg.AppEnv),
		slog.String("addr", cfg.Addr()),
		slog.Bool("redis", cfg.Redis.Enabled),
	)

	shutdown := lifecycle.NewShutdown(log, cfg.Server.ShutdownTimeout)
	shutdown.RegisterCloser("logger", appLog.Close)
	defer func() {
		if err := shutdown.Execute(context.Background()); err != nil {
			log.Error("shutdown finished with errors", slog.Any("error", err))
		}
	}()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	shutdown.RegisterCloser("database", db.Close)

	if err := database.NewMigrator(db, log).ApplyEmbedded(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	repoOpts := []repository.Option{repository.WithQueryTimeout(cfg.Database.QueryTimeout)}
	users := repository.NewUserRepository(db, log, repoOpts...)
	entries := repository.NewEntryRepository(db, log, repoOpts...)
	goals := repository.NewGoalRepository(db, log, repoOpts...)
	analyses := repository.NewAnalysisRepository(db, log, repoOpts...)

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.NewDBChecker(db))

	var (
		rdb         *appredis.Client
		codes       profile.CodeStore
		cache       *usercache.Cache
		idem        idempotency.Manager
		limiter     ratelimit.Limiter
		memoryLimit *ratelimit.MemoryLimiter
	)
	if cfg.Redis.Enabled {
		rdb, err = appredis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		shutdown.RegisterCloser("redis", rdb.Close)

		cached := appredis.NewMetricsClient(rdb)
		codes = cached
		cache = usercache.NewCache(cached, usercache.DefaultTTL)
		idem = idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), log)
		limiter = ratelimit.NewRedisLimiter(rdb.Client, log)
		checker.AddOptional("redis", health.NewRedisChecker(cached))
	} else {
		memoryLimit = ratelimit.NewMemoryLimiter(log)
		limiter = memoryLimit
	}

	var sweep *goredis.Client
	if rdb != nil {
		sweep = rdb.Client
	}
	go ratelimit.NewCleaner(sweep, memoryLimit, log, rateLimitSweepInterval, rateLimitMaxAge).Run(ctx)

	loc, err := time.LoadLocation(cfg.Notifications.DefaultTimezone)
	if err != nil {
		return fmt.Errorf("load default timezone: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(users, tokens, cfg.Auth, cfg.Telegram, log)
	profiles := profile.NewService(users, cache, codes, cfg.Notifications.DefaultDailyTime, log)
	entrySvc := entry.NewService(entries, loc, log)
	goalSvc := goal.NewService(goals, entries, loc, log)

	insights := insight.NewService(entries, analyses, cfg.AI.DefaultProvider, cfg.AI.WindowDays, loc, log)
	for name, pc := range map[string]config.AIProviderConfig{
		insight.ProviderOpenAI:     cfg.AI.OpenAI,
		insight.ProviderPerplexity: cfg.AI.Perplexity,
	} {
		if pc.APIKey == "" {
			continue
		}
		client, err := insight.NewChatClient(name, pc, cfg.AI)
		if err != nil {
			return err
		}
		insights.AddProvider(name, client)
	}

	locales, err := i18n.Load(cfg.Notifications.Language)
	if err != nil {
		return fmt.Errorf("load locales: %w", err)
	}
	tr := locales.Translator(cfg.Notifications.Language)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	var sender notification.Sender
	if cfg.Telegram.Token != "" {
		tg, err := telegram.NewClient(cfg.Telegram, log)
		if err != nil {
			return err
		}
		sender = tg
		checker.AddOptional("telegram", tg)

		if cfg.Telegram.Poll {
			bot := telegram.NewBot(tg, profiles, tr, cfg.Telegram.AppURL, errHandler, log)
			go bot.Start()
			shutdown.Register("telegram bot", func(context.Context) error {
				bot.Stop()
				return nil
			})
		}
	} else {
		log.Warn("telegram token is not set, notifications will not be delivered")
	}

	notifyCfg, err := notification.NewConfig(cfg.Notifications, cfg.Telegram.SendTimeout)
	if err != nil {
		return err
	}
	engine := notification.NewEngine(users, entries, sender, notification.NewComposer(tr), notifyCfg, log)

	var queue httpapi.NotificationQueue
	if cfg.Redis.Enabled {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}

		manager := jobs.NewManager(redisOpt, log)
		shutdown.RegisterCloser("jobs manager", manager.Close)
		queue = manager

		worker := jobs.NewWorker(redisOpt, cfg.Notifications.Concurrency, log)
		notificationHandler := handlers.NewNotificationHandler(engine, log)
		worker.RegisterHandler(jobs.TaskTypeNotificationPass, notificationHandler)
		worker.RegisterHandler(jobs.TaskTypeNotificationTest, notificationHandler)
		go func() {
			if err := worker.Run(); err != nil {
				log.Error("jobs worker stopped", slog.Any("error", err))
			}
		}()
		shutdown.Register("jobs worker", func(context.Context) error {
			worker.Shutdown()
			return nil
		})

		if cfg.Notifications.Schedule != "" {
			scheduler := jobs.NewScheduler(redisOpt, log)
			if err := scheduler.RegisterTasks(cfg.Notifications.Schedule); err != nil {
				return fmt.Errorf("register notification schedule: %w", err)
			}
			scheduler.Run()
			shutdown.Register("scheduler", func(context.Context) error {
				scheduler.Shutdown()
				return nil
			})
		}
	}

	go metrics.NewRecipientCollector(users, recipientsInterval).Run(ctx)

	errs := middleware.NewErrorWriter(errHandler)
	handler := httpapi.NewHandler(httpapi.Deps{
		Auth:        authSvc,
		Entries:     entrySvc,
		Goals:       goalSvc,
		Profiles:    profiles,
		Insights:    insights,
		Notifier:    engine,
		Queue:       queue,
		Limiter:     middleware.NewRateLimiter(limiter, ratelimit.NewRules(cfg.RateLimit), errs, log),
		Idempotency: idem,
		Errors:      errs,
		Health:      checker,
		Liveness:    health.LivenessHandler,
		Metrics:     promhttp.Handler(),
		CronSecret:  cfg.Server.CronSecret,
		Log:         log,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if err := graceful.NewServer(log, srv, cfg.Server.ShutdownTimeout).ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("flowkat stopped")
	return nil
}

func sentryEnvironment(cfg *config.Config) string {
	if cfg.Sentry.Environment != "" {
		return cfg.Sentry.Environment
	}
	return cfg.AppEnv
}

// Command notify runs a single notification pass and prints its summary.
// It is meant for external schedulers that cannot reach the HTTP trigger.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Proton-105/flowkat/internal/database"
	"github.com/Proton-105/flowkat/internal/i18n"
	"github.com/Proton-105/flowkat/internal/notification"
	"github.com/Proton-105/flowkat/internal/repository"
	"github.com/Proton-105/flowkat/internal/telegram"
	"github.com/Proton-105/flowkat/pkg/config"
	"github.com/Proton-105/flowkat/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "notify: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, _, err := config.Load()
	if err != nil {
		return err
	}

	appLog := logger.New(cfg.Logger, cfg.Sentry)
	defer appLog.Close()
	log := appLog.Logger

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []repository.Option{repository.WithQueryTimeout(cfg.Database.QueryTimeout)}
	users := repository.NewUserRepository(db, log, opts...)
	entries := repository.NewEntryRepository(db, log, opts...)

	locales, err := i18n.Load(cfg.Notifications.Language)
	if err != nil {
		return fmt.Errorf("load locales: %w", err)
	}

	var sender notification.Sender
	if cfg.Telegram.Token != "" {
		// polling is never started here
		tgCfg := cfg.Telegram
		tgCfg.Poll = false
		tg, err := telegram.NewClient(tgCfg, log)
		if err != nil {
			return err
		}
		sender = tg
	} else {
		log.Warn("telegram token is not set, due messages will be counted as failed")
	}

	notifyCfg, err := notification.NewConfig(cfg.Notifications, cfg.Telegram.SendTimeout)
	if err != nil {
		return err
	}
	composer := notification.NewComposer(locales.Translator(cfg.Notifications.Language))
	engine := notification.NewEngine(users, entries, sender, composer, notifyCfg, log)

	now := time.Now()
	summary, err := engine.Run(ctx, now)
	if err != nil {
		return fmt.Errorf("notification pass: %w", err)
	}
	log.Info("notification pass finished",
		slog.Int("checked", summary.Checked),
		slog.Int("sent", summary.Total),
		slog.Int("failed", summary.Failed),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		notification.Summary
		Time string `json:"time"`
	}{summary, now.UTC().Format(time.RFC3339)})
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dynamic_bot/internal/bot"
	"dynamic_bot/internal/config"
	"dynamic_bot/internal/fetcher"
	"dynamic_bot/internal/filter"
	"dynamic_bot/internal/normalize"
	"dynamic_bot/internal/notifier"
	"dynamic_bot/internal/scheduler"
	"dynamic_bot/internal/storage"
	"dynamic_bot/internal/tracker"
)

const (
	// drainTimeout bounds how long queued notifications may keep sending after a shutdown signal.
	drainTimeout = 30 * time.Second
	fetchTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	journal, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = journal.Close() }()

	states := tracker.New()

	b, err := bot.New(cfg.TelegramBotToken, &http.Client{Timeout: cfg.SendTimeout}, cfg, states, journal, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Deliveries outlive the poll loop so the queue can drain after a signal.
	deliveryCtx, cancelDelivery := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDelivery()

	n := notifier.New(b, cfg.ChatID, bot.FormatNotification, cfg.RetryBackoff, log)
	dispatcher := notifier.NewDispatcher(n, notifier.DispatcherOptions{
		Workers:   cfg.DispatchWorkers,
		QueueSize: cfg.DispatchQueue,
		Rate:      cfg.SendRate,
	}, log)
	dispatcher.Start(deliveryCtx)

	recorder := notifier.NewRecorder(journal, states, cfg.OnFailure == config.FailureRollback, log)
	recorded := make(chan struct{})
	go func() {
		recorder.Run(deliveryCtx, dispatcher.Outcomes())
		close(recorded)
	}()

	sched := scheduler.New(newSource(cfg), states, normalize.New(cfg.Location), dispatcher, scheduler.Options{
		Subjects:     cfg.Subjects,
		Interval:     cfg.PollInterval,
		Variation:    cfg.PollVariation,
		SubjectDelay: cfg.SubjectDelay,
		PageSize:     cfg.PageSize,
		FirstSeen:    cfg.FirstSeen,
		Gates:        filter.Gates{StaleAfter: cfg.StaleAfter},
	}, log)

	log.Info("starting bot",
		"subjects", len(cfg.Subjects), "source", cfg.FeedSource,
		"interval", cfg.PollInterval, "first_seen", cfg.FirstSeen, "on_failure", cfg.OnFailure)

	var g errgroup.Group
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})
	g.Go(func() error {
		b.Run(ctx)
		return nil
	})
	_ = g.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer stopCancel()
	if err := dispatcher.Stop(stopCtx); err != nil {
		log.Warn("pending notifications dropped", "error", err)
		cancelDelivery()
	}
	<-recorded

	log.Info("bot stopped")
}

func newSource(cfg *config.Config) scheduler.Source {
	client := &http.Client{Timeout: fetchTimeout}
	if cfg.FeedSource == config.SourceRSS {
		return fetcher.NewRSS(client, cfg.RSSURLTemplate)
	}
	return fetcher.New(client)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

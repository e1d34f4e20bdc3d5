// cmd/autotrader: Ichimoku market-making agent.
//
// Connects to the venue WebSocket, quotes the ETF from the cloud signal of
// the reference book and hedges every fill in the future. Configuration is
// read from the environment (see config.Load).
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"ichimoku-autotrader/config"
	"ichimoku-autotrader/internal/api"
	"ichimoku-autotrader/internal/autotrader"
	"ichimoku-autotrader/internal/execution"
	"ichimoku-autotrader/internal/indicator"
	"ichimoku-autotrader/internal/logger"
	"ichimoku-autotrader/internal/metrics"
	"ichimoku-autotrader/internal/model"
	"ichimoku-autotrader/internal/notification"
	"ichimoku-autotrader/internal/portfolio"
	redisstore "ichimoku-autotrader/internal/store/redis"
	"ichimoku-autotrader/internal/venue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("autotrader", slog.LevelInfo).Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.Init("autotrader", cfg.LogLevel)
	log.Info("starting",
		slog.String("venue", cfg.VenueURL),
		slog.String("reference", cfg.Reference.String()),
		slog.Bool("cancel_on_hold", cfg.CancelOnHold))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()

	// ---- Alerts (delivered off the event loop) ----
	alerts := notification.NewDispatcher(
		notification.FromConfig(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.AlertWebhookURL, log), 64, log)
	go alerts.Run(ctx)

	// ---- Order journal ----
	var (
		journal       model.Journal
		journalReader api.JournalReader
		journalPinger metrics.Pinger
		asyncJournal  *execution.AsyncJournal
	)
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			log.Error("journal directory", slog.String("error", err.Error()))
			os.Exit(1)
		}
		j, err := execution.NewJournal(cfg.JournalPath)
		if err != nil {
			log.Error("journal init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		asyncJournal = execution.NewAsyncJournal(j, 4096, log)
		asyncJournal.OnDrop = prom.JournalDrops.Inc
		go asyncJournal.Run(ctx)
		journal, journalReader, journalPinger = asyncJournal, j, j
		health.EnableJournal()
	}

	// ---- Redis snapshot publisher (optional) ----
	var (
		publisher model.StatePublisher
		rdb       *goredis.Client
	)
	if cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log)
		if err != nil {
			log.Warn("redis init failed, continuing without snapshots", slog.String("error", err.Error()))
		} else {
			pub.Breaker().OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
				log.Warn("redis circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
			}
			publisher, rdb = pub, pub.Client()
			health.EnableRedis()
		}
	}
	if rdb != nil || journalPinger != nil {
		health.StartLivenessChecker(ctx, rdb, journalPinger, 10*time.Second)
	}

	// ---- Venue connection ----
	client, err := venue.New(venue.Config{URL: cfg.VenueURL}, log)
	if err != nil {
		log.Error("venue client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	client.OnConnect = health.SetVenueConnected
	client.OnReconnect = prom.VenueReconnects.Inc
	client.OnDrop = prom.VenueDroppedCommands.Inc

	// ---- Agent ----
	trader := autotrader.New(autotrader.Config{
		Reference:    cfg.Reference,
		Cloud:        indicator.DefaultConfig(),
		Limits:       portfolio.DefaultLimits(),
		CancelOnHold: cfg.CancelOnHold,
	}, autotrader.Deps{
		Gateway:   client,
		Metrics:   prom,
		Health:    health,
		Notifier:  alerts,
		Journal:   journal,
		Publisher: publisher,
		Log:       log,
	})

	srv := metrics.NewServer(cfg.MetricsAddr, health, api.NewRouter(trader, journalReader))
	srv.Start()

	events := make(chan model.Event, 1024)
	go func() {
		if err := client.Run(ctx, events); err != nil {
			log.Error("venue client stopped", slog.String("error", err.Error()))
		}
	}()

	if err := trader.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("event loop stopped", slog.String("error", err.Error()))
	}

	// ---- Shutdown ----
	log.Info("shutdown signal received, cleaning up")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(shutdownCtx)
	alerts.Wait()
	if asyncJournal != nil {
		if err := asyncJournal.Close(); err != nil {
			log.Warn("journal close", slog.String("error", err.Error()))
		}
	}
	if publisher != nil {
		publisher.Close()
	}
	log.Info("shutdown complete",
		slog.Int64("position", trader.Status().Inventory.Position),
		slog.Uint64("consistency_faults", trader.Status().Faults))
}

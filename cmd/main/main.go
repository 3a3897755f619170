package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Houeta/listing-monitor/internal/api"
	"github.com/Houeta/listing-monitor/internal/bot"
	"github.com/Houeta/listing-monitor/internal/config"
	"github.com/Houeta/listing-monitor/internal/crawler"
	"github.com/Houeta/listing-monitor/internal/metrics"
	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/notify"
	"github.com/Houeta/listing-monitor/internal/repository/sqlite"
	"github.com/Houeta/listing-monitor/internal/retry"
	"github.com/Houeta/listing-monitor/internal/scheduler"
	"github.com/Houeta/listing-monitor/internal/scorer"
	"github.com/Houeta/listing-monitor/internal/services/monitor"
	"github.com/prometheus/client_golang/prometheus"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

const shutdownTimeout = 15 * time.Second

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	// This allows for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	repo, err := sqlite.NewRepository(ctx, logger, cfg.StoragePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer repo.Close()

	if n, err := repo.RecoverInterruptedRuns(ctx, time.Now().UTC()); err != nil {
		log.Fatalf("Failed to recover interrupted scans: %v", err)
	} else if n > 0 {
		logger.WarnContext(ctx, "Marked interrupted scans as failed", "count", n)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	source := crawler.NewHTMLSource(logger, cfg.Crawl.BaseURL, cfg.Crawl.UserAgent,
		&http.Client{Timeout: cfg.Crawl.RequestTimeout})
	pool := crawler.NewPool(logger, source, crawler.PoolConfig{
		Workers:       cfg.Crawl.Workers,
		RatePerSecond: cfg.Crawl.RatePerSecond,
		Burst:         cfg.Crawl.Burst,
		Retry:         retryConfig(cfg.Crawl),
	})

	// Sinks are assembled after the monitor because the bot reports its status.
	sinks := notify.Multi{notify.NewLog(logger)}
	sink := notify.SinkFunc(func(ctx context.Context, changes []models.ChangeRecord) error {
		return sinks.Deliver(ctx, changes)
	})

	mon := monitor.New(logger, repo, pool, scorer.New(cfg.Scoring), sink, m, monitor.Config{
		DefaultTarget:     cfg.Crawl.DefaultTarget,
		DefaultPageBudget: cfg.Crawl.PageBudget,
		MaxPageBudget:     cfg.Crawl.MaxPageBudget,
		ScanTimeout:       cfg.Scan.Timeout,
		MaxFetchErrorRate: cfg.Scan.MaxFetchErrorRate,
	})

	if cfg.Notify.WebhookURL != "" {
		webhookRetry := retryConfig(cfg.Crawl)
		webhookRetry.IsRetryable = notify.IsRetryable
		webhook := notify.NewWebhook(logger, cfg.Notify.WebhookURL, nil, webhookRetry)
		sinks = append(sinks, notify.MinCategory{Min: cfg.Notify.MinCategory, Next: webhook})
	}

	var listingBot *bot.Bot
	if cfg.Tg.Token != "" {
		listingBot, err = bot.NewBot(logger, cfg.Tg.Token, cfg.Tg.Timeout, repo, mon)
		if err != nil {
			log.Fatalf("Failed to init bot: %v", err)
		}
		sinks = append(sinks, notify.MinCategory{Min: cfg.Notify.MinCategory, Next: listingBot})

		// Start the bot in a goroutine to allow main to listen for signals.
		go listingBot.Start()
	}

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled() {
		sched, err = scheduler.New(logger, mon, scheduler.Config{
			Spec:               cfg.Schedule.Spec,
			Target:             cfg.Crawl.DefaultTarget,
			PageBudget:         cfg.Crawl.PageBudget,
			ConflictRetries:    cfg.Schedule.ConflictRetries,
			ConflictRetryDelay: cfg.Schedule.ConflictRetryDelay,
		})
		if err != nil {
			log.Fatalf("Failed to init scheduler: %v", err)
		}
		sched.Start(ctx)
	}

	server := api.NewServer(logger, mon, m, reg, api.Config{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ChangeCacheTTL:  cfg.HTTP.ChangeCacheTTL,
		ChangeCacheSize: cfg.HTTP.ChangeCacheSize,
	})
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	// Log that the application has started.
	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.", "addr", cfg.HTTP.Addr)

	// Wait for the context to be canceled (e.g., by Ctrl+C).
	<-ctx.Done()

	// Log that a shutdown signal has been received.
	logger.Info("Shutdown signal received. Stopping application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
		}
	}
	if mon.Cancel() {
		logger.Info("Cancelled the running scan")
	}
	mon.Wait()
	if listingBot != nil {
		listingBot.Stop()
	}

	// Log graceful shutdown completion.
	logger.Info("Application stopped gracefully.")
}

func retryConfig(c config.Crawl) retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = c.RetryAttempts
	rc.InitialDelay = c.RetryInitialDelay
	rc.MaxDelay = c.RetryMaxDelay
	return rc
}
// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}

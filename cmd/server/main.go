package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/V4T54L/callwatch/internal/adapter/api"
	"github.com/V4T54L/callwatch/internal/adapter/api/handler"
	"github.com/V4T54L/callwatch/internal/adapter/forward"
	"github.com/V4T54L/callwatch/internal/adapter/metrics"
	"github.com/V4T54L/callwatch/internal/adapter/pii"
	"github.com/V4T54L/callwatch/internal/adapter/repository/apikey"
	"github.com/V4T54L/callwatch/internal/adapter/repository/file"
	"github.com/V4T54L/callwatch/internal/adapter/repository/memory"
	"github.com/V4T54L/callwatch/internal/domain"
	"github.com/V4T54L/callwatch/internal/pkg/config"
	"github.com/V4T54L/callwatch/internal/pkg/logger"
	"github.com/V4T54L/callwatch/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Start Admin and Metrics Server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminMux,
	}
	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Initialize Store ---
	var (
		store      domain.EntryStore
		dispatcher *forward.Dispatcher
		closers    []func() error
	)
	switch cfg.StoreMode {
	case config.StoreModeMemory:
		var opts []memory.Option
		if cfg.Forward.Enabled() {
			sinks, sinkClosers := buildSinks(ctx, cfg.Forward, logger)
			closers = append(closers, sinkClosers...)
			dispatcher = forward.NewDispatcher(sinks, logger, m, forward.Options{
				QueueSize: cfg.Forward.QueueSize,
				BatchSize: cfg.Forward.BatchSize,
				Timeout:   cfg.Forward.Timeout,
				RateLimit: cfg.Forward.RateLimit,
			})
			dispatcher.Start(ctx)
			opts = append(opts, memory.WithForwarder(dispatcher))
		}
		opts = append(opts,
			memory.WithCapacity(cfg.MemoryCapacity),
			memory.WithRetention(cfg.MemoryRetention),
			memory.WithPreviewChars(cfg.MemoryPreviewChars),
		)
		store = memory.NewRepository(logger, opts...)
		logger.Info("using in-memory log store", "capacity", cfg.MemoryCapacity, "retention", cfg.MemoryRetention)
	default:
		fileRepo, err := file.NewRepository(cfg.LogDir, cfg.FileRetention, logger)
		if err != nil {
			logger.Error("failed to initialize log directory", "dir", cfg.LogDir, "error", err)
			os.Exit(1)
		}
		closers = append(closers, fileRepo.Close)
		store = fileRepo
		logger.Info("using file log store", "dir", fileRepo.Dir(), "retention", cfg.FileRetention)
		if cfg.Forward.Enabled() {
			logger.Warn("forwarding is only supported by the memory store, ignoring forward settings")
		}
	}

	// --- Initialize Use Cases and Services ---
	sseBroker := handler.NewSSEBroker(ctx, logger, m)
	svc := usecase.NewLogService(store, logger,
		usecase.WithRedactor(pii.NewRedactor(cfg.RedactFields, logger)),
		usecase.WithPublisher(sseBroker),
		usecase.WithMetrics(m),
	)

	// --- Scheduled Retention ---
	scheduler := cron.New()
	if cfg.PruneSchedule != "" {
		_, err := scheduler.AddFunc(cfg.PruneSchedule, func() {
			if _, err := svc.Prune(ctx); err != nil {
				logger.Error("scheduled prune failed", "error", err)
			}
		})
		if err != nil {
			logger.Error("invalid prune schedule", "schedule", cfg.PruneSchedule, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
	}

	// --- Initialize HTTP Server ---
	deps := api.RouterDeps{
		Service:      svc,
		Broker:       sseBroker,
		Metrics:      m,
		MaxEventSize: cfg.MaxEventSize,
	}
	if len(cfg.APIKeys) > 0 {
		keys := apikey.NewStaticRepository(cfg.APIKeys)
		if keys.Len() > 0 {
			deps.APIKeys = keys
		}
	}
	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     api.NewRouter(deps, logger),
		ReadTimeout: 5 * time.Second,
		// No WriteTimeout: the live tail stream is long-lived.
		IdleTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting log server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("log server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	<-scheduler.Stop().Done()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("log server shutdown failed", "error", err)
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("failed to close resource", "error", err)
		}
	}

	logger.Info("servers shut down gracefully")
}

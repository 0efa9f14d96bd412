package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/callwatch/internal/adapter/forward"
	"github.com/V4T54L/callwatch/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/callwatch/internal/adapter/repository/redis"
	"github.com/V4T54L/callwatch/internal/domain"
	"github.com/V4T54L/callwatch/internal/pkg/config"
)

// buildSinks creates every configured external sink. A sink that cannot be
// set up is skipped with a warning; forwarding is never required for startup.
func buildSinks(ctx context.Context, cfg config.ForwardConfig, logger *slog.Logger) ([]domain.Sink, []func() error) {
	var (
		sinks   []domain.Sink
		closers []func() error
	)

	if cfg.WebhookURL != "" {
		sinks = append(sinks, forward.NewWebhookSink(cfg.WebhookURL, &http.Client{Timeout: cfg.Timeout}))
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("failed to parse redis url, skipping redis sink", "error", err)
		} else {
			sink := redisrepo.NewStreamSink(redis.NewClient(opts), logger, cfg.RedisStream, 0)
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := sink.Ping(pingCtx); err != nil {
				logger.Warn("could not connect to redis, entries will be retried per batch", "error", err)
			}
			cancel()
			sinks = append(sinks, sink)
			closers = append(closers, sink.Close)
		}
	}

	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			logger.Warn("failed to open postgres connection, skipping postgres sink", "error", err)
		} else {
			sink := postgres.NewSink(db, logger)
			schemaCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := sink.EnsureSchema(schemaCtx); err != nil {
				logger.Warn("failed to prepare postgres schema", "error", err)
			}
			cancel()
			sinks = append(sinks, sink)
			closers = append(closers, sink.Close)
		}
	}

	if cfg.KafkaBrokers != "" {
		sink := forward.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, sink)
		closers = append(closers, sink.Close)
	}

	if cfg.NATSURL != "" {
		sink, err := forward.NewNATSSink(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Warn("failed to connect to nats, skipping nats sink", "error", err)
		} else {
			sinks = append(sinks, sink)
			closers = append(closers, sink.Close)
		}
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("forwarding enabled", "sinks", names)
	return sinks, closers
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/callwatch/internal/domain"
)

const defaultStreamMaxLen = 100000

// StreamSink forwards entries to a Redis Stream, trimming it to an approximate maximum length.
type StreamSink struct {
	client    *redis.Client
	logger    *slog.Logger
	streamKey string
	maxLen    int64
}

// NewStreamSink creates a Redis Streams sink. A non-positive maxLen selects the default.
func NewStreamSink(client *redis.Client, logger *slog.Logger, streamKey string, maxLen int64) *StreamSink {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &StreamSink{
		client:    client,
		logger:    logger.With("component", "redis_sink"),
		streamKey: streamKey,
		maxLen:    maxLen,
	}
}

func (s *StreamSink) Name() string { return "redis" }

// Send appends the batch to the stream in a single pipeline.
func (s *StreamSink) Send(ctx context.Context, envelopes []domain.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, env := range envelopes {
		payload, err := env.Marshal()
		if err != nil {
			s.logger.Error("Failed to marshal entry for stream", "event_id", env.ID, "kind", env.Kind, "error", err)
			continue
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.streamKey,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]interface{}{
				"event_id":  env.ID,
				"kind":      string(env.Kind),
				"logged_at": env.Timestamp.UTC().Format(time.RFC3339Nano),
				"payload":   payload,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		if isNetworkError(err) {
			return fmt.Errorf("redis unavailable: %w", err)
		}
		return fmt.Errorf("failed to execute XADD pipeline: %w", err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *StreamSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *StreamSink) Close() error {
	return s.client.Close()
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

package forward

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/V4T54L/callwatch/internal/domain"
)

// NATSSink publishes entry envelopes on "<prefix>.<kind>" subjects.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSink connects to the NATS server at url.
func NewNATSSink(url, subjectPrefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{conn: nc, prefix: subjectPrefix}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Send(ctx context.Context, envelopes []domain.Envelope) error {
	for _, env := range envelopes {
		data, err := env.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal envelope: %w", err)
		}
		if err := s.conn.Publish(s.prefix+"."+string(env.Kind), data); err != nil {
			return fmt.Errorf("failed to publish to NATS: %w", err)
		}
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}

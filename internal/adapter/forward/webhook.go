package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/V4T54L/callwatch/internal/domain"
)

// WebhookSink POSTs each entry as a JSON document to a URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink posting to url. A nil client uses http.DefaultClient.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{url: url, client: client}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Send posts the entries one request at a time, stopping at the first failure.
// The body is the bare entry; the event ID travels in the X-Event-ID header.
func (s *WebhookSink) Send(ctx context.Context, envelopes []domain.Envelope) error {
	for _, env := range envelopes {
		payload, err := json.Marshal(env.Entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry for webhook: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-ID", env.ID)

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook request failed: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
	}
	return nil
}

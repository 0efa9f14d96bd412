package forward

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/V4T54L/callwatch/internal/adapter/metrics"
	"github.com/V4T54L/callwatch/internal/domain"
	"github.com/V4T54L/callwatch/internal/domain/mocks"
)

func flowEntry(i int) domain.Entry {
	return domain.FlowEventEntry{
		Timestamp: time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC),
		Event:     "round_complete",
		Data:      map[string]any{"round": i},
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	a := &mocks.MockSink{SinkID: "a"}
	b := &mocks.MockSink{SinkID: "b"}

	d := NewDispatcher([]domain.Sink{a, b}, logger, m, Options{BatchSize: 10})
	for i := 0; i < 25; i++ {
		d.Forward(flowEntry(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()
	d.Wait()

	if a.Sent() != 25 || b.Sent() != 25 {
		t.Fatalf("expected 25 entries per sink, got a=%d b=%d", a.Sent(), b.Sent())
	}
	for _, batch := range a.Batches {
		if len(batch) > 10 {
			t.Errorf("batch of %d exceeds batch size 10", len(batch))
		}
	}
	if got := counterValue(t, m.ForwardedTotal.WithLabelValues("a", "success")); got != 25 {
		t.Errorf("expected forwarded metric 25, got %v", got)
	}
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	sink := &mocks.MockSink{}

	d := NewDispatcher([]domain.Sink{sink}, logger, m, Options{QueueSize: 3})
	for i := 0; i < 5; i++ {
		d.Forward(flowEntry(i))
	}

	if got := counterValue(t, m.ForwardDropped.WithLabelValues("queue_full")); got != 2 {
		t.Errorf("expected 2 queue_full drops, got %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()
	d.Wait()
	if sink.Sent() != 3 {
		t.Errorf("expected 3 delivered entries, got %d", sink.Sent())
	}
}

func TestDispatcher_RateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())

	d := NewDispatcher([]domain.Sink{&mocks.MockSink{}}, logger, m, Options{RateLimit: 2})
	for i := 0; i < 10; i++ {
		d.Forward(flowEntry(i))
	}

	if got := counterValue(t, m.ForwardDropped.WithLabelValues("rate_limited")); got < 7 {
		t.Errorf("expected most entries to be rate limited, got %v drops", got)
	}
}

func TestDispatcher_SinkFailureIsSwallowed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	failing := &mocks.MockSink{SinkID: "broken", SendErr: errors.New("connection refused")}
	healthy := &mocks.MockSink{SinkID: "ok"}

	d := NewDispatcher([]domain.Sink{failing, healthy}, logger, m, Options{})
	d.Forward(flowEntry(1))

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()
	d.Wait()

	if healthy.Sent() != 1 {
		t.Errorf("expected healthy sink to receive the entry despite the failing one")
	}
	if got := counterValue(t, m.ForwardedTotal.WithLabelValues("broken", "error")); got != 1 {
		t.Errorf("expected error metric 1, got %v", got)
	}
}

func TestDispatcher_NoSinksIsNoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(nil, logger, nil, Options{QueueSize: 1})
	for i := 0; i < 10; i++ {
		d.Forward(flowEntry(i))
	}
	if len(d.queue) != 0 {
		t.Errorf("expected nothing queued without sinks, got %d", len(d.queue))
	}
}

func TestWebhookSink_Send(t *testing.T) {
	var hits atomic.Int32
	var gotID atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if hits.Add(1) == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		gotID.Store(r.Header.Get("X-Event-ID"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, server.Client())
	first := domain.NewEnvelope(flowEntry(1))
	if err := sink.Send(context.Background(), []domain.Envelope{first}); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if gotID.Load() != first.ID {
		t.Errorf("expected X-Event-ID %q, got %v", first.ID, gotID.Load())
	}
	if err := sink.Send(context.Background(), []domain.Envelope{domain.NewEnvelope(flowEntry(2))}); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestDispatcher_SharesEventIDAcrossSinks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := &mocks.MockSink{SinkID: "a"}
	b := &mocks.MockSink{SinkID: "b"}

	d := NewDispatcher([]domain.Sink{a, b}, logger, nil, Options{})
	for i := 0; i < 3; i++ {
		d.Forward(flowEntry(i))
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()
	d.Wait()

	if len(a.Batches) != 1 || len(b.Batches) != 1 {
		t.Fatalf("expected one batch per sink, got a=%d b=%d", len(a.Batches), len(b.Batches))
	}
	seen := make(map[string]bool)
	for i, env := range a.Batches[0] {
		if env.ID == "" || seen[env.ID] {
			t.Errorf("envelope %d has empty or repeated ID %q", i, env.ID)
		}
		seen[env.ID] = true
		if b.Batches[0][i].ID != env.ID {
			t.Errorf("envelope %d: sink a got ID %s, sink b got %s", i, env.ID, b.Batches[0][i].ID)
		}
	}
}

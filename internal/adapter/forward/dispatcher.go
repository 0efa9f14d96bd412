// Package forward ships log entries to optional external sinks. Forwarding is
// best-effort: it never blocks or fails the append path.
package forward

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/callwatch/internal/adapter/metrics"
	"github.com/V4T54L/callwatch/internal/domain"
)

const (
	defaultQueueSize = 1000
	defaultBatchSize = 50
	defaultTimeout   = 5 * time.Second
)

// Options tunes a Dispatcher. Zero values select defaults.
type Options struct {
	QueueSize int
	BatchSize int
	Timeout   time.Duration
	// RateLimit is the maximum number of entries accepted per second; 0 disables limiting.
	RateLimit float64
}

// Dispatcher implements domain.Forwarder with a bounded queue drained by one
// background goroutine.
type Dispatcher struct {
	sinks     []domain.Sink
	queue     chan domain.Entry
	limiter   *rate.Limiter
	timeout   time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics

	startOnce sync.Once
	done      chan struct{}
}

// NewDispatcher creates a dispatcher for the given sinks. Call Start to begin delivery.
func NewDispatcher(sinks []domain.Sink, logger *slog.Logger, m *metrics.Metrics, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}

	return &Dispatcher{
		sinks:     sinks,
		queue:     make(chan domain.Entry, opts.QueueSize),
		limiter:   limiter,
		timeout:   opts.Timeout,
		batchSize: opts.BatchSize,
		logger:    logger.With("component", "forward_dispatcher"),
		metrics:   m,
		done:      make(chan struct{}),
	}
}

// Start launches the delivery loop. It stops when ctx is cancelled, after
// flushing whatever is still queued.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

// Wait blocks until the delivery loop has exited.
func (d *Dispatcher) Wait() {
	<-d.done
}

// Forward enqueues an entry without blocking. Entries are dropped when the
// rate limit is exceeded or the queue is full.
func (d *Dispatcher) Forward(entry domain.Entry) {
	if len(d.sinks) == 0 {
		return
	}
	if !d.limiter.Allow() {
		d.drop("rate_limited")
		return
	}
	select {
	case d.queue <- entry:
	default:
		d.drop("queue_full")
	}
}

func (d *Dispatcher) drop(reason string) {
	if d.metrics != nil {
		d.metrics.ForwardDropped.WithLabelValues(reason).Inc()
	}
	d.logger.Warn("dropping entry before forwarding", "reason", reason)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	d.logger.Info("starting forward dispatcher", "sinks", len(d.sinks))

	for {
		select {
		case <-ctx.Done():
			d.flush()
			d.logger.Info("forward dispatcher stopped")
			return
		case entry := <-d.queue:
			d.deliver(d.fillBatch(entry))
		}
	}
}

// fillBatch collects queued entries without waiting, up to the batch size.
func (d *Dispatcher) fillBatch(first domain.Entry) []domain.Entry {
	batch := []domain.Entry{first}
	for len(batch) < d.batchSize {
		select {
		case e := <-d.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

func (d *Dispatcher) flush() {
	for {
		select {
		case entry := <-d.queue:
			d.deliver(d.fillBatch(entry))
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(batch []domain.Entry) {
	envelopes := make([]domain.Envelope, len(batch))
	for i, e := range batch {
		envelopes[i] = domain.NewEnvelope(e)
	}
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := sink.Send(ctx, envelopes)
		cancel()

		status := "success"
		if err != nil {
			status = "error"
			d.logger.Warn("external sink failed", "sink", sink.Name(), "count", len(batch), "error", err)
		}
		if d.metrics != nil {
			d.metrics.ForwardedTotal.WithLabelValues(sink.Name(), status).Add(float64(len(batch)))
		}
	}
}

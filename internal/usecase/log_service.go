package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/V4T54L/callwatch/internal/adapter/metrics"
	"github.com/V4T54L/callwatch/internal/adapter/pii"
	"github.com/V4T54L/callwatch/internal/domain"
)

const tracerName = "github.com/V4T54L/callwatch/internal/usecase"

var (
	// ErrKeywordRequired is returned by Search when no keyword is supplied.
	ErrKeywordRequired = errors.New("keyword is required for search")
	// ErrUnsupportedFormat is returned by Export for formats other than json and csv.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// LogService is the capability service used by the orchestration layer and
// the transport adapters. It owns no state beyond the injected store.
type LogService struct {
	store     domain.EntryStore
	redactor  *pii.Redactor
	publisher domain.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// ServiceOption configures optional LogService collaborators.
type ServiceOption func(*LogService)

// WithRedactor masks sensitive keys in flow event data before it is stored.
func WithRedactor(r *pii.Redactor) ServiceOption {
	return func(s *LogService) { s.redactor = r }
}

// WithPublisher hands every recorded entry to p, e.g. the live tail broker.
func WithPublisher(p domain.Publisher) ServiceOption {
	return func(s *LogService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *LogService) { s.metrics = m }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *LogService) { s.now = now }
}

// NewLogService creates a LogService over store.
func NewLogService(store domain.EntryStore, logger *slog.Logger, opts ...ServiceOption) *LogService {
	s := &LogService{
		store:  store,
		logger: logger.With("component", "log_service"),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogAPICall records a completed model call. A nil callErr marks it successful.
func (s *LogService) LogAPICall(ctx context.Context, callID, role, model, input, output string, duration time.Duration, callErr error) (domain.APICallEntry, error) {
	entry := domain.NewAPICallEntry(s.now().UTC(), callID, role, model, input, output, duration, callErr)
	if err := s.Record(ctx, entry); err != nil {
		return domain.APICallEntry{}, err
	}
	return entry, nil
}

// LogFlowEvent records a debate lifecycle marker.
func (s *LogService) LogFlowEvent(ctx context.Context, event string, data map[string]any) (domain.FlowEventEntry, error) {
	entry := domain.FlowEventEntry{Timestamp: s.now().UTC(), Event: event, Data: data}
	if err := s.Record(ctx, entry); err != nil {
		return domain.FlowEventEntry{}, err
	}
	return entry, nil
}

// LogError records err together with the stack of the calling goroutine.
func (s *LogService) LogError(ctx context.Context, err error, errContext string) (domain.ErrorEntry, error) {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	entry := domain.ErrorEntry{
		Timestamp: s.now().UTC(),
		Context:   errContext,
		Message:   msg,
		Stack:     string(debug.Stack()),
	}
	if recErr := s.Record(ctx, entry); recErr != nil {
		return domain.ErrorEntry{}, recErr
	}
	return entry, nil
}

// Record normalises and stores an already constructed entry. It is the common
// path for the Log* helpers and for remotely ingested records.
func (s *LogService) Record(ctx context.Context, entry domain.Entry) error {
	entry = s.normalize(entry)
	kind := entry.Kind()

	if err := s.store.Append(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.AppendErrors.WithLabelValues(string(kind)).Inc()
		}
		s.logger.Error("failed to append entry", "kind", kind, "error", err)
		return fmt.Errorf("failed to append %s entry: %w", kind, err)
	}
	if s.metrics != nil {
		s.metrics.EntriesTotal.WithLabelValues(string(kind)).Inc()
	}

	s.summarize(entry)
	if s.publisher != nil {
		s.publisher.Publish(domain.Clone(entry))
	}
	return nil
}

func (s *LogService) normalize(entry domain.Entry) domain.Entry {
	switch e := entry.(type) {
	case domain.APICallEntry:
		if e.Timestamp.IsZero() {
			e.Timestamp = s.now().UTC()
		}
		if e.CallID == "" {
			e.CallID = uuid.NewString()
		}
		e.Role = domain.NormalizeRole(string(e.Role))
		if e.DurationMs < 0 {
			e.DurationMs = 0
		}
		return e
	case domain.FlowEventEntry:
		if e.Timestamp.IsZero() {
			e.Timestamp = s.now().UTC()
		}
		e.Data, _ = s.redactor.Redact(e.Data)
		return e
	case domain.ErrorEntry:
		if e.Timestamp.IsZero() {
			e.Timestamp = s.now().UTC()
		}
		if e.Message == "" {
			e.Message = "unknown error"
		}
		return e
	}
	return entry
}

// summarize writes the one-line console record for an entry.
func (s *LogService) summarize(entry domain.Entry) {
	switch e := entry.(type) {
	case domain.APICallEntry:
		s.logger.Info("api call recorded",
			"call_id", e.CallID,
			"role", e.Role,
			"model", e.Model,
			"duration_ms", e.DurationMs,
			"success", e.Success,
		)
	case domain.FlowEventEntry:
		s.logger.Info("flow event recorded", "event", e.Event)
	case domain.ErrorEntry:
		s.logger.Warn("error recorded", "context", e.Context, "error", e.Message)
	}
}

// Prune removes entries past the store's retention horizon.
func (s *LogService) Prune(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "LogService.Prune")
	defer span.End()

	removed, err := s.store.Prune(ctx)
	if removed > 0 && s.metrics != nil {
		s.metrics.PrunedTotal.Add(float64(removed))
	}
	span.SetAttributes(attribute.Int("callwatch.pruned", removed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return removed, fmt.Errorf("failed to prune logs: %w", err)
	}
	if removed > 0 {
		s.logger.Info("pruned old logs", "removed", removed)
	}
	return removed, nil
}

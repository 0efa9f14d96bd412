package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/V4T54L/callwatch/internal/domain"
)

// OverviewSampleSize is the number of recent entries and errors in an Overview.
const OverviewSampleSize = 5

// Stats aggregates the retained API call entries.
type Stats struct {
	TotalCalls       int   `json:"totalCalls"`
	SuccessCalls     int   `json:"successCalls"`
	ErrorCalls       int   `json:"errorCalls"`
	TotalInputChars  int64 `json:"totalInputChars"`
	TotalOutputChars int64 `json:"totalOutputChars"`
	CognitoCalls     int   `json:"cognitoCalls"`
	MuseCalls        int   `json:"museCalls"`
}

// ComputeStats derives Stats from entries. Non API call entries are ignored.
func ComputeStats(entries []domain.Entry) Stats {
	var st Stats
	for _, e := range entries {
		call, ok := e.(domain.APICallEntry)
		if !ok {
			continue
		}
		st.TotalCalls++
		if call.Success {
			st.SuccessCalls++
		} else {
			st.ErrorCalls++
		}
		st.TotalInputChars += int64(call.InputLength)
		st.TotalOutputChars += int64(call.OutputLength)
		switch call.Role {
		case domain.RoleCognito:
			st.CognitoCalls++
		case domain.RoleMuse:
			st.MuseCalls++
		}
	}
	return st
}

// Overview is the default answer of the query endpoint.
type Overview struct {
	Stats      Stats          `json:"stats"`
	RecentLogs []domain.Entry `json:"recentLogs"`
	Errors     []domain.Entry `json:"errors"`
}

func (s *LogService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetStats computes fresh counters over the retained API call entries.
func (s *LogService) GetStats(ctx context.Context) (Stats, error) {
	ctx, span := s.startSpan(ctx, "LogService.GetStats")
	defer span.End()

	entries, err := s.store.Entries(ctx, domain.KindAPI)
	if err != nil {
		failSpan(span, err)
		return Stats{}, fmt.Errorf("failed to read api entries: %w", err)
	}
	return ComputeStats(entries), nil
}

// GetRecent returns up to count entries of kind, most recent first.
func (s *LogService) GetRecent(ctx context.Context, kind domain.Kind, count int) ([]domain.Entry, error) {
	ctx, span := s.startSpan(ctx, "LogService.GetRecent",
		attribute.String("callwatch.kind", string(kind)),
		attribute.Int("callwatch.count", count),
	)
	defer span.End()

	entries, err := s.store.Recent(ctx, kind, count)
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("failed to read recent entries: %w", err)
	}
	return nonNil(entries), nil
}

// Search returns entries of kind containing keyword, most recent first.
func (s *LogService) Search(ctx context.Context, keyword string, kind domain.Kind) ([]domain.Entry, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, ErrKeywordRequired
	}
	ctx, span := s.startSpan(ctx, "LogService.Search", attribute.String("callwatch.kind", string(kind)))
	defer span.End()

	entries, err := s.store.Search(ctx, keyword, kind)
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	span.SetAttributes(attribute.Int("callwatch.results", len(entries)))
	return nonNil(entries), nil
}

// Overview combines stats with the latest entries and the latest errors.
func (s *LogService) Overview(ctx context.Context) (Overview, error) {
	ctx, span := s.startSpan(ctx, "LogService.Overview")
	defer span.End()

	stats, err := s.GetStats(ctx)
	if err != nil {
		failSpan(span, err)
		return Overview{}, err
	}
	recent, err := s.GetRecent(ctx, domain.KindAll, OverviewSampleSize)
	if err != nil {
		failSpan(span, err)
		return Overview{}, err
	}
	errs, err := s.GetRecent(ctx, domain.KindError, OverviewSampleSize)
	if err != nil {
		failSpan(span, err)
		return Overview{}, err
	}
	return Overview{Stats: stats, RecentLogs: recent, Errors: errs}, nil
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil(entries []domain.Entry) []domain.Entry {
	if entries == nil {
		return []domain.Entry{}
	}
	return entries
}

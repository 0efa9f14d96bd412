package usecase

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/callwatch/internal/adapter/metrics"
	"github.com/V4T54L/callwatch/internal/adapter/pii"
	"github.com/V4T54L/callwatch/internal/adapter/repository/memory"
	"github.com/V4T54L/callwatch/internal/domain"
	"github.com/V4T54L/callwatch/internal/domain/mocks"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...ServiceOption) (*LogService, *memory.Repository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return fixedNow }
	repo := memory.NewRepository(logger, memory.WithClock(clock))
	opts = append([]ServiceOption{WithClock(clock)}, opts...)
	return NewLogService(repo, logger, opts...), repo
}

func TestLogService_StatsExample(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.LogAPICall(ctx, "c1", "cognito", "gpt-4", "hello world", "hi there", 120*time.Millisecond, nil); err != nil {
		t.Fatalf("LogAPICall failed: %v", err)
	}

	got, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	want := Stats{
		TotalCalls:       1,
		SuccessCalls:     1,
		ErrorCalls:       0,
		TotalInputChars:  11,
		TotalOutputChars: 8,
		CognitoCalls:     1,
		MuseCalls:        0,
	}
	if got != want {
		t.Errorf("unexpected stats:\n got %+v\nwant %+v", got, want)
	}
}

func TestLogService_StatsConsistency(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	calls := []struct {
		role string
		err  error
	}{
		{"cognito", nil},
		{"muse", errors.New("rate limited")},
		{"muse", nil},
		{"narrator", errors.New("timeout")},
		{"cognito", nil},
	}
	for i, c := range calls {
		if _, err := svc.LogAPICall(ctx, "", c.role, "gpt-4", "in", "out", time.Duration(i)*time.Second, c.err); err != nil {
			t.Fatalf("LogAPICall failed: %v", err)
		}
	}
	svc.LogFlowEvent(ctx, "debate_start", nil)

	st, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if st.TotalCalls != len(calls) {
		t.Errorf("expected %d total calls, got %d", len(calls), st.TotalCalls)
	}
	if st.SuccessCalls+st.ErrorCalls != st.TotalCalls {
		t.Errorf("success (%d) + error (%d) != total (%d)", st.SuccessCalls, st.ErrorCalls, st.TotalCalls)
	}
	if st.CognitoCalls != 2 || st.MuseCalls != 2 {
		t.Errorf("unexpected role split: cognito=%d muse=%d", st.CognitoCalls, st.MuseCalls)
	}
}

func TestLogService_LogAPICall(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("Failure sets error fields", func(t *testing.T) {
		entry, err := svc.LogAPICall(ctx, "c2", "muse", "claude", "q", "", 2*time.Second, errors.New("upstream 503"))
		if err != nil {
			t.Fatalf("LogAPICall failed: %v", err)
		}
		if entry.Success {
			t.Error("expected Success to be false")
		}
		if entry.ErrorMessage != "upstream 503" {
			t.Errorf("unexpected error message %q", entry.ErrorMessage)
		}
		if entry.DurationMs != 2000 {
			t.Errorf("expected 2000ms, got %d", entry.DurationMs)
		}
	})

	t.Run("Empty call ID is generated", func(t *testing.T) {
		if _, err := svc.LogAPICall(ctx, "", "cognito", "gpt-4", "a", "b", 0, nil); err != nil {
			t.Fatalf("LogAPICall failed: %v", err)
		}
		recent, _ := svc.GetRecent(ctx, domain.KindAPI, 1)
		if len(recent) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(recent))
		}
		if recent[0].(domain.APICallEntry).CallID == "" {
			t.Error("expected a generated call ID")
		}
	})
}

func TestLogService_LogFlowEventRedacts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, repo := newTestService(t, WithRedactor(pii.NewRedactor([]string{"apiKey"}, logger)))
	ctx := context.Background()

	data := map[string]any{"apiKey": "sk-secret", "rounds": 3}
	if _, err := svc.LogFlowEvent(ctx, "debate_config", data); err != nil {
		t.Fatalf("LogFlowEvent failed: %v", err)
	}
	if data["apiKey"] != "sk-secret" {
		t.Error("caller's map must not be modified")
	}

	entries, _ := repo.Entries(ctx, domain.KindFlow)
	if len(entries) != 1 {
		t.Fatalf("expected 1 flow entry, got %d", len(entries))
	}
	stored := entries[0].(domain.FlowEventEntry)
	if stored.Data["apiKey"] != pii.RedactedPlaceholder {
		t.Errorf("expected apiKey to be redacted, got %v", stored.Data["apiKey"])
	}
	if stored.Data["rounds"] != 3 {
		t.Errorf("expected rounds to be kept, got %v", stored.Data["rounds"])
	}
}

func TestLogService_LogError(t *testing.T) {
	pub := &mocks.MockPublisher{}
	svc, _ := newTestService(t, WithPublisher(pub))

	entry, err := svc.LogError(context.Background(), errors.New("boom"), "round 2")
	if err != nil {
		t.Fatalf("LogError failed: %v", err)
	}
	if entry.Message != "boom" || entry.Context != "round 2" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Stack == "" {
		t.Error("expected a stack trace")
	}
	if len(pub.Published) != 1 || pub.Published[0].Kind() != domain.KindError {
		t.Errorf("expected the error to be published once, got %v", pub.Published)
	}

	nilEntry, err := svc.LogError(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("LogError failed: %v", err)
	}
	if nilEntry.Message != "unknown error" {
		t.Errorf("expected placeholder message, got %q", nilEntry.Message)
	}
}

func TestLogService_RecordStoreError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	store := &mocks.MockEntryStore{AppendErr: errors.New("disk full")}
	pub := &mocks.MockPublisher{}
	svc := NewLogService(store, logger, WithMetrics(m), WithPublisher(pub))

	_, err := svc.LogFlowEvent(context.Background(), "debate_end", nil)
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if !errors.Is(err, store.AppendErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
	if len(pub.Published) != 0 {
		t.Error("failed appends must not be published")
	}
}

func TestLogService_Search(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.LogError(ctx, errors.New("CONNECTION RESET"), "muse call")
	svc.LogFlowEvent(ctx, "debate_start", map[string]any{"topic": "tides"})

	if _, err := svc.Search(ctx, "  ", domain.KindAll); !errors.Is(err, ErrKeywordRequired) {
		t.Errorf("expected ErrKeywordRequired, got %v", err)
	}

	got, err := svc.Search(ctx, "connection reset", domain.KindAll)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 || got[0].Kind() != domain.KindError {
		t.Errorf("expected the error entry, got %v", got)
	}

	none, err := svc.Search(ctx, "nothing-matches", domain.KindAll)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil result, got %v", none)
	}
}

func TestLogService_Overview(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		svc.LogError(ctx, errors.New("failure"), "ctx")
		svc.LogAPICall(ctx, "", "muse", "m", "x", "y", time.Second, nil)
	}

	ov, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if ov.Stats.TotalCalls != 7 {
		t.Errorf("expected 7 calls, got %d", ov.Stats.TotalCalls)
	}
	if len(ov.RecentLogs) != OverviewSampleSize {
		t.Errorf("expected %d recent logs, got %d", OverviewSampleSize, len(ov.RecentLogs))
	}
	if len(ov.Errors) != OverviewSampleSize {
		t.Errorf("expected %d errors, got %d", OverviewSampleSize, len(ov.Errors))
	}
	for _, e := range ov.Errors {
		if e.Kind() != domain.KindError {
			t.Errorf("unexpected kind %s in errors", e.Kind())
		}
	}
}

func TestLogService_ExportCSV(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.LogAPICall(ctx, "c1", "cognito", "gpt-4", "hello world", "hi there", 120*time.Millisecond, nil)

	res, err := svc.Export(ctx, "csv")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.Filename != "logs-2026-05-04.csv" {
		t.Errorf("unexpected filename %q", res.Filename)
	}
	if !strings.HasPrefix(res.ContentType, "text/csv") {
		t.Errorf("unexpected content type %q", res.ContentType)
	}

	records, err := csv.NewReader(strings.NewReader(string(res.Body))).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d records", len(records))
	}
	if strings.Join(records[0], ",") != "timestamp,type,event,role,model,duration,success,error" {
		t.Errorf("unexpected header %v", records[0])
	}
	row := records[1]
	if row[6] != "true" {
		t.Errorf("expected success column true, got %q", row[6])
	}
	if row[7] != "" {
		t.Errorf("expected empty error column, got %q", row[7])
	}
	if row[5] != "120" || row[3] != "cognito" || row[4] != "gpt-4" {
		t.Errorf("unexpected row %v", row)
	}
}

func TestEncodeCSV_Quoting(t *testing.T) {
	entries := []domain.Entry{
		domain.ErrorEntry{Timestamp: fixedNow, Context: "x", Message: `said "no"`},
		domain.FlowEventEntry{Timestamp: fixedNow, Event: "round_start"},
	}
	lines := strings.Split(string(EncodeCSV(entries)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	wantErr := `"2026-05-04T09:30:00Z","error","","","",,,"said ""no"""`
	if lines[1] != wantErr {
		t.Errorf("unexpected error row:\n got %s\nwant %s", lines[1], wantErr)
	}
	wantFlow := `"2026-05-04T09:30:00Z","flow","round_start","","",,,""`
	if lines[2] != wantFlow {
		t.Errorf("unexpected flow row:\n got %s\nwant %s", lines[2], wantFlow)
	}
}

func TestLogService_ExportJSON(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.LogAPICall(ctx, "c1", "cognito", "gpt-4", "a", "b", time.Second, nil)
	svc.LogFlowEvent(ctx, "debate_start", map[string]any{"topic": "<tides>"})

	res, err := svc.Export(ctx, "")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.Format != FormatJSON || res.ContentType != "application/json" {
		t.Errorf("unexpected export metadata %+v", res)
	}
	if !strings.Contains(string(res.Body), "<tides>") {
		t.Error("expected HTML characters to be left unescaped")
	}

	var doc struct {
		Date    string            `json:"date"`
		Stats   Stats             `json:"stats"`
		Count   int               `json:"count"`
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(res.Body, &doc); err != nil {
		t.Fatalf("invalid JSON export: %v", err)
	}
	if doc.Count != 2 || len(doc.Entries) != 2 {
		t.Errorf("expected 2 entries, got count=%d len=%d", doc.Count, len(doc.Entries))
	}
	if doc.Stats.TotalCalls != 1 {
		t.Errorf("expected 1 call in stats, got %d", doc.Stats.TotalCalls)
	}
}

func TestLogService_ExportUnsupportedFormat(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Export(context.Background(), "xml"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLogService_Prune(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := fixedNow
	repo := memory.NewRepository(logger, memory.WithClock(func() time.Time { return now }))
	svc := NewLogService(repo, logger, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	svc.LogFlowEvent(ctx, "old", nil)
	now = now.Add(2 * time.Hour)
	svc.LogFlowEvent(ctx, "new", nil)

	removed, err := svc.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	removed, _ = svc.Prune(ctx)
	if removed != 0 {
		t.Errorf("expected second prune to remove nothing, got %d", removed)
	}
}

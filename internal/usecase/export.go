package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/V4T54L/callwatch/internal/domain"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvColumns = []string{"timestamp", "type", "event", "role", "model", "duration", "success", "error"}

// ExportResult is a rendered export document.
type ExportResult struct {
	Format      string
	ContentType string
	Filename    string
	Body        []byte
}

type exportDocument struct {
	Date    string         `json:"date"`
	Stats   Stats          `json:"stats"`
	Count   int            `json:"count"`
	Entries []domain.Entry `json:"entries"`
}

// ParseFormat validates an export format name. The empty string selects JSON.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Export serializes every retained entry, in append order, as JSON or CSV.
func (s *LogService) Export(ctx context.Context, format string) (ExportResult, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return ExportResult{}, err
	}
	ctx, span := s.startSpan(ctx, "LogService.Export", attribute.String("callwatch.format", format))
	defer span.End()

	entries, err := s.store.Entries(ctx, domain.KindAll)
	if err != nil {
		failSpan(span, err)
		return ExportResult{}, fmt.Errorf("failed to read entries for export: %w", err)
	}

	now := s.now().UTC()
	res := ExportResult{
		Format:   format,
		Filename: ExportFilename(now, format),
	}
	switch format {
	case FormatCSV:
		res.ContentType = "text/csv; charset=utf-8"
		res.Body = EncodeCSV(entries)
	default:
		res.ContentType = "application/json"
		res.Body, err = EncodeJSON(now, entries)
		if err != nil {
			failSpan(span, err)
			return ExportResult{}, err
		}
	}
	span.SetAttributes(attribute.Int("callwatch.entries", len(entries)))
	return res, nil
}

// ExportFilename returns logs-YYYY-MM-DD.<format> for the given day.
func ExportFilename(day time.Time, format string) string {
	return "logs-" + day.UTC().Format(time.DateOnly) + "." + format
}

// EncodeJSON renders the indented export document.
func EncodeJSON(now time.Time, entries []domain.Entry) ([]byte, error) {
	doc := exportDocument{
		Date:    now.UTC().Format(time.RFC3339),
		Stats:   ComputeStats(entries),
		Count:   len(entries),
		Entries: nonNil(entries),
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeCSV renders one row per entry. String cells are always quoted with
// embedded quotes doubled; numeric and boolean cells are bare and stay empty
// when the entry has no such field.
func EncodeCSV(entries []domain.Entry) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(csvColumns, ","))
	for _, e := range entries {
		b.WriteByte('\n')
		b.WriteString(strings.Join(csvRow(e), ","))
	}
	return []byte(b.String())
}

func csvRow(e domain.Entry) []string {
	var event, role, model, duration, success, errMsg string
	switch v := e.(type) {
	case domain.APICallEntry:
		role, model, errMsg = string(v.Role), v.Model, v.ErrorMessage
		duration = strconv.FormatInt(v.DurationMs, 10)
		success = strconv.FormatBool(v.Success)
	case domain.FlowEventEntry:
		event = v.Event
	case domain.ErrorEntry:
		errMsg = v.Message
	}
	return []string{
		quote(e.Time().UTC().Format(time.RFC3339Nano)),
		quote(string(e.Kind())),
		quote(event),
		quote(role),
		quote(model),
		duration,
		success,
		quote(errMsg),
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

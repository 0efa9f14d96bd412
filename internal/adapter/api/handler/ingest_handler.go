package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/V4T54L/callwatch/internal/adapter/metrics"
	"github.com/V4T54L/callwatch/internal/domain"
)

// EntryRecorder stores entries built from remote requests.
type EntryRecorder interface {
	Record(ctx context.Context, entry domain.Entry) error
}

var errInvalidRecord = errors.New("invalid record")

type apiCallRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	CallID     string    `json:"callId"`
	Role       string    `json:"role"`
	Model      string    `json:"model"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error"`
}

type flowRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
}

type errorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Context   string    `json:"context"`
	Error     string    `json:"error"`
	Stack     string    `json:"stack"`
}

// IngestHandler accepts entries pushed by remote orchestrators on
// POST /api/logs/{kind}, where kind is calls, flows or errors.
type IngestHandler struct {
	recorder     EntryRecorder
	logger       *slog.Logger
	maxEventSize int64
	metrics      *metrics.Metrics
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(recorder EntryRecorder, logger *slog.Logger, maxEventSize int64, m *metrics.Metrics) *IngestHandler {
	return &IngestHandler{
		recorder:     recorder,
		logger:       logger.With("component", "ingest_handler"),
		maxEventSize: maxEventSize,
		metrics:      m,
	}
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	decode, ok := decoders[r.PathValue("kind")]
	if !ok {
		h.count("error_kind")
		RespondWithError(w, h.logger, http.StatusNotFound, fmt.Sprintf("unknown log kind %q", r.PathValue("kind")))
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	var entries []domain.Entry
	switch mediaType {
	case "application/json":
		entries, err = h.decodeSingle(r.Body, decode)
	case "application/x-ndjson":
		entries, err = h.decodeNDJSON(r.Body, decode)
	default:
		h.count("error_media_type")
		RespondWithError(w, h.logger, http.StatusUnsupportedMediaType, "unsupported media type: "+r.Header.Get("Content-Type"))
		return
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.count("error_size")
			RespondWithError(w, h.logger, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.count("error_parse")
		RespondWithError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	for _, entry := range entries {
		if err := h.recorder.Record(r.Context(), entry); err != nil {
			h.count("error_store")
			h.logger.Error("failed to record ingested entry", "kind", entry.Kind(), "error", err)
			RespondWithError(w, h.logger, http.StatusInternalServerError, "failed to store entry")
			return
		}
	}

	h.count("accepted")
	respondWithData(w, h.logger, http.StatusAccepted, map[string]int{"accepted": len(entries)})
}

func (h *IngestHandler) count(status string) {
	if h.metrics != nil {
		h.metrics.IngestRequests.WithLabelValues(status).Inc()
	}
}

func (h *IngestHandler) decodeSingle(body io.Reader, decode recordDecoder) ([]domain.Entry, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	h.addBytes(len(raw))

	entry, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return []domain.Entry{entry}, nil
}

// decodeNDJSON decodes every line before anything is stored, so a bad line
// rejects the whole request.
func (h *IngestHandler) decodeNDJSON(body io.Reader, decode recordDecoder) ([]domain.Entry, error) {
	var entries []domain.Entry
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), int(h.maxEventSize))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		h.addBytes(len(line))

		entry, err := decode(line)
		if err != nil {
			return nil, fmt.Errorf("failed to decode NDJSON line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty NDJSON body", errInvalidRecord)
	}
	return entries, nil
}

func (h *IngestHandler) addBytes(n int) {
	if h.metrics != nil {
		h.metrics.IngestBytesTotal.Add(float64(n))
	}
}

type recordDecoder func(raw []byte) (domain.Entry, error)

var decoders = map[string]recordDecoder{
	"calls":  decodeAPICall,
	"flows":  decodeFlowEvent,
	"errors": decodeError,
}

func unmarshalStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func decodeAPICall(raw []byte) (domain.Entry, error) {
	var rec apiCallRecord
	if err := unmarshalStrict(raw, &rec); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.Model) == "" {
		return nil, fmt.Errorf("%w: model is required", errInvalidRecord)
	}
	var callErr error
	if rec.Error != "" {
		callErr = errors.New(rec.Error)
	}
	entry := domain.NewAPICallEntry(rec.Timestamp, rec.CallID, rec.Role, rec.Model, rec.Input, rec.Output, 0, callErr)
	// Kept in milliseconds so large values do not overflow time.Duration.
	entry.DurationMs = max(rec.DurationMs, 0)
	return entry, nil
}

func decodeFlowEvent(raw []byte) (domain.Entry, error) {
	var rec flowRecord
	if err := unmarshalStrict(raw, &rec); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.Event) == "" {
		return nil, fmt.Errorf("%w: event is required", errInvalidRecord)
	}
	return domain.FlowEventEntry{Timestamp: rec.Timestamp, Event: rec.Event, Data: rec.Data}, nil
}

func decodeError(raw []byte) (domain.Entry, error) {
	var rec errorRecord
	if err := unmarshalStrict(raw, &rec); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.Error) == "" {
		return nil, fmt.Errorf("%w: error is required", errInvalidRecord)
	}
	return domain.ErrorEntry{Timestamp: rec.Timestamp, Context: rec.Context, Message: rec.Error, Stack: rec.Stack}, nil
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/V4T54L/callwatch/internal/domain"
	"github.com/V4T54L/callwatch/internal/usecase"
)

const defaultRecentCount = 10

// LogQueryService is the read side of usecase.LogService used by LogsHandler.
type LogQueryService interface {
	GetStats(ctx context.Context) (usecase.Stats, error)
	GetRecent(ctx context.Context, kind domain.Kind, count int) ([]domain.Entry, error)
	Search(ctx context.Context, keyword string, kind domain.Kind) ([]domain.Entry, error)
	Export(ctx context.Context, format string) (usecase.ExportResult, error)
	Prune(ctx context.Context) (int, error)
	Overview(ctx context.Context) (usecase.Overview, error)
}

// LogsHandler serves GET /api/logs, dispatching on the action query parameter.
type LogsHandler struct {
	svc    LogQueryService
	logger *slog.Logger
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(svc LogQueryService, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{svc: svc, logger: logger.With("component", "logs_handler")}
}

func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	kindParam := q.Get("type")
	if kindParam == "" {
		kindParam = q.Get("kind")
	}
	kind, err := domain.ParseKind(kindParam)
	if err != nil {
		h.fail(w, err)
		return
	}

	switch q.Get("action") {
	case "stats":
		stats, err := h.svc.GetStats(ctx)
		if err != nil {
			h.fail(w, err)
			return
		}
		respondWithData(w, h.logger, http.StatusOK, stats)

	case "recent":
		entries, err := h.svc.GetRecent(ctx, kind, parseCount(q.Get("count")))
		if err != nil {
			h.fail(w, err)
			return
		}
		respondWithData(w, h.logger, http.StatusOK, entries)

	case "search":
		entries, err := h.svc.Search(ctx, q.Get("keyword"), kind)
		if err != nil {
			h.fail(w, err)
			return
		}
		respondWithData(w, h.logger, http.StatusOK, entries)

	case "export":
		res, err := h.svc.Export(ctx, q.Get("format"))
		if err != nil {
			h.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", res.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
		w.WriteHeader(http.StatusOK)
		w.Write(res.Body)

	case "clean":
		removed, err := h.svc.Prune(ctx)
		if err != nil {
			h.fail(w, err)
			return
		}
		respondWithJSON(w, h.logger, http.StatusOK, successResponse{
			Success: true,
			Data:    map[string]int{"removed": removed},
			Message: "Old logs cleaned",
		})

	default:
		overview, err := h.svc.Overview(ctx)
		if err != nil {
			h.fail(w, err)
			return
		}
		respondWithData(w, h.logger, http.StatusOK, overview)
	}
}

// fail maps input errors to 400 and everything else to 500.
func (h *LogsHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrKeywordRequired),
		errors.Is(err, usecase.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrInvalidKind):
		RespondWithError(w, h.logger, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("log query failed", "error", err)
		RespondWithError(w, h.logger, http.StatusInternalServerError, err.Error())
	}
}

// parseCount returns the requested count, or the default when it is missing,
// unparsable or not positive.
func parseCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultRecentCount
	}
	return n
}

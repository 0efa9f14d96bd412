package api

import (
	"log/slog"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/V4T54L/callwatch/internal/adapter/api/handler"
	"github.com/V4T54L/callwatch/internal/adapter/api/middleware"
	"github.com/V4T54L/callwatch/internal/adapter/metrics"
	"github.com/V4T54L/callwatch/internal/domain"
	"github.com/V4T54L/callwatch/internal/usecase"
)

// RouterDeps bundles what the HTTP surface needs.
type RouterDeps struct {
	Service      *usecase.LogService
	Broker       *handler.SSEBroker
	Metrics      *metrics.Metrics
	MaxEventSize int64
	// APIKeys guards the ingest endpoints when non-nil.
	APIKeys domain.APIKeyRepository
}

// NewRouter creates and configures the main HTTP router.
func NewRouter(deps RouterDeps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	logsHandler := handler.NewLogsHandler(deps.Service, logger)
	var ingestHandler http.Handler = handler.NewIngestHandler(deps.Service, logger, deps.MaxEventSize, deps.Metrics)
	if deps.APIKeys != nil {
		ingestHandler = middleware.Auth(deps.APIKeys, logger)(ingestHandler)
	}

	// Routes
	mux.Handle("GET /api/logs", gzhttp.GzipHandler(logsHandler))
	mux.Handle("POST /api/logs/{kind}", ingestHandler)
	if deps.Broker != nil {
		mux.Handle("GET /api/logs/stream", deps.Broker)
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return middleware.Logging(logger)(mux)
}

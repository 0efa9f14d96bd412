package middleware

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/callwatch/internal/adapter/api/handler"
	"github.com/V4T54L/callwatch/internal/domain"
)

// APIKeyHeader carries the ingest API key.
const APIKeyHeader = "X-API-Key"

// Auth rejects requests whose X-API-Key header is missing or unknown to repo.
// Rejections use the same JSON envelope as the handlers.
func Auth(repo domain.APIKeyRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				logger.Warn("ingest request without API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				handler.RespondWithError(w, logger, http.StatusUnauthorized, "API key required")
				return
			}

			ok, err := repo.IsValid(r.Context(), key)
			switch {
			case err != nil:
				logger.Error("API key lookup failed", "error", err)
				handler.RespondWithError(w, logger, http.StatusInternalServerError, "failed to validate API key")
			case !ok:
				logger.Warn("ingest request with unknown API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				handler.RespondWithError(w, logger, http.StatusUnauthorized, "invalid API key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

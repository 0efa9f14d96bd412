package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/V4T54L/callwatch/internal/domain/mocks"
)

func TestAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name           string
		key            string
		repo           *mocks.MockAPIKeyRepository
		expectedStatus int
		expectedError  string
	}{
		{"Missing key", "", &mocks.MockAPIKeyRepository{}, http.StatusUnauthorized, "API key required"},
		{"Invalid key", "nope", &mocks.MockAPIKeyRepository{ValidKeys: map[string]bool{"yes": true}}, http.StatusUnauthorized, "invalid API key"},
		{"Valid key", "yes", &mocks.MockAPIKeyRepository{ValidKeys: map[string]bool{"yes": true}}, http.StatusNoContent, ""},
		{"Repository error", "yes", &mocks.MockAPIKeyRepository{Err: errors.New("backend down")}, http.StatusInternalServerError, "failed to validate API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Auth(tt.repo, logger)(next)
			req := httptest.NewRequest(http.MethodPost, "/api/logs/calls", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
			if tt.expectedError == "" {
				return
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("got Content-Type %q, want application/json", ct)
			}
			var body struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v (%s)", err, rr.Body.String())
			}
			if body.Success || body.Error != tt.expectedError {
				t.Errorf("got body %+v, want error %q", body, tt.expectedError)
			}
		})
	}
}

func TestLogging_CapturesStatusAndFlushes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("expected the wrapped writer to implement http.Flusher")
		}
		w.WriteHeader(http.StatusTeapot)
		f.Flush()
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs/stream", nil))
	if rr.Code != http.StatusTeapot {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusTeapot)
	}
	if !rr.Flushed {
		t.Error("expected the recorder to be flushed")
	}
}

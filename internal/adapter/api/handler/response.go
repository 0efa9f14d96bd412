package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type successResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithData(w http.ResponseWriter, logger *slog.Logger, code int, data any) {
	respondWithJSON(w, logger, code, successResponse{Success: true, Data: data})
}

// RespondWithError writes the {success:false,error} envelope used by every
// API response.
func RespondWithError(w http.ResponseWriter, logger *slog.Logger, code int, msg string) {
	respondWithJSON(w, logger, code, errorResponse{Success: false, Error: msg})
}

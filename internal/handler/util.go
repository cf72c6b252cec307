package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/service"
	"github.com/capitalize-ai/quorra/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps service errors to status codes. Unexpected errors
// are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, service.ErrUnknownClient):
		writeError(w, http.StatusBadRequest, "unknown client")
	default:
		log.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

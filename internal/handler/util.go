package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/service"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

// maxBodyBytes bounds request bodies; message content itself is capped lower.
const maxBodyBytes = 256 << 10

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

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps service errors to responses. Unknown errors are
// logged and reported as internal errors with the given message.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, message string) {
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	log.Error(message, zap.Error(err))
	writeError(w, http.StatusInternalServerError, message)
}

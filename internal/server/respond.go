package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/pm"
	"github.com/christopherklint97/daylog/internal/service"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an error JSON response
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if len(message) > 300 {
		message = message[:300] + "..."
	}

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondErr maps domain errors onto status codes.
func respondErr(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		validationErr *service.ValidationError
		lockErr       *pm.LockError
		modelErr      *ai.ModelError
		parseErr      *ai.ParseError
	)
	switch {
	case errors.As(err, &validationErr):
		respondJSONError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		respondJSONError(w, http.StatusUnauthorized, "unauthenticated", "Not authenticated")
	case errors.As(err, &lockErr):
		respondJSONError(w, http.StatusForbidden, "time_locked", "Hours are locked through "+lockErr.LockDate)
	case errors.As(err, &modelErr):
		logger.Warn("model request failed", "path", r.URL.Path, "kind", modelErr.Kind, "error", err)
		respondJSONError(w, http.StatusBadGateway, "model_"+string(modelErr.Kind), modelErr.Error())
	case errors.As(err, &parseErr):
		logger.Warn("model output unparsable", "path", r.URL.Path, "error", err)
		respondJSONError(w, http.StatusBadGateway, "model_parse", parseErr.Error())
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

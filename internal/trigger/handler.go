// Package trigger exposes the HTTP surface for starting sync passes.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/welldanyogia/mail-attachment-sync/internal/logger"
	"github.com/welldanyogia/mail-attachment-sync/internal/syncer"
)

// Error codes for sync trigger operations
const (
	CodePassInFlight  = "PASS_IN_FLIGHT"
	CodeInternalError = "INTERNAL_ERROR"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Status    string    `json:"status"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PassRunner runs one sync pass. Implemented by syncer.Syncer.
type PassRunner interface {
	Run(ctx context.Context) error
}

// Handler handles HTTP requests that start sync passes
type Handler struct {
	runner PassRunner
	logger *slog.Logger
}

// NewHandler creates a new trigger Handler instance
func NewHandler(runner PassRunner, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		runner: runner,
		logger: log,
	}
}

// RunPass handles POST /sync. The pass runs synchronously; the response
// is written once the pass has finished. Internal failure detail never
// reaches the response body, only the logs.
func (h *Handler) RunPass(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCorrelationID(r.Context(), h.logger)
	log.Info("sync pass triggered")

	if err := h.runner.Run(r.Context()); err != nil {
		if errors.Is(err, syncer.ErrPassInFlight) {
			log.Warn("sync pass rejected, another pass in flight")
			h.writeError(w, http.StatusConflict, CodePassInFlight, "A sync pass is already running")
			return
		}
		log.Error("sync pass failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Sync pass failed")
		return
	}

	log.Info("sync pass completed")
	h.writeSuccess(w)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := APIResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Status: "error",
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

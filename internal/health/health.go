// Package health provides health check endpoints for the sync service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger checks connectivity of a backing service. Implemented by
// recordstore.PostgresStore.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServiceStatus represents the status of a single service
type ServiceStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the structured health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
}

// Handler handles health check requests
type Handler struct {
	recordStore Pinger
	timeout     time.Duration
}

// NewHandler creates a new health check handler. The record store may
// be nil when persistence is disabled; health then reports only the
// process itself.
func NewHandler(recordStore Pinger, timeout time.Duration) *Handler {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Handler{
		recordStore: recordStore,
		timeout:     timeout,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	services := make(map[string]ServiceStatus)
	overallStatus := "healthy"

	if h.recordStore != nil {
		dbStatus := h.checkRecordStore(ctx)
		services["record_store"] = dbStatus
		if dbStatus.Status != "up" {
			overallStatus = "degraded"
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	w.Header().Set("Content-Type", "application/json")
	if overallStatus == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

// checkRecordStore pings the record store database
func (h *Handler) checkRecordStore(ctx context.Context) ServiceStatus {
	start := time.Now()
	err := h.recordStore.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ServiceStatus{
			Status:  "down",
			Latency: latency.String(),
			Error:   err.Error(),
		}
	}

	return ServiceStatus{
		Status:  "up",
		Latency: latency.String(),
	}
}

// Package health provides health check handlers for the feed refresh agent
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/glean-reader/feed-refresh-agent/utils"
	"github.com/sirupsen/logrus"
)

var startTime = time.Now()

// BackendPinger checks connectivity to the feed backend.
type BackendPinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the health check response structure
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
}

// Handler contains dependencies for health handlers
type Handler struct {
	Backend BackendPinger
	Logger  *logrus.Logger
}

// NewHandler creates a new health handler
func NewHandler(backend BackendPinger, logger *logrus.Logger) *Handler {
	return &Handler{
		Backend: backend,
		Logger:  logger,
	}
}

// HandleHealthCheck provides a health check endpoint for monitoring
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   "1.0.0",
		Services:  make(map[string]string),
		Uptime:    time.Since(startTime).String(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Backend.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Services["feed_backend"] = "unhealthy: " + err.Error()
		h.Logger.WithFields(logrus.Fields{
			"service": "feed_backend",
			"error":   err.Error(),
		}).Error("Health check failed for feed backend")
	} else {
		health.Services["feed_backend"] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// HandleLivenessCheck provides a simple liveness probe
func (h *Handler) HandleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// HandleReadinessCheck reports whether the agent can serve traffic, which
// requires the feed backend to be reachable.
func (h *Handler) HandleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	response := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if err := h.Backend.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		response["status"] = "not_ready"
		response["reason"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

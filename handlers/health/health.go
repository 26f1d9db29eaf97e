// Package health provides health check handlers for the status monitor backend
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/middleware"
	"github.com/statuswatch/status-monitor-backend/types"
	"github.com/statuswatch/status-monitor-backend/utils"
)

// MonitorStatus defines the monitor state the probes inspect
type MonitorStatus interface {
	Running() bool
	Health() []types.SourceHealth
}

// BusStatus defines the bus state the probes inspect
type BusStatus interface {
	SubscriberCount() int
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
	Monitor MonitorStatus
	Bus     BusStatus
	Logger  *logrus.Logger
}

// NewHandler creates a new health handler
func NewHandler(mon MonitorStatus, bus BusStatus, logger *logrus.Logger) *Handler {
	return &Handler{
		Monitor: mon,
		Bus:     bus,
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

	if h.Monitor.Running() {
		sources := h.Monitor.Health()
		failing := 0
		for _, s := range sources {
			if s.State == types.StateFailing {
				failing++
			}
		}
		health.Services["monitor"] = fmt.Sprintf("running (%d sources, %d failing)", len(sources), failing)

		if len(sources) > 0 && failing == len(sources) {
			health.Status = "degraded"
			h.Logger.WithFields(logrus.Fields{
				"sources": len(sources),
				"failing": failing,
			}).Warn("Health check: every monitored source is failing")
		}
	} else {
		health.Services["monitor"] = "stopped"
	}

	health.Services["bus"] = fmt.Sprintf("healthy (%d subscribers)", h.Bus.SubscriberCount())

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

// HandleReadinessCheck provides a readiness probe
func (h *Handler) HandleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
	}

	// The event pipeline must be wired before traffic is routed here.
	if err := h.checkPipeline(); err != nil {
		middleware.RespondServiceUnavailable(w, err, requestID)
		return
	}

	response := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().Format(time.RFC3339),
		"services": map[string]string{
			"monitor": "ready",
			"bus":     "ready",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// checkPipeline verifies the handler's dependencies are wired
func (h *Handler) checkPipeline() error {
	if h.Monitor == nil {
		return fmt.Errorf("monitor is not initialized")
	}
	if h.Bus == nil {
		return fmt.Errorf("event bus is not initialized")
	}
	return nil
}

var startTime = time.Now()

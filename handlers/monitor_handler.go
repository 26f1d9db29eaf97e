/*
Package handlers contains the core HTTP handlers for controlling the status
monitor and reading its event stream.

Key Functions:
  - HandleStartMonitor: Starts (or restarts) a monitoring run over a set of sources.
  - HandleStopMonitor: Stops the current run.
  - HandleGetStatus: Reports run state, per-source health, and recent events.
  - HandleGetEvents: Returns a slice of the recent-event window.
  - HandleGetSources: Provides a list of well-known status feeds.

Usage:

	Import the package and register handlers in your router:
	  router.HandleFunc("/api/start", handler.HandleStartMonitor).Methods("POST")
	  router.HandleFunc("/api/status", handler.HandleGetStatus).Methods("GET")
*/
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/middleware"
	"github.com/statuswatch/status-monitor-backend/monitor"
	"github.com/statuswatch/status-monitor-backend/types"
	"github.com/statuswatch/status-monitor-backend/utils"
)

// StartRequest is the body of a start request. An empty body (or empty
// sources) starts the configured default sources.
type StartRequest struct {
	Sources []monitor.SourceSpec `json:"sources"`
}

// StartResponse confirms a started run
type StartResponse struct {
	Status  string `json:"status"`
	Sources int    `json:"sources"`
}

// StopResponse confirms a stopped run
type StopResponse struct {
	Status string `json:"status"`
}

// StatusResponse reports the running flag, per-source health, and the most
// recent events (newest first)
type StatusResponse struct {
	Running bool                 `json:"running"`
	Sources []types.SourceHealth `json:"sources"`
	Events  []types.ChangeEvent  `json:"events"`
}

// EventsResponse wraps a slice of the recent-event window
type EventsResponse struct {
	Events []types.ChangeEvent `json:"events"`
	Count  int                 `json:"count"`
	Total  uint64              `json:"total"`
}

// SourcePreset represents a well-known status feed
type SourcePreset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// @Summary Start the status monitor
// @Description Starts a monitoring run over the supplied sources. An empty body starts the configured default sources. A running monitor is restarted with the new source set and the event window is cleared.
// @Tags Monitor Operations
// @Accept json
// @Produce json
// @Param request body StartRequest false "Sources to monitor"
// @Success 200 {object} StartResponse "Monitor started"
// @Failure 400 {object} middleware.APIError "Invalid source configuration"
// @Failure 500 {object} middleware.APIError "Internal server error"
// @Router /api/start [post]
func (h *Handler) HandleStartMonitor(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	var req StartRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			middleware.RespondBadRequest(w, fmt.Errorf("invalid request body: %v", err), requestID)
			return
		}
	}

	specs := req.Sources
	if len(specs) == 0 {
		specs = h.Options.DefaultSpecs
	}

	if err := h.Monitor.Start(specs); err != nil {
		var cfgErr *monitor.ConfigError
		if errors.As(err, &cfgErr) {
			middleware.RespondValidationError(w, err, requestID)
			return
		}
		middleware.RespondInternalError(w, err, requestID)
		return
	}

	sources := h.Monitor.Sources()
	h.Logger.WithFields(logrus.Fields{
		"sources":    len(sources),
		"request_id": requestID,
	}).Info("Monitor started via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StartResponse{Status: "started", Sources: len(sources)})
}

// @Summary Stop the status monitor
// @Description Stops the current monitoring run. Stopping an already stopped monitor succeeds and keeps the recent-event window readable.
// @Tags Monitor Operations
// @Produce json
// @Success 200 {object} StopResponse "Monitor stopped"
// @Router /api/stop [post]
func (h *Handler) HandleStopMonitor(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	h.Monitor.Stop()

	h.Logger.WithField("request_id", requestID).Info("Monitor stopped via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StopResponse{Status: "stopped"})
}

// @Summary Get monitor status
// @Description Reports whether a run is active, the health of every monitored source, and the most recent change events (newest first).
// @Tags Monitor Operations
// @Produce json
// @Success 200 {object} StatusResponse "Current monitor status"
// @Router /api/status [get]
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	status := StatusResponse{
		Running: h.Monitor.Running(),
		Sources: h.Monitor.Health(),
		Events:  h.EventLog.Recent(h.Options.StatusEventsLimit),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// @Summary Get recent change events
// @Description Returns the most recent change events, newest first. The window is bounded by the event log capacity; total counts every event published since the run started.
// @Tags Monitor Operations
// @Produce json
// @Param limit query int false "Number of events to return (default: 50)"
// @Success 200 {object} EventsResponse "Recent events"
// @Failure 400 {object} middleware.APIError "Bad request"
// @Router /api/events [get]
func (h *Handler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	limit := h.Options.StatusEventsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			middleware.RespondBadRequest(w, fmt.Errorf("invalid limit parameter: %v", err), requestID)
			return
		}
		if parsed <= 0 {
			middleware.RespondBadRequest(w, fmt.Errorf("limit must be positive, got %d", parsed), requestID)
			return
		}
		limit = parsed
	}

	events := h.EventLog.Recent(limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(EventsResponse{
		Events: events,
		Count:  len(events),
		Total:  h.EventLog.Total(),
	})
}

// @Summary Get well-known status feeds
// @Description Provides a list of predefined status page feeds that can be passed to the start endpoint.
// @Tags Monitor Operations
// @Produce json
// @Success 200 {array} SourcePreset "Predefined status feeds"
// @Router /api/sources [get]
func (h *Handler) HandleGetSources(w http.ResponseWriter, r *http.Request) {
	presets := []SourcePreset{
		{Name: "OpenAI", URL: "https://status.openai.com/history.atom", Kind: "feed"},
		{Name: "GitHub", URL: "https://www.githubstatus.com/history.atom", Kind: "feed"},
		{Name: "Cloudflare", URL: "https://www.cloudflarestatus.com/history.atom", Kind: "feed"},
		{Name: "Discord", URL: "https://discordstatus.com/history.atom", Kind: "feed"},
		{Name: "npm", URL: "https://status.npmjs.org/history.atom", Kind: "feed"},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(presets)
}

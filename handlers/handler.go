/*
Package handlers provides HTTP handlers with dependency injection support.

This package defines the Handler struct that contains all service dependencies,
eliminating global variables and enabling better testability and separation of concerns.
*/
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/monitor"
	"github.com/statuswatch/status-monitor-backend/types"
)

// MonitorInterface defines the run lifecycle operations handlers need
type MonitorInterface interface {
	Start(specs []monitor.SourceSpec) error
	Stop()
	Running() bool
	Health() []types.SourceHealth
	Sources() []types.Source
}

// EventLogInterface defines read access to the recent-event window
type EventLogInterface interface {
	Recent(n int) []types.ChangeEvent
	Len() int
	Total() uint64
}

// BusInterface defines the bus introspection operations handlers need
type BusInterface interface {
	SubscriberCount() int
	Delivered() uint64
	DroppedTotal() uint64
}

// Options tunes handler behavior
type Options struct {
	// DefaultSpecs are started when a start request carries no sources.
	DefaultSpecs []monitor.SourceSpec
	// StatusEventsLimit caps the events embedded in a status response.
	StatusEventsLimit int
}

// Handler contains all service dependencies for HTTP handlers
type Handler struct {
	Monitor  MonitorInterface
	EventLog EventLogInterface
	Bus      BusInterface
	Logger   *logrus.Logger
	Options  Options
}

// NewHandler creates a new handler instance with injected dependencies
func NewHandler(mon MonitorInterface, eventLog EventLogInterface, eventBus BusInterface, opts Options, logger *logrus.Logger) *Handler {
	if opts.StatusEventsLimit <= 0 {
		opts.StatusEventsLimit = 50
	}
	return &Handler{
		Monitor:  mon,
		EventLog: eventLog,
		Bus:      eventBus,
		Logger:   logger,
		Options:  opts,
	}
}

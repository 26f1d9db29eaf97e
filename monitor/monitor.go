// Package monitor owns the lifecycle of monitoring runs: validating source
// definitions, starting and stopping the poller pool, and reporting run
// state to the API layer.
package monitor

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/bus"
	"github.com/statuswatch/status-monitor-backend/detector"
	"github.com/statuswatch/status-monitor-backend/eventlog"
	"github.com/statuswatch/status-monitor-backend/fetcher"
	"github.com/statuswatch/status-monitor-backend/normalize"
	"github.com/statuswatch/status-monitor-backend/poller"
	"github.com/statuswatch/status-monitor-backend/types"
)

// Options configures how the manager builds each run.
type Options struct {
	Poller   poller.Options
	Defaults Defaults
}

// Manager runs at most one monitoring run at a time. Starting a new run
// stops the previous one and clears the event log; the source set is
// immutable for the duration of a run.
type Manager struct {
	opts   Options
	det    *detector.Detector
	fetch  *fetcher.Fetcher
	norm   *normalize.Normalizer
	bus    *bus.Bus
	log    *eventlog.Log
	logger *logrus.Logger

	mutex   sync.Mutex
	pool    *poller.Pool
	running bool
}

// NewManager creates a manager around shared pipeline components. The bus
// and event log are long-lived; pools come and go per run.
func NewManager(opts Options, det *detector.Detector, fetch *fetcher.Fetcher, norm *normalize.Normalizer, eventBus *bus.Bus, log *eventlog.Log, logger *logrus.Logger) *Manager {
	return &Manager{
		opts:   opts,
		det:    det,
		fetch:  fetch,
		norm:   norm,
		bus:    eventBus,
		log:    log,
		logger: logger,
	}
}

// Start validates the specs and begins a new run. Validation happens before
// the previous run is touched, so a bad request leaves the current run
// untouched. Returns a *ConfigError when the specs are invalid.
func (m *Manager) Start(specs []SourceSpec) error {
	sources, err := BuildSources(specs, m.opts.Defaults)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.pool != nil {
		m.pool.Stop()
		m.pool = nil
	}
	m.log.Clear()

	pool := poller.NewPool(sources, m.opts.Poller, m.det, m.fetch, m.norm, m.bus, m.logger)
	pool.Start(context.Background())
	m.pool = pool
	m.running = true

	m.logger.WithFields(logrus.Fields{
		"sources": len(sources),
	}).Info("Monitor run started")
	return nil
}

// Stop ends the current run, waiting for all pollers to exit. Stopping a
// stopped manager is a no-op.
func (m *Manager) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.pool == nil {
		m.running = false
		return
	}
	m.pool.Stop()
	m.pool = nil
	m.running = false

	m.logger.Info("Monitor run stopped")
}

// Running reports whether a run is active
func (m *Manager) Running() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.running
}

// Health returns the per-source health snapshot of the current run, or an
// empty slice when no run is active
func (m *Manager) Health() []types.SourceHealth {
	m.mutex.Lock()
	pool := m.pool
	m.mutex.Unlock()

	if pool == nil {
		return []types.SourceHealth{}
	}
	return pool.Health()
}

// Sources returns the current run's source set, or an empty slice when no
// run is active
func (m *Manager) Sources() []types.Source {
	m.mutex.Lock()
	pool := m.pool
	m.mutex.Unlock()

	if pool == nil {
		return []types.Source{}
	}
	return pool.Sources()
}

// FailingSources counts sources currently in the failing state. Alert rule
// conditions poll this.
func (m *Manager) FailingSources() int {
	failing := 0
	for _, h := range m.Health() {
		if h.State == types.StateFailing {
			failing++
		}
	}
	return failing
}

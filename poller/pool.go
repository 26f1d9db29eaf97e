package poller

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/bus"
	"github.com/statuswatch/status-monitor-backend/detector"
	"github.com/statuswatch/status-monitor-backend/fetcher"
	"github.com/statuswatch/status-monitor-backend/monitoring"
	"github.com/statuswatch/status-monitor-backend/normalize"
	"github.com/statuswatch/status-monitor-backend/types"
)

// Pool owns one poller goroutine per source for a single monitoring run.
// A pool is started once and stopped once; changing the source set means
// building a new pool.
type Pool struct {
	pollers []*Poller
	logger  *logrus.Logger

	mutex   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewPool builds the pollers for sources without starting them
func NewPool(sources []types.Source, opts Options, det *detector.Detector, fetch *fetcher.Fetcher, norm *normalize.Normalizer, eventBus *bus.Bus, logger *logrus.Logger) *Pool {
	pool := &Pool{logger: logger}
	for _, source := range sources {
		pool.pollers = append(pool.pollers, newPoller(source, opts, det, fetch, norm, eventBus, logger))
	}
	return pool
}

// Start launches every poller. It is a no-op on a pool that was already
// started.
func (pl *Pool) Start(ctx context.Context) {
	pl.mutex.Lock()
	defer pl.mutex.Unlock()

	if pl.started {
		return
	}
	pl.started = true

	ctx, pl.cancel = context.WithCancel(ctx)
	for _, p := range pl.pollers {
		pl.wg.Add(1)
		go p.run(ctx, &pl.wg)
	}
	monitoring.UpdateActivePollers(len(pl.pollers))

	pl.logger.WithField("sources", len(pl.pollers)).Info("Poller pool started")
}

// Stop cancels all pollers and waits for them to exit
func (pl *Pool) Stop() {
	pl.mutex.Lock()
	defer pl.mutex.Unlock()

	if !pl.started || pl.cancel == nil {
		return
	}
	pl.cancel()
	pl.wg.Wait()
	pl.cancel = nil
	monitoring.UpdateActivePollers(0)

	pl.logger.WithField("sources", len(pl.pollers)).Info("Poller pool stopped")
}

// Health reports every source's current poll state, sorted by source name
// for stable output
func (pl *Pool) Health() []types.SourceHealth {
	out := make([]types.SourceHealth, 0, len(pl.pollers))
	for _, p := range pl.pollers {
		out = append(out, p.health())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sources returns the immutable source set this pool was built for
func (pl *Pool) Sources() []types.Source {
	out := make([]types.Source, 0, len(pl.pollers))
	for _, p := range pl.pollers {
		out = append(out, p.source)
	}
	return out
}

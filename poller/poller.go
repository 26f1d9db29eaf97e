/*
Package poller schedules and runs the per-source polling loops.

Every monitored source gets exactly one goroutine that owns the source's
detection state; there is no sharing and no locking on the poll path. A
source that hangs or fails only ever delays itself: the fetch honors the
run context and a bounded HTTP timeout, and detected events leave through
the non-blocking bus.

Scheduling follows a small state machine: idle between polls, fetching
while a request is in flight, backing-off after transient errors with the
delay doubling up to a cap, and failing once the consecutive-failure
threshold is crossed (the loop keeps retrying at the capped interval until
the source answers again).
*/
package poller

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/bus"
	"github.com/statuswatch/status-monitor-backend/detector"
	"github.com/statuswatch/status-monitor-backend/fetcher"
	"github.com/statuswatch/status-monitor-backend/monitoring"
	"github.com/statuswatch/status-monitor-backend/normalize"
	"github.com/statuswatch/status-monitor-backend/types"
)

// Options configures poll scheduling and backoff
type Options struct {
	// BackoffFactor multiplies the retry delay after each consecutive
	// failure. The first retry waits the source's own interval.
	BackoffFactor float64
	// BackoffMax caps the retry delay.
	BackoffMax time.Duration
	// BackoffJitter spreads each retry delay by ±fraction so recovering
	// sources do not thunder in lockstep.
	BackoffJitter float64
}

// Poller runs the polling loop for a single source
type Poller struct {
	source types.Source
	opts   Options

	det   *detector.Detector
	state *detector.SourceState
	fetch *fetcher.Fetcher
	norm  *normalize.Normalizer
	bus   *bus.Bus

	logger *logrus.Logger

	// Snapshot fields read by Health() from other goroutines.
	mutex      sync.RWMutex
	pollState  types.PollState
	lastFetch  time.Time
	lastChange time.Time
	failures   int
}

func newPoller(source types.Source, opts Options, det *detector.Detector, fetch *fetcher.Fetcher, norm *normalize.Normalizer, eventBus *bus.Bus, logger *logrus.Logger) *Poller {
	return &Poller{
		source:    source,
		opts:      opts,
		det:       det,
		state:     det.NewState(source),
		fetch:     fetch,
		norm:      norm,
		bus:       eventBus,
		logger:    logger,
		pollState: types.StateIdle,
	}
}

// run is the poll loop. It exits only when ctx is canceled.
func (p *Poller) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	p.logger.WithFields(logrus.Fields{
		"source":   p.source.Name,
		"url":      p.source.URL,
		"interval": p.source.Interval.String(),
	}).Info("Poller started")

	// First poll fires immediately; the timer drives every poll after it.
	timer := time.NewTimer(0)
	defer timer.Stop()

	var backoff time.Duration

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("source", p.source.Name).Info("Poller stopped")
			return
		case <-timer.C:
		}

		p.setPollState(types.StateFetching)
		started := time.Now()
		events, err := p.pollOnce(ctx)
		elapsed := time.Since(started).Seconds()

		if ctx.Err() != nil {
			p.logger.WithField("source", p.source.Name).Info("Poller stopped")
			return
		}

		if err != nil {
			if failing := p.det.RecordFailure(p.state, err); failing != nil {
				p.bus.Publish(*failing)
			}
			backoff = p.nextBackoff(backoff)
			delay := p.jittered(backoff)

			if p.state.Failing {
				p.setPollState(types.StateFailing)
			} else {
				p.setPollState(types.StateBackingOff)
			}
			p.syncSnapshot()
			monitoring.RecordSourcePoll(p.source.Name, "error", elapsed)

			p.logger.WithFields(logrus.Fields{
				"source":   p.source.Name,
				"failures": p.state.ConsecutiveFailures,
				"retry_in": delay.String(),
				"error":    err.Error(),
			}).Warn("Poll failed")

			timer.Reset(delay)
			continue
		}

		for _, event := range events {
			p.bus.Publish(event)
		}
		backoff = 0
		p.setPollState(types.StateIdle)
		p.syncSnapshot()
		monitoring.RecordSourcePoll(p.source.Name, "success", elapsed)

		timer.Reset(p.source.Interval)
	}
}

// pollOnce performs one fetch-normalize-detect cycle
func (p *Poller) pollOnce(ctx context.Context) ([]types.ChangeEvent, error) {
	ctx, span := monitoring.CreateSpan(ctx, "poll "+p.source.Name)
	defer span.End()
	monitoring.SetSpanAttributes(span, map[string]interface{}{
		"source.name": p.source.Name,
		"source.url":  p.source.URL,
		"source.kind": string(p.source.Kind),
	})

	result, err := p.fetch.Fetch(ctx, p.source, p.state.Conditional())
	if err != nil {
		monitoring.SetSpanError(span, err)
		return nil, err
	}

	var norm *normalize.Result
	if result.NotModified {
		norm = &normalize.Result{}
	} else {
		norm = p.norm.Normalize(p.source, result.Body)
	}

	events := p.det.Observe(p.state, result, norm)
	if len(events) > 0 {
		monitoring.AddSpanEvent(span, "changes detected", map[string]interface{}{
			"count": len(events),
		})
	}
	return events, nil
}

// nextBackoff advances the retry delay: the source interval first, then
// doubling (by BackoffFactor) up to BackoffMax. A failing source retries
// at the cap.
func (p *Poller) nextBackoff(current time.Duration) time.Duration {
	if p.state.Failing {
		return p.opts.BackoffMax
	}
	if current == 0 {
		current = p.source.Interval
	} else {
		current = time.Duration(float64(current) * p.opts.BackoffFactor)
	}
	if current > p.opts.BackoffMax {
		current = p.opts.BackoffMax
	}
	return current
}

// jittered spreads d by ±BackoffJitter
func (p *Poller) jittered(d time.Duration) time.Duration {
	if p.opts.BackoffJitter <= 0 {
		return d
	}
	spread := p.opts.BackoffJitter * float64(d)
	out := time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
	if out < time.Millisecond {
		out = time.Millisecond
	}
	return out
}

func (p *Poller) setPollState(state types.PollState) {
	p.mutex.Lock()
	p.pollState = state
	p.mutex.Unlock()
	monitoring.UpdateSourceState(p.source.Name, string(state))
}

// syncSnapshot copies the loop-owned detector state into the fields Health
// reads
func (p *Poller) syncSnapshot() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.lastFetch = p.state.LastFetch
	p.lastChange = p.state.LastChange
	p.failures = p.state.ConsecutiveFailures
	monitoring.UpdateConsecutiveFailures(p.source.Name, p.state.ConsecutiveFailures)
}

// health returns a point-in-time view of this poller
func (p *Poller) health() types.SourceHealth {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	h := types.SourceHealth{
		Name:                p.source.Name,
		URL:                 p.source.URL,
		Kind:                p.source.Kind,
		State:               p.pollState,
		IntervalSeconds:     int(p.source.Interval / time.Second),
		ConsecutiveFailures: p.failures,
	}
	if !p.lastFetch.IsZero() {
		t := p.lastFetch
		h.LastFetch = &t
	}
	if !p.lastChange.IsZero() {
		t := p.lastChange
		h.LastChange = &t
	}
	return h
}

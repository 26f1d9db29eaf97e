/*
Package detector decides whether a fetched source changed and what events
that change produces.

The detector is a pure pipeline stage: all per-source bookkeeping lives in a
SourceState owned by exactly one poller goroutine, so none of the methods
here take locks. Two detection modes exist:

  - identity tracking: parsed feed entries are matched against a bounded
    window of recently seen entry ids; unseen ids become new-entry events,
    emitted oldest-first.
  - fingerprinting: when a body cannot be parsed as a feed (or the source is
    generic-http), a sha256 fingerprint of the raw bytes is compared against
    the previous one; a difference becomes a single content-changed event.

Sources that fail repeatedly produce exactly one source-failing event when
the consecutive-failure threshold is crossed, and exactly one
source-recovered event on the next successful exchange.
*/
package detector

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/fetcher"
	"github.com/statuswatch/status-monitor-backend/normalize"
	"github.com/statuswatch/status-monitor-backend/types"
)

// Options configures detection behavior
type Options struct {
	// SeenWindow bounds how many entry ids are remembered per source.
	// An id evicted from the window will be re-announced if it reappears;
	// that trade keeps memory bounded for long-lived sources.
	SeenWindow int
	// FailureThreshold is the number of consecutive failed polls after
	// which a source is declared failing.
	FailureThreshold int
}

// Detector applies change detection rules to per-source state
type Detector struct {
	opts   Options
	logger *logrus.Logger
}

// New creates a Detector
func New(opts Options, logger *logrus.Logger) *Detector {
	return &Detector{opts: opts, logger: logger}
}

// SourceState is the mutable bookkeeping for one monitored source. It is
// owned by the source's poller goroutine and must not be shared.
type SourceState struct {
	Source              types.Source
	ETag                string
	LastModified        string
	Fingerprint         string
	LastFetch           time.Time
	LastChange          time.Time
	ConsecutiveFailures int
	Failing             bool
	FirstRun            bool

	seen *seenWindow
}

// NewState creates the initial state for a source
func (d *Detector) NewState(source types.Source) *SourceState {
	return &SourceState{
		Source:   source,
		FirstRun: true,
		seen:     newSeenWindow(d.opts.SeenWindow),
	}
}

// Conditional returns the cache validators to send on the next fetch
func (s *SourceState) Conditional() fetcher.Conditional {
	return fetcher.Conditional{ETag: s.ETag, LastModified: s.LastModified}
}

// Observe folds one successful fetch into the state and returns the events
// it produces. When the source was failing, the source-recovered event is
// emitted first so subscribers see the recovery before any content change.
func (d *Detector) Observe(state *SourceState, fetch *fetcher.Result, norm *normalize.Result) []types.ChangeEvent {
	now := fetch.FetchedAt
	var events []types.ChangeEvent

	if state.Failing {
		events = append(events, types.ChangeEvent{
			Source:     state.Source.Name,
			Kind:       types.EventSourceRecovered,
			DetectedAt: now,
			Detail:     fmt.Sprintf("source recovered after %d consecutive failures", state.ConsecutiveFailures),
		})
		state.Failing = false
		d.logger.WithField("source", state.Source.Name).Info("Source recovered")
	}
	state.ConsecutiveFailures = 0
	state.ETag = fetch.ETag
	state.LastModified = fetch.LastModified
	state.LastFetch = now

	if fetch.NotModified {
		// The server vouched nothing changed; skip comparison entirely.
		return events
	}

	if norm.Fallback {
		return append(events, d.observeFingerprint(state, norm, now)...)
	}
	return append(events, d.observeEntries(state, norm.Entries, now)...)
}

func (d *Detector) observeFingerprint(state *SourceState, norm *normalize.Result, now time.Time) []types.ChangeEvent {
	fp := Fingerprint(norm.Raw)
	defer func() { state.FirstRun = false }()

	if state.FirstRun || state.Fingerprint == "" {
		// First observation establishes the baseline without an event.
		state.Fingerprint = fp
		return nil
	}
	if fp == state.Fingerprint {
		return nil
	}

	state.Fingerprint = fp
	state.LastChange = now
	d.logger.WithFields(logrus.Fields{
		"source": state.Source.Name,
		"reason": norm.Reason,
	}).Info("Source content changed")

	return []types.ChangeEvent{{
		Source:      state.Source.Name,
		Kind:        types.EventContentChanged,
		DetectedAt:  now,
		Fingerprint: fp,
		Detail:      "content fingerprint changed",
	}}
}

func (d *Detector) observeEntries(state *SourceState, entries []types.Entry, now time.Time) []types.ChangeEvent {
	state.FirstRun = false
	// Identity tracking owns this source again; a stale fingerprint from an
	// earlier unparseable response must not suppress a later fallback.
	state.Fingerprint = ""

	fresh := collectUnseen(state, entries)
	if len(fresh) == 0 {
		return nil
	}

	orderOldestFirst(fresh)

	events := make([]types.ChangeEvent, 0, len(fresh))
	for _, entry := range fresh {
		state.seen.Add(entry.ID)
		events = append(events, types.NewEntryEvent(entry, now))
	}
	state.LastChange = now

	d.logger.WithFields(logrus.Fields{
		"source":      state.Source.Name,
		"new_entries": len(events),
	}).Info("New entries detected")

	return events
}

// collectUnseen returns entries whose ids are not in the seen window,
// deduplicated within the document, preserving document order.
func collectUnseen(state *SourceState, entries []types.Entry) []types.Entry {
	var fresh []types.Entry
	inDoc := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := inDoc[entry.ID]; dup {
			continue
		}
		inDoc[entry.ID] = struct{}{}
		if !state.seen.Contains(entry.ID) {
			fresh = append(fresh, entry)
		}
	}
	return fresh
}

// orderOldestFirst arranges new entries so subscribers receive them in
// causal order. With full timestamps the sort is authoritative; without
// them the document order is assumed newest-first (the status-page
// convention) and reversed.
func orderOldestFirst(entries []types.Entry) {
	timestamped := true
	for _, e := range entries {
		if e.Published.IsZero() {
			timestamped = false
			break
		}
	}
	if timestamped {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Published.Before(entries[j].Published)
		})
		return
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

// RecordFailure folds one failed poll into the state. It returns a
// source-failing event exactly once: when the consecutive-failure count
// crosses the threshold. Further failures while failing return nil.
func (d *Detector) RecordFailure(state *SourceState, cause error) *types.ChangeEvent {
	state.ConsecutiveFailures++

	if state.Failing || state.ConsecutiveFailures < d.opts.FailureThreshold {
		return nil
	}

	state.Failing = true
	detail := fmt.Sprintf("%d consecutive failures", state.ConsecutiveFailures)
	if cause != nil {
		detail = fmt.Sprintf("%s, last error: %v", detail, cause)
	}
	d.logger.WithFields(logrus.Fields{
		"source":   state.Source.Name,
		"failures": state.ConsecutiveFailures,
	}).Warn("Source declared failing")

	return &types.ChangeEvent{
		Source:     state.Source.Name,
		Kind:       types.EventSourceFailing,
		DetectedAt: time.Now().UTC(),
		Detail:     detail,
	}
}

// Fingerprint returns the content fingerprint used for fallback comparison
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%x", sum)
}

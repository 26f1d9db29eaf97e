// Package types contains shared types used across the status monitor backend
package types

import (
	"time"
)

// SourceKind selects how a source's responses are interpreted
type SourceKind string

const (
	// KindFeed treats the response as an Atom/RSS document
	KindFeed SourceKind = "feed"
	// KindGenericHTTP skips feed parsing and watches the raw body fingerprint
	KindGenericHTTP SourceKind = "generic-http"
)

// Source is one monitored endpoint. Sources are immutable for the lifetime
// of a monitoring run; changing the set means starting a new run.
type Source struct {
	Name     string        `json:"name"`
	URL      string        `json:"url"`
	Kind     SourceKind    `json:"kind,omitempty"`
	Interval time.Duration `json:"-"`
}

// Entry is a normalized feed entry, independent of the source format
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Link      string    `json:"link,omitempty"`
	Product   string    `json:"product,omitempty"`
	Published time.Time `json:"published"`
	Source    string    `json:"source"`
}

// EventKind classifies a detected change
type EventKind string

const (
	EventNewEntry        EventKind = "new-entry"
	EventContentChanged  EventKind = "content-changed"
	EventSourceRecovered EventKind = "source-recovered"
	EventSourceFailing   EventKind = "source-failing"
)

// ChangeEvent is the unit of delivery: one detected change on one source.
// Entry fields are set for new-entry events, Fingerprint for content-changed,
// Detail carries a short human-readable summary for the remaining kinds.
type ChangeEvent struct {
	Source      string     `json:"source"`
	Kind        EventKind  `json:"kind"`
	DetectedAt  time.Time  `json:"timestamp"`
	EntryID     string     `json:"entry_id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Detail      string     `json:"detail,omitempty"`
	Link        string     `json:"link,omitempty"`
	Product     string     `json:"product,omitempty"`
	Published   *time.Time `json:"published,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
}

// PollState is the scheduling state of one source's poll loop
type PollState string

const (
	StateIdle       PollState = "idle"
	StateFetching   PollState = "fetching"
	StateBackingOff PollState = "backing-off"
	StateFailing    PollState = "failing"
)

// SourceHealth is a point-in-time snapshot of one source's poll loop,
// served by the status endpoint so operators can tell "no news" from
// "broken monitor".
type SourceHealth struct {
	Name                string     `json:"name"`
	URL                 string     `json:"url"`
	Kind                SourceKind `json:"kind"`
	State               PollState  `json:"state"`
	IntervalSeconds     int        `json:"interval_seconds"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFetch           *time.Time `json:"last_fetch,omitempty"`
	LastChange          *time.Time `json:"last_change,omitempty"`
}

// NewEntryEvent builds the delivery record for a previously-unseen entry
func NewEntryEvent(e Entry, detectedAt time.Time) ChangeEvent {
	ev := ChangeEvent{
		Source:     e.Source,
		Kind:       EventNewEntry,
		DetectedAt: detectedAt,
		EntryID:    e.ID,
		Title:      e.Title,
		Detail:     e.Summary,
		Link:       e.Link,
		Product:    e.Product,
	}
	if !e.Published.IsZero() {
		published := e.Published
		ev.Published = &published
	}
	return ev
}

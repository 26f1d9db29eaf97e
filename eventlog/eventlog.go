/*
Package eventlog keeps the bounded in-memory window of recent change events.

This is the only event history the service holds: it feeds the status API,
and it seeds new WebSocket subscribers with a replay of what they missed.
Anything older than the window is gone, which is the documented trade for
running without persistent storage.
*/
package eventlog

import (
	"sync"

	"github.com/statuswatch/status-monitor-backend/types"
)

// Log is a fixed-capacity, append-only window of change events. Appends
// evict the oldest event once the capacity is reached. Safe for concurrent
// use.
type Log struct {
	mutex    sync.RWMutex
	capacity int
	events   []types.ChangeEvent
	total    uint64
}

// New creates a Log holding at most capacity events
func New(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{
		capacity: capacity,
		events:   make([]types.ChangeEvent, 0, capacity),
	}
}

// Append adds an event to the window, evicting the oldest when full
func (l *Log) Append(event types.ChangeEvent) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if len(l.events) == l.capacity {
		copy(l.events, l.events[1:])
		l.events = l.events[:l.capacity-1]
	}
	l.events = append(l.events, event)
	l.total++
}

// Recent returns up to n events, newest first. This is the display order
// used by the status API.
func (l *Log) Recent(n int) []types.ChangeEvent {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if n > len(l.events) {
		n = len(l.events)
	}
	out := make([]types.ChangeEvent, 0, n)
	for i := len(l.events) - 1; i >= len(l.events)-n; i-- {
		out = append(out, l.events[i])
	}
	return out
}

// Tail returns up to n of the most recent events in chronological order,
// oldest first. This is the replay order for new subscribers, so appending
// live events continues the timeline.
func (l *Log) Tail(n int) []types.ChangeEvent {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if n > len(l.events) {
		n = len(l.events)
	}
	out := make([]types.ChangeEvent, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// Len returns the number of events currently held
func (l *Log) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.events)
}

// Total returns the number of events appended since the last Clear,
// including ones already evicted from the window
func (l *Log) Total() uint64 {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.total
}

// Clear drops all events and resets the total. A new monitoring run starts
// with an empty window and a zero count.
func (l *Log) Clear() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.events = l.events[:0]
	l.total = 0
}

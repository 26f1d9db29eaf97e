/*
Package bus fans detected change events out to live subscribers.

Publishing never blocks: every subscription owns a bounded queue, and when a
slow consumer fills it up the oldest queued event for that consumer alone is
dropped. One stalled dashboard can therefore never stall the pollers or a
healthy dashboard next to it.

Ordering guarantee: events published for one source are observed in publish
order by every subscription, because each source has a single publishing
goroutine and queues are FIFO. No ordering is promised across sources.
*/
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/eventlog"
	"github.com/statuswatch/status-monitor-backend/monitoring"
	"github.com/statuswatch/status-monitor-backend/types"
)

// Subscription is one consumer's view of the event stream. Events arrive on
// Events(); Backlog() holds the replay snapshot taken at subscribe time.
type Subscription struct {
	ID      string
	backlog []types.ChangeEvent
	ch      chan types.ChangeEvent
	dropped atomic.Uint64
}

// Events returns the live event channel. It is closed on unsubscribe.
func (s *Subscription) Events() <-chan types.ChangeEvent {
	return s.ch
}

// Backlog returns the replayed events snapshot, oldest first. The snapshot
// and the live channel are gap-free and duplicate-free with respect to each
// other.
func (s *Subscription) Backlog() []types.ChangeEvent {
	return s.backlog
}

// Dropped returns how many events were discarded for this subscription
// because its queue was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Options configures the event bus
type Options struct {
	// QueueDepth bounds each subscription's live queue.
	QueueDepth int
}

// Bus is the publish/subscribe hub between pollers and the delivery
// gateway. All methods are safe for concurrent use.
type Bus struct {
	opts   Options
	logger *logrus.Logger
	log    *eventlog.Log

	mutex       sync.RWMutex
	subscribers map[string]*Subscription
	closed      bool

	delivered    atomic.Uint64
	droppedTotal atomic.Uint64
}

// New creates a Bus. Published events are also appended to log, which seeds
// replay for later subscribers.
func New(opts Options, log *eventlog.Log, logger *logrus.Logger) *Bus {
	if opts.QueueDepth < 1 {
		opts.QueueDepth = 1
	}
	return &Bus{
		opts:        opts,
		logger:      logger,
		log:         log,
		subscribers: make(map[string]*Subscription),
	}
}

// Publish delivers event to every current subscription without blocking.
// The append to the event log happens under the subscriber lock so that a
// concurrent Subscribe sees the event either in its replay snapshot or on
// its live channel, never both, never neither.
func (b *Bus) Publish(event types.ChangeEvent) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.closed {
		return
	}

	b.log.Append(event)
	monitoring.RecordEventPublished(event.Source, string(event.Kind))
	monitoring.UpdateEventLogSize(b.log.Len())

	for _, sub := range b.subscribers {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *Subscription, event types.ChangeEvent) {
	select {
	case sub.ch <- event:
		b.delivered.Add(1)
		return
	default:
	}

	// Queue full: evict the oldest queued event for this subscriber, then
	// try once more. A concurrent receive can beat the eviction, in which
	// case the retry just succeeds.
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		b.droppedTotal.Add(1)
		monitoring.RecordEventDropped()
	default:
	}

	select {
	case sub.ch <- event:
		b.delivered.Add(1)
	default:
		sub.dropped.Add(1)
		b.droppedTotal.Add(1)
		monitoring.RecordEventDropped()
	}
}

// Subscribe registers a new consumer. Up to replay recent events are
// snapshotted into the subscription's backlog atomically with registration.
func (b *Bus) Subscribe(replay int) *Subscription {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	sub := &Subscription{
		ID: uuid.NewString(),
		ch: make(chan types.ChangeEvent, b.opts.QueueDepth),
	}
	if replay > 0 {
		sub.backlog = b.log.Tail(replay)
	}
	if b.closed {
		close(sub.ch)
		return sub
	}

	b.subscribers[sub.ID] = sub
	monitoring.UpdateSubscriberCount(len(b.subscribers))

	b.logger.WithFields(logrus.Fields{
		"subscription": sub.ID,
		"replayed":     len(sub.backlog),
		"subscribers":  len(b.subscribers),
	}).Debug("Subscriber registered")

	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// more than once and concurrently with Publish.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, ok := b.subscribers[sub.ID]; !ok {
		return
	}
	delete(b.subscribers, sub.ID)
	// No publisher holds the read lock here, so closing is safe.
	close(sub.ch)
	monitoring.UpdateSubscriberCount(len(b.subscribers))

	b.logger.WithFields(logrus.Fields{
		"subscription": sub.ID,
		"dropped":      sub.Dropped(),
		"subscribers":  len(b.subscribers),
	}).Debug("Subscriber removed")
}

// SubscriberCount returns the number of active subscriptions
func (b *Bus) SubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}

// Delivered returns the lifetime count of events handed to subscriber
// queues
func (b *Bus) Delivered() uint64 {
	return b.delivered.Load()
}

// DroppedTotal returns the lifetime count of events discarded across all
// subscriptions
func (b *Bus) DroppedTotal() uint64 {
	return b.droppedTotal.Load()
}

// Close shuts the bus down: all subscriptions are closed and later
// publishes become no-ops.
func (b *Bus) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	monitoring.UpdateSubscriberCount(0)
	b.logger.Info("Event bus closed")
}

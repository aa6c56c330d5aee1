// Package bus hands classified events from the gateway read loops to event
// sinks on a separate goroutine, so socket I/O is never blocked by a slow
// consumer for more than a bounded wait.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"sigbridge/internal/domain"
	"sigbridge/internal/metrics"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based handoff between gateway connections and
// sinks. Items from a single connection keep their arrival order.
type InMemoryBus struct {
	items  chan domain.BusItem
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		items:  make(chan domain.BusItem, bufferSize),
		logger: logger,
	}
}

// Publish enqueues a normalized event. Blocks up to 10 seconds if the bus is
// full, then drops the event with an error log instead of deadlocking the
// read loop.
func (b *InMemoryBus) Publish(evt domain.Event) {
	b.publish(domain.BusItem{Event: &evt})
}

// PublishStatus enqueues a connection state transition.
func (b *InMemoryBus) PublishStatus(change domain.StatusChange) {
	b.publish(domain.BusItem{Status: &change})
}

func (b *InMemoryBus) publish(item domain.BusItem) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.items <- item:
	default:
		b.logger.Warn("event bus full, waiting...")
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.items <- item:
		case <-timer.C:
			metrics.DroppedItems.Inc()
			if item.Event != nil {
				b.logger.Error("event dropped: bus full for 10s",
					"kind", item.Event.Kind,
					"source", item.Event.Source,
				)
			} else {
				b.logger.Error("status change dropped: bus full for 10s",
					"state", item.Status.State,
				)
			}
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.BusItem {
	return b.items
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.items)
	}
}

// Dispatch drains the bus into the given sinks until the bus is closed.
// Intended to run on its own goroutine. A panicking sink is logged and does
// not stop dispatch.
func Dispatch(b domain.EventBus, logger *slog.Logger, sinks ...domain.EventSink) {
	for item := range b.Subscribe() {
		for _, s := range sinks {
			deliver(item, s, logger)
		}
	}
}

func deliver(item domain.BusItem, s domain.EventSink, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event sink panic", "panic", r)
		}
	}()
	switch {
	case item.Event != nil:
		s.OnEvent(*item.Event)
	case item.Status != nil:
		s.OnStatus(*item.Status)
	}
}

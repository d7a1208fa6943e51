// Package events implements the fire-and-forget analytics hook of spec
// §6.5: the IndexManager publishes a search event after every query: a
// slow or absent collector must never back-pressure the response.
// Adapted from the teacher's pkg/events Broker (buffered subscriber
// channels, non-blocking Publish); repurposed from cluster lifecycle
// events to search telemetry.
package events

import (
	"sync"
	"time"

	"github.com/cuemby/flapjack/internal/metrics"
)

// EventType identifies the kind of analytics event emitted.
type EventType string

const (
	EventSearch       EventType = "search"
	EventMultiSearch  EventType = "multi_search"
	EventDeleteByQuery EventType = "delete_by_query"
)

// SearchEvent is one fire-and-forget analytics record (spec §6.5: "search
// event emission; never affects the search response").
type SearchEvent struct {
	Type       EventType
	Tenant     string
	Timestamp  time.Time
	Query      string
	FilterExpr string
	NumHits    int
	DurationMS int64
}

// Subscriber is a channel a collector reads events from.
type Subscriber chan SearchEvent

// Broker distributes search events to every subscribed collector,
// dropping events on a full subscriber buffer rather than blocking the
// caller (spec §6.5, original_source/analytics/seed.rs hint).
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan SearchEvent
	stopCh      chan struct{}
	doneCh      chan struct{}
}

const brokerBuffer = 256
const subscriberBuffer = 64

// NewBroker builds and starts a Broker's distribution loop.
func NewBroker() *Broker {
	b := &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan SearchEvent, brokerBuffer),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	go b.run()
	return b
}

// Stop halts the distribution loop. Safe to call once.
func (b *Broker) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

// Subscribe registers a new collector and returns its event channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, subscriberBuffer)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes a collector's channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish enqueues an event for distribution. If the broker's own
// buffer is full the event is dropped immediately and counted, rather
// than blocking the publishing search request.
func (b *Broker) Publish(ev SearchEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- ev:
	default:
		metrics.AnalyticsEventsDropped.Inc()
	}
}

func (b *Broker) run() {
	defer close(b.doneCh)
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(ev SearchEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
			metrics.AnalyticsEventsDropped.Inc()
		}
	}
}

// SubscriberCount reports the number of active collectors.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

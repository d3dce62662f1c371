// Package events is the in-process publish/subscribe bus (spec.md
// §4.8, C8): C1/C4/C5/C6/C7 publish typed events; internal/notifier
// subscribes to fan them out to chat channels. Grounded on the
// teacher's internal/events/bus.go Subscribe/SubscribeAll/Publish
// shape, pruned to this system's eight event types — the teacher's
// much larger multi-tenant EventType enum (trade/order/screener/
// autopilot/chain/ginie/circuit-breaker events) and its "Epic 12"
// broadcast-callback machinery for per-user websocket push have no
// counterpart here: this bot has one operator and one instrument, so
// there is nothing to address events to, and internal/notifier
// subscribes directly instead of through a callback indirection meant
// to avoid an import cycle with a multi-tenant api package.
package events

import (
	"sync"
	"time"
)

// EventType tags one of the eight event kinds spec.md §4.8 names.
type EventType string

const (
	EventAnalysisStarted   EventType = "ANALYSIS_STARTED"
	EventAnalysisCompleted EventType = "ANALYSIS_COMPLETED"
	EventAnalysisFailed    EventType = "ANALYSIS_FAILED"
	EventSignalRejected    EventType = "SIGNAL_REJECTED"
	EventPlanProduced      EventType = "PLAN_PRODUCED"
	EventOrderSubmitted    EventType = "ORDER_SUBMITTED"
	EventOrderFilled       EventType = "ORDER_FILLED"
	EventOrderFailed       EventType = "ORDER_FAILED"

	// EventNotifierOverflow is never published by C1/C4/C5/C6/C7, nor
	// by internal/notifier: a channel whose bounded FIFO drops a message
	// sends its own "[overflow]" text notice instead, and every channel
	// drops this event type if it arrives.
	EventNotifierOverflow EventType = "NOTIFIER_OVERFLOW"

	// EventPositionLiquidationRisk is the SPEC_FULL.md §11 watchdog
	// addition: an advisory-only warning, never acted on by the
	// executor itself.
	EventPositionLiquidationRisk EventType = "POSITION_LIQUIDATION_RISK"
)

// Event is one published occurrence. Data is a loosely-typed payload —
// subscribers format it for their own transport rather than the bus
// imposing one rendering.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles one delivered Event.
type Subscriber func(Event)

// Bus fans out published events to per-type and catch-all subscribers.
// There is exactly one Bus per process, owned by cmd/bot and handed to
// every component that publishes or subscribes.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[EventType][]Subscriber)}
}

// Subscribe registers fn for events of exactly type t.
func (b *Bus) Subscribe(t EventType, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], fn)
}

// SubscribeAll registers fn for every event type. internal/notifier
// uses this — a channel's role filters which events it forwards, not
// the bus's subscription.
func (b *Bus) SubscribeAll(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, fn)
}

// Publish delivers event to every matching subscriber synchronously,
// on the caller's goroutine. Subscribers (internal/notifier's channel
// queues) must not block — they enqueue and return immediately, which
// is the whole point of the channel's own bounded FIFO.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Type] {
		sub(event)
	}
	for _, sub := range b.allSubs {
		sub(event)
	}
}

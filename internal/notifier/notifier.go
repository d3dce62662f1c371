// Package notifier fans out Bus events to operator chat channels
// (spec.md §4.8, C8 delivery side). Grounded on the teacher's
// internal/notification.{Manager,TelegramNotifier,DiscordNotifier} for
// the per-provider Send shape, generalized from the teacher's
// synchronous fire-and-forget Manager.Send into one goroutine-backed,
// bounded, rate-limited queue per channel so a slow or rate-limited
// channel never blocks another.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"btc-advisor-bot/config"
	"btc-advisor-bot/internal/events"
	"btc-advisor-bot/internal/logging"
)

// Provider is the subset of the teacher's Notifier interface this
// package depends on: one outbound send, against one already-rendered
// message.
type Provider interface {
	Send(ctx context.Context, text string) error
}

const (
	queueCapacity     = 256
	coalesceAfterIdle = 5 * time.Second
)

// Role distinguishes the one admin channel (receives every event plus
// command acknowledgements) from zero-or-more notify-only channels
// (receives trade/analysis events only), per spec.md §4.8.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleNotifyOnly Role = "notify_only"
)

// notifyOnlyEvents is the allowlist a notify-only channel fans out;
// the admin channel has no allowlist and receives every event except
// EventNotifierOverflow, which enqueue drops for every channel.
var notifyOnlyEvents = map[events.EventType]bool{
	events.EventAnalysisStarted:   true,
	events.EventAnalysisCompleted: true,
	events.EventAnalysisFailed:    true,
	events.EventSignalRejected:    true,
	events.EventPlanProduced:      true,
	events.EventOrderSubmitted:    true,
	events.EventOrderFilled:       true,
	events.EventOrderFailed:       true,
}

// channel is one operator-facing sink: its own bounded FIFO, its own
// token bucket, its own goroutine. Channels never share a lock with
// each other (spec.md §4.8 "a slow channel cannot block others").
type channel struct {
	name     string
	role     Role
	provider Provider
	limiter  *rate.Limiter
	log      *logging.Logger

	mu      sync.Mutex
	queue   []events.Event
	overflw bool

	wake chan struct{}
}

// Notifier owns one channel per configured entry and subscribes them
// all to a Bus.
type Notifier struct {
	bus      *events.Bus
	channels []*channel
	log      *logging.Logger
}

// New builds channels from cfg, wiring provider instances by Kind, and
// subscribes each to bus. Call Run to start delivery goroutines.
func New(bus *events.Bus, cfgs []config.ChannelConfig) (*Notifier, error) {
	n := &Notifier{bus: bus, log: logging.WithComponent("notifier")}

	adminCount := 0
	for _, c := range cfgs {
		provider, err := buildProvider(c)
		if err != nil {
			return nil, err
		}
		role := Role(c.Role)
		if role == RoleAdmin {
			adminCount++
		}
		rateLimit := c.RateLimitPerMin
		if rateLimit <= 0 {
			rateLimit = 20
		}
		ch := &channel{
			name:     c.Name,
			role:     role,
			provider: provider,
			limiter:  rate.NewLimiter(rate.Limit(float64(rateLimit)/60.0), 1),
			log:      n.log.WithField("channel", c.Name),
			wake:     make(chan struct{}, 1),
		}
		n.channels = append(n.channels, ch)
	}
	if len(cfgs) > 0 && adminCount != 1 {
		return nil, fmt.Errorf("notification config: exactly one channel must have role %q", RoleAdmin)
	}

	for _, ch := range n.channels {
		ch := ch
		bus.SubscribeAll(func(e events.Event) { ch.enqueue(e) })
	}
	return n, nil
}

func buildProvider(c config.ChannelConfig) (Provider, error) {
	switch c.Kind {
	case "telegram":
		return newTelegramProvider(c.BotToken, c.ChatID), nil
	case "discord":
		return newDiscordProvider(c.WebhookURL), nil
	case "websocket":
		return newWebsocketProvider(c.WebhookURL), nil
	default:
		return nil, fmt.Errorf("notification channel %q: unknown kind %q", c.Name, c.Kind)
	}
}

// enqueue appends e to ch's FIFO. If the channel is full it drops the
// oldest entry and marks the channel as overflowed; drainOnce then
// sends one "[overflow]" notice on this channel once its queue is
// empty. No EventNotifierOverflow is published on the bus.
func (ch *channel) enqueue(e events.Event) {
	if ch.role == RoleNotifyOnly && !notifyOnlyEvents[e.Type] {
		return
	}
	if e.Type == events.EventNotifierOverflow {
		return // overflow is reported by drainOnce's notice, never queued
	}

	ch.mu.Lock()
	if len(ch.queue) >= queueCapacity {
		ch.queue = ch.queue[1:]
		ch.overflw = true
	}
	ch.queue = append(ch.queue, e)
	ch.mu.Unlock()

	select {
	case ch.wake <- struct{}{}:
	default:
	}
}

// Run starts every channel's delivery goroutine and blocks until ctx
// is cancelled, then returns once each channel has flushed whatever it
// can within gracePeriod (spec.md §5 shutdown sequence, (d)).
func (n *Notifier) Run(ctx context.Context, gracePeriod time.Duration) {
	var wg sync.WaitGroup
	for _, ch := range n.channels {
		wg.Add(1)
		go func(ch *channel) {
			defer wg.Done()
			ch.run(ctx)
		}(ch)
	}
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()
	for _, ch := range n.channels {
		ch.drain(drainCtx)
	}
	wg.Wait()
}

// run is one channel's delivery loop: wait-then-send against the token
// bucket. Every send carries the queue's leading run of same-type
// events as one batch, whether or not the bucket was starved;
// coalesceAfterIdle only decides whether drainOnce logs the wait.
func (ch *channel) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch.wake:
			ch.drainOnce(ctx)
		}
	}
}

func (ch *channel) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !ch.drainOnce(ctx) {
			return
		}
	}
}

// drainOnce sends the channel's next pending batch (the leading run of
// same-type events, which may be a single event) and reports whether
// anything was pending.
func (ch *channel) drainOnce(ctx context.Context) bool {
	ch.mu.Lock()
	if len(ch.queue) == 0 {
		overflowed := ch.overflw
		ch.overflw = false
		ch.mu.Unlock()
		if overflowed {
			ch.send(ctx, "[overflow] dropped oldest queued message(s)")
		}
		return false
	}
	batch := ch.coalesce()
	ch.mu.Unlock()

	waitStart := time.Now()
	if err := ch.limiter.Wait(ctx); err != nil {
		return true
	}
	if time.Since(waitStart) > coalesceAfterIdle {
		ch.log.Debug("token bucket was starved, sent coalesced batch", "count", len(batch))
	}
	ch.send(ctx, renderBatch(batch))
	return true
}

// coalesce pops either exactly one event, or — if the head of the
// queue has several consecutive entries of the same type — all of
// them together, under the already-held lock.
func (ch *channel) coalesce() []events.Event {
	head := ch.queue[0]
	n := 1
	for n < len(ch.queue) && ch.queue[n].Type == head.Type {
		n++
	}
	batch := ch.queue[:n]
	ch.queue = ch.queue[n:]
	return batch
}

func (ch *channel) send(ctx context.Context, text string) {
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ch.provider.Send(sendCtx, text); err != nil {
		ch.log.Warn("channel send failed", "error", err.Error())
	}
}

func renderBatch(batch []events.Event) string {
	if len(batch) == 1 {
		return renderEvent(batch[0])
	}
	out := fmt.Sprintf("%s (x%d):\n", batch[0].Type, len(batch))
	for _, e := range batch {
		out += "- " + renderEvent(e) + "\n"
	}
	return out
}

func renderEvent(e events.Event) string {
	return fmt.Sprintf("[%s] %s %v", e.Timestamp.Format(time.RFC3339), e.Type, e.Data)
}

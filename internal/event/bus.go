package event

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"

	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// subscription represents a registered event handler together with its
// delivery queue. Each subscription runs its own delivery goroutine so a
// slow or failing handler never blocks the publisher or other subscribers.
type subscription struct {
	id      string
	pattern glob.Glob
	raw     string
	handler Handler

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	busy    bool
	stopped bool
}

func (s *subscription) matches(t Type) bool {
	return s.pattern.Match(string(t))
}

// enqueue appends the event for the delivery goroutine. No-op after stop.
func (s *subscription) enqueue(e Event) {
	s.mu.Lock()
	if !s.stopped {
		s.queue = append(s.queue, e)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// stop ends the subscription. With drain, queued events are still delivered
// before the goroutine exits; without, the queue is discarded.
func (s *subscription) stop(drain bool) {
	s.mu.Lock()
	s.stopped = true
	if !drain {
		s.queue = nil
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// wait blocks until the queue is empty and no handler call is in flight.
func (s *subscription) wait() {
	s.mu.Lock()
	for len(s.queue) > 0 || s.busy {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

func (s *subscription) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0 && !s.busy
}

// Bus is an asynchronous pub-sub event bus. Publish never runs handlers on
// the caller's goroutine: events are queued per subscriber and delivered by
// that subscriber's own goroutine, preserving publisher-local order for each
// subscriber while letting subscribers proceed independently.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	nextID atomic.Uint64
	closed bool
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewBus creates a new event bus. A nil logger disables panic reporting
// output but not recovery.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{
		subs:   make(map[string]*subscription),
		logger: logger.WithComponent("event_bus"),
	}
}

// Subscribe registers a handler for event types matching the given pattern.
// Patterns are glob expressions over the "category.action" type strings:
// an exact type ("task.completed"), a category ("task.*"), or everything
// ("*"). Returns a subscription ID for Unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler) (string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return "", errors.NewValidationError("invalid event pattern").
			WithField("pattern").WithValue(pattern).WithCause(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", errors.NewStateError("cannot subscribe", errors.ErrOperationFailed).
			WithResource("event_bus", "").WithState("closed").WithOperation("subscribe")
	}

	sub := &subscription{
		id:      fmt.Sprintf("sub_%d", b.nextID.Add(1)),
		pattern: g,
		raw:     pattern,
		handler: handler,
	}
	sub.cond = sync.NewCond(&sub.mu)
	b.subs[sub.id] = sub

	b.wg.Add(1)
	go b.deliver(sub)

	return sub.id, nil
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) (string, error) {
	return b.Subscribe("*", handler)
}

// SubscribeTypes registers a handler for an explicit set of event types.
func (b *Bus) SubscribeTypes(handler Handler, types ...Type) (string, error) {
	if len(types) == 0 {
		return "", errors.NewValidationError("at least one event type required").
			WithField("types")
	}
	pattern := ""
	for i, t := range types {
		if i > 0 {
			pattern += ","
		}
		pattern += string(t)
	}
	if len(types) > 1 {
		pattern = "{" + pattern + "}"
	}
	return b.Subscribe(pattern, handler)
}

// Unsubscribe removes a subscription by ID. Undelivered events queued for the
// subscription are discarded. Events published after Unsubscribe returns are
// never delivered to it. Returns true if the subscription existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	sub.stop(false)
	return true
}

// Publish enqueues the event for every matching subscriber and returns
// without waiting for any handler to run. Events from a single publishing
// goroutine reach each subscriber in publish order; ordering between
// subscribers is not guaranteed.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(event.EventType()) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		sub.enqueue(event)
	}
}

// deliver is the per-subscription delivery loop.
func (b *Bus) deliver(sub *subscription) {
	defer b.wg.Done()
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.stopped {
			sub.cond.Wait()
		}
		if len(sub.queue) == 0 && sub.stopped {
			sub.mu.Unlock()
			return
		}
		event := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.busy = true
		sub.mu.Unlock()

		b.safeCall(sub.handler, event)

		sub.mu.Lock()
		sub.busy = false
		sub.cond.Broadcast()
		sub.mu.Unlock()
	}
}

// safeCall invokes a handler and recovers from any panics so one misbehaving
// subscriber cannot stop delivery to others.
func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", string(event.EventType()),
				"source_id", event.SourceID(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	handler(event)
}

// Drain blocks until every subscriber's queue is empty and no handler is
// running. Handlers that publish further events extend the drain.
func (b *Bus) Drain() {
	for {
		subs := b.snapshot()
		for _, sub := range subs {
			sub.wait()
		}

		quiet := true
		for _, sub := range subs {
			if !sub.idle() {
				quiet = false
				break
			}
		}
		if quiet {
			return
		}
	}
}

// Close shuts the bus down: publishes become no-ops, queued events are
// delivered, and all delivery goroutines exit before Close returns.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop(true)
	}
	b.wg.Wait()
}

// Clear removes all subscriptions, discarding their queued events.
func (b *Bus) Clear() {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop(false)
	}
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) snapshot() []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	return subs
}

package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Subscription is one consumer's view of the bus. Receive from C; call
// Close when done. The channel is closed when either side closes.
type Subscription struct {
	C <-chan Event

	name string
	id   int
	bus  *Bus
	ch   chan Event
}

// Name returns the consumer name given at subscription time.
func (s *Subscription) Name() string { return s.name }

// Close removes the subscription from the bus and closes C.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// DropHandler is invoked (synchronously, so it must be cheap) whenever a
// subscriber's queue is full and an event is discarded for it.
type DropHandler func(subscriber string, e Event)

// Bus fans events out to independent subscribers. Publish never blocks: a
// subscriber that cannot keep up loses events rather than stalling the
// publisher or its sibling consumers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*Subscription
	nextID  int
	buffer  int
	onDrop  DropHandler
	logger  *slog.Logger
	closed  bool
	dropped atomic.Uint64
}

// NewBus creates a bus whose subscribers each get a queue of the given depth.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		subs:   make(map[int]*Subscription),
		buffer: buffer,
		logger: logger.With("component", "event_bus"),
	}
}

// OnDrop installs a handler called for every dropped event. Must be set
// before the first Publish.
func (b *Bus) OnDrop(h DropHandler) {
	b.onDrop = h
}

// Subscribe registers a named consumer and returns its subscription.
func (b *Bus) Subscribe(name string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	sub := &Subscription{C: ch, ch: ch, name: name, id: b.nextID, bus: b}
	b.nextID++

	if b.closed {
		close(ch)
		return sub
	}

	b.subs[sub.id] = sub
	b.logger.Debug("Subscriber registered", "name", name, "buffer", b.buffer)
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish delivers e to every subscriber that has queue space and drops it
// for the rest. Safe for concurrent use.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(sub.name, e)
			}
			b.logger.Debug("Event dropped for slow subscriber",
				"subscriber", sub.name,
				"kind", e.Kind,
				"server_id", e.ServerID,
			)
		}
	}
}

// Dropped returns how many events have been discarded across all subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

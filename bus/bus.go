// Package bus is the in-process broadcast channel carrying ProcessEvents
// between branches, workers and the channels of one agent.
//
// Every subscriber receives every event published after it subscribed.
// Publish never blocks: each subscription has a bounded buffer and, when it
// is full, the oldest buffered event is discarded and counted as lag.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/logging"
)

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 128

// Options configures a Bus.
type Options struct {
	// Capacity is the per-subscriber buffer. Zero or less means DefaultCapacity.
	Capacity int
	Logger   logging.Logger
}

// Bus fans ProcessEvents out to all subscribers.
type Bus struct {
	mu       sync.RWMutex
	subs     map[string]*Subscription
	capacity int
	closed   bool
	logger   logging.Logger
}

// New creates a Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Capacity: DefaultCapacity}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &Bus{
		subs:     make(map[string]*Subscription),
		capacity: opts.Capacity,
		logger:   logging.With(logging.OrNoOp(opts.Logger), "component", "bus"),
	}
}

// Subscription is one receiver's view of the bus.
type Subscription struct {
	id     string
	bus    *Bus
	ch     chan core.ProcessEvent
	lagged atomic.Uint64
	once   sync.Once
}

// Subscribe registers a new subscriber. Subscribing to a closed bus returns a
// subscription whose channel is already closed.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		id:  uuid.NewString(),
		bus: b,
		ch:  make(chan core.ProcessEvent, b.capacity),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	b.subs[sub.id] = sub

	b.logger.Debug("bus.subscribed", "sub_id", sub.id)

	return sub
}

// Publish delivers ev to every subscriber and returns how many received it.
// Publishing to a closed bus is a no-op.
func (b *Bus) Publish(ev core.ProcessEvent) int {
	// The read lock is held across the sends so that Close and Unsubscribe
	// cannot close a channel underneath us. Sends never block.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	for _, sub := range b.subs {
		sub.deliver(ev)
	}
	return len(b.subs)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription channel. Further publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.once.Do(func() { close(sub.ch) })
		delete(b.subs, id)
	}

	b.logger.Debug("bus.closed")
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	sub.once.Do(func() { close(sub.ch) })

	b.logger.Debug("bus.unsubscribed", "sub_id", sub.id)
}

// deliver enqueues ev, evicting the oldest buffered events while full.
func (s *Subscription) deliver(ev core.ProcessEvent) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
			s.lagged.Add(1)
		default:
		}
	}
}

// C returns the receive channel. It is closed by Close or by Bus.Close.
func (s *Subscription) C() <-chan core.ProcessEvent { return s.ch }

// Lagged returns the number of events dropped since the last call and
// resets the counter.
func (s *Subscription) Lagged() uint64 { return s.lagged.Swap(0) }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() { s.bus.unsubscribe(s) }

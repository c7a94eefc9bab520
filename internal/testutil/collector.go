package testutil

import (
	"sync"
	"time"

	"github.com/hupe1980/channelmesh/bus"
	"github.com/hupe1980/channelmesh/core"
)

// EventCollector records every event published on a bus.
type EventCollector struct {
	sub    *bus.Subscription
	mu     sync.Mutex
	events []core.ProcessEvent
	done   chan struct{}
}

// CollectEvents subscribes to b and starts recording.
func CollectEvents(b *bus.Bus) *EventCollector {
	c := &EventCollector{sub: b.Subscribe(), done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for ev := range c.sub.C() {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		}
	}()
	return c
}

// Events returns a copy of everything recorded so far.
func (c *EventCollector) Events() []core.ProcessEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.ProcessEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Count returns how many recorded events match pred.
func (c *EventCollector) Count(pred func(core.ProcessEvent) bool) int {
	n := 0
	for _, ev := range c.Events() {
		if pred(ev) {
			n++
		}
	}
	return n
}

// WaitFor polls until an event matching pred is recorded or timeout passes.
func (c *EventCollector) WaitFor(pred func(core.ProcessEvent) bool, timeout time.Duration) (core.ProcessEvent, bool) {
	deadline := time.Now().Add(timeout)
	for {
		for _, ev := range c.Events() {
			if pred(ev) {
				return ev, true
			}
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Close stops recording.
func (c *EventCollector) Close() {
	c.sub.Close()
	<-c.done
}

// IsBranchResult matches BranchResult events.
func IsBranchResult(ev core.ProcessEvent) bool { _, ok := ev.(core.BranchResult); return ok }

// IsWorkerComplete matches WorkerComplete events.
func IsWorkerComplete(ev core.ProcessEvent) bool { _, ok := ev.(core.WorkerComplete); return ok }

package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/channelmesh/core"
)

var (
	// ErrInboxFull is returned by TrySend when the queue has no room.
	ErrInboxFull = errors.New("channel inbox is full")
	// ErrInboxClosed is returned once the inbox has been closed.
	ErrInboxClosed = errors.New("channel inbox is closed")
)

// Inbox is the bounded inbound queue of a channel. Transports and the
// channel itself (for retriggers) send into it; only the channel loop
// receives. Messages racing with Close may be dropped.
type Inbox struct {
	ch     chan core.InboundMessage
	done   chan struct{}
	closer sync.Once
}

func newInbox(capacity int) *Inbox {
	return &Inbox{
		ch:   make(chan core.InboundMessage, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues msg, waiting for room until ctx ends or the inbox closes.
func (i *Inbox) Send(ctx context.Context, msg core.InboundMessage) error {
	select {
	case <-i.done:
		return ErrInboxClosed
	default:
	}
	select {
	case <-i.done:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	case i.ch <- msg:
		return nil
	}
}

// TrySend enqueues msg without blocking.
func (i *Inbox) TrySend(msg core.InboundMessage) error {
	select {
	case <-i.done:
		return ErrInboxClosed
	default:
	}
	select {
	case i.ch <- msg:
		return nil
	default:
		return ErrInboxFull
	}
}

// Close stops accepting messages. Already queued messages are still handled.
func (i *Inbox) Close() {
	i.closer.Do(func() { close(i.done) })
}

// Len returns the number of queued messages.
func (i *Inbox) Len() int { return len(i.ch) }

// Cap returns the queue capacity.
func (i *Inbox) Cap() int { return cap(i.ch) }

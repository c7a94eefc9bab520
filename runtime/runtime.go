// Package runtime hosts the channels of one agent. It routes inbound messages
// to a channel per conversation, creating channels on first contact, and
// fans every channel's responses into a single stream tagged with their
// origin.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/channelmesh/channel"
	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/logging"
)

// DefaultResponseBuffer is the capacity of the merged response stream.
const DefaultResponseBuffer = 64

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("runtime closed")

// Envelope is a channel response tagged with where it must be delivered.
type Envelope struct {
	ChannelID      core.ChannelID
	Source         string
	ConversationID string
	Response       core.OutboundResponse
}

// Options configures a Runtime.
type Options struct {
	// ChannelConfig is applied to every channel the runtime creates.
	ChannelConfig channel.Config

	// Prompts are shared by every channel.
	Prompts channel.Prompts

	// ResponseBuffer sizes the merged response stream. Consumers that stop
	// reading Responses eventually stall the channels.
	ResponseBuffer int

	Logger logging.Logger
}

type hosted struct {
	channel *channel.Channel
	inbox   *channel.Inbox
	source  string
	convID  string
}

// Runtime owns the channel goroutines of one agent. Public methods are safe
// for concurrent use.
type Runtime struct {
	deps   channel.Deps
	opts   Options
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channels map[core.ChannelID]*hosted
	closed   bool

	responses chan Envelope
	wg        sync.WaitGroup
}

// New creates a Runtime. The runtime takes ownership of deps.Events and
// closes it on Close.
func New(deps channel.Deps, optFns ...func(o *Options)) (*Runtime, error) {
	opts := Options{
		ChannelConfig:  channel.DefaultConfig(),
		ResponseBuffer: DefaultResponseBuffer,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if deps.Events == nil {
		return nil, errors.New("runtime requires an event bus")
	}
	if err := opts.ChannelConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channel config: %w", err)
	}
	if opts.ResponseBuffer <= 0 {
		opts.ResponseBuffer = DefaultResponseBuffer
	}

	logger := logging.With(logging.OrNoOp(opts.Logger), "component", "runtime", "agent", deps.AgentID)
	if deps.Logger == nil {
		deps.Logger = opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runtime{
		deps:      deps,
		opts:      opts,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		channels:  make(map[core.ChannelID]*hosted),
		responses: make(chan Envelope, opts.ResponseBuffer),
	}, nil
}

// ChannelIDFor derives the channel id serving a conversation on a platform.
func ChannelIDFor(source, conversationID string) core.ChannelID {
	return core.ChannelID(source + ":" + conversationID)
}

// Dispatch delivers msg to the channel serving its conversation, starting the
// channel if needed. It blocks while that channel's inbox is full.
func (r *Runtime) Dispatch(ctx context.Context, msg core.InboundMessage) error {
	if msg.ConversationID == "" {
		return errors.New("message has no conversation id")
	}

	h, err := r.channelFor(msg.Source, msg.ConversationID)
	if err != nil {
		return err
	}

	if err := h.inbox.Send(ctx, msg); err != nil {
		if errors.Is(err, channel.ErrInboxClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Responses is the merged response stream of all channels. It is closed once
// Close has stopped every channel.
func (r *Runtime) Responses() <-chan Envelope { return r.responses }

// Channel returns the running channel for a conversation, if any.
func (r *Runtime) Channel(source, conversationID string) (*channel.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.channels[ChannelIDFor(source, conversationID)]
	if !ok {
		return nil, false
	}
	return h.channel, true
}

// Channels lists the ids of the running channels in sorted order.
func (r *Runtime) Channels() []core.ChannelID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]core.ChannelID, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close stops accepting messages and waits for every channel to finish the
// messages already queued and the branches and workers they started,
// including the turns their results trigger. If ctx ends first, in-flight
// turns and processes are cancelled. The event bus is closed and Responses
// is closed before Close returns.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, h := range r.channels {
		h.inbox.Close()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("runtime.close.forced", "error", ctx.Err().Error())
		err = ctx.Err()
		r.cancel()
		<-done
	}

	r.deps.Events.Close()
	r.cancel()
	close(r.responses)
	r.logger.Info("runtime.closed")
	return err
}

func (r *Runtime) channelFor(source, conversationID string) (*hosted, error) {
	id := ChannelIDFor(source, conversationID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if h, ok := r.channels[id]; ok {
		return h, nil
	}

	out := make(chan core.OutboundResponse, r.opts.ResponseBuffer)
	deps := r.deps
	deps.Logger = logging.OrNoOp(r.deps.Logger)

	ch, inbox, err := channel.New(id, deps, r.opts.ChannelConfig, r.opts.Prompts, out)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel %s: %w", id, err)
	}

	h := &hosted{channel: ch, inbox: inbox, source: source, convID: conversationID}
	r.channels[id] = h

	r.wg.Add(2)
	go r.run(h, out)
	go r.forward(h, out)

	r.logger.Info("runtime.channel.created", "channel", string(id))
	return h, nil
}

func (r *Runtime) run(h *hosted, out chan core.OutboundResponse) {
	defer r.wg.Done()
	defer close(out)

	if err := h.channel.Run(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("runtime.channel.failed", "channel", string(h.channel.ID()), "error", err.Error())
	}
}

func (r *Runtime) forward(h *hosted, out <-chan core.OutboundResponse) {
	defer r.wg.Done()

	for resp := range out {
		env := Envelope{
			ChannelID:      h.channel.ID(),
			Source:         h.source,
			ConversationID: h.convID,
			Response:       resp,
		}
		select {
		case r.responses <- env:
		case <-r.ctx.Done():
			r.logger.Warn("runtime.response.dropped", "channel", string(env.ChannelID))
		}
	}
}

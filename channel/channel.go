package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/channelmesh/bus"
	"github.com/hupe1980/channelmesh/completion"
	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/hooks"
	"github.com/hupe1980/channelmesh/logging"
	"github.com/hupe1980/channelmesh/store"
	"github.com/hupe1980/channelmesh/tool"
)

// RetriggerText is the body of the synthetic message a channel sends itself
// after merging a background result into its history.
const RetriggerText = "[System: a background process has completed. Check your history and status block for the result, then respond to the user.]"

// Channel is the user-facing conversation process. It owns one goroutine
// (Run) that alternates between inbound messages and process events.
type Channel struct {
	id        core.ChannelID
	state     *State
	registry  *tool.Registry
	inbox     *Inbox
	events    *bus.Subscription
	responses chan<- core.OutboundResponse
	hook      *hooks.ProcessHook
	logger    logging.Logger

	// owned by the Run goroutine
	conversationID      string
	conversationContext string
	contextCaptured     bool
	pendingRetrigger    bool
}

// New creates a channel and returns it together with its inbox. The channel
// subscribes to deps.Events immediately so no event published after New
// returns is missed.
func New(id core.ChannelID, deps Deps, cfg Config, prompts Prompts, responses chan<- core.OutboundResponse) (*Channel, *Inbox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid channel config: %w", err)
	}
	if err := deps.validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid channel deps: %w", err)
	}

	state := NewState(id, deps, cfg, prompts)
	inbox := newInbox(cfg.InboxCapacity)

	c := &Channel{
		id:        id,
		state:     state,
		registry:  tool.NewRegistry(deps.Tools),
		inbox:     inbox,
		events:    deps.Events.Subscribe(),
		responses: responses,
		hook:      hooks.NewProcessHook(deps.AgentID, core.ChannelProcess(id), deps.Events, deps.Logger),
		logger:    state.logger,
	}
	return c, inbox, nil
}

// ID returns the channel id.
func (c *Channel) ID() core.ChannelID { return c.id }

// State returns the shared channel state.
func (c *Channel) State() *State { return c.state }

// Status renders the status block.
func (c *Channel) Status() string { return c.state.Status.Render() }

// Run processes inbound messages and process events until ctx ends, the
// event subscription is closed, or the inbox is closed and drained with no
// branch or worker left running. While draining, interactive workers stop
// taking follow-ups and process results still trigger a turn. A failed turn
// or event is logged and never stops the loop. When Run returns every branch
// and worker of the channel is cancelled.
func (c *Channel) Run(ctx context.Context) error {
	c.logger.Info("channel.started")
	defer func() {
		c.events.Close()
		c.state.shutdown()
		c.logger.Info("channel.stopped")
	}()

	c.backfill(ctx)

	messages := c.inbox.ch
	closed := c.inbox.done
	events := c.events.C()

	for messages != nil || events != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg := <-messages:
			c.dispatchMessage(ctx, msg)

		case <-closed:
			// handle what was queued before Close, then stop reading
			for drained := false; !drained; {
				select {
				case msg := <-messages:
					c.dispatchMessage(ctx, msg)
				default:
					drained = true
				}
			}
			messages, closed = nil, nil
			c.logger.Info("channel.draining", "branches", c.state.ActiveBranches(), "workers", c.state.ActiveWorkers())

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if n := c.events.Lagged(); n > 0 {
				c.logger.Warn("channel.events.lagged", "dropped", n)
				c.reconcile()
			}
			if err := c.handleEvent(ev); err != nil {
				c.logger.Error("channel.event.failed", "event", core.EventName(ev), "error", err.Error())
			}
			if c.pendingRetrigger {
				c.pendingRetrigger = false
				c.dispatchMessage(ctx, c.retriggerMessage())
			}
		}

		if messages == nil {
			c.state.closeWorkerInputs()
			if c.state.idle() {
				return nil
			}
		}
	}
	return nil
}

func (c *Channel) dispatchMessage(ctx context.Context, msg core.InboundMessage) {
	if err := c.handleMessage(ctx, msg); err != nil {
		c.logger.Error("channel.message.failed", "message_id", msg.ID, "error", err.Error())
	}
}

// handleMessage runs one completion turn for msg.
func (c *Channel) handleMessage(ctx context.Context, msg core.InboundMessage) error {
	start := time.Now()
	log := logging.With(c.logger, "message_id", msg.ID)
	log.Info("channel.message.received", "source", msg.Source)

	if c.conversationID == "" {
		c.conversationID = msg.ConversationID
	}

	userText := FormatUserMessage(msg.Text(), msg)

	if !c.contextCaptured {
		c.conversationContext = BuildConversationContext(msg)
		c.contextCaptured = true
	}

	systemPrompt := BuildSystemPrompt(
		c.state.Prompts.Identity,
		c.state.Prompts.System,
		c.conversationContext,
		c.state.Status.Render(),
	)

	if err := AddChannelTools(c.registry, c.state, c.responses, msg.ConversationID); err != nil {
		return fmt.Errorf("failed to add channel tools: %w", err)
	}
	defer func() {
		if rmErr := RemoveChannelTools(c.registry); rmErr != nil {
			log.Warn("channel.tools.remove_failed", "error", rmErr.Error())
		}
	}()

	agent := completion.New(c.state.Deps.Models.Resolve(core.ProcessTypeChannel), func(o *completion.Options) {
		o.Preamble = systemPrompt
		o.MaxTurns = c.state.Config.MaxTurns
		o.Tools = c.registry
		o.Process = core.ChannelProcess(c.id)
		o.Logger = c.logger
	})

	if err := sendResponse(ctx, c.responses, core.StatusResponse{Status: core.StatusThinking}); err != nil {
		log.Warn("channel.status.send_failed", "error", err.Error())
	}

	if !msg.IsSystem() {
		c.state.record(msg.ConversationID, store.KindUser, userText)
	}

	result, err := c.runTurn(ctx, agent, userText)

	var (
		maxTurns  *completion.MaxTurnsError
		cancelled *completion.PromptCancelledError
	)
	switch {
	case err == nil:
		if text := strings.TrimSpace(result); text != "" {
			if sendErr := sendResponse(ctx, c.responses, core.TextResponse{Text: text}); sendErr != nil {
				log.Error("channel.reply.send_failed", "error", sendErr.Error())
			} else {
				c.state.record(msg.ConversationID, store.KindReply, text)
			}
		}
		log.Debug("channel.turn.completed", "duration_ms", time.Since(start).Milliseconds())
	case errors.As(err, &maxTurns):
		log.Warn("channel.turn.max_turns", "max_turns", maxTurns.MaxTurns)
	case errors.As(err, &cancelled):
		log.Info("channel.turn.cancelled", "reason", cancelled.Reason)
	case errors.Is(err, errTurnPanic):
		log.Error("channel.turn.panic", "error", err.Error())
	default:
		log.Error("channel.turn.failed", "error", err.Error())
	}
	return nil
}

var errTurnPanic = errors.New("turn panic")

// runTurn prompts the channel agent on the live history. The history lock is
// held for the whole turn, including tool rounds; process results arriving
// meanwhile wait in the event subscription. A panic in the model or a tool
// ends only this turn.
func (c *Channel) runTurn(ctx context.Context, agent *completion.Agent, userText string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errTurnPanic, r)
		}
	}()

	c.state.History.Update(func(messages *core.Messages) {
		c.state.beginTurn(messages)
		defer c.state.endTurn()
		result, err = agent.Prompt(ctx, userText, messages, c.hook)
	})
	return result, err
}

// handleEvent merges a process event into the channel. Events for processes
// this channel does not track only touch the status block, where they are
// ignored.
func (c *Channel) handleEvent(ev core.ProcessEvent) error {
	c.state.Status.Update(ev)

	retrigger := false

	switch e := ev.(type) {
	case core.BranchResult:
		if !c.state.removeBranch(e.BranchID) {
			return nil
		}
		text := "[Branch result]: " + e.Conclusion
		c.state.History.Append(core.NewUserText(text))
		c.state.record(c.conversationID, store.KindBranchResult, text)
		retrigger = true

		c.logger.Info("channel.branch.result", "branch_id", string(e.BranchID))
	case core.WorkerComplete:
		if !c.state.removeWorker(e.WorkerID) {
			return nil
		}
		if e.Notify {
			text := "[Worker completed]: " + e.Result
			c.state.History.Append(core.NewUserText(text))
			c.state.record(c.conversationID, store.KindWorkerResult, text)
			retrigger = true
		}

		c.logger.Info("channel.worker.completed", "worker_id", string(e.WorkerID), "notify", e.Notify)
	}

	if retrigger {
		c.retrigger()
	}
	return nil
}

// reconcile merges the results of processes that finished while their
// terminal event may have been dropped. A drop only happens on a full buffer,
// so the next received event always reports the lag. Events that were not
// dropped arrive later and are ignored because the process is untracked.
func (c *Channel) reconcile() {
	for _, ev := range c.state.finished() {
		c.logger.Info("channel.event.recovered", "event", core.EventName(ev))
		if err := c.handleEvent(ev); err != nil {
			c.logger.Error("channel.event.failed", "event", core.EventName(ev), "error", err.Error())
		}
	}
}

// retrigger asks the channel to take another turn. It never blocks; when the
// inbox is full the retrigger is dropped, and once the inbox is closed the
// turn is taken by Run directly.
func (c *Channel) retrigger() {
	if c.conversationID == "" {
		return
	}
	err := c.inbox.TrySend(c.retriggerMessage())
	switch {
	case err == nil:
	case errors.Is(err, ErrInboxClosed):
		c.pendingRetrigger = true
	default:
		c.logger.Warn("channel.retrigger.dropped", "error", err.Error())
	}
}

func (c *Channel) retriggerMessage() core.InboundMessage {
	return core.InboundMessage{
		ID:             core.NewID(),
		Source:         core.SourceSystem,
		ConversationID: c.conversationID,
		SenderID:       core.SourceSystem,
		Content:        core.TextContent{Text: RetriggerText},
		Timestamp:      time.Now().UTC(),
		Metadata:       map[string]any{},
	}
}

// backfill replays the most recent stored records into history.
func (c *Channel) backfill(ctx context.Context) {
	limit := c.state.Config.HistoryBackfill
	if limit <= 0 || c.state.Deps.Store == nil {
		return
	}
	records, err := c.state.Deps.Store.Recent(ctx, c.id, limit)
	if err != nil {
		c.logger.Warn("channel.backfill.failed", "error", err.Error())
		return
	}
	entries := make([]core.Content, 0, len(records))
	for _, rec := range records {
		entries = append(entries, rec.ToContent())
		if rec.ConversationID != "" {
			c.conversationID = rec.ConversationID
		}
	}
	c.state.History.Append(entries...)

	c.logger.Info("channel.backfill.loaded", "records", len(records))
}

// Package branch implements short-lived reasoning processes forked from a
// channel's conversation.
//
// A Branch starts from a snapshot of the channel history, thinks about a
// single description with its own system prompt and publishes exactly one
// BranchResult when it finishes, whether it succeeded, failed or panicked.
package branch

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/channelmesh/completion"
	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/hooks"
	"github.com/hupe1980/channelmesh/logging"
	"github.com/hupe1980/channelmesh/model"
	"github.com/hupe1980/channelmesh/tool"
)

// Options configures a Branch.
type Options struct {
	AgentID      string
	SystemPrompt string

	// History is the channel transcript the branch starts from. The branch
	// owns it; callers pass a snapshot.
	History core.Messages

	// Tools available to the branch. Nil means none.
	Tools *tool.Registry

	MaxTurns int
	Logger   logging.Logger

	// OnResult, if set, receives the BranchResult just before it is
	// published.
	OnResult func(core.BranchResult)
}

// Branch is a one-shot reasoning process.
type Branch struct {
	id          core.BranchID
	channelID   core.ChannelID
	description string
	model       model.Model
	events      hooks.Publisher
	opts        Options
	logger      logging.Logger
}

// New constructs a Branch with a fresh id.
func New(channelID core.ChannelID, description string, m model.Model, events hooks.Publisher, optFns ...func(o *Options)) *Branch {
	opts := Options{MaxTurns: completion.DefaultMaxTurns}
	for _, fn := range optFns {
		fn(&opts)
	}

	id := core.NewBranchID()

	return &Branch{
		id:          id,
		channelID:   channelID,
		description: description,
		model:       m,
		events:      events,
		opts:        opts,
		logger: logging.With(logging.OrNoOp(opts.Logger),
			"channel_id", string(channelID), "branch_id", string(id)),
	}
}

// ID returns the branch id.
func (b *Branch) ID() core.BranchID { return b.id }

// Description returns what the branch was asked to think about.
func (b *Branch) Description() string { return b.description }

// Run executes the branch and publishes its BranchResult. Run must be called
// at most once. The returned error is informational; the failure is already
// reflected in the published conclusion.
func (b *Branch) Run(ctx context.Context) (conclusion string, err error) {
	start := time.Now()
	b.logger.Info("branch.started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("branch panic: %v", r)
			b.logger.Error("branch.panic", "recover", r)
		}
		if err != nil {
			conclusion = fmt.Sprintf("Branch failed: %v", err)
			b.logger.Error("branch.failed", "error", err.Error())
		}
		b.publish(conclusion)
		b.logger.Info("branch.completed", "duration_ms", time.Since(start).Milliseconds(), "error", err != nil)
	}()

	process := core.BranchProcess(b.id)
	agent := completion.New(b.model, func(o *completion.Options) {
		o.Preamble = b.opts.SystemPrompt
		o.MaxTurns = b.opts.MaxTurns
		o.Tools = b.opts.Tools
		o.Process = process
		o.Logger = b.logger
	})

	history := b.opts.History
	hook := hooks.NewProcessHook(b.opts.AgentID, process, b.events, b.logger)

	return agent.Prompt(ctx, b.description, &history, hook)
}

func (b *Branch) publish(conclusion string) {
	result := core.BranchResult{
		AgentID:    b.opts.AgentID,
		BranchID:   b.id,
		ChannelID:  b.channelID,
		Conclusion: conclusion,
	}
	if b.opts.OnResult != nil {
		b.opts.OnResult(result)
	}
	if b.events == nil {
		return
	}
	b.events.Publish(result)
}

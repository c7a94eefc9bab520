// Package worker implements delegated task processes.
//
// A plain Worker runs one task to completion. An interactive Worker finishes
// its initial task and then keeps answering follow-up messages routed to it
// until it is cancelled or stays idle for too long. Workers start with an
// empty history and report progress through the set_status tool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/channelmesh/completion"
	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/hooks"
	"github.com/hupe1980/channelmesh/logging"
	"github.com/hupe1980/channelmesh/model"
	"github.com/hupe1980/channelmesh/tool"
)

// Defaults for interactive workers.
const (
	DefaultIdleTimeout   = 10 * time.Minute
	DefaultInputCapacity = 8
)

// Options configures a Worker.
type Options struct {
	AgentID      string
	SystemPrompt string

	// Tools is the parent of the worker's own registry, which adds set_status.
	Tools *tool.Registry

	MaxTurns int

	// IdleTimeout ends an interactive worker that received no follow-up.
	IdleTimeout time.Duration

	// InputCapacity bounds the follow-up queue of an interactive worker.
	InputCapacity int

	Logger logging.Logger
}

// Worker is a task process.
type Worker struct {
	id        core.WorkerID
	channelID core.ChannelID
	task      string
	model     model.Model
	events    hooks.Publisher
	opts      Options
	logger    logging.Logger

	inputMu     sync.Mutex
	input       chan string
	inputClosed bool
}

// New constructs a plain worker with a fresh id.
func New(channelID core.ChannelID, task string, m model.Model, events hooks.Publisher, optFns ...func(o *Options)) *Worker {
	opts := Options{
		MaxTurns:      completion.DefaultMaxTurns,
		IdleTimeout:   DefaultIdleTimeout,
		InputCapacity: DefaultInputCapacity,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.InputCapacity <= 0 {
		opts.InputCapacity = DefaultInputCapacity
	}

	id := core.NewWorkerID()

	return &Worker{
		id:        id,
		channelID: channelID,
		task:      task,
		model:     m,
		events:    events,
		opts:      opts,
		logger: logging.With(logging.OrNoOp(opts.Logger),
			"channel_id", string(channelID), "worker_id", string(id)),
	}
}

// NewInteractive constructs an interactive worker. Follow-ups are queued
// with Send.
func NewInteractive(channelID core.ChannelID, task string, m model.Model, events hooks.Publisher, optFns ...func(o *Options)) *Worker {
	w := New(channelID, task, m, events, optFns...)
	w.input = make(chan string, w.opts.InputCapacity)
	return w
}

// ID returns the worker id.
func (w *Worker) ID() core.WorkerID { return w.id }

// Task returns the task description.
func (w *Worker) Task() string { return w.task }

// Interactive reports whether the worker accepts follow-ups.
func (w *Worker) Interactive() bool { return w.input != nil }

// Send queues a follow-up without blocking. It fails with
// core.ErrWorkerNotInteractive for plain workers, core.ErrWorkerBusy when the
// queue is full and core.ErrUnknownProcess once the worker stopped taking
// follow-ups.
func (w *Worker) Send(msg string) error {
	if w.input == nil {
		return fmt.Errorf("%w: %s", core.ErrWorkerNotInteractive, w.id)
	}

	w.inputMu.Lock()
	defer w.inputMu.Unlock()

	if w.inputClosed {
		return fmt.Errorf("%w: worker %s has ended", core.ErrUnknownProcess, w.id)
	}
	select {
	case w.input <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", core.ErrWorkerBusy, w.id)
	}
}

// CloseInput stops accepting follow-ups. An interactive worker answers what
// is already queued and then ends with its last answer. It is safe to call
// more than once and a no-op for plain workers.
func (w *Worker) CloseInput() {
	if w.input == nil {
		return
	}

	w.inputMu.Lock()
	defer w.inputMu.Unlock()

	if !w.inputClosed {
		w.inputClosed = true
		close(w.input)
	}
}

// Run executes the task and returns its result. For interactive workers the
// result is the last answer given before the worker ended. Run does not
// publish WorkerComplete; the spawner does.
func (w *Worker) Run(ctx context.Context) (string, error) {
	start := time.Now()
	w.logger.Info("worker.started", "interactive", w.Interactive())

	defer w.CloseInput()

	process := core.WorkerProcess(w.id)

	registry := tool.NewRegistry(w.opts.Tools)
	if err := registry.Add(w.statusTool()); err != nil {
		return "", fmt.Errorf("failed to register worker tools: %w", err)
	}

	agent := completion.New(w.model, func(o *completion.Options) {
		o.Preamble = w.opts.SystemPrompt
		o.MaxTurns = w.opts.MaxTurns
		o.Tools = registry
		o.Process = process
		o.Logger = w.logger
	})
	hook := hooks.NewProcessHook(w.opts.AgentID, process, w.events, w.logger)

	var history core.Messages

	result, err := agent.Prompt(ctx, w.task, &history, hook)
	if err != nil {
		w.logger.Warn("worker.failed", "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
		return "", err
	}

	if w.input != nil {
		result = w.followUps(ctx, agent, &history, hook, result)
	}

	w.logger.Info("worker.completed", "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// followUps answers routed messages until ctx ends, the input is closed or
// the worker idles out.
func (w *Worker) followUps(ctx context.Context, agent *completion.Agent, history *core.Messages, hook completion.Hook, last string) string {
	w.setStatus("waiting for input")

	idle := time.NewTimer(w.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return last
		case <-idle.C:
			w.logger.Info("worker.idle_timeout", "timeout", w.opts.IdleTimeout.String())
			return last
		case msg, ok := <-w.input:
			if !ok {
				return last
			}
			reply, err := agent.Prompt(ctx, msg, history, hook)
			if err != nil {
				var cancelled *completion.PromptCancelledError
				if errors.As(err, &cancelled) {
					return last
				}
				w.logger.Warn("worker.follow_up.failed", "error", err.Error())
				w.setStatus("follow-up failed: " + err.Error())
			} else {
				last = reply
				w.setStatus(summarize(reply))
			}
			idle.Reset(w.opts.IdleTimeout)
		}
	}
}

func (w *Worker) statusTool() tool.Tool {
	return tool.NewFunctionTool(
		"set_status",
		"Report a short progress update for the current task. It is shown to the conversation that delegated the task.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{"type": "string", "description": "One line describing current progress"},
			},
			"required": []string{"status"},
		},
		func(_ *tool.CallContext, args map[string]any) (any, error) {
			status, err := tool.StringArg(args, "status")
			if err != nil {
				return nil, err
			}
			w.setStatus(status)
			return "status updated", nil
		},
	)
}

func (w *Worker) setStatus(status string) {
	if w.events == nil {
		return
	}
	w.events.Publish(core.WorkerStatus{
		AgentID:   w.opts.AgentID,
		WorkerID:  w.id,
		ChannelID: w.channelID,
		Status:    status,
	})
}

// summarize returns the first line of s, capped at 80 runes.
func summarize(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 80 {
		s = string(r[:77]) + "..."
	}
	return s
}

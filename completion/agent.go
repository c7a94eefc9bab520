package completion

import (
	"context"
	"fmt"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/logging"
	"github.com/hupe1980/channelmesh/model"
	"github.com/hupe1980/channelmesh/tool"
)

// DefaultMaxTurns bounds tool rounds when Options.MaxTurns is zero.
const DefaultMaxTurns = 5

// Options configures an Agent.
type Options struct {
	// Preamble is sent as the system instructions of every request.
	Preamble string

	// MaxTurns bounds the number of tool-calling rounds within one prompt.
	// Zero or less means unlimited.
	MaxTurns int

	// Tools resolves tool calls. A nil registry exposes no tools.
	Tools *tool.Registry

	// Process identifies the caller to tools and logs.
	Process core.ProcessID

	Logger logging.Logger
}

// Agent drives one model through a tool-calling loop until it produces a
// response without tool calls.
type Agent struct {
	model model.Model
	opts  Options
}

// New constructs an Agent.
func New(m model.Model, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxTurns: DefaultMaxTurns,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Agent{model: m, opts: opts}
}

// Prompt appends prompt to history as a user message and runs completion
// rounds until the model answers without tool calls. Every assistant message
// and tool result is appended to history as it happens, so history reflects
// partial progress even when an error is returned.
//
// Errors are *MaxTurnsError when the model keeps requesting tools past the
// turn limit and *PromptCancelledError when ctx ends or hook terminates.
func (a *Agent) Prompt(ctx context.Context, prompt string, history *core.Messages, hook Hook) (string, error) {
	if hook == nil {
		hook = NoopHook{}
	}

	log := logging.With(a.opts.Logger, "process", a.opts.Process.String())

	*history = append(*history, core.NewUserText(prompt))

	limiter := newTurnLimiter(a.opts.MaxTurns)

	var defs []model.ToolDefinition
	if a.opts.Tools != nil {
		defs = a.opts.Tools.Definitions()
	}

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return "", &PromptCancelledError{Reason: err.Error()}
		}

		hook.OnCompletionCall(ctx, prompt, round)

		contents := make([]core.Content, len(*history))
		copy(contents, *history)

		resp, err := model.Complete(ctx, a.model, model.Request{
			Instructions: a.opts.Preamble,
			Contents:     contents,
			Tools:        defs,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", &PromptCancelledError{Reason: ctxErr.Error()}
			}
			return "", fmt.Errorf("completion request failed: %w", err)
		}

		hook.OnCompletionResponse(ctx, resp)

		msg := resp.Content.Clone()
		msg.Role = core.RoleAssistant
		*history = append(*history, msg)

		calls := msg.FunctionCalls()
		if len(calls) == 0 {
			return msg.Text(), nil
		}

		if !limiter.Increment() {
			log.Warn("completion.max_turns", "max_turns", a.opts.MaxTurns)
			*history = append(*history, abandonedResults(calls, "max turns reached"))
			return "", &MaxTurnsError{MaxTurns: a.opts.MaxTurns}
		}

		results, err := a.runCalls(ctx, calls, hook)
		*history = append(*history, core.Content{Role: core.RoleTool, Parts: results})
		if err != nil {
			return "", err
		}
	}
}

// runCalls executes calls in order. Every call gets a response part, so the
// transcript stays well formed even when the batch is aborted.
func (a *Agent) runCalls(ctx context.Context, calls []core.FunctionCall, hook Hook) ([]core.Part, error) {
	parts := make([]core.Part, 0, len(calls))

	var abort error
	for _, fc := range calls {
		if abort == nil {
			if err := ctx.Err(); err != nil {
				abort = &PromptCancelledError{Reason: err.Error()}
			} else if d := hook.OnToolCall(ctx, fc); d.Terminate {
				abort = &PromptCancelledError{Reason: d.Reason}
			}
		}
		if abort != nil {
			parts = append(parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID: fc.ID, Name: fc.Name, Error: "cancelled",
			}})
			continue
		}

		callCtx := tool.NewCallContext(ctx, fc.ID, a.opts.Process, a.opts.Logger)
		resp := a.executeCall(callCtx, fc)
		hook.OnToolResult(ctx, fc, resultText(resp))
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: resp})
	}
	return parts, abort
}

func abandonedResults(calls []core.FunctionCall, reason string) core.Content {
	parts := make([]core.Part, 0, len(calls))
	for _, fc := range calls {
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID: fc.ID, Name: fc.Name, Error: reason,
		}})
	}
	return core.Content{Role: core.RoleTool, Parts: parts}
}

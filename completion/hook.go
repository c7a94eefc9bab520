package completion

import (
	"context"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/model"
)

// ToolDecision is returned by Hook.OnToolCall.
type ToolDecision struct {
	Terminate bool
	Reason    string
}

// Proceed lets the tool call run.
func Proceed() ToolDecision { return ToolDecision{} }

// Terminate aborts the whole prompt with a PromptCancelledError.
func Terminate(reason string) ToolDecision { return ToolDecision{Terminate: true, Reason: reason} }

// Hook observes a prompt as it runs. Implementations must be safe to call
// from the goroutine running Prompt and must not block for long.
type Hook interface {
	OnCompletionCall(ctx context.Context, prompt string, round int)
	OnCompletionResponse(ctx context.Context, resp model.Response)
	OnToolCall(ctx context.Context, call core.FunctionCall) ToolDecision
	OnToolResult(ctx context.Context, call core.FunctionCall, result string)
}

// NoopHook ignores everything.
type NoopHook struct{}

// OnCompletionCall implements Hook.
func (NoopHook) OnCompletionCall(context.Context, string, int) {}

// OnCompletionResponse implements Hook.
func (NoopHook) OnCompletionResponse(context.Context, model.Response) {}

// OnToolCall implements Hook.
func (NoopHook) OnToolCall(context.Context, core.FunctionCall) ToolDecision { return Proceed() }

// OnToolResult implements Hook.
func (NoopHook) OnToolResult(context.Context, core.FunctionCall, string) {}

// Package hooks provides completion hooks shared by channels, branches and
// workers.
package hooks

import (
	"context"

	"github.com/hupe1980/channelmesh/completion"
	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/logging"
	"github.com/hupe1980/channelmesh/model"
)

// Publisher accepts process events. *bus.Bus satisfies it.
type Publisher interface {
	Publish(ev core.ProcessEvent) int
}

// ProcessHook logs completion activity tagged with the owning process and
// publishes ToolStarted / ToolCompleted events.
type ProcessHook struct {
	completion.NoopHook

	agentID string
	process core.ProcessID
	events  Publisher
	logger  logging.Logger
}

// NewProcessHook creates a hook for process. A nil events publisher disables
// publishing.
func NewProcessHook(agentID string, process core.ProcessID, events Publisher, logger logging.Logger) *ProcessHook {
	return &ProcessHook{
		agentID: agentID,
		process: process,
		events:  events,
		logger:  logging.With(logging.OrNoOp(logger), "process", process.String()),
	}
}

// Process returns the process the hook reports for.
func (h *ProcessHook) Process() core.ProcessID { return h.process }

// OnCompletionCall implements completion.Hook.
func (h *ProcessHook) OnCompletionCall(_ context.Context, _ string, round int) {
	h.logger.Debug("completion.call", "round", round)
}

// OnCompletionResponse implements completion.Hook.
func (h *ProcessHook) OnCompletionResponse(_ context.Context, resp model.Response) {
	args := []any{"finish_reason", resp.FinishReason, "tool_calls", len(resp.Content.FunctionCalls())}
	if resp.Usage != nil {
		args = append(args, "total_tokens", resp.Usage.TotalTokens)
	}
	h.logger.Debug("completion.response", args...)
}

// OnToolCall implements completion.Hook.
func (h *ProcessHook) OnToolCall(_ context.Context, call core.FunctionCall) completion.ToolDecision {
	h.logger.Debug("tool.started", "tool", call.Name, "fc_id", call.ID)
	h.publish(core.ToolStarted{AgentID: h.agentID, Source: h.process, ToolName: call.Name})
	return completion.Proceed()
}

// OnToolResult implements completion.Hook.
func (h *ProcessHook) OnToolResult(_ context.Context, call core.FunctionCall, result string) {
	h.logger.Debug("tool.completed", "tool", call.Name, "fc_id", call.ID)
	h.publish(core.ToolCompleted{AgentID: h.agentID, Source: h.process, ToolName: call.Name, Result: result})
}

func (h *ProcessHook) publish(ev core.ProcessEvent) {
	if h.events != nil {
		h.events.Publish(ev)
	}
}

var _ completion.Hook = (*ProcessHook)(nil)

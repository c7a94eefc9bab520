package channel

import (
	"context"
	"fmt"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/store"
	"github.com/hupe1980/channelmesh/tool"
)

// Names of the per-turn channel tools.
const (
	ToolReply       = "reply"
	ToolBranch      = "branch"
	ToolSpawnWorker = "spawn_worker"
	ToolRoute       = "route"
	ToolCancel      = "cancel"
)

var channelToolNames = []string{ToolReply, ToolBranch, ToolSpawnWorker, ToolRoute, ToolCancel}

// AddChannelTools registers the per-turn tools bound to state on registry.
// Nothing is registered if any of them is already present.
func AddChannelTools(registry *tool.Registry, state *State, responses chan<- core.OutboundResponse, conversationID string) error {
	return registry.Add(
		replyTool(state, responses, conversationID),
		branchTool(state),
		spawnWorkerTool(state),
		routeTool(state),
		cancelTool(state),
	)
}

// RemoveChannelTools unregisters the per-turn tools.
func RemoveChannelTools(registry *tool.Registry) error {
	return registry.Remove(channelToolNames...)
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func replyTool(state *State, responses chan<- core.OutboundResponse, conversationID string) tool.Tool {
	return tool.NewFunctionTool(
		ToolReply,
		"Send a message to the user in this conversation.",
		objectSchema(map[string]any{"content": stringProp("The message to send")}, "content"),
		func(cc *tool.CallContext, args map[string]any) (any, error) {
			content, err := tool.StringArg(args, "content")
			if err != nil {
				return nil, err
			}
			if err := sendResponse(cc.Context, responses, core.TextResponse{Text: content}); err != nil {
				return nil, fmt.Errorf("failed to send reply: %w", err)
			}
			state.record(conversationID, store.KindReply, content)
			return "Message sent.", nil
		},
	)
}

func branchTool(state *State) tool.Tool {
	return tool.NewFunctionTool(
		ToolBranch,
		"Think about something in the background with a copy of this conversation. "+
			"The conclusion is added to the history when the branch finishes.",
		objectSchema(map[string]any{"description": stringProp("What the branch should think about")}, "description"),
		func(_ *tool.CallContext, args map[string]any) (any, error) {
			description, err := tool.StringArg(args, "description")
			if err != nil {
				return nil, err
			}
			id, err := SpawnBranch(state, description)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Branch %s started.", id), nil
		},
	)
}

func spawnWorkerTool(state *State) tool.Tool {
	return tool.NewFunctionTool(
		ToolSpawnWorker,
		"Delegate a task to a background worker. The result is added to the history when it completes. "+
			"Interactive workers accept follow-ups through the route tool.",
		objectSchema(map[string]any{
			"task":        stringProp("The task to perform"),
			"interactive": map[string]any{"type": "boolean", "description": "Keep the worker open for follow-ups"},
		}, "task"),
		func(_ *tool.CallContext, args map[string]any) (any, error) {
			task, err := tool.StringArg(args, "task")
			if err != nil {
				return nil, err
			}
			id, err := SpawnWorker(state, task, tool.BoolArg(args, "interactive", false))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Worker %s started.", id), nil
		},
	)
}

func routeTool(state *State) tool.Tool {
	return tool.NewFunctionTool(
		ToolRoute,
		"Send a follow-up message to an interactive worker.",
		objectSchema(map[string]any{
			"worker_id": stringProp("Id of the worker"),
			"message":   stringProp("The follow-up message"),
		}, "worker_id", "message"),
		func(_ *tool.CallContext, args map[string]any) (any, error) {
			id, err := tool.StringArg(args, "worker_id")
			if err != nil {
				return nil, err
			}
			message, err := tool.StringArg(args, "message")
			if err != nil {
				return nil, err
			}
			if err := state.RouteToWorker(core.WorkerID(id), message); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Message routed to worker %s.", id), nil
		},
	)
}

func cancelTool(state *State) tool.Tool {
	return tool.NewFunctionTool(
		ToolCancel,
		"Cancel a running branch or worker.",
		objectSchema(map[string]any{
			"process_type": map[string]any{"type": "string", "enum": []string{"branch", "worker"}, "description": "branch or worker"},
			"id":           stringProp("Id of the process"),
		}, "process_type", "id"),
		func(_ *tool.CallContext, args map[string]any) (any, error) {
			kind, err := tool.StringArg(args, "process_type")
			if err != nil {
				return nil, err
			}
			id, err := tool.StringArg(args, "id")
			if err != nil {
				return nil, err
			}
			switch core.ProcessType(kind) {
			case core.ProcessTypeBranch:
				err = state.CancelBranch(core.BranchID(id))
			case core.ProcessTypeWorker:
				err = state.CancelWorker(core.WorkerID(id))
			default:
				return nil, fmt.Errorf("unknown process type %q", kind)
			}
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Cancellation requested for %s %s.", kind, id), nil
		},
	)
}

// sendResponse delivers resp to the transport, waiting for room until ctx
// ends. A nil responses channel discards.
func sendResponse(ctx context.Context, responses chan<- core.OutboundResponse, resp core.OutboundResponse) error {
	if responses == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case responses <- resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

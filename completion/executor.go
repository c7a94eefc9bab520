package completion

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/tool"
)

// executeCall runs one tool call and never panics. The returned response
// always carries the originating call id.
func (a *Agent) executeCall(callCtx *tool.CallContext, fc core.FunctionCall) core.FunctionResponse {
	log := callCtx.Logger()

	start := time.Now()
	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				log.Error("completion.tool.panic", "tool", fc.Name, "recover", r)
			}
		}()
		if a.opts.Tools == nil {
			err = tool.NewToolError(fc.Name, "tool not found", tool.CodeNotFound)
			return
		}
		result, err = a.opts.Tools.Call(callCtx, fc.Name, fc.Arguments)
	}()

	log.Debug("completion.tool.executed",
		"tool", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: result}
	if err != nil {
		resp.Response = nil
		resp.Error = err.Error()
	}
	return resp
}

// resultText renders a tool outcome for hooks and logs.
func resultText(resp core.FunctionResponse) string {
	if resp.Error != "" {
		return "error: " + resp.Error
	}
	switch v := resp.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func panicError(r any) error {
	return fmt.Errorf("tool panic: %v\n%s", r, debug.Stack())
}

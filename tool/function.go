package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/channelmesh/internal/util"
)

// FunctionTool exposes a plain Go function as a Tool.
//
// Arguments are validated against the declared schema before fn runs.
// Failures are normalized to *ToolError:
//
//	*ToolError returned by fn -> forwarded unchanged
//	validation failure        -> Code VALIDATION_ERROR
//	any other error           -> Code EXECUTION_ERROR
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(callCtx *CallContext, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit schema.
//
// Example:
//
//	reply := NewFunctionTool(
//	  "reply",
//	  "Send a message to the user",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "content": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"content"},
//	  },
//	  func(cc *CallContext, args map[string]any) (any, error) { ... },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(callCtx *CallContext, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{name: name, description: description, parameters: parameters, fn: fn}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(callCtx *CallContext, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name implements Tool.
func (t *FunctionTool) Name() string { return t.name }

// Description implements Tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args then invokes the wrapped function.
func (t *FunctionTool) Call(callCtx *CallContext, args map[string]any) (any, error) {
	logger := callCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name)

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(callCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Warn("tool.call.error", "tool", t.name, "error", toolErr.Message)
			return nil, toolErr
		}

		logger.Warn("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}

	logger.Debug("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

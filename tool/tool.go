// Package tool implements the function / tool calling subsystem that lets
// channels, branches and workers invoke structured capabilities with schema
// validated arguments and consistent error handling.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/internal/util"
	"github.com/hupe1980/channelmesh/logging"
)

// Tool defines the interface for extending a process with callable functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case) and descriptions
//   - Define a JSON schema for parameters
//   - Return errors instead of panicking
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description shown to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(callCtx *CallContext, args map[string]any) (any, error)
}

// CallContext carries the per-call scope handed to a tool: the cancellation
// context of the turn, the provider call id and the calling process.
type CallContext struct {
	Context context.Context
	CallID  string
	Process core.ProcessID

	logger logging.Logger
}

// NewCallContext constructs a CallContext. A nil logger is replaced by a no-op.
func NewCallContext(ctx context.Context, callID string, process core.ProcessID, logger logging.Logger) *CallContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &CallContext{Context: ctx, CallID: callID, Process: process, logger: logging.OrNoOp(logger)}
}

// Logger returns a logger annotated with the call id and process.
func (c *CallContext) Logger() logging.Logger {
	return logging.With(c.logger, "fc_id", c.CallID, "process", c.Process.String())
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeBadArgs    = "INVALID_ARGUMENTS"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// StringArg returns a required non-empty string argument.
func StringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required field '%s'", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field '%s' must be a non-empty string", key)
	}
	return s, nil
}

// BoolArg returns an optional boolean argument, or def when absent.
func BoolArg(args map[string]any, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

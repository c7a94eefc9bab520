package tool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCallCtx() *CallContext {
	return NewCallContext(context.Background(), "fc-1", core.ChannelProcess("c1"), logging.NoOpLogger{})
}

func echoTool(name string) *FunctionTool {
	return NewFunctionTool(name, "echo the text", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}, func(_ *CallContext, args map[string]any) (any, error) {
		return args["text"], nil
	})
}

// -------------------- FunctionTool --------------------

func TestFunctionTool_Call(t *testing.T) {
	res, err := echoTool("echo").Call(newCallCtx(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := echoTool("echo").Call(newCallCtx(), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	failing := NewFunctionTool("fail", "always fails", map[string]any{"type": "object"}, func(*CallContext, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := failing.Call(newCallCtx(), nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "tool error [EXECUTION_ERROR] in fail: boom", toolErr.Error())
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("limited", "branch limit reached", "LIMIT")
	limited := NewFunctionTool("limited", "", map[string]any{"type": "object"}, func(*CallContext, map[string]any) (any, error) {
		return nil, custom
	})

	_, err := limited.Call(newCallCtx(), nil)
	assert.Same(t, custom, err)
}

// -------------------- Args --------------------

func TestArgs(t *testing.T) {
	args := map[string]any{"task": "index repo", "interactive": true, "empty": ""}

	s, err := StringArg(args, "task")
	require.NoError(t, err)
	assert.Equal(t, "index repo", s)

	_, err = StringArg(args, "missing")
	assert.Error(t, err)
	_, err = StringArg(args, "empty")
	assert.Error(t, err)

	assert.True(t, BoolArg(args, "interactive", false))
	assert.False(t, BoolArg(args, "missing", false))
}

// -------------------- Registry --------------------

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Add(echoTool("a"), echoTool("b")))

	err := r.Add(echoTool("a"))
	assert.ErrorIs(t, err, ErrToolExists)

	err = r.Add(echoTool("c"), echoTool("c"))
	assert.ErrorIs(t, err, ErrToolExists)
	assert.False(t, r.Has("c"))

	require.NoError(t, r.Remove("a"))
	assert.False(t, r.Has("a"))

	err = r.Remove("a", "b")
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.False(t, r.Has("b"))
}

func TestRegistry_ParentFallback(t *testing.T) {
	base := NewRegistry(nil)
	require.NoError(t, base.Add(echoTool("shared")))

	child := NewRegistry(base)
	require.NoError(t, child.Add(echoTool("reply")))

	assert.True(t, child.Has("shared"))
	assert.Equal(t, []string{"reply", "shared"}, child.Names())
	assert.False(t, base.Has("reply"))

	defs := child.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "reply", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)

	// Removing from the child never touches the parent.
	assert.ErrorIs(t, child.Remove("shared"), ErrToolNotFound)
	assert.True(t, base.Has("shared"))
}

func TestRegistry_Call(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Add(echoTool("echo")))

	res, err := r.Call(newCallCtx(), "echo", `{"text":"hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", res)

	var toolErr *ToolError
	_, err = r.Call(newCallCtx(), "missing", `{}`)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)

	_, err = r.Call(newCallCtx(), "echo", `{not json`)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeBadArgs, toolErr.Code)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	base := NewRegistry(nil)
	r := NewRegistry(base)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			_ = r.Add(echoTool(name))
			_ = r.Definitions()
			_ = r.Remove(name)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, r.Names())
}

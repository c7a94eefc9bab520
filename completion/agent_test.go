package completion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/internal/testutil"
	"github.com/hupe1980/channelmesh/model"
	"github.com/hupe1980/channelmesh/tool"
)

type echoArgs struct {
	Text string `json:"text" description:"text to echo"`
}

func newEchoRegistry(t *testing.T, calls *int) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry(nil)
	echo := tool.NewFunctionToolFromStruct("echo", "echo text", echoArgs{}, func(_ *tool.CallContext, args map[string]any) (any, error) {
		*calls++
		return "echo: " + args["text"].(string), nil
	})
	require.NoError(t, reg.Add(echo))
	return reg
}

type recordingHook struct {
	NoopHook
	mu        sync.Mutex
	rounds    []int
	toolCalls []string
	results   []string
	terminate string
}

func (h *recordingHook) OnCompletionCall(_ context.Context, _ string, round int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rounds = append(h.rounds, round)
}

func (h *recordingHook) OnToolCall(_ context.Context, call core.FunctionCall) ToolDecision {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.toolCalls = append(h.toolCalls, call.Name)
	if h.terminate != "" {
		return Terminate(h.terminate)
	}
	return Proceed()
}

func (h *recordingHook) OnToolResult(_ context.Context, _ core.FunctionCall, result string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
}

func TestPrompt_PlainReply(t *testing.T) {
	m := testutil.NewScriptedModel(testutil.Reply("hi there"))
	a := New(m, func(o *Options) { o.Preamble = "be nice" })

	var history core.Messages
	out, err := a.Prompt(context.Background(), "hello", &history, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)

	require.Len(t, history, 2)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Text())
	assert.Equal(t, core.RoleAssistant, history[1].Role)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be nice", reqs[0].Instructions)
}

func TestPrompt_ToolRoundTrip(t *testing.T) {
	calls := 0
	m := testutil.NewScriptedModel(
		testutil.CallTool("echo", `{"text":"ping"}`),
		testutil.Reply("final"),
	)
	hook := &recordingHook{}
	a := New(m, func(o *Options) { o.Tools = newEchoRegistry(t, &calls) })

	var history core.Messages
	out, err := a.Prompt(context.Background(), "go", &history, hook)
	require.NoError(t, err)
	assert.Equal(t, "final", out)
	assert.Equal(t, 1, calls)

	// user, assistant(call), tool(result), assistant(final)
	require.Len(t, history, 4)
	resp := history[2].FunctionResponses()
	require.Len(t, resp, 1)
	assert.Equal(t, "call-echo", resp[0].ID)
	assert.Equal(t, "echo: ping", resp[0].Response)

	assert.Equal(t, []int{0, 1}, hook.rounds)
	assert.Equal(t, []string{"echo"}, hook.toolCalls)
	assert.Equal(t, []string{"echo: ping"}, hook.results)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "echo", reqs[0].Tools[0].Function.Name)
	assert.Len(t, reqs[1].Contents, 3)
}

func TestPrompt_ToolErrorIsReturnedToModel(t *testing.T) {
	m := testutil.NewScriptedModel(
		testutil.CallTool("missing", `{}`),
		testutil.Reply("recovered"),
	)
	a := New(m, func(o *Options) { o.Tools = tool.NewRegistry(nil) })

	var history core.Messages
	out, err := a.Prompt(context.Background(), "go", &history, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)

	resp := history[2].FunctionResponses()
	require.Len(t, resp, 1)
	assert.Contains(t, resp[0].Error, "tool not found")
}

func TestPrompt_ToolPanicIsContained(t *testing.T) {
	reg := tool.NewRegistry(nil)
	boom := tool.NewFunctionTool("boom", "panics", map[string]any{"type": "object"}, func(_ *tool.CallContext, _ map[string]any) (any, error) {
		panic("kaboom")
	})
	require.NoError(t, reg.Add(boom))

	m := testutil.NewScriptedModel(testutil.CallTool("boom", `{}`), testutil.Reply("ok"))
	a := New(m, func(o *Options) { o.Tools = reg })

	var history core.Messages
	out, err := a.Prompt(context.Background(), "go", &history, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Contains(t, history[2].FunctionResponses()[0].Error, "kaboom")
}

func TestPrompt_MaxTurns(t *testing.T) {
	calls := 0
	m := testutil.NewScriptedModel(
		testutil.CallTool("echo", `{"text":"1"}`),
		testutil.CallTool("echo", `{"text":"2"}`),
		testutil.CallTool("echo", `{"text":"3"}`),
	)
	a := New(m, func(o *Options) {
		o.Tools = newEchoRegistry(t, &calls)
		o.MaxTurns = 2
	})

	var history core.Messages
	_, err := a.Prompt(context.Background(), "loop", &history, nil)

	var maxErr *MaxTurnsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 2, maxErr.MaxTurns)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 3, m.Calls())

	last := history[len(history)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, "max turns reached", last.FunctionResponses()[0].Error)
}

func TestPrompt_HookTerminate(t *testing.T) {
	calls := 0
	m := testutil.NewScriptedModel(testutil.CallTools(
		core.FunctionCall{ID: "a", Name: "echo", Arguments: `{"text":"x"}`},
		core.FunctionCall{ID: "b", Name: "echo", Arguments: `{"text":"y"}`},
	))
	hook := &recordingHook{terminate: "stop requested"}
	a := New(m, func(o *Options) { o.Tools = newEchoRegistry(t, &calls) })

	var history core.Messages
	_, err := a.Prompt(context.Background(), "go", &history, hook)

	var cancelled *PromptCancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, "stop requested", cancelled.Reason)
	assert.Zero(t, calls)

	resp := history[len(history)-1].FunctionResponses()
	require.Len(t, resp, 2)
	assert.Equal(t, "cancelled", resp[0].Error)
	assert.Equal(t, "cancelled", resp[1].Error)
}

func TestPrompt_ContextCancelled(t *testing.T) {
	m := testutil.NewScriptedModel(testutil.Hang())
	a := New(m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var history core.Messages
	go func() {
		_, err := a.Prompt(ctx, "wait", &history, nil)
		done <- err
	}()
	cancel()

	err := <-done
	var cancelled *PromptCancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, context.Canceled.Error(), cancelled.Reason)
}

func TestPrompt_ModelError(t *testing.T) {
	boom := errors.New("provider down")
	a := New(testutil.NewScriptedModel(testutil.Fail(boom)))

	var history core.Messages
	_, err := a.Prompt(context.Background(), "hi", &history, nil)
	require.ErrorIs(t, err, boom)
	assert.Len(t, history, 1)
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "plain", resultText(core.FunctionResponse{Response: "plain"}))
	assert.Equal(t, `{"a":1}`, resultText(core.FunctionResponse{Response: map[string]int{"a": 1}}))
	assert.Equal(t, "error: bad", resultText(core.FunctionResponse{Error: "bad"}))
	assert.Equal(t, "", resultText(core.FunctionResponse{}))
}

func TestTurnLimiter(t *testing.T) {
	l := newTurnLimiter(1)
	assert.True(t, l.Increment())
	assert.False(t, l.Increment())
	assert.False(t, l.Increment())

	unlimited := newTurnLimiter(0)
	for i := 0; i < 10; i++ {
		assert.True(t, unlimited.Increment())
	}
}

var _ model.Model = (*testutil.ScriptedModel)(nil)

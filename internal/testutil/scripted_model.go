package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/model"
)

// Step produces one model response. Steps run on the Generate goroutine and
// may block until ctx is done.
type Step func(ctx context.Context, req model.Request) (model.Response, error)

// Reply answers with plain text.
func Reply(text string) Step {
	return func(context.Context, model.Request) (model.Response, error) {
		return model.Response{Content: core.NewTextContent(core.RoleAssistant, text), FinishReason: "stop"}, nil
	}
}

// CallTool requests a single tool call. The call id is derived from the name.
func CallTool(name, args string) Step {
	return CallTools(core.FunctionCall{ID: "call-" + name, Name: name, Arguments: args})
}

// CallTools requests several tool calls in one response.
func CallTools(calls ...core.FunctionCall) Step {
	return func(context.Context, model.Request) (model.Response, error) {
		b := NewContentBuilder()
		for _, c := range calls {
			b.Call(c.ID, c.Name, c.Arguments)
		}
		return model.Response{Content: b.Build(), FinishReason: "tool_calls"}, nil
	}
}

// Fail returns err from the model.
func Fail(err error) Step {
	return func(context.Context, model.Request) (model.Response, error) {
		return model.Response{}, err
	}
}

// Gate blocks until release is closed, then runs next. It returns ctx.Err()
// when the context ends first.
func Gate(release <-chan struct{}, next Step) Step {
	return func(ctx context.Context, req model.Request) (model.Response, error) {
		select {
		case <-ctx.Done():
			return model.Response{}, ctx.Err()
		case <-release:
			return next(ctx, req)
		}
	}
}

// Hang blocks until the context ends.
func Hang() Step {
	return func(ctx context.Context, _ model.Request) (model.Response, error) {
		<-ctx.Done()
		return model.Response{}, ctx.Err()
	}
}

// ScriptedModel replays steps in order. Once the script is exhausted it
// replies with Fallback text. Every request is recorded.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []Step
	requests []model.Request
	fallback string
}

// NewScriptedModel constructs a model with the given script.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{steps: steps, fallback: "done"}
}

// Then appends steps to the script.
func (m *ScriptedModel) Then(steps ...Step) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
	return m
}

// WithFallback sets the reply used once the script is exhausted.
func (m *ScriptedModel) WithFallback(text string) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = text
	return m
}

// Requests returns a copy of all recorded requests.
func (m *ScriptedModel) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate calls.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var step Step
	if len(m.steps) > 0 {
		step = m.steps[0]
		m.steps = m.steps[1:]
	} else {
		step = Reply(m.fallback)
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		resp, err := step(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()
	return respCh, errCh
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Name: "scripted", Provider: "mock", SupportsTools: true}
}

// LastText returns the text of the final content of the most recent request.
func (m *ScriptedModel) LastText() string {
	reqs := m.Requests()
	if len(reqs) == 0 {
		return ""
	}
	contents := reqs[len(reqs)-1].Contents
	if len(contents) == 0 {
		return ""
	}
	return contents[len(contents)-1].Text()
}

func (m *ScriptedModel) String() string { return fmt.Sprintf("ScriptedModel(%d calls)", m.Calls()) }

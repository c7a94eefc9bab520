package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/channelmesh/core"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input for one completion call.
type Request struct {
	Instructions string           `json:"instructions"` // System preamble
	Contents     []core.Content   `json:"contents"`     // Conversation transcript
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned by Complete when a model closes its stream
// without producing a final response.
var ErrNoResponse = errors.New("model produced no final response")

// Complete drains a Generate call and returns the final (non partial)
// response. Partial chunks are discarded; callers that need streaming read
// the channels directly.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final    Response
		hasFinal bool
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				final = r
				hasFinal = true
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}
	if !hasFinal {
		return Response{}, ErrNoResponse
	}
	return final, nil
}

// Router picks the model serving a given process type. Routing policy beyond
// a static table belongs to the model layer, not to channels.
type Router interface {
	Resolve(processType core.ProcessType) Model
}

// StaticRouter resolves from a fixed table, falling back to Default.
type StaticRouter struct {
	Default Model
	ByType  map[core.ProcessType]Model
}

// Resolve implements Router.
func (r *StaticRouter) Resolve(processType core.ProcessType) Model {
	if m, ok := r.ByType[processType]; ok && m != nil {
		return m
	}
	return r.Default
}

// MockModel is a lightweight in-memory Model useful for demos and smoke runs.
// It answers with a canned response for known prompts and echoes otherwise.
type MockModel struct {
	info      Info
	mu        sync.RWMutex
	responses map[string]string
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: false},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Generate implements Model; emits optional streaming chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		inputText := strings.TrimSpace(req.Contents[len(req.Contents)-1].Text())

		m.mu.RLock()
		full := m.responses[inputText]
		m.mu.RUnlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, word := range strings.SplitAfter(full, " ") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, word)}:
				}
			}
		}
		respCh <- Response{
			Content:      core.NewTextContent(core.RoleAssistant, full),
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

package testutil

import (
	"github.com/hupe1980/channelmesh/core"
)

// ContentBuilder provides a fluent helper for constructing transcript entries.
// Example:
//
//	c := NewContentBuilder().Text("checking").Call("call-1", "branch", `{"description":"x"}`).Build()
//
// The role defaults to assistant.
type ContentBuilder struct {
	role  string
	parts []core.Part
}

// NewContentBuilder creates a builder with role assistant.
func NewContentBuilder() *ContentBuilder { return &ContentBuilder{role: core.RoleAssistant} }

// Role overrides the role (chainable).
func (b *ContentBuilder) Role(r string) *ContentBuilder { b.role = r; return b }

// Text appends a text part (chainable).
func (b *ContentBuilder) Text(t string) *ContentBuilder {
	b.parts = append(b.parts, core.TextPart{Text: t})
	return b
}

// Call appends a function call part (chainable).
func (b *ContentBuilder) Call(id, name, args string) *ContentBuilder {
	b.parts = append(b.parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}})
	return b
}

// Result appends a function response part and switches the role to tool (chainable).
func (b *ContentBuilder) Result(id, name string, result any, err error) *ContentBuilder {
	fr := core.FunctionResponse{ID: id, Name: name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	b.role = core.RoleTool
	b.parts = append(b.parts, core.FunctionResponsePart{FunctionResponse: fr})
	return b
}

// Build returns the assembled content.
func (b *ContentBuilder) Build() core.Content {
	parts := make([]core.Part, len(b.parts))
	copy(parts, b.parts)
	return core.Content{Role: b.role, Parts: parts}
}

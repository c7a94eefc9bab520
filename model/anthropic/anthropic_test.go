package anthropic

import (
	"testing"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_ToolResultsFollowAsUser(t *testing.T) {
	msgs := buildMessages([]core.Content{
		core.NewTextContent(core.RoleSystem, "ignored here"),
		core.NewUserText("hi"),
		{Role: core.RoleAssistant, Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "t1", Name: "branch", Arguments: `{"description":"think"}`}},
		}},
		{Role: core.RoleTool, Parts: []core.Part{
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "t1", Name: "branch", Response: "started"}},
		}},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
	require.Len(t, msgs[2].Content, 1)
	assert.NotNil(t, msgs[2].Content[0].OfToolResult)
}

func TestSystemBlocks(t *testing.T) {
	blocks := systemBlocks(model.Request{
		Instructions: "base",
		Contents:     []core.Content{core.NewTextContent(core.RoleSystem, "extra")},
	})
	require.Len(t, blocks, 2)
	assert.Equal(t, "base", blocks[0].Text)
	assert.Equal(t, "extra", blocks[1].Text)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredFields([]string{"a"}))
	assert.Equal(t, []string{"a", "b"}, requiredFields([]any{"a", 1, "b"}))
	assert.Nil(t, requiredFields(nil))
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        "reply",
			Description: "Send a reply",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"content": map[string]any{"type": "string"}},
				"required":   []string{"content"},
			},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "reply", tools[0].OfTool.Name)
	assert.Equal(t, []string{"content"}, tools[0].OfTool.InputSchema.Required)
}

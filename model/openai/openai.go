// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including streaming and tool calling). It adapts the
// channelmesh transcript (core.Content) into the SDK's message format and back.
package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string // falls back to OPENAI_API_KEY when empty
	BaseURL             string // optional, for compatible gateways
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req, buildMessages(req))
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// functionResponseText renders a tool result (or its error) as the string
// OpenAI expects in a tool message.
func functionResponseText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		return "error: " + fr.Error
	}
	if s, ok := fr.Response.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", fr.Response)
}

// buildMessages converts the transcript into chat messages. Tool responses
// are attached directly after the assistant message that requested them.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	toolResponses := map[string]string{}
	var order []string
	for _, c := range req.Contents {
		if c.Role != core.RoleTool {
			continue
		}
		for _, fr := range c.FunctionResponses() {
			if fr.ID == "" {
				continue
			}
			if _, seen := toolResponses[fr.ID]; seen {
				continue
			}
			toolResponses[fr.ID] = functionResponseText(fr)
			order = append(order, fr.ID)
		}
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, c := range req.Contents {
		text := c.Text()
		switch c.Role {
		case core.RoleTool:
			continue
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case core.RoleAssistant:
			calls := c.FunctionCalls()
			if len(calls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toToolCallParams(calls)}
			if text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
			for _, call := range calls {
				if resp, ok := toolResponses[call.ID]; ok {
					messages = append(messages, openai.ToolMessage(resp, call.ID))
					delete(toolResponses, call.ID)
				}
			}
		default:
			if text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}
	// Orphaned responses keep their first-seen order.
	for _, id := range order {
		if resp, ok := toolResponses[id]; ok {
			messages = append(messages, openai.ToolMessage(resp, id))
		}
	}
	return messages
}

func toToolCallParams(calls []core.FunctionCall) []openai.ChatCompletionMessageToolCallParam {
	params := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, fc := range calls {
		params[i] = openai.ChatCompletionMessageToolCallParam{
			ID: fc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			},
		}
	}
	return params
}

func (m *Model) buildParams(req model.Request, messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// pendingCall aggregates streamed tool call deltas.
type pendingCall struct{ id, name, args string }

func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var text strings.Builder
	calls := map[int64]*pendingCall{}
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				out <- model.Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, choice.Delta.Content),
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				pc, ok := calls[tc.Index]
				if !ok {
					pc = &pendingCall{}
					calls[tc.Index] = pc
				}
				if tc.ID != "" {
					pc.id = tc.ID
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				pc.args += tc.Function.Arguments
			}
			if choice.FinishReason != "" {
				out <- model.Response{
					Content:      finalContent(text.String(), calls),
					FinishReason: choice.FinishReason,
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

// finalContent assembles the aggregated text and tool calls in stream index order.
func finalContent(text string, calls map[int64]*pendingCall) core.Content {
	indexes := make([]int64, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	parts := make([]core.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, idx := range indexes {
		pc := calls[idx]
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        pc.id,
			Name:      pc.name,
			Arguments: pc.args,
		}})
	}
	return core.Content{Role: core.RoleAssistant, Parts: parts}
}

func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	choice := resp.Choices[0]
	parts := make([]core.Part, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}
	out <- model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai", SupportsTools: true}
}

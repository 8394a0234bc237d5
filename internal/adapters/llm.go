// Package adapters implements the C10 external-interface adapters:
// object storage, the durable segment store, the webhook sender, and the
// LLM client.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/lokutor-ai/meeting-intel/internal/decision"
	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// Message mirrors the teacher's orchestrator.Message shape, kept for the
// plain Complete() contract used by narrative/enrichment callers outside
// this specification's scope (§4.10).
type Message struct {
	Role    string
	Content string
}

// LLMClient is a thin wrapper over openai-go/v2 satisfying both C8's
// forced-tool-call need and a plain completion contract, mirroring the
// teacher's LLMProvider interface (pkg/providers/llm).
type LLMClient struct {
	client openai.Client
	model  string
}

func NewLLMClient(apiKey, baseURL, model string) *LLMClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &LLMClient{client: openai.NewClient(opts...), model: model}
}

func (c *LLMClient) Name() string { return "openai-llm" }

// Complete issues a plain (non-tool) chat completion and returns the
// first choice's text.
func (c *LLMClient) Complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toChatMessages(messages),
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("adapters: llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("adapters: llm completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

const captureMeetingItemTool = "capture_meeting_item"

// CaptureMeetingItem implements decision.LLMCaller: it forces the single
// capture_meeting_item tool call against the current transcript window
// and decodes its arguments (§4.8 step 5, §4.9).
func (c *LLMClient) CaptureMeetingItem(ctx context.Context, systemPrompt string, schema any, window []segment.Segment) (*decision.CaptureMeetingItemArgs, error) {
	jsonSchema, ok := schema.(*jsonschema.Schema)
	if !ok {
		return nil, fmt.Errorf("adapters: unexpected schema type %T", schema)
	}
	paramsSchema, err := schemaToParams(jsonSchema)
	if err != nil {
		return nil, err
	}

	transcript, err := json.Marshal(window)
	if err != nil {
		return nil, fmt.Errorf("adapters: marshal window: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(transcript)),
		},
		Tools: []openai.ChatCompletionToolParam{
			{
				Function: openai.FunctionDefinitionParam{
					Name:        captureMeetingItemTool,
					Description: openai.String(jsonSchema.Description),
					Parameters:  paramsSchema,
				},
			},
		},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: captureMeetingItemTool},
			},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("adapters: capture_meeting_item call: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("adapters: llm did not return a tool call")
	}

	call := resp.Choices[0].Message.ToolCalls[0]
	var args decision.CaptureMeetingItemArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("adapters: decode tool arguments: %w", err)
	}
	return &args, nil
}

// schemaToParams re-marshals an invopop/jsonschema.Schema into the
// map-shaped openai.FunctionParameters the SDK expects.
func schemaToParams(schema *jsonschema.Schema) (openai.FunctionParameters, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("adapters: marshal tool schema: %w", err)
	}
	var params openai.FunctionParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("adapters: unmarshal tool schema: %w", err)
	}
	return params, nil
}

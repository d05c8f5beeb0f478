// Package openai implements model.Provider using the OpenAI chat completions
// API. Pointing BaseURL at an OpenAI-compatible server (e.g. a local Ollama
// endpoint) works too.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/registry"
)

// Provider implements model.Provider using the OpenAI SDK.
type Provider struct {
	client *openai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new OpenAI provider. baseURL may be empty for the default
// OpenAI endpoint.
func New(apiKey, baseURL string) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &Provider{client: &client}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "openai" }

// List returns available models.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}

	var models []domain.Model
	for _, m := range page.Data {
		models = append(models, domain.Model{
			ID:       m.ID,
			Name:     m.ID,
			Provider: "openai",
		})
	}
	return models, nil
}

// Stream sends a conversation context to the LLM and returns a stream. The
// underlying call is a single completion; FullMessage performs it.
func (p *Provider) Stream(ctx context.Context, modelID, instructions string, messages []model.Message, tools []registry.Spec) (model.ModelStream, error) {
	slog.Debug("OpenAI.Stream", "model", modelID, "messageCount", len(messages), "toolCount", len(tools))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: paramsFromMessages(instructions, messages),
		Tools:    toolParamsFromSpecs(tools),
	}

	callCtx, cancel := context.WithCancel(ctx)
	return &chatStream{
		ctx:    callCtx,
		cancel: cancel,
		client: p.client,
		params: params,
	}, nil
}

func paramsFromMessages(instructions string, messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if instructions != "" {
		out = append(out, openai.SystemMessage(instructions))
	}

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleKeeper, domain.RoleSummary:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if text := msg.Text(); text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			for _, tc := range msg.ToolCalls() {
				args, _ := json.Marshal(tc.Input)
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case domain.RoleTool:
			for _, c := range msg.Content {
				if c.Type == domain.ContentTypeToolResult && c.ToolResult != nil {
					out = append(out, openai.ToolMessage(c.ToolResult.Content, c.ToolResult.ToolCallID))
				}
			}

		default:
			// Player input and system observations both enter as user turns.
			if text := msg.Text(); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		}
	}
	return out
}

// toolParamsFromSpecs converts registry specs into chat completion tool params.
func toolParamsFromSpecs(specs []registry.Spec) []openai.ChatCompletionToolParam {
	var out []openai.ChatCompletionToolParam
	for _, spec := range specs {
		properties := make(map[string]any)
		var required []string
		for _, p := range spec.Params {
			prop := map[string]any{"type": string(p.Type)}
			if p.Type == registry.TypeStringArray {
				prop["type"] = "array"
				prop["items"] = map[string]any{"type": "string"}
			}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			if p.Min != nil {
				prop["minimum"] = *p.Min
			}
			if p.Max != nil {
				prop["maximum"] = *p.Max
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			properties[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}

		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters: openai.FunctionParameters{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return out
}

// chatStream performs the completion call lazily in FullMessage.
type chatStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	client *openai.Client
	params openai.ChatCompletionNewParams
}

func (s *chatStream) FullMessage() (model.Message, error) {
	resp, err := s.client.Chat.Completions.New(s.ctx, s.params)
	if err != nil {
		return model.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return model.Message{}, fmt.Errorf("no choices returned")
	}

	choice := resp.Choices[0]
	var content []model.Content
	if choice.Message.Content != "" {
		content = append(content, model.Content{
			Type: domain.ContentTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, tc := range choice.Message.ToolCalls {
		var input map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			return model.Message{}, fmt.Errorf("parsing tool args for %s: %w", tc.Function.Name, err)
		}
		content = append(content, model.Content{
			Type: domain.ContentTypeToolCall,
			ToolCall: &domain.ToolCall{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			},
		})
	}

	return model.Message{
		Role:    domain.RoleKeeper,
		Content: content,
	}, nil
}

func (s *chatStream) Close() error {
	s.cancel()
	return nil
}

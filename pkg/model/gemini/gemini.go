// Package gemini implements model.Provider using the Google Gen AI SDK.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/registry"
)

// Provider implements model.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// List returns available Gemini models.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}

		// Filter for models that support generateContent.
		supportsGenerate := false
		if !strings.Contains(strings.ToLower(m.Name), "gemma") {
			for _, action := range m.SupportedActions {
				if action == "generateContent" {
					supportsGenerate = true
					break
				}
			}
		}

		if supportsGenerate {
			maxTokens := 0
			if m.InputTokenLimit > 0 {
				maxTokens = int(m.InputTokenLimit)
			}
			models = append(models, domain.Model{
				ID:        m.Name,
				Name:      m.DisplayName,
				Provider:  "gemini",
				MaxTokens: maxTokens,
			})
		}
	}
	return models, nil
}

// Stream sends a conversation context to the LLM and returns a stream.
func (p *Provider) Stream(ctx context.Context, modelID, instructions string, messages []model.Message, tools []registry.Spec) (model.ModelStream, error) {
	slog.Debug("Gemini.Stream", "model", modelID, "messageCount", len(messages), "toolCount", len(tools))

	// Convert messages to genai.Content.
	var contents []*genai.Content
	var systemInstruction *genai.Content
	toolNameMap := make(map[string]string) // tool call ID -> name

	if instructions != "" {
		systemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: instructions}},
		}
	}

	for _, msg := range messages {
		if msg.Role == domain.RoleSummary {
			// Compaction summaries are treated as model context.
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Text()}},
			})
			continue
		}

		var parts []*genai.Part
		for _, c := range msg.Content {
			switch c.Type {
			case domain.ContentTypeText:
				parts = append(parts, &genai.Part{
					Text:             c.Text,
					ThoughtSignature: c.ThoughtSignature,
				})
			case domain.ContentTypeToolCall:
				if c.ToolCall != nil {
					toolNameMap[c.ToolCall.ID] = c.ToolCall.Name
					parts = append(parts, &genai.Part{
						FunctionCall: &genai.FunctionCall{
							Name: c.ToolCall.Name,
							Args: c.ToolCall.Input,
							ID:   c.ToolCall.ID,
						},
						ThoughtSignature: c.ThoughtSignature,
					})
				}
			case domain.ContentTypeToolResult:
				if c.ToolResult != nil {
					parts = append(parts, &genai.Part{
						FunctionResponse: &genai.FunctionResponse{
							Name: toolNameMap[c.ToolResult.ToolCallID],
							ID:   c.ToolResult.ToolCallID,
							Response: map[string]any{
								"result": c.ToolResult.Content,
							},
						},
					})
				}
			}
		}

		// Player, tool, and system observations all enter as user content;
		// only the Keeper's own turns are model content.
		role := "user"
		if msg.Role == domain.RoleKeeper {
			role = "model"
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	config := &genai.GenerateContentConfig{
		Tools:             declarationsFromSpecs(tools),
		SystemInstruction: systemInstruction,
	}

	streamCtx, cancel := context.WithCancel(ctx)
	iter := p.client.Models.GenerateContentStream(streamCtx, modelID, contents, config)

	return &geminiStream{
		iter:   iter,
		cancel: cancel,
	}, nil
}

// declarationsFromSpecs converts registry specs into genai tool declarations.
func declarationsFromSpecs(specs []registry.Spec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}

	var decls []*genai.FunctionDeclaration
	for _, spec := range specs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema),
		}
		for _, p := range spec.Params {
			prop := &genai.Schema{
				Type:        genaiType(p.Type),
				Description: p.Description,
				Minimum:     p.Min,
				Maximum:     p.Max,
			}
			if p.Type == registry.TypeStringArray {
				prop.Items = &genai.Schema{Type: genai.TypeString}
			}
			if len(p.Enum) > 0 {
				prop.Enum = p.Enum
			}
			schema.Properties[p.Name] = prop
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		})
	}

	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func genaiType(t registry.ParamType) genai.Type {
	switch t {
	case registry.TypeInteger:
		return genai.TypeInteger
	case registry.TypeNumber:
		return genai.TypeNumber
	case registry.TypeBoolean:
		return genai.TypeBoolean
	case registry.TypeObject:
		return genai.TypeObject
	case registry.TypeStringArray:
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}

// geminiStream wraps the Gemini streaming iterator.
type geminiStream struct {
	iter   func(yield func(*genai.GenerateContentResponse, error) bool)
	cancel context.CancelFunc
}

func (s *geminiStream) FullMessage() (model.Message, error) {
	var fullText strings.Builder
	var toolCalls []model.Content
	var textSignature []byte

	for resp, err := range s.iter {
		if err != nil {
			return model.Message{}, err
		}
		if resp == nil {
			continue
		}

		for _, cand := range resp.Candidates {
			if cand.Content != nil {
				for _, part := range cand.Content.Parts {
					if part.Text != "" {
						if len(part.ThoughtSignature) > 0 {
							textSignature = part.ThoughtSignature
						}
						fullText.WriteString(part.Text)
					}
					if part.FunctionCall != nil {
						fc := part.FunctionCall
						id := fc.ID
						if id == "" {
							id = "call-" + uuid.New().String()
						}
						toolCalls = append(toolCalls, model.Content{
							Type: domain.ContentTypeToolCall,
							ToolCall: &domain.ToolCall{
								ID:    id,
								Name:  fc.Name,
								Input: fc.Args,
							},
							ThoughtSignature: part.ThoughtSignature,
						})
					}
				}
			}
		}
	}

	var content []model.Content
	if fullText.Len() > 0 {
		content = append(content, model.Content{
			Type:             domain.ContentTypeText,
			Text:             fullText.String(),
			ThoughtSignature: textSignature,
		})
	}
	content = append(content, toolCalls...)

	return model.Message{
		Role:    domain.RoleKeeper,
		Content: content,
	}, nil
}

func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}

package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/registry"

	"github.com/google/uuid"
)

// FreetextSource supports models without native function calling. Tools are
// described in the instructions and the model requests one by ending its
// output with a line of the form:
//
//	ACTION: {"tool": "roll_dice", "args": {"faces": 20}}
//
// Output without an ACTION line is treated as the final answer.
type FreetextSource struct {
	Provider model.Provider
}

const actionPrefix = "ACTION:"

const freetextDirective = `

You do not have native tool calling. When you need a tool, end your reply with
a single line of this exact form and nothing after it:

ACTION: {"tool": "<name>", "args": {<arguments>}}

Available tools:
%s
If no tool is needed, reply with your answer and no ACTION line.`

func (s *FreetextSource) Invoke(ctx context.Context, modelID, instructions string, messages []model.Message, tools []registry.Spec) (Decision, error) {
	stream, err := s.Provider.Stream(ctx, modelID, instructions+fmt.Sprintf(freetextDirective, describeTools(tools)), messages, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Close()

	msg, err := stream.FullMessage()
	if err != nil {
		return Decision{}, fmt.Errorf("reading response: %w", err)
	}

	text := msg.Text()
	if strings.TrimSpace(text) == "" {
		return Decision{Kind: Malformed, Err: fmt.Errorf("empty response")}, nil
	}

	line, ok := actionLine(text)
	if !ok {
		return Decision{Kind: FinalAnswer, Answer: text, Raw: text}, nil
	}

	call, err := parseAction(line)
	if err != nil {
		return Decision{Kind: Malformed, Raw: text, Err: err}, nil
	}
	return Decision{Kind: ToolRequest, Request: call, Raw: text}, nil
}

// actionLine returns the trailing ACTION line, if the output ends with one.
func actionLine(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, actionPrefix) {
			return trimmed, true
		}
		return "", false
	}
	return "", false
}

func parseAction(line string) (*domain.ToolCall, error) {
	payload := strings.TrimSpace(strings.TrimPrefix(line, actionPrefix))
	if !gjson.Valid(payload) {
		return nil, fmt.Errorf("action line is not valid JSON: %q", payload)
	}

	tool := gjson.Get(payload, "tool")
	if !tool.Exists() || tool.Type != gjson.String || tool.String() == "" {
		return nil, fmt.Errorf("action line missing tool name: %q", payload)
	}

	args := map[string]any{}
	if v := gjson.Get(payload, "args"); v.Exists() {
		m, ok := v.Value().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("action args must be an object: %q", payload)
		}
		args = m
	}

	return &domain.ToolCall{
		ID:     "call-" + uuid.New().String(),
		Name:   tool.String(),
		Input:  args,
		Status: domain.ToolCallPending,
	}, nil
}

func describeTools(tools []registry.Spec) string {
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		for _, p := range t.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return b.String()
}

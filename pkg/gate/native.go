package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/registry"
)

// NativeSource uses the provider's structured function calling. Tool requests
// arrive as typed calls in the response, so no output parsing is needed.
type NativeSource struct {
	Provider model.Provider
}

func (s *NativeSource) Invoke(ctx context.Context, modelID, instructions string, messages []model.Message, tools []registry.Spec) (Decision, error) {
	stream, err := s.Provider.Stream(ctx, modelID, instructions, messages, tools)
	if err != nil {
		return Decision{}, fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Close()

	msg, err := stream.FullMessage()
	if err != nil {
		return Decision{}, fmt.Errorf("reading response: %w", err)
	}

	text := msg.Text()

	if calls := msg.ToolCalls(); len(calls) > 0 {
		// Models may emit several calls at once; the loop dispatches one
		// per round, so only the first is honored.
		return Decision{
			Kind:    ToolRequest,
			Request: calls[0],
			Raw:     text,
		}, nil
	}

	if text == "" {
		return Decision{
			Kind: Malformed,
			Err:  errors.New("empty response: no text and no tool calls"),
		}, nil
	}

	return Decision{Kind: FinalAnswer, Answer: text, Raw: text}, nil
}

// Package gate decides, once per tool round, whether the model can answer
// the player directly or needs a tool first.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/registry"
)

// Kind classifies a gate decision.
type Kind string

const (
	// FinalAnswer means the model produced in-universe narration and the
	// turn can close.
	FinalAnswer Kind = "final_answer"

	// ToolRequest means the model asked for a tool before answering.
	ToolRequest Kind = "tool_request"

	// Malformed means the model output could not be interpreted as either.
	Malformed Kind = "malformed"
)

// Decision is the outcome of a single gate round.
type Decision struct {
	Kind Kind

	// Answer holds the narration text when Kind is FinalAnswer.
	Answer string

	// Request holds the requested tool call when Kind is ToolRequest.
	Request *domain.ToolCall

	// Raw is the verbatim model output, kept for the audit transcript.
	Raw string

	// Err carries the failure detail when Kind is Malformed.
	Err error
}

// Source turns one model invocation into a Decision. Implementations differ
// in how tool requests are surfaced: native function calling or a freetext
// protocol for models without it.
type Source interface {
	Invoke(ctx context.Context, modelID, instructions string, messages []model.Message, tools []registry.Spec) (Decision, error)
}

// Gate wraps a Source with a per-call timeout and failure classification.
type Gate struct {
	Source  Source
	Timeout time.Duration
	Log     *slog.Logger
}

// Decide runs one model round. It never returns an error: model failures and
// timeouts come back as Malformed decisions so the caller can count them
// against the retry budget.
func (g *Gate) Decide(ctx context.Context, modelID, instructions string, messages []model.Message, tools []registry.Spec) Decision {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	d, err := g.Source.Invoke(ctx, modelID, instructions, messages, tools)
	if err != nil {
		if g.Log != nil {
			g.Log.Error("model invocation failed", "model", modelID, "err", err)
		}
		return Decision{Kind: Malformed, Err: err}
	}
	if g.Log != nil {
		g.Log.Debug("gate decision", "model", modelID, "kind", d.Kind)
	}
	return d
}

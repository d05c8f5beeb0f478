// Package session runs the Keeper's dialogue loop: one player message in,
// a bounded number of gate/tool rounds, one in-universe answer out. Every
// turn, tool call, and tool result lands in the append-only transcript.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nstogner/keeper/pkg/dispatch"
	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/gate"
	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/registry"
	"github.com/nstogner/keeper/pkg/store"
)

// fallbackAnswer is used when even the forced final model call fails. The
// player always gets narration, never an error dump.
const fallbackAnswer = "The Keeper pauses, shuffling through notes. \"Give me a moment... let's pick this up from your last move. What do you do?\""

// Runtime executes turns for a single session.
type Runtime struct {
	Session    *domain.Session
	Transcript store.TranscriptStore
	Notes      store.NotebookStore
	Gate       *gate.Gate
	Dispatcher *dispatch.Dispatcher
	Registry   *registry.Registry

	// MaxRounds caps tool rounds within one player turn. Once spent, the
	// model is forced to answer with what it has.
	MaxRounds int

	// MaxRetries caps malformed-output retries within one player turn.
	MaxRetries int

	Log *slog.Logger
}

func (r *Runtime) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// HandleTurn processes one player message and returns the Keeper's answer.
// It always returns an answer when the model loop degrades (malformed
// output, exhausted budgets); an error means the transcript itself could not
// be read or written.
func (r *Runtime) HandleTurn(ctx context.Context, playerInput string) (string, error) {
	if err := r.append(ctx, domain.RolePlayer, domain.ContentTypeText, playerInput); err != nil {
		return "", fmt.Errorf("recording player turn: %w", err)
	}

	turns, err := r.Transcript.Turns(ctx, r.Session.ID, 0)
	if err != nil {
		return "", fmt.Errorf("loading transcript: %w", err)
	}
	messages := turnsToMessages(turns)

	instructions := buildInstructions(r.Session, r.MaxRounds)
	tools := r.Registry.Specs()

	rounds, retries := 0, 0
	for {
		d := r.Gate.Decide(ctx, r.Session.ModelID, instructions, messages, tools)

		switch d.Kind {
		case gate.FinalAnswer:
			if err := r.append(ctx, domain.RoleKeeper, domain.ContentTypeText, d.Answer); err != nil {
				return "", fmt.Errorf("recording answer: %w", err)
			}
			return d.Answer, nil

		case gate.ToolRequest:
			if rounds >= r.MaxRounds {
				return r.forceAnswer(ctx, instructions, messages, rounds)
			}
			rounds++

			// Narration accompanying the tool request is part of the
			// model's raw output; keep it ahead of the call itself.
			if d.Raw != "" {
				if err := r.append(ctx, domain.RoleKeeper, domain.ContentTypeText, d.Raw); err != nil {
					return "", fmt.Errorf("recording narration: %w", err)
				}
				messages = append(messages, textMessage(domain.RoleKeeper, d.Raw))
			}

			messages, err = r.runTool(ctx, messages, d.Request)
			if err != nil {
				return "", err
			}

		default: // gate.Malformed
			retries++
			r.logger().Warn("malformed model output", "session", r.Session.ID, "retry", retries, "err", d.Err)
			if retries > r.MaxRetries {
				return r.forceAnswer(ctx, instructions, messages, rounds)
			}

			// Keep the raw output in the transcript for audit, then steer
			// the model with a corrective observation.
			if d.Raw != "" {
				if err := r.append(ctx, domain.RoleKeeper, domain.ContentTypeText, d.Raw); err != nil {
					return "", fmt.Errorf("recording malformed output: %w", err)
				}
				messages = append(messages, textMessage(domain.RoleKeeper, d.Raw))
			}
			observation := "Your last reply could not be used. Either answer the player in character, or request exactly one tool in the required format."
			if err := r.append(ctx, domain.RoleSystem, domain.ContentTypeText, observation); err != nil {
				return "", fmt.Errorf("recording observation: %w", err)
			}
			messages = append(messages, textMessage(domain.RoleSystem, observation))
		}
	}
}

// runTool dispatches one requested tool call, records both sides in the
// transcript, and returns the extended message context.
func (r *Runtime) runTool(ctx context.Context, messages []model.Message, call *domain.ToolCall) ([]model.Message, error) {
	result := r.Dispatcher.Dispatch(ctx, call)

	callJSON, _ := json.Marshal(call)
	if err := r.append(ctx, domain.RoleKeeper, domain.ContentTypeToolCall, string(callJSON)); err != nil {
		return nil, fmt.Errorf("recording tool call: %w", err)
	}
	resultJSON, _ := json.Marshal(result)
	if err := r.append(ctx, domain.RoleTool, domain.ContentTypeToolResult, string(resultJSON)); err != nil {
		return nil, fmt.Errorf("recording tool result: %w", err)
	}

	messages = append(messages,
		model.Message{Role: domain.RoleKeeper, Content: []model.Content{{
			Type: domain.ContentTypeToolCall, ToolCall: call,
		}}},
		model.Message{Role: domain.RoleTool, Content: []model.Content{{
			Type: domain.ContentTypeToolResult, ToolResult: &result,
		}}},
	)
	return messages, nil
}

// forceAnswer closes a turn whose tool or retry budget ran out: one more
// model call with no tools, so the only valid move is to answer. Exactly one
// notebook entry records that the turn was cut short.
func (r *Runtime) forceAnswer(ctx context.Context, instructions string, messages []model.Message, rounds int) (string, error) {
	r.logger().Warn("forcing best-effort answer", "session", r.Session.ID, "rounds", rounds)

	observation := "You are out of tool calls for this message. Answer the player now, in character, using only what you already know. Do not request any tool."
	if err := r.append(ctx, domain.RoleSystem, domain.ContentTypeText, observation); err != nil {
		return "", fmt.Errorf("recording observation: %w", err)
	}
	messages = append(messages, textMessage(domain.RoleSystem, observation))

	answer := fallbackAnswer
	if d := r.Gate.Decide(ctx, r.Session.ModelID, instructions, messages, nil); d.Kind == gate.FinalAnswer {
		answer = d.Answer
	}

	if err := r.append(ctx, domain.RoleKeeper, domain.ContentTypeText, answer); err != nil {
		return "", fmt.Errorf("recording answer: %w", err)
	}

	note := &domain.Note{
		ID:        uuid.New().String(),
		SessionID: r.Session.ID,
		Author:    string(domain.RoleSystem),
		Text:      fmt.Sprintf("Turn cut short after %d tool rounds (%s); answered best-effort.", rounds, domain.ErrMaxRounds),
	}
	if err := r.Notes.AppendNote(ctx, note); err != nil {
		return "", fmt.Errorf("recording budget note: %w", err)
	}

	return answer, nil
}

func (r *Runtime) append(ctx context.Context, role domain.Role, contentType, content string) error {
	turn := &domain.Turn{
		ID:          uuid.New().String(),
		SessionID:   r.Session.ID,
		Role:        role,
		ContentType: contentType,
		Content:     content,
	}
	if role == domain.RoleKeeper {
		turn.Model = r.Session.ModelID
	}
	return r.Transcript.Append(ctx, turn)
}

func textMessage(role domain.Role, text string) model.Message {
	return model.Message{Role: role, Content: []model.Content{{
		Type: domain.ContentTypeText, Text: text,
	}}}
}

// turnsToMessages converts transcript turns into model messages.
func turnsToMessages(turns []domain.Turn) []model.Message {
	var messages []model.Message
	for _, t := range turns {
		msg := model.Message{Role: t.Role}
		switch t.ContentType {
		case domain.ContentTypeText:
			msg.Content = []model.Content{{Type: domain.ContentTypeText, Text: t.Content}}
		case domain.ContentTypeToolCall:
			var tc domain.ToolCall
			json.Unmarshal([]byte(t.Content), &tc)
			msg.Content = []model.Content{{Type: domain.ContentTypeToolCall, ToolCall: &tc}}
		case domain.ContentTypeToolResult:
			var tr domain.ToolResult
			json.Unmarshal([]byte(t.Content), &tr)
			msg.Content = []model.Content{{Type: domain.ContentTypeToolResult, ToolResult: &tr}}
		}
		messages = append(messages, msg)
	}
	return messages
}

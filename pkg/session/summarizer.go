package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/store"
)

// Summarizer compacts long transcripts into a model-written recap. Old turns
// stay in the store for audit; the model's working context restarts from the
// summary turn.
type Summarizer struct {
	Provider   model.Provider
	Transcript store.TranscriptStore

	// After is the number of turns in the working context that triggers a
	// new summary.
	After int

	Log *slog.Logger
}

const summaryPrompt = `Summarize this Call of Cthulhu session transcript for the Keeper's working memory. Preserve:
- Where the investigators are and what is happening in the current scene
- Every named character and what is known about them
- Clues found, wounds taken, items carried, promises made
- Unresolved threads the Keeper should pick back up

Be dense and factual. This summary replaces the turns below.

TRANSCRIPT:
`

// MaybeCompact summarizes the session's working context if it has grown past
// the threshold.
func (s *Summarizer) MaybeCompact(ctx context.Context, sess *domain.Session) error {
	if s.After <= 0 {
		return nil
	}

	turns, err := s.Transcript.Turns(ctx, sess.ID, 0)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}
	if len(turns) < s.After {
		return nil
	}

	// Never split a tool call from its result: back the cut point off until
	// it lands after a completed exchange.
	split := min(len(turns)-s.After/2, len(turns)-1)
	for split > 0 {
		t := turns[split]
		if t.ContentType == domain.ContentTypeToolCall || t.Role == domain.RoleTool {
			split--
			continue
		}
		break
	}
	if split <= 1 {
		return nil
	}

	var b strings.Builder
	b.WriteString(summaryPrompt)
	for _, t := range turns[:split] {
		fmt.Fprintf(&b, "[%s] %s\n", t.Role, t.Content)
	}

	messages := []model.Message{textMessage(domain.RolePlayer, b.String())}
	stream, err := s.Provider.Stream(ctx, sess.ModelID, "You summarize game transcripts.", messages, nil)
	if err != nil {
		return fmt.Errorf("calling model for summary: %w", err)
	}
	defer stream.Close()

	msg, err := stream.FullMessage()
	if err != nil {
		return fmt.Errorf("reading summary: %w", err)
	}

	summary := msg.Text()
	if summary == "" {
		return fmt.Errorf("model returned an empty summary")
	}

	if s.Log != nil {
		s.Log.Info("transcript compacted", "session", sess.ID, "turns", split)
	}
	return s.Transcript.Compact(ctx, sess.ID, summary)
}

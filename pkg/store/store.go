// Package store defines the persistence interfaces for sessions, transcripts
// and notebooks.
package store

import (
	"context"
	"iter"
	"time"

	"github.com/nstogner/keeper/pkg/domain"
)

// SessionStore manages the persistence of sessions.
type SessionStore interface {
	// Create persists a new session. The ID field must be set by the caller.
	Create(ctx context.Context, sess *domain.Session) error

	// Get retrieves a session by its unique ID.
	// Returns an error if the session does not exist.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// List returns all sessions, ordered by creation time descending.
	List(ctx context.Context) ([]domain.Session, error)

	// Update persists changes to an existing session.
	Update(ctx context.Context, sess *domain.Session) error

	// Delete removes a session by ID. Transcript turns and notes are removed
	// via cascade: ending a session is the only way its journal goes away.
	Delete(ctx context.Context, id string) error
}

// TranscriptStore manages the append-only transcript of a session. Turns are
// immutable; the compaction hook works by appending a summary turn rather
// than deleting old ones. Query methods return the "compacted view" (turns
// from the most recent summary onward).
type TranscriptStore interface {
	// Append adds a new turn to the end of the session's transcript. The
	// turn's ID must be set by the caller; a zero Timestamp is filled in.
	Append(ctx context.Context, turn *domain.Turn) error

	// Turns returns the compacted view of turns for a session in
	// chronological order. If limit > 0, returns at most that many.
	Turns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)

	// AllTurns returns every turn ever appended, including those hidden by
	// compaction summaries. This is the audit view.
	AllTurns(ctx context.Context, sessionID string) ([]domain.Turn, error)

	// Compact appends a summary turn to the transcript. Older turns remain in
	// the database but are excluded from Turns.
	Compact(ctx context.Context, sessionID string, summary string) error

	// Subscribe returns a channel that emits session IDs whenever new turns
	// are appended to any session's transcript. Callers must Unsubscribe
	// when done or the channel is retained for the life of the store.
	Subscribe() <-chan string

	// Unsubscribe removes a channel obtained from Subscribe and closes it.
	Unsubscribe(ch <-chan string)
}

// NoteFilter selects notes by keyword and/or recency. The zero value matches
// everything.
type NoteFilter struct {
	// Keyword matches notes whose text contains the string.
	Keyword string
	// Since matches notes created at or after the given time.
	Since time.Time
	// Limit caps the number of notes returned (most recent first). Zero
	// means no cap.
	Limit int
}

// NotebookStore manages the append-only notebook attached to each session.
// Notes are never edited or deleted.
type NotebookStore interface {
	// AppendNote persists a new note. The ID field must be set by the caller.
	AppendNote(ctx context.Context, note *domain.Note) error

	// QueryNotes returns a lazy sequence of notes matching the filter, most
	// recent first. The sequence is restartable: each range re-runs the
	// query. Iterating never mutates stored notes.
	QueryNotes(ctx context.Context, sessionID string, filter NoteFilter) iter.Seq2[domain.Note, error]

	// ListNotes returns all notes for the session, most recent first.
	ListNotes(ctx context.Context, sessionID string) ([]domain.Note, error)
}

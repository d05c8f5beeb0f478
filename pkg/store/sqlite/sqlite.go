// Package sqlite implements the store interfaces on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/store"
)

// Store implements SessionStore, TranscriptStore, and NotebookStore using SQLite.
type Store struct {
	db          *sql.DB
	subscribers []chan string
	mu          sync.RWMutex
}

// Verify interface compliance at compile time.
var _ store.SessionStore = (*Store)(nil)
var _ store.TranscriptStore = (*Store)(nil)
var _ store.NotebookStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		player_name TEXT NOT NULL DEFAULT '',
		module TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT 'text',
		content TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		seq INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session_seq ON turns(session_id, seq);

	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_notes_session ON notes(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- SessionStore ---

func (s *Store) Create(ctx context.Context, sess *domain.Session) error {
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, player_name, module, model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.PlayerName, sess.Module, sess.ModelID, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess := &domain.Session{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, player_name, module, model, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.PlayerName, &sess.Module, &sess.ModelID, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, err
}

func (s *Store) List(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, player_name, module, model, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		if err := rows.Scan(&sess.ID, &sess.PlayerName, &sess.Module, &sess.ModelID,
			&sess.CreatedAt, &sess.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) Update(ctx context.Context, sess *domain.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET player_name=?, module=?, model=?, updated_at=? WHERE id=?`,
		sess.PlayerName, sess.Module, sess.ModelID, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", sess.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// --- TranscriptStore ---

func (s *Store) Append(ctx context.Context, turn *domain.Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	// Get next sequence number.
	var maxSeq int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id=?`,
		turn.SessionID,
	).Scan(&maxSeq)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, role, content_type, content, model, timestamp, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Role, turn.ContentType,
		turn.Content, turn.Model, turn.Timestamp, maxSeq+1,
	)
	if err != nil {
		return err
	}

	s.notifySubscribers(turn.SessionID)
	return nil
}

func (s *Store) Turns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	// Find the seq of the last summary turn (if any).
	var summarySeq int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id=? AND role=?`,
		sessionID, domain.RoleSummary,
	).Scan(&summarySeq)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, role, content_type, content, model, timestamp
		FROM turns WHERE session_id=? AND seq >= ? ORDER BY seq ASC`
	args := []any{sessionID, summarySeq}

	if limit > 0 {
		// Subquery to get only the last N turns (from the compacted view) in ASC order.
		query = `SELECT id, session_id, role, content_type, content, model, timestamp FROM (
			SELECT id, session_id, role, content_type, content, model, timestamp, seq
			FROM turns WHERE session_id=? AND seq >= ? ORDER BY seq DESC LIMIT ?
		) sub ORDER BY seq ASC`
		args = append(args, limit)
	}

	return s.scanTurns(ctx, query, args...)
}

func (s *Store) AllTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	return s.scanTurns(ctx,
		`SELECT id, session_id, role, content_type, content, model, timestamp
		 FROM turns WHERE session_id=? ORDER BY seq ASC`, sessionID)
}

func (s *Store) scanTurns(ctx context.Context, query string, args ...any) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.ContentType, &t.Content, &t.Model, &t.Timestamp); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) Compact(ctx context.Context, sessionID string, summary string) error {
	// Append a summary turn. Turns will use it as the new starting point,
	// hiding all older turns from the compacted view.
	return s.Append(ctx, &domain.Turn{
		ID:          fmt.Sprintf("summary-%d", time.Now().UnixNano()),
		SessionID:   sessionID,
		Role:        domain.RoleSummary,
		ContentType: domain.ContentTypeText,
		Content:     summary,
	})
}

func (s *Store) Subscribe() <-chan string {
	ch := make(chan string, 64)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) Unsubscribe(ch <-chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

func (s *Store) notifySubscribers(sessionID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- sessionID:
		default:
			// Drop if subscriber is not consuming fast enough.
		}
	}
}

// --- NotebookStore ---

func (s *Store) AppendNote(ctx context.Context, note *domain.Note) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, session_id, author, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		note.ID, note.SessionID, note.Author, note.Text, note.CreatedAt,
	)
	return err
}

func (s *Store) ListNotes(ctx context.Context, sessionID string) ([]domain.Note, error) {
	return s.queryNotes(ctx, sessionID, store.NoteFilter{})
}

// QueryNotes returns a lazy, restartable sequence: the SQL query runs anew on
// each range, and rows are yielded as they are scanned.
func (s *Store) QueryNotes(ctx context.Context, sessionID string, filter store.NoteFilter) iter.Seq2[domain.Note, error] {
	query := `SELECT id, session_id, author, text, created_at
		FROM notes WHERE session_id=?`
	args := []any{sessionID}

	if filter.Keyword != "" {
		query += ` AND text LIKE '%' || ? || '%'`
		args = append(args, filter.Keyword)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return func(yield func(domain.Note, error) bool) {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(domain.Note{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var n domain.Note
			if err := rows.Scan(&n.ID, &n.SessionID, &n.Author, &n.Text, &n.CreatedAt); err != nil {
				yield(domain.Note{}, err)
				return
			}
			if !yield(n, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.Note{}, err)
		}
	}
}

func (s *Store) queryNotes(ctx context.Context, sessionID string, filter store.NoteFilter) ([]domain.Note, error) {
	var notes []domain.Note
	for n, err := range s.QueryNotes(ctx, sessionID, filter) {
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/keeper/pkg/dispatch"
	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/gate"
	"github.com/nstogner/keeper/pkg/registry"
	"github.com/nstogner/keeper/pkg/store"
)

// Options tune the dialogue loop. Zero values fall back to the defaults
// below.
type Options struct {
	MaxRounds    int
	MaxRetries   int
	ModelTimeout time.Duration
	ToolTimeout  time.Duration
	ToolAttempts int
	ToolBackoff  time.Duration
}

const (
	defaultMaxRounds    = 5
	defaultMaxRetries   = 3
	defaultModelTimeout = 60 * time.Second
	defaultToolTimeout  = 15 * time.Second
	defaultToolAttempts = 3
	defaultToolBackoff  = 500 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.MaxRounds <= 0 {
		o.MaxRounds = defaultMaxRounds
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = defaultModelTimeout
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = defaultToolTimeout
	}
	if o.ToolAttempts <= 0 {
		o.ToolAttempts = defaultToolAttempts
	}
	if o.ToolBackoff <= 0 {
		o.ToolBackoff = defaultToolBackoff
	}
	return o
}

// Manager owns all live sessions. Each session gets its own tool registry
// and runtime; turns within a session are serialized, turns across sessions
// run concurrently.
type Manager struct {
	sessions   store.SessionStore
	transcript store.TranscriptStore
	notes      store.NotebookStore
	source     gate.Source
	deps       ToolDeps
	opts       Options
	summarizer *Summarizer
	log        *slog.Logger

	mu     sync.Mutex
	active map[string]*activeSession
}

type activeSession struct {
	mu      sync.Mutex
	runtime *Runtime
}

// NewManager creates a Manager. summarizer may be nil to disable transcript
// compaction.
func NewManager(
	sessions store.SessionStore,
	transcript store.TranscriptStore,
	notes store.NotebookStore,
	source gate.Source,
	deps ToolDeps,
	opts Options,
	summarizer *Summarizer,
	log *slog.Logger,
) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions:   sessions,
		transcript: transcript,
		notes:      notes,
		source:     source,
		deps:       deps,
		opts:       opts.withDefaults(),
		summarizer: summarizer,
		log:        log,
		active:     make(map[string]*activeSession),
	}
}

// Create starts a new session.
func (m *Manager) Create(ctx context.Context, playerName, module, modelID string) (*domain.Session, error) {
	sess := &domain.Session{
		ID:         uuid.New().String(),
		PlayerName: playerName,
		Module:     module,
		ModelID:    modelID,
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	m.log.Info("session created", "session", sess.ID, "player", playerName, "model", modelID)
	return sess, nil
}

// HandleTurn runs one player turn against the named session. Concurrent
// calls for the same session are serialized; each sees the state left by
// the previous turn.
func (m *Manager) HandleTurn(ctx context.Context, sessionID, playerInput string) (string, error) {
	act, err := m.activate(ctx, sessionID)
	if err != nil {
		return "", err
	}

	act.mu.Lock()
	defer act.mu.Unlock()

	answer, err := act.runtime.HandleTurn(ctx, playerInput)
	if err != nil {
		return "", err
	}

	if m.summarizer != nil {
		if err := m.summarizer.MaybeCompact(ctx, act.runtime.Session); err != nil {
			// Compaction is best effort; the turn already succeeded.
			m.log.Error("transcript compaction failed", "session", sessionID, "err", err)
		}
	}
	return answer, nil
}

// End drops a session's live state. The transcript and notebook stay on
// disk; a later HandleTurn rebuilds the runtime from them.
func (m *Manager) End(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, sessionID)
}

// activate returns the live state for a session, building it on first use.
func (m *Manager) activate(ctx context.Context, sessionID string) (*activeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if act, ok := m.active[sessionID]; ok {
		return act, nil
	}

	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	reg := registry.New()
	if err := RegisterTools(reg, sess.ID, m.deps); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	act := &activeSession{
		runtime: &Runtime{
			Session:    sess,
			Transcript: m.transcript,
			Notes:      m.notes,
			Gate: &gate.Gate{
				Source:  m.source,
				Timeout: m.opts.ModelTimeout,
				Log:     m.log,
			},
			Dispatcher: &dispatch.Dispatcher{
				Registry: reg,
				Timeout:  m.opts.ToolTimeout,
				Attempts: m.opts.ToolAttempts,
				Backoff:  m.opts.ToolBackoff,
				Log:      m.log,
			},
			Registry:   reg,
			MaxRounds:  m.opts.MaxRounds,
			MaxRetries: m.opts.MaxRetries,
			Log:        m.log,
		},
	}
	m.active[sessionID] = act
	return act, nil
}

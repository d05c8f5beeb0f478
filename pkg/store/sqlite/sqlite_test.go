package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &domain.Session{
		ID:         "sess-1",
		PlayerName: "Don Joe",
		Module:     "haunted-house",
		ModelID:    "gemini-2.0-flash",
	}

	// Create
	if err := s.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Get
	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PlayerName != "Don Joe" {
		t.Errorf("PlayerName = %q, want %q", got.PlayerName, "Don Joe")
	}

	// Update
	got.Module = "shadow-over-innsmouth"
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got2, _ := s.Get(ctx, "sess-1")
	if got2.Module != "shadow-over-innsmouth" {
		t.Errorf("after update: Module = %q", got2.Module)
	}

	// List
	sessions, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("List len = %d, want 1", len(sessions))
	}

	// Delete
	if err := s.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "sess-1"); err == nil {
		t.Error("expected error after delete, got nil")
	}
}

func TestTranscriptAppendAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, &domain.Session{ID: "sess-1", PlayerName: "test"})

	for i := 0; i < 5; i++ {
		turn := &domain.Turn{
			ID:          uuid.New().String(),
			SessionID:   "sess-1",
			Role:        domain.RolePlayer,
			ContentType: domain.ContentTypeText,
			Content:     fmt.Sprintf("message %d", i),
		}
		if err := s.Append(ctx, turn); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	turns, err := s.Turns(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("len = %d, want 5", len(turns))
	}
	for i, turn := range turns {
		if turn.Content != fmt.Sprintf("message %d", i) {
			t.Errorf("turn %d content = %q", i, turn.Content)
		}
	}

	// Limit returns only the tail, in chronological order.
	tail, err := s.Turns(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("Turns limit: %v", err)
	}
	if len(tail) != 2 || tail[0].Content != "message 3" || tail[1].Content != "message 4" {
		t.Errorf("tail = %+v", tail)
	}
}

func TestTranscriptCompaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, &domain.Session{ID: "sess-1"})

	for i := 0; i < 4; i++ {
		s.Append(ctx, &domain.Turn{
			ID: uuid.New().String(), SessionID: "sess-1",
			Role: domain.RolePlayer, ContentType: domain.ContentTypeText,
			Content: fmt.Sprintf("old %d", i),
		})
	}

	if err := s.Compact(ctx, "sess-1", "the party entered the house"); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	s.Append(ctx, &domain.Turn{
		ID: uuid.New().String(), SessionID: "sess-1",
		Role: domain.RolePlayer, ContentType: domain.ContentTypeText,
		Content: "new message",
	})

	// Compacted view starts at the summary turn.
	turns, err := s.Turns(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("compacted view len = %d, want 2: %+v", len(turns), turns)
	}
	if turns[0].Role != domain.RoleSummary {
		t.Errorf("first turn role = %q, want summary", turns[0].Role)
	}

	// Audit view keeps everything.
	all, err := s.AllTurns(ctx, "sess-1")
	if err != nil {
		t.Fatalf("AllTurns: %v", err)
	}
	if len(all) != 6 {
		t.Errorf("audit view len = %d, want 6", len(all))
	}
}

func TestSubscribeNotifiesOnAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, &domain.Session{ID: "sess-1"})
	ch := s.Subscribe()

	s.Append(ctx, &domain.Turn{
		ID: uuid.New().String(), SessionID: "sess-1",
		Role: domain.RolePlayer, ContentType: domain.ContentTypeText, Content: "hi",
	})

	select {
	case id := <-ch:
		if id != "sess-1" {
			t.Errorf("notified id = %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}
}

func TestUnsubscribeClosesAndStopsNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, &domain.Session{ID: "sess-1"})
	dropped := s.Subscribe()
	kept := s.Subscribe()

	s.Unsubscribe(dropped)
	s.Append(ctx, &domain.Turn{
		ID: uuid.New().String(), SessionID: "sess-1",
		Role: domain.RolePlayer, ContentType: domain.ContentTypeText, Content: "hi",
	})

	// The dropped channel is closed and received nothing.
	if id, ok := <-dropped; ok {
		t.Errorf("dropped subscriber received %q", id)
	}

	// The remaining subscriber still gets notified.
	select {
	case id := <-kept:
		if id != "sess-1" {
			t.Errorf("notified id = %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}
}

func TestNotebookAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, &domain.Session{ID: "sess-1"})

	note := &domain.Note{
		ID:        uuid.New().String(),
		SessionID: "sess-1",
		Author:    "keeper",
		Text:      "Don Joe has Spot Hidden 65",
	}
	if err := s.AppendNote(ctx, note); err != nil {
		t.Fatalf("AppendNote: %v", err)
	}

	notes, err := s.ListNotes(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 1 || notes[0].Text != "Don Joe has Spot Hidden 65" {
		t.Fatalf("notes = %+v", notes)
	}

	// Keyword filter.
	var found int
	for n, err := range s.QueryNotes(ctx, "sess-1", store.NoteFilter{Keyword: "Spot Hidden"}) {
		if err != nil {
			t.Fatalf("QueryNotes: %v", err)
		}
		if n.Text != "Don Joe has Spot Hidden 65" {
			t.Errorf("unexpected note %+v", n)
		}
		found++
	}
	if found != 1 {
		t.Errorf("found = %d, want 1", found)
	}

	// No match.
	for n, err := range s.QueryNotes(ctx, "sess-1", store.NoteFilter{Keyword: "cthulhu"}) {
		if err != nil {
			t.Fatalf("QueryNotes: %v", err)
		}
		t.Errorf("unexpected note %+v", n)
	}
}

func TestNotebookQueryIsRestartable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, &domain.Session{ID: "sess-1"})
	for i := 0; i < 3; i++ {
		s.AppendNote(ctx, &domain.Note{
			ID: uuid.New().String(), SessionID: "sess-1",
			Author: "keeper", Text: fmt.Sprintf("note %d", i),
		})
	}

	seq := s.QueryNotes(ctx, "sess-1", store.NoteFilter{})
	for pass := 0; pass < 2; pass++ {
		var count int
		for _, err := range seq {
			if err != nil {
				t.Fatalf("pass %d: %v", pass, err)
			}
			count++
		}
		if count != 3 {
			t.Errorf("pass %d: count = %d, want 3", pass, count)
		}
	}
}

func TestNotebookRecencyFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, &domain.Session{ID: "sess-1"})

	old := &domain.Note{
		ID: uuid.New().String(), SessionID: "sess-1",
		Author: "keeper", Text: "ancient history",
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	recent := &domain.Note{
		ID: uuid.New().String(), SessionID: "sess-1",
		Author: "keeper", Text: "fresh news",
	}
	s.AppendNote(ctx, old)
	s.AppendNote(ctx, recent)

	var texts []string
	for n, err := range s.QueryNotes(ctx, "sess-1", store.NoteFilter{Since: time.Now().UTC().Add(-time.Minute)}) {
		if err != nil {
			t.Fatalf("QueryNotes: %v", err)
		}
		texts = append(texts, n.Text)
	}
	if len(texts) != 1 || texts[0] != "fresh news" {
		t.Errorf("texts = %v", texts)
	}
}

func TestNotebookIsolatedBetweenSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, &domain.Session{ID: "sess-1"})
	s.Create(ctx, &domain.Session{ID: "sess-2"})

	s.AppendNote(ctx, &domain.Note{
		ID: uuid.New().String(), SessionID: "sess-1", Author: "keeper", Text: "secret",
	})

	notes, err := s.ListNotes(ctx, "sess-2")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("cross-session notes leaked: %+v", notes)
	}
}

package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/registry"
	"github.com/nstogner/keeper/pkg/store/sqlite"
)

type summaryProvider struct {
	summary string
	called  bool
}

func (p *summaryProvider) Name() string { return "fake" }

func (p *summaryProvider) List(ctx context.Context) ([]domain.Model, error) { return nil, nil }

func (p *summaryProvider) Stream(ctx context.Context, modelID, instructions string, messages []model.Message, tools []registry.Spec) (model.ModelStream, error) {
	p.called = true
	return &summaryStream{text: p.summary}, nil
}

type summaryStream struct{ text string }

func (s *summaryStream) FullMessage() (model.Message, error) {
	return textMessage(domain.RoleKeeper, s.text), nil
}
func (s *summaryStream) Close() error { return nil }

func TestSummarizerCompacts(t *testing.T) {
	db, err := sqlite.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	sess := &domain.Session{ID: "sess-1", ModelID: "test-model"}
	db.Create(ctx, sess)

	for i := 0; i < 12; i++ {
		db.Append(ctx, &domain.Turn{
			ID: uuid.New().String(), SessionID: "sess-1",
			Role: domain.RolePlayer, ContentType: domain.ContentTypeText,
			Content: fmt.Sprintf("turn %d", i),
		})
	}

	p := &summaryProvider{summary: "The investigators reached the cellar."}
	s := &Summarizer{Provider: p, Transcript: db, After: 10}

	if err := s.MaybeCompact(ctx, sess); err != nil {
		t.Fatalf("MaybeCompact: %v", err)
	}
	if !p.called {
		t.Fatal("provider never called")
	}

	turns, _ := db.Turns(ctx, "sess-1", 0)
	if turns[0].Role != domain.RoleSummary {
		t.Fatalf("first turn role = %q, want summary", turns[0].Role)
	}
	if turns[0].Content != "The investigators reached the cellar." {
		t.Errorf("summary = %q", turns[0].Content)
	}
	// The working context shrank.
	if len(turns) >= 12 {
		t.Errorf("compacted view still has %d turns", len(turns))
	}
}

func TestSummarizerTinyThresholds(t *testing.T) {
	// A threshold of 1 or 2 puts the cut point at the very end of the
	// transcript; it must clamp instead of reading past it.
	for _, after := range []int{1, 2} {
		t.Run(fmt.Sprintf("after=%d", after), func(t *testing.T) {
			db, err := sqlite.New(t.TempDir() + "/test.db")
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { db.Close() })

			ctx := context.Background()
			sess := &domain.Session{ID: "sess-1", ModelID: "test-model"}
			db.Create(ctx, sess)

			p := &summaryProvider{summary: "A short recap."}
			s := &Summarizer{Provider: p, Transcript: db, After: after}

			for i := 0; i < 4; i++ {
				db.Append(ctx, &domain.Turn{
					ID: uuid.New().String(), SessionID: "sess-1",
					Role: domain.RolePlayer, ContentType: domain.ContentTypeText,
					Content: fmt.Sprintf("turn %d", i),
				})
				if err := s.MaybeCompact(ctx, sess); err != nil {
					t.Fatalf("MaybeCompact after %d turns: %v", i+1, err)
				}
			}
		})
	}
}

func TestSummarizerBelowThresholdDoesNothing(t *testing.T) {
	db, err := sqlite.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	sess := &domain.Session{ID: "sess-1", ModelID: "test-model"}
	db.Create(ctx, sess)
	db.Append(ctx, &domain.Turn{
		ID: uuid.New().String(), SessionID: "sess-1",
		Role: domain.RolePlayer, ContentType: domain.ContentTypeText, Content: "hi",
	})

	p := &summaryProvider{summary: "unused"}
	s := &Summarizer{Provider: p, Transcript: db, After: 10}

	if err := s.MaybeCompact(ctx, sess); err != nil {
		t.Fatalf("MaybeCompact: %v", err)
	}
	if p.called {
		t.Error("provider called below threshold")
	}
}

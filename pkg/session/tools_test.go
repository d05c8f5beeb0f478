package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nstogner/keeper/pkg/character"
	"github.com/nstogner/keeper/pkg/dice"
	"github.com/nstogner/keeper/pkg/registry"
	"github.com/nstogner/keeper/pkg/retrieval"
	"github.com/nstogner/keeper/pkg/store/sqlite"

	"github.com/nstogner/keeper/pkg/domain"
)

func newToolDeps(t *testing.T) (ToolDeps, *sqlite.Store) {
	t.Helper()
	db, err := sqlite.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Create(context.Background(), &domain.Session{ID: "sess-1"}); err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return ToolDeps{
		Roller: dice.NewSeeded(42),
		Table:  dice.DefaultTable(),
		Notes:  db,
	}, db
}

func mustGet(t *testing.T, reg *registry.Registry, name string) *registry.Spec {
	t.Helper()
	spec, ok := reg.Get(name)
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	return spec
}

func TestRegisterToolsCore(t *testing.T) {
	deps, _ := newToolDeps(t)
	reg := registry.New()
	if err := RegisterTools(reg, "sess-1", deps); err != nil {
		t.Fatalf("RegisterTools: %v", err)
	}

	for _, name := range []string{"roll_dice", "roll_skill", "record_note", "query_notes", "suggest_choices"} {
		mustGet(t, reg, name)
	}
	// Optional backends were nil, so their tools must not exist.
	for _, name := range []string{"consult_module", "search_internet", "create_character"} {
		if _, ok := reg.Get(name); ok {
			t.Errorf("tool %q registered without a backend", name)
		}
	}
}

func TestRollDiceTool(t *testing.T) {
	deps, _ := newToolDeps(t)
	out, err := deps.rollDice(context.Background(), map[string]any{"faces": float64(6)})
	if err != nil {
		t.Fatalf("rollDice: %v", err)
	}
	if !strings.HasPrefix(out, "Rolled a d6: ") {
		t.Errorf("out = %q", out)
	}
}

func TestRollSkillTool(t *testing.T) {
	deps, _ := newToolDeps(t)
	out, err := deps.rollSkill(context.Background(), map[string]any{
		"skill": float64(65),
		"name":  "Spot Hidden",
	})
	if err != nil {
		t.Fatalf("rollSkill: %v", err)
	}
	if !strings.Contains(out, "Spot Hidden 65") {
		t.Errorf("out = %q", out)
	}
}

func TestRollSkillSchemaMatchesResolver(t *testing.T) {
	deps, _ := newToolDeps(t)
	reg := registry.New()
	if err := RegisterTools(reg, "sess-1", deps); err != nil {
		t.Fatalf("RegisterTools: %v", err)
	}
	spec := mustGet(t, reg, "roll_skill")

	// A skill of 0 fails schema validation, so the model gets an
	// invalid-arguments observation rather than a resolver error.
	errs := spec.Validate(map[string]any{"skill": float64(0)})
	if len(errs) != 1 || errs[0].Field != "skill" {
		t.Fatalf("validation errs = %+v", errs)
	}
	if _, err := deps.Table.Classify(50, 0); !errors.Is(err, dice.ErrInvalidSkill) {
		t.Errorf("Classify err = %v, want ErrInvalidSkill", err)
	}
}

func TestNoteTools(t *testing.T) {
	deps, db := newToolDeps(t)
	ctx := context.Background()

	record := deps.recordNote("sess-1")
	if _, err := record(ctx, map[string]any{"text": "The brass key is in the parlor."}); err != nil {
		t.Fatalf("recordNote: %v", err)
	}

	notes, _ := db.ListNotes(ctx, "sess-1")
	if len(notes) != 1 || notes[0].Author != "keeper" {
		t.Fatalf("notes = %+v", notes)
	}

	query := deps.queryNotes("sess-1")
	out, err := query(ctx, map[string]any{"keyword": "brass key"})
	if err != nil {
		t.Fatalf("queryNotes: %v", err)
	}
	if !strings.Contains(out, "The brass key is in the parlor.") {
		t.Errorf("out = %q", out)
	}

	out, err = query(ctx, map[string]any{"keyword": "shoggoth"})
	if err != nil {
		t.Fatalf("queryNotes: %v", err)
	}
	if !strings.Contains(out, "No notes mention") {
		t.Errorf("out = %q", out)
	}
}

func TestConsultModuleTool(t *testing.T) {
	deps, _ := newToolDeps(t)
	deps.Module = retrieval.ParseModuleDoc("# The Parlor\n\nA dusty parlor with a grand piano.")

	reg := registry.New()
	if err := RegisterTools(reg, "sess-1", deps); err != nil {
		t.Fatalf("RegisterTools: %v", err)
	}

	spec := mustGet(t, reg, "consult_module")
	if !spec.External {
		t.Error("consult_module must be external")
	}

	out, err := spec.Handler(context.Background(), map[string]any{"query": "parlor piano"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(out, "grand piano") {
		t.Errorf("out = %q", out)
	}

	out, err = spec.Handler(context.Background(), map[string]any{"query": "submarine"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if out != "The module has nothing on that." {
		t.Errorf("out = %q", out)
	}
}

type fakeBuilder struct {
	sheet   string
	missing []string
}

func (b *fakeBuilder) Generate(ctx context.Context, attrs map[string]any) (string, error) {
	if len(b.missing) > 0 {
		return "", &character.MissingFieldsError{Fields: b.missing}
	}
	if b.sheet == "" {
		return "", errors.New("builder offline")
	}
	return b.sheet, nil
}

func TestCreateCharacterTool(t *testing.T) {
	deps, _ := newToolDeps(t)
	deps.Characters = &fakeBuilder{sheet: "STR 40 CON 50"}

	out, err := deps.createCharacter(context.Background(), map[string]any{
		"attributes": map[string]any{"name": "Harvey", "occupation": "Journalist"},
	})
	if err != nil {
		t.Fatalf("createCharacter: %v", err)
	}
	if !strings.Contains(out, "STR 40 CON 50") {
		t.Errorf("out = %q", out)
	}
}

func TestCreateCharacterToolMissingFields(t *testing.T) {
	deps, _ := newToolDeps(t)
	deps.Characters = &fakeBuilder{missing: []string{"occupation", "era"}}

	// Missing fields are a conversational outcome, not a tool failure.
	out, err := deps.createCharacter(context.Background(), map[string]any{
		"attributes": map[string]any{"name": "Harvey"},
	})
	if err != nil {
		t.Fatalf("createCharacter: %v", err)
	}
	if !strings.Contains(out, "occupation, era") {
		t.Errorf("out = %q", out)
	}
}

func TestSuggestChoicesTool(t *testing.T) {
	out, err := suggestChoices(context.Background(), map[string]any{
		"choices": []any{"Search the desk", "Question the butler"},
	})
	if err != nil {
		t.Fatalf("suggestChoices: %v", err)
	}
	if !strings.Contains(out, "1. Search the desk") || !strings.Contains(out, "2. Question the butler") {
		t.Errorf("out = %q", out)
	}

	if _, err := suggestChoices(context.Background(), map[string]any{"choices": []any{}}); err == nil {
		t.Error("expected error for empty choices")
	}
}

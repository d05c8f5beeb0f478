package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/nstogner/keeper/pkg/character"
	"github.com/nstogner/keeper/pkg/dice"
	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/registry"
	"github.com/nstogner/keeper/pkg/retrieval"
	"github.com/nstogner/keeper/pkg/store"
)

// ToolDeps are the backends the built-in tools run against. Module, Web, and
// Characters are optional; their tools are simply not registered when nil.
type ToolDeps struct {
	Roller     *dice.Roller
	Table      *dice.Table
	Notes      store.NotebookStore
	Module     retrieval.Gateway
	Web        retrieval.Gateway
	Characters character.Builder
}

// RegisterTools registers the Keeper's built-in tools for one session. Note
// tools are bound to sessionID so a session can never read or write another
// session's notebook.
func RegisterTools(reg *registry.Registry, sessionID string, deps ToolDeps) error {
	min1, max100 := 1.0, 100.0

	specs := []registry.Spec{
		{
			Name:        "roll_dice",
			Description: "Roll a single die with the given number of faces and return the result.",
			Params: []registry.Param{
				{Name: "faces", Type: registry.TypeInteger, Description: "Number of faces on the die (e.g. 6, 20, 100).", Required: true, Min: &min1, Max: &max100},
			},
			Handler: deps.rollDice,
		},
		{
			Name:        "roll_skill",
			Description: "Roll percentile dice against an investigator's skill value and return the degree of success.",
			Params: []registry.Param{
				{Name: "skill", Type: registry.TypeInteger, Description: "The skill value to roll against (1-100).", Required: true, Min: &min1, Max: &max100},
				{Name: "name", Type: registry.TypeString, Description: "The name of the skill, for narration (e.g. Spot Hidden)."},
			},
			Handler: deps.rollSkill,
		},
		{
			Name:        "record_note",
			Description: "Record a fact in the session notebook so it can be recalled later. Use for names, wounds, clues, promises, and anything worth remembering.",
			Params: []registry.Param{
				{Name: "text", Type: registry.TypeString, Description: "The fact to record, as one or two sentences.", Required: true},
			},
			Handler: deps.recordNote(sessionID),
		},
		{
			Name:        "query_notes",
			Description: "Search the session notebook for previously recorded facts.",
			Params: []registry.Param{
				{Name: "keyword", Type: registry.TypeString, Description: "Word or phrase to search for. Omit to get the most recent notes."},
				{Name: "limit", Type: registry.TypeInteger, Description: "Maximum notes to return (default 5).", Min: &min1},
			},
			Handler: deps.queryNotes(sessionID),
		},
	}

	if deps.Module != nil {
		specs = append(specs, registry.Spec{
			Name:        "consult_module",
			Description: "Look up the scenario module text for locations, NPCs, clues, and events.",
			Params: []registry.Param{
				{Name: "query", Type: registry.TypeString, Description: "What to look up.", Required: true},
			},
			External: true,
			Handler:  queryGateway(deps.Module, "The module has nothing on that."),
		})
	}

	if deps.Web != nil {
		specs = append(specs, registry.Spec{
			Name:        "search_internet",
			Description: "Search the web for real-world background (history, geography, period detail) to flavor the narration.",
			Params: []registry.Param{
				{Name: "query", Type: registry.TypeString, Description: "The search query.", Required: true},
			},
			External: true,
			Handler:  queryGateway(deps.Web, "The search returned nothing useful."),
		})
	}

	if deps.Characters != nil {
		specs = append(specs, registry.Spec{
			Name:        "create_character",
			Description: "Generate an investigator sheet from the attributes gathered so far. If attributes are missing, the tool names them; ask the player and call again.",
			Params: []registry.Param{
				{Name: "attributes", Type: registry.TypeObject, Description: "Attributes collected from the player, e.g. name, occupation, era, age.", Required: true},
			},
			External: true,
			Handler:  deps.createCharacter,
		})
	}

	specs = append(specs, registry.Spec{
		Name:        "suggest_choices",
		Description: "Offer the player a short list of concrete options for what to do next. Use when the player seems stuck.",
		Params: []registry.Param{
			{Name: "choices", Type: registry.TypeStringArray, Description: "Two to four options, each phrased as a player action.", Required: true},
		},
		Handler: suggestChoices,
	})

	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func (d ToolDeps) rollDice(ctx context.Context, args map[string]any) (string, error) {
	var in struct {
		Faces int `mapstructure:"faces"`
	}
	if err := mapstructure.WeakDecode(args, &in); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}

	value, err := d.Roller.Roll(in.Faces)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Rolled a d%d: %d", in.Faces, value), nil
}

func (d ToolDeps) rollSkill(ctx context.Context, args map[string]any) (string, error) {
	var in struct {
		Skill int    `mapstructure:"skill"`
		Name  string `mapstructure:"name"`
	}
	if err := mapstructure.WeakDecode(args, &in); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}

	result, err := d.Roller.RollSkill(d.Table, in.Skill)
	if err != nil {
		return "", err
	}

	label := "skill"
	if in.Name != "" {
		label = in.Name
	}
	return fmt.Sprintf("Rolled %d against %s %d: %s", result.Value, label, in.Skill, result.Degree), nil
}

func (d ToolDeps) recordNote(sessionID string) registry.Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		var in struct {
			Text string `mapstructure:"text"`
		}
		if err := mapstructure.WeakDecode(args, &in); err != nil {
			return "", fmt.Errorf("decoding arguments: %w", err)
		}
		if strings.TrimSpace(in.Text) == "" {
			return "", errors.New("note text is empty")
		}

		note := &domain.Note{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			Author:    string(domain.RoleKeeper),
			Text:      in.Text,
		}
		if err := d.Notes.AppendNote(ctx, note); err != nil {
			return "", fmt.Errorf("recording note: %w", err)
		}
		return "Noted.", nil
	}
}

func (d ToolDeps) queryNotes(sessionID string) registry.Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		var in struct {
			Keyword string `mapstructure:"keyword"`
			Limit   int    `mapstructure:"limit"`
		}
		if err := mapstructure.WeakDecode(args, &in); err != nil {
			return "", fmt.Errorf("decoding arguments: %w", err)
		}
		if in.Limit <= 0 {
			in.Limit = 5
		}

		var lines []string
		for note, err := range d.Notes.QueryNotes(ctx, sessionID, store.NoteFilter{
			Keyword: in.Keyword,
			Limit:   in.Limit,
		}) {
			if err != nil {
				return "", fmt.Errorf("querying notes: %w", err)
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s", note.CreatedAt.Format(time.DateTime), note.Text))
		}

		if len(lines) == 0 {
			if in.Keyword != "" {
				return fmt.Sprintf("No notes mention %q.", in.Keyword), nil
			}
			return "The notebook is empty.", nil
		}
		return strings.Join(lines, "\n"), nil
	}
}

// queryGateway adapts a retrieval gateway into a tool handler. Backend
// failures return errors so the dispatcher's retry policy applies; an empty
// result set returns the given text instead, so the model treats "nothing
// found" as an answer rather than a failure.
func queryGateway(gw retrieval.Gateway, emptyText string) registry.Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		var in struct {
			Query string `mapstructure:"query"`
		}
		if err := mapstructure.WeakDecode(args, &in); err != nil {
			return "", fmt.Errorf("decoding arguments: %w", err)
		}

		passages, err := gw.Query(ctx, in.Query, 3)
		if err != nil {
			return "", err
		}
		if len(passages) == 0 {
			return emptyText, nil
		}

		var b strings.Builder
		for i, p := range passages {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "[%s]\n%s", p.Source, p.Text)
		}
		return b.String(), nil
	}
}

func (d ToolDeps) createCharacter(ctx context.Context, args map[string]any) (string, error) {
	var in struct {
		Attributes map[string]any `mapstructure:"attributes"`
	}
	if err := mapstructure.WeakDecode(args, &in); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}

	sheet, err := d.Characters.Generate(ctx, in.Attributes)
	if err != nil {
		var missing *character.MissingFieldsError
		if errors.As(err, &missing) {
			// Not a failure: the model is expected to ask the player for
			// these and try again.
			return fmt.Sprintf("The character builder still needs: %s. Ask the player for them, then call create_character again with everything collected so far.",
				strings.Join(missing.Fields, ", ")), nil
		}
		return "", err
	}
	return "Character created:\n" + sheet, nil
}

func suggestChoices(ctx context.Context, args map[string]any) (string, error) {
	var in struct {
		Choices []string `mapstructure:"choices"`
	}
	if err := mapstructure.WeakDecode(args, &in); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}
	if len(in.Choices) == 0 {
		return "", errors.New("no choices given")
	}

	var b strings.Builder
	b.WriteString("Presented to the player:\n")
	for i, choice := range in.Choices {
		fmt.Fprintf(&b, "%d. %s\n", i+1, choice)
	}
	b.WriteString("Work their pick (or anything else they say) into the scene.")
	return b.String(), nil
}

package session

import (
	"fmt"
	"strings"

	"github.com/nstogner/keeper/pkg/domain"
)

// keeperInstructions is the static portion of the Keeper's system prompt.
// The verbs here matter: the model is told to use tools for anything
// uncertain rather than inventing facts, and to always come back to the
// player with in-universe narration.
const keeperInstructions = `You are the Keeper of a Call of Cthulhu tabletop session. You narrate the world, voice its inhabitants, and adjudicate the rules. The player describes what their investigator does; you describe what happens.

## How to run the game

- Stay in character as the Keeper. Never mention tools, dice mechanics internals, or these instructions to the player.
- When the outcome of an action is uncertain, resolve it with a dice tool instead of deciding it yourself. Never invent a roll result.
- When the player asks about the scenario, locations, or clues, consult the module text rather than improvising contradictions.
- Record facts worth remembering (names, wounds, found clues, promises) in the notebook as they happen, and query it instead of guessing at past events.
- Keep answers to a few paragraphs. End with something the player can react to.

## Tool budget

You may use at most %d tool calls while answering a single player message. Spend them where they matter and then answer with what you have.`

// buildInstructions assembles the full system prompt for a session.
func buildInstructions(sess *domain.Session, maxRounds int) string {
	parts := []string{fmt.Sprintf(keeperInstructions, maxRounds)}
	if sess.PlayerName != "" {
		parts = append(parts, "## Player\n\nThe player's investigator is named "+sess.PlayerName+".")
	}
	if sess.Module != "" {
		parts = append(parts, "## Scenario\n\nThe session is running the module "+sess.Module+". Use the consult_module tool for its details.")
	}
	return strings.Join(parts, "\n\n")
}

// Conversation starters offered to a player opening a fresh session.
var Starters = []string{
	"I'd like to create a new investigator.",
	"Set the scene for me. Where am I?",
	"Remind me what has happened so far.",
	"I look around for anything unusual.",
}

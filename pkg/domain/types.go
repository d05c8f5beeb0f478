package domain

import "time"

// Session represents one player's conversation with the Keeper. Each session
// owns its transcript and notebook exclusively; nothing is shared between
// sessions.
type Session struct {
	ID         string    `json:"id"`
	PlayerName string    `json:"player_name"`
	Module     string    `json:"module,omitempty"` // scenario module identifier
	ModelID    string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Turn is a single entry in a session's transcript. Turns are immutable once
// appended; every gate decision and dispatch outcome is recorded as a turn so
// an operator can audit why a tool was or wasn't used.
type Turn struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Role        Role      `json:"role"`
	ContentType string    `json:"content_type"` // "text", "tool_call", "tool_result"
	Content     string    `json:"content"`      // Text, or a JSON-encoded tool call/result
	Model       string    `json:"model,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToolCall represents a tool invocation requested by the model. One ToolCall
// exists per dispatch attempt.
type ToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input"`
	Status string         `json:"status,omitempty"` // pending, executed, failed
}

// ToolResult represents the outcome of a tool call execution. ErrorKind is
// set only when IsError is true and names the dispatcher failure class.
type ToolResult struct {
	ToolCallID string    `json:"tool_call_id"`
	Content    string    `json:"content"`
	IsError    bool      `json:"is_error,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
}

// Note is an append-only journal entry in a session's notebook. Notes are
// never edited or deleted; the Keeper reconstructs facts (a character's skill
// value, a clue already found) from their narrative text.
type Note struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Author    string    `json:"author"` // keeper, player, system
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Model represents an available LLM model.
type Model struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

package domain

// Role defines the author of a transcript turn.
type Role string

const (
	// RolePlayer indicates a message typed by the player.
	RolePlayer Role = "player"
	// RoleKeeper indicates a message from the model acting as Keeper.
	RoleKeeper Role = "keeper"
	// RoleTool indicates a tool outcome.
	RoleTool Role = "tool"
	// RoleSystem indicates a system-level observation (e.g. a corrective
	// message fed back to the model after a failed tool call).
	RoleSystem Role = "system"
	// RoleSummary indicates a summary turn appended by the compaction hook.
	RoleSummary Role = "summary"
)

// Turn content types.
const (
	ContentTypeText       = "text"
	ContentTypeToolCall   = "tool_call"
	ContentTypeToolResult = "tool_result"
)

// Tool call statuses. A call starts Pending and moves to exactly one of
// Executed or Failed; failed attempts stay in the transcript for audit.
const (
	ToolCallPending  = "pending"
	ToolCallExecuted = "executed"
	ToolCallFailed   = "failed"
)

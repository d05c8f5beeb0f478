package domain

// ErrorKind classifies a recoverable failure in the dialogue loop. None of
// these terminate a session: the first five are converted into corrective
// observations fed back to the model, and ErrMaxRounds forces a best-effort
// answer.
type ErrorKind string

const (
	// ErrMalformedOutput indicates the model produced output that could not
	// be interpreted as a final answer or a tool request.
	ErrMalformedOutput ErrorKind = "malformed_model_output"
	// ErrUnknownTool indicates a tool request naming a tool that is not in
	// the registry. No handler runs.
	ErrUnknownTool ErrorKind = "unknown_tool"
	// ErrInvalidArguments indicates one or more arguments violated the tool's
	// schema. The detail names every offending field.
	ErrInvalidArguments ErrorKind = "invalid_arguments"
	// ErrToolExecution indicates the handler failed or panicked.
	ErrToolExecution ErrorKind = "tool_execution_error"
	// ErrToolTimeout indicates an external tool call exceeded its deadline.
	ErrToolTimeout ErrorKind = "tool_timeout"
	// ErrMaxRounds indicates the per-turn round cap was hit and a best-effort
	// answer was forced.
	ErrMaxRounds ErrorKind = "max_rounds_exceeded"
)

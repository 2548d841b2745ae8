package agent

import "errors"

var (
	// ErrExecution is returned when the first reasoning step fails before
	// any evidence has been gathered.
	ErrExecution = errors.New("agentic execution failed")

	// ErrUnknownTool is returned when a policy selects a tool that is not
	// registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrEmptyQuery is returned when a run is requested without a query.
	ErrEmptyQuery = errors.New("query is required")
)

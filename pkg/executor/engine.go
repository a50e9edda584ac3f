// Package executor drives query executions: it selects tools and prompt
// templates per query type, invokes the external execution engine, and
// translates the engine's step notifications into session events.
package executor

import "context"

// StepFunc receives a step notification from a running engine. The session
// the step belongs to is bound by the closure that created the callback, so
// any number of concurrent runs can report steps without shared routing
// state.
type StepFunc func(stepID, stepName, toolID string, output any)

// RunResult is the successful outcome of an engine run.
type RunResult struct {
	Output any
}

// Engine is the execution collaborator boundary: it plans and runs a
// prompt against a tool selection, reporting zero or more steps through
// onStep before returning the final result or an error.
type Engine interface {
	// AvailableTools returns the tool identifiers this engine can serve.
	AvailableTools() []string

	// Run executes the prompt. Step notifications are delivered on the
	// calling goroutine, in order.
	Run(ctx context.Context, prompt string, tools []string, onStep StepFunc) (*RunResult, error)
}

package gorepl

import "fmt"

// EvaluationResult is the outcome of evaluating one submission. Exactly one
// of the three variants is produced per evaluation: Success, Error or
// Cancelled.
type EvaluationResult interface {
	evaluationResult()
}

// Success means the submission compiled and ran without an unhandled fault.
type Success struct {
	Input       string
	ReturnValue any
	HasValue    bool
	References  []*ReferenceArtifact
}

// Error means the submission failed to compile, or compiled and then faulted
// while running. The session continues; the chain tip is unchanged.
type Error struct {
	Input string
	Err   error
}

// Cancelled means the evaluation was aborted through its context before it
// completed.
type Cancelled struct {
	Input string
}

func (Success) evaluationResult()   {}
func (Error) evaluationResult()     {}
func (Cancelled) evaluationResult() {}

func (s Success) String() string {
	if !s.HasValue {
		return "<no value>"
	}
	return fmt.Sprintf("%v", s.ReturnValue)
}

func (e Error) String() string {
	if e.Err == nil {
		return "error"
	}
	return e.Err.Error()
}

func (Cancelled) String() string { return "cancelled" }

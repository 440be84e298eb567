package workflow

import "fmt"

// InputError is a malformed request body or unknown resume action: 400,
// no state change.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return "input error: " + e.Reason }

// StateMismatchError is a resume/retry call whose thread is not in a
// compatible state: 409, no state change.
type StateMismatchError struct {
	ThreadID string
	Reason   string
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("state mismatch for thread %s: %s", e.ThreadID, e.Reason)
}

// PlannerError is raised when the LLM Gateway fails to produce a
// schema-valid plan after its bounded retry budget. The thread remains
// usable for a new top-level request; only the current request's run
// terminates in error.
type PlannerError struct {
	Cause error
}

func (e *PlannerError) Error() string { return "planner error: " + e.Cause.Error() }
func (e *PlannerError) Unwrap() error { return e.Cause }

// ExecutionError marks a single step's tool/LLM call as failed. The step
// transitions to failed and is retryable via /chat/retry.
type ExecutionError struct {
	StepNumber int
	Cause      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error at step %d: %s", e.StepNumber, e.Cause.Error())
}
func (e *ExecutionError) Unwrap() error { return e.Cause }

// NotFoundError is a lookup against a thread the checkpointer has never
// seen: 404, no state change.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string { return "not found: " + e.Reason }

// CheckpointerError is a write failure mid-transition: fatal for the
// current request. The thread is left at its last durable checkpoint;
// no partial transition is observable.
type CheckpointerError struct {
	ThreadID string
	Cause    error
}

func (e *CheckpointerError) Error() string {
	return fmt.Sprintf("checkpointer error for thread %s: %s", e.ThreadID, e.Cause.Error())
}
func (e *CheckpointerError) Unwrap() error { return e.Cause }

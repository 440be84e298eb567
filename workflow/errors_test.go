package workflow

import (
	"errors"
	"testing"
)

func TestInputError_Message(t *testing.T) {
	err := &InputError{Reason: "thread_id is required"}
	if err.Error() != "input error: thread_id is required" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestStateMismatchError_Message(t *testing.T) {
	err := &StateMismatchError{ThreadID: "t1", Reason: "not awaiting approval"}
	if err.Error() != "state mismatch for thread t1: not awaiting approval" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestPlannerError_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("transport exploded")
	err := &PlannerError{Cause: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to see through to the cause")
	}
	if err.Error() != "planner error: transport exploded" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestExecutionError_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("tool failed")
	err := &ExecutionError{StepNumber: 3, Cause: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to see through to the cause")
	}
	if err.Error() != "execution error at step 3: tool failed" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestNotFoundError_Message(t *testing.T) {
	err := &NotFoundError{Reason: "thread xyz unknown"}
	if err.Error() != "not found: thread xyz unknown" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestCheckpointerError_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := &CheckpointerError{ThreadID: "t1", Cause: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to see through to the cause")
	}
	if err.Error() != "checkpointer error for thread t1: disk full" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

package workflow

import "context"

// Tool is the narrow capability interface the executor invokes; concrete
// tools are supplied by a Registry.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	ApprovalClass() ApprovalClass
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Registry presents the set of tools a caller is authorized to use for
// one request. It is immutable for the duration of the request it was
// built for.
type Registry interface {
	// Snapshot returns the shape-only integration list persisted in
	// GraphState (never credentials).
	Snapshot() RegistrySnapshot

	// ToolsFor returns callable tool descriptors for a step's tool-id
	// hints. Tools whose credentials were missing at build time are
	// never returned.
	ToolsFor(stepHints []string) []Tool
}

// PlanResult is the LLM Gateway's plan() output: a schema-valid Plan plus
// token usage for cost tracking.
type PlanResult struct {
	Plan         Plan
	InputTokens  int
	OutputTokens int
}

// ExecResult is the LLM Gateway's execute_step() output.
type ExecResult struct {
	ResultText   string
	ToolOutputs  map[string]interface{}
	Rationale    string
	InputTokens  int
	OutputTokens int
}

// PlanToken and StepToken are the partial-output units of the streaming
// variants of Plan/ExecuteStep, which yield partial tokens followed by
// a final structured result.
type PlanToken struct{ Content string }
type StepToken struct{ Content string }

// Gateway encapsulates all LLM calls behind the two operations the graph
// runtime needs. Implementations live in package llm; the interface is
// declared here, where it's consumed.
type Gateway interface {
	// Plan generates a schema-valid Plan from a fresh or continued
	// request. On malformed model output the implementation retries
	// internally up to a small bounded number of times, then returns a
	// *PlannerError.
	Plan(ctx context.Context, request string, history []Message, registry Registry) (PlanResult, error)

	// ExecuteStep runs one step, optionally looping through a bounded
	// number of tool calls. On failure returns a *ExecutionError wrapping
	// the underlying cause.
	ExecuteStep(ctx context.Context, step Step, state GraphState, tools []Tool) (ExecResult, error)

	// PlanStream is the token-streaming variant of Plan. onToken is
	// called for each partial token before the final PlanResult is
	// returned; it may be called zero times if the backend doesn't
	// support streaming for this call.
	PlanStream(ctx context.Context, request string, history []Message, registry Registry, onToken func(PlanToken)) (PlanResult, error)

	// ExecuteStepStream is the token-streaming variant of ExecuteStep.
	ExecuteStepStream(ctx context.Context, step Step, state GraphState, tools []Tool, onToken func(StepToken)) (ExecResult, error)
}

// Package workflow implements the plan-and-execute graph (planner, router,
// executor, synthesizer), its checkpointed state, and the service layer
// that mediates between the HTTP surface and the graph runtime.
package workflow

import "time"

// Role identifies the sender of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one append-only entry in a thread's conversation history.
type Message struct {
	Role         Role                   `json:"role"`
	Content      string                 `json:"content"`
	ToolCallMeta map[string]interface{} `json:"tool_call_meta,omitempty"`
}

// StepStatus is a Step's position in its lifecycle. Transitions:
// pending -> {in_progress, awaiting_approval} (router);
// in_progress -> {completed, failed} (executor);
// awaiting_approval -> {in_progress (approve/edit), skipped (skip)};
// a retry from step k resets step k and every later step to pending,
// whatever their status.
type StepStatus string

const (
	StepPending          StepStatus = "pending"
	StepInProgress       StepStatus = "in_progress"
	StepAwaitingApproval StepStatus = "awaiting_approval"
	StepCompleted        StepStatus = "completed"
	StepFailed           StepStatus = "failed"
	StepSkipped          StepStatus = "skipped"
)

// Step is one unit of a Plan. Step numbers within a Plan are dense and
// monotonic, 1..N.
type Step struct {
	Number           int                    `json:"number"`
	Description      string                 `json:"description"`
	ToolHints        []string               `json:"tool_hints,omitempty"`
	RequiresApproval bool                   `json:"requires_approval"`
	ApprovalReason   string                 `json:"approval_reason,omitempty"`
	Status           StepStatus             `json:"status"`
	Result           string                 `json:"result,omitempty"`
	Error            string                 `json:"error,omitempty"`
	Rationale        string                 `json:"rationale,omitempty"`
	Preview          map[string]interface{} `json:"preview,omitempty"`
	ToolOutputs      map[string]interface{} `json:"tool_outputs,omitempty"`
}

// Plan is the planner node's output: a rationale plus an ordered list of
// steps. A thread holds at most one active Plan; a new top-level request
// replaces it while message history is preserved.
type Plan struct {
	Request    string `json:"request"`
	Thinking   string `json:"thinking"`
	Steps      []Step `json:"steps"`
	IsComplete bool   `json:"is_complete"`
}

// ApprovalClass classifies how a tool's use is gated.
type ApprovalClass string

const (
	ApprovalSilent    ApprovalClass = "silent"
	ApprovalAdvisory  ApprovalClass = "advisory"
	ApprovalMandatory ApprovalClass = "mandatory"
)

// IntegrationInfo is the display metadata for one loaded integration,
// shown to the caller and carried (shape only, never secrets) in
// GraphState so resumes can restore UI context.
type IntegrationInfo struct {
	IntegrationID string        `json:"integration_id"`
	DisplayName   string        `json:"display_name"`
	IconID        string        `json:"icon_id"`
	ToolCount     int           `json:"tool_count"`
	ApprovalClass ApprovalClass `json:"approval_class"`
}

// RegistrySnapshot is the shape-only view of a Tool Registry persisted in
// GraphState; it never carries credentials.
type RegistrySnapshot struct {
	Integrations []IntegrationInfo `json:"integrations"`
}

// GraphState is the single value persisted per checkpoint and the type
// parameter for the graph.Engine this package wires up.
type GraphState struct {
	ThreadID         string           `json:"thread_id"`
	Messages         []Message        `json:"messages"`
	Plan             *Plan            `json:"plan"`
	CurrentStep      int              `json:"current_step"`
	Registry         RegistrySnapshot `json:"registry"`
	LastError        string           `json:"last_error,omitempty"`
	AwaitingApproval bool             `json:"awaiting_approval"`
	IsComplete       bool             `json:"is_complete"`

	// PendingInterrupt carries the suspension detail surfaced in the
	// approval_required SSE frame. Populated only while AwaitingApproval.
	PendingInterrupt *Interrupt `json:"pending_interrupt,omitempty"`

	// PendingEdit carries a caller-supplied substitution for the current
	// step's tool input from an `edit` resume decision. The executor
	// consumes it in place of its own reasoning for exactly one step,
	// then clears it.
	PendingEdit map[string]interface{} `json:"pending_edit,omitempty"`

	// InputTokens/OutputTokens/EstimatedCostUSD are running totals that
	// Merge accumulates over the thread's life; the progress frame's
	// metadata carries EstimatedCostUSD.
	InputTokens      int64     `json:"input_tokens,omitempty"`
	OutputTokens     int64     `json:"output_tokens,omitempty"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// Interrupt describes why a step is suspended pending a human decision.
type Interrupt struct {
	StepNumber  int                    `json:"step_number"`
	Description string                 `json:"description"`
	Reason      string                 `json:"reason"`
	Preview     map[string]interface{} `json:"preview,omitempty"`
	Actions     []string               `json:"actions"`
}

// ResumeAction is the decision fed into a suspended thread via /chat/resume.
type ResumeAction string

const (
	ResumeApprove ResumeAction = "approve"
	ResumeEdit    ResumeAction = "edit"
	ResumeSkip    ResumeAction = "skip"
)

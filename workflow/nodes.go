package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowforge/agentcore/graph"
	"github.com/flowforge/agentcore/graph/emit"
)

// maxContextSummaryTurns is how many of the most recent messages are kept
// verbatim for the planner when a thread has more than two prior
// messages; all older ones are folded into a single context summary.
const maxContextSummaryTurns = 10

// echoState returns the pass-through delta every node starts from: the
// fields the reducer applies unconditionally (CurrentStep,
// AwaitingApproval, IsComplete, PendingInterrupt, PendingEdit) plus
// ThreadID, Plan, Registry and LastError, copied from the current state
// so a node only has to override what it
// actually changes. Messages is deliberately left nil: Merge only
// appends when non-empty, so omitting it here is itself "no new
// messages", not "clear the history".
func echoState(state GraphState) GraphState {
	return GraphState{
		ThreadID:         state.ThreadID,
		Plan:             state.Plan,
		CurrentStep:      state.CurrentStep,
		Registry:         state.Registry,
		LastError:        state.LastError,
		AwaitingApproval: state.AwaitingApproval,
		IsComplete:       state.IsComplete,
		PendingInterrupt: state.PendingInterrupt,
		PendingEdit:      state.PendingEdit,
	}
}

// NewPlannerNode builds the planner node: calls Gateway.Plan, emits a
// thinking frame with the rationale, writes the plan into state, and
// appends messages. Checkpoint writing is the engine's job after the
// node returns.
func NewPlannerNode(emitter emit.Emitter) graph.NodeFunc[GraphState] {
	return func(ctx context.Context, state GraphState) graph.NodeResult[GraphState] {
		gw := gatewayFromContext(ctx)
		reg := registryFromContext(ctx)
		if gw == nil {
			delta := echoState(state)
			return graph.NodeResult[GraphState]{Delta: delta, Err: &PlannerError{Cause: errors.New("no gateway in context")}}
		}

		request := lastUserRequest(state.Messages)
		history := state.Messages
		if len(history) > 2 {
			history = summarizeHistory(history, maxContextSummaryTurns)
		}

		result, err := gw.Plan(ctx, request, history, reg)
		if err != nil {
			var plannerErr *PlannerError
			if !errors.As(err, &plannerErr) {
				err = &PlannerError{Cause: err}
			}
			delta := echoState(state)
			delta.LastError = err.Error()
			return graph.NodeResult[GraphState]{Delta: delta, Err: err}
		}

		if emitter != nil {
			emitter.Emit(emit.Event{
				RunID:  state.ThreadID,
				NodeID: "planner",
				Msg:    "thinking",
				Meta:   map[string]interface{}{"content": result.Plan.Thinking},
			})
		}

		plan := result.Plan
		delta := GraphState{
			ThreadID:    state.ThreadID,
			Plan:        &plan,
			CurrentStep: 0,
			Registry:    state.Registry,
			Messages: []Message{
				{Role: RoleAssistant, Content: plan.Thinking},
			},
			AwaitingApproval: false,
			IsComplete:       false,
			InputTokens:      int64(result.InputTokens),
			OutputTokens:     int64(result.OutputTokens),
			EstimatedCostUSD: recordCost(ctx, result.InputTokens, result.OutputTokens, "planner"),
			UpdatedAt:        time.Now(),
		}
		return graph.NodeResult[GraphState]{Delta: delta, Route: graph.Goto("router")}
	}
}

// NewRouterNode builds the router node, a pure function of state. It
// never calls the LLM Gateway or a tool; it only inspects the current
// step and the approval class of the tools it hints at. When it routes
// to the executor it also marks the step in_progress itself, so the
// progress frame checkpointed for THIS transition already reflects
// "step N in_progress" before the executor's own token/step_thinking
// frames are emitted.
func NewRouterNode() graph.NodeFunc[GraphState] {
	return func(ctx context.Context, state GraphState) graph.NodeResult[GraphState] {
		if state.Plan == nil {
			delta := echoState(state)
			return graph.NodeResult[GraphState]{Delta: delta, Err: &StateMismatchError{ThreadID: state.ThreadID, Reason: "router reached with no plan"}}
		}
		if state.CurrentStep >= len(state.Plan.Steps) {
			delta := echoState(state)
			return graph.NodeResult[GraphState]{Delta: delta, Route: graph.Goto("synthesizer")}
		}

		step := state.Plan.Steps[state.CurrentStep]
		mandatory := step.RequiresApproval || stepHasApprovalClass(ctx, step, ApprovalMandatory)

		if mandatory {
			plan := clonePlan(state.Plan)
			plan.Steps[state.CurrentStep].Status = StepAwaitingApproval
			reason := step.ApprovalReason
			if reason == "" {
				reason = "this step requires confirmation before it runs"
			}
			plan.Steps[state.CurrentStep].ApprovalReason = reason

			interrupt := &Interrupt{
				StepNumber:  step.Number,
				Description: step.Description,
				Reason:      reason,
				Preview:     step.Preview,
				Actions:     []string{string(ResumeApprove), string(ResumeEdit), string(ResumeSkip)},
			}
			delta := echoState(state)
			delta.Plan = plan
			delta.AwaitingApproval = true
			delta.PendingInterrupt = interrupt
			return graph.NodeResult[GraphState]{Delta: delta, Route: graph.Stop()}
		}

		plan := clonePlan(state.Plan)
		plan.Steps[state.CurrentStep].Status = StepInProgress
		if stepHasApprovalClass(ctx, step, ApprovalAdvisory) {
			plan.Steps[state.CurrentStep].Rationale = "advisory: this step uses a tool with a non-silent approval class"
		}
		delta := echoState(state)
		delta.Plan = plan
		return graph.NodeResult[GraphState]{Delta: delta, Route: graph.Goto("executor")}
	}
}

func stepHasApprovalClass(ctx context.Context, step Step, class ApprovalClass) bool {
	reg := registryFromContext(ctx)
	if reg == nil || len(step.ToolHints) == 0 {
		return false
	}
	for _, t := range reg.ToolsFor(step.ToolHints) {
		if t.ApprovalClass() == class {
			return true
		}
	}
	return false
}

// NewExecutorNode builds the executor node: runs one step via
// Gateway.ExecuteStep against the permitted tools. The step is already
// marked in_progress by the router; this node only ever transitions it
// onward to completed or failed.
func NewExecutorNode(emitter emit.Emitter) graph.NodeFunc[GraphState] {
	return func(ctx context.Context, state GraphState) graph.NodeResult[GraphState] {
		reg := registryFromContext(ctx)
		if state.Plan == nil || state.CurrentStep >= len(state.Plan.Steps) {
			delta := echoState(state)
			return graph.NodeResult[GraphState]{Delta: delta, Err: &StateMismatchError{ThreadID: state.ThreadID, Reason: "executor reached with no current step"}}
		}

		plan := clonePlan(state.Plan)
		idx := state.CurrentStep

		var tools []Tool
		if reg != nil {
			tools = reg.ToolsFor(plan.Steps[idx].ToolHints)
		}

		// An `edit` resume decision supplies the tool input directly,
		// bypassing the Gateway's own reasoning for this one step.
		if state.PendingEdit != nil {
			if len(tools) == 0 {
				err := &ExecutionError{StepNumber: plan.Steps[idx].Number, Cause: errors.New("edit resume has no authorized tool for this step")}
				plan.Steps[idx].Status = StepFailed
				plan.Steps[idx].Error = err.Error()
				delta := echoState(state)
				delta.Plan = plan
				delta.PendingEdit = nil
				delta.LastError = err.Error()
				return graph.NodeResult[GraphState]{Delta: delta, Err: err}
			}
			out, terr := tools[0].Call(ctx, state.PendingEdit)
			if terr != nil {
				err := &ExecutionError{StepNumber: plan.Steps[idx].Number, Cause: terr}
				plan.Steps[idx].Status = StepFailed
				plan.Steps[idx].Error = err.Error()
				delta := echoState(state)
				delta.Plan = plan
				delta.PendingEdit = nil
				delta.LastError = err.Error()
				return graph.NodeResult[GraphState]{Delta: delta, Err: err}
			}
			plan.Steps[idx].Status = StepCompleted
			plan.Steps[idx].ToolOutputs = out
			plan.Steps[idx].Rationale = "executed with caller-supplied edited input"
			delta := echoState(state)
			delta.Plan = plan
			delta.CurrentStep = idx + 1
			delta.PendingEdit = nil
			return graph.NodeResult[GraphState]{Delta: delta, Route: graph.Goto("router")}
		}

		gw := gatewayFromContext(ctx)
		if gw == nil {
			delta := echoState(state)
			return graph.NodeResult[GraphState]{Delta: delta, Err: &ExecutionError{Cause: errors.New("no gateway in context")}}
		}

		onToken := func(tok StepToken) {
			if emitter != nil {
				emitter.Emit(emit.Event{
					RunID:  state.ThreadID,
					NodeID: "executor",
					Msg:    "token",
					Meta:   map[string]interface{}{"step_number": plan.Steps[idx].Number, "content": tok.Content},
				})
			}
		}
		result, err := gw.ExecuteStepStream(ctx, plan.Steps[idx], state, tools, onToken)

		if emitter != nil && result.Rationale != "" {
			emitter.Emit(emit.Event{
				RunID:  state.ThreadID,
				NodeID: "executor",
				Msg:    "step_thinking",
				Meta:   map[string]interface{}{"step_number": plan.Steps[idx].Number, "content": result.Rationale},
			})
		}

		if err != nil {
			var execErr *ExecutionError
			if !errors.As(err, &execErr) {
				err = &ExecutionError{StepNumber: plan.Steps[idx].Number, Cause: err}
			}
			plan.Steps[idx].Status = StepFailed
			plan.Steps[idx].Error = err.Error()
			delta := echoState(state)
			delta.Plan = plan
			delta.CurrentStep = state.CurrentStep // does not advance on failure
			delta.LastError = err.Error()
			return graph.NodeResult[GraphState]{Delta: delta, Err: err}
		}

		plan.Steps[idx].Status = StepCompleted
		plan.Steps[idx].Result = result.ResultText
		plan.Steps[idx].ToolOutputs = result.ToolOutputs
		plan.Steps[idx].Rationale = result.Rationale

		delta := echoState(state)
		delta.Plan = plan
		delta.CurrentStep = idx + 1 // increments on success
		delta.InputTokens = int64(result.InputTokens)
		delta.OutputTokens = int64(result.OutputTokens)
		delta.EstimatedCostUSD = recordCost(ctx, result.InputTokens, result.OutputTokens, "executor")
		delta.UpdatedAt = time.Now()
		return graph.NodeResult[GraphState]{Delta: delta, Route: graph.Goto("router")}
	}
}

// NewSynthesizerNode builds the synthesizer node: composes the final
// assistant message and marks the plan complete.
func NewSynthesizerNode(emitter emit.Emitter) graph.NodeFunc[GraphState] {
	return func(ctx context.Context, state GraphState) graph.NodeResult[GraphState] {
		if state.Plan == nil {
			delta := echoState(state)
			return graph.NodeResult[GraphState]{Delta: delta, Err: &StateMismatchError{ThreadID: state.ThreadID, Reason: "synthesizer reached with no plan"}}
		}

		plan := clonePlan(state.Plan)
		plan.IsComplete = true
		summary := summarizePlan(*plan)

		if emitter != nil {
			emitter.Emit(emit.Event{RunID: state.ThreadID, NodeID: "synthesizer", Msg: "thinking", Meta: map[string]interface{}{"content": summary}})
		}

		delta := echoState(state)
		delta.Plan = plan
		delta.IsComplete = true
		delta.Messages = []Message{{Role: RoleAssistant, Content: summary}}
		delta.UpdatedAt = time.Now()
		return graph.NodeResult[GraphState]{Delta: delta, Route: graph.Stop()}
	}
}

func lastUserRequest(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// summarizeHistory folds everything but the last maxTurns messages into
// a single leading system message so pronouns like "that" and "those"
// still resolve against recent context without unbounded prompt growth.
func summarizeHistory(messages []Message, maxTurns int) []Message {
	if len(messages) <= maxTurns {
		return messages
	}
	cut := len(messages) - maxTurns
	var summary strings.Builder
	summary.WriteString("prior conversation summary:\n")
	for _, m := range messages[:cut] {
		summary.WriteString(string(m.Role) + ": " + m.Content + "\n")
	}
	out := make([]Message, 0, maxTurns+1)
	out = append(out, Message{Role: RoleSystem, Content: summary.String()})
	out = append(out, messages[cut:]...)
	return out
}

func summarizePlan(plan Plan) string {
	completed, failed, skipped := 0, 0, 0
	for _, s := range plan.Steps {
		switch s.Status {
		case StepCompleted:
			completed++
		case StepFailed:
			failed++
		case StepSkipped:
			skipped++
		}
	}
	msg := fmt.Sprintf("completed %d of %d steps", completed, len(plan.Steps))
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	if skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", skipped)
	}
	return msg
}

package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/flowforge/agentcore/graph/emit"
)

func ctxWith(gw Gateway, reg Registry) context.Context {
	ctx := withGateway(context.Background(), gw)
	return withRegistry(ctx, reg)
}

func TestPlannerNode_WritesPlanAndRoutesToRouter(t *testing.T) {
	gw := &stubGateway{
		planFn: func(ctx context.Context, request string, history []Message, registry Registry) (PlanResult, error) {
			return PlanResult{Plan: Plan{
				Request:  request,
				Thinking: "two steps needed",
				Steps: []Step{
					{Number: 1, Description: "first", Status: StepPending},
					{Number: 2, Description: "second", Status: StepPending},
				},
			}}, nil
		},
	}
	node := NewPlannerNode(emit.NewNullEmitter())
	state := GraphState{ThreadID: "t1", Messages: []Message{{Role: RoleUser, Content: "do two things"}}}

	res := node(ctxWith(gw, &stubRegistry{}), state)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Delta.Plan == nil || len(res.Delta.Plan.Steps) != 2 {
		t.Fatalf("expected a 2-step plan, got %+v", res.Delta.Plan)
	}
	if res.Delta.CurrentStep != 0 {
		t.Fatalf("expected CurrentStep reset to 0, got %d", res.Delta.CurrentStep)
	}
	if len(res.Delta.Messages) != 1 || res.Delta.Messages[0].Role != RoleAssistant {
		t.Fatalf("expected one assistant message with the plan's rationale, got %+v", res.Delta.Messages)
	}
}

func TestPlannerNode_NoGatewayInContextIsPlannerError(t *testing.T) {
	node := NewPlannerNode(emit.NewNullEmitter())
	res := node(context.Background(), GraphState{ThreadID: "t1"})

	var plannerErr *PlannerError
	if !errors.As(res.Err, &plannerErr) {
		t.Fatalf("expected *PlannerError, got %v (%T)", res.Err, res.Err)
	}
}

func TestPlannerNode_GatewayErrorWrapsAsPlannerError(t *testing.T) {
	gw := &stubGateway{
		planFn: func(ctx context.Context, request string, history []Message, registry Registry) (PlanResult, error) {
			return PlanResult{}, errors.New("transport exploded")
		},
	}
	node := NewPlannerNode(emit.NewNullEmitter())
	res := node(ctxWith(gw, &stubRegistry{}), GraphState{ThreadID: "t1", Messages: []Message{{Role: RoleUser, Content: "x"}}})

	var plannerErr *PlannerError
	if !errors.As(res.Err, &plannerErr) {
		t.Fatalf("expected wrapped *PlannerError, got %v (%T)", res.Err, res.Err)
	}
	if res.Delta.LastError == "" {
		t.Fatalf("expected LastError to be set on the delta")
	}
}

func TestRouterNode_NoPlanIsStateMismatch(t *testing.T) {
	node := NewRouterNode()
	res := node(context.Background(), GraphState{ThreadID: "t1"})

	var mismatch *StateMismatchError
	if !errors.As(res.Err, &mismatch) {
		t.Fatalf("expected *StateMismatchError, got %v (%T)", res.Err, res.Err)
	}
}

func TestRouterNode_AllStepsDoneRoutesToSynthesizer(t *testing.T) {
	node := NewRouterNode()
	state := GraphState{
		ThreadID:    "t1",
		Plan:        &Plan{Steps: []Step{{Number: 1, Status: StepCompleted}}},
		CurrentStep: 1,
	}
	res := node(context.Background(), state)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Route.To != "synthesizer" {
		t.Fatalf("expected route to synthesizer, got %+v", res.Route)
	}
}

func TestRouterNode_OrdinaryStepRoutesToExecutorAndMarksInProgress(t *testing.T) {
	node := NewRouterNode()
	state := GraphState{
		ThreadID:    "t1",
		Plan:        &Plan{Steps: []Step{{Number: 1, Description: "do it", Status: StepPending}}},
		CurrentStep: 0,
	}
	res := node(context.Background(), state)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Route.To != "executor" {
		t.Fatalf("expected route to executor, got %+v", res.Route)
	}
	if res.Delta.Plan.Steps[0].Status != StepInProgress {
		t.Fatalf("expected step marked in_progress, got %s", res.Delta.Plan.Steps[0].Status)
	}
}

func TestRouterNode_MandatoryApprovalStepSuspends(t *testing.T) {
	node := NewRouterNode()
	state := GraphState{
		ThreadID: "t1",
		Plan: &Plan{Steps: []Step{{
			Number:           1,
			Description:      "send the mail",
			RequiresApproval: true,
			ApprovalReason:   "mail is risky",
			Status:           StepPending,
		}}},
		CurrentStep: 0,
	}
	res := node(context.Background(), state)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !res.Route.Terminal {
		t.Fatalf("expected a stop route while awaiting approval, got %+v", res.Route)
	}
	if !res.Delta.AwaitingApproval {
		t.Fatalf("expected AwaitingApproval true")
	}
	if res.Delta.PendingInterrupt == nil || res.Delta.PendingInterrupt.Reason != "mail is risky" {
		t.Fatalf("expected PendingInterrupt carrying the approval reason, got %+v", res.Delta.PendingInterrupt)
	}
	if res.Delta.Plan.Steps[0].Status != StepAwaitingApproval {
		t.Fatalf("expected step marked awaiting_approval, got %s", res.Delta.Plan.Steps[0].Status)
	}
}

func TestRouterNode_ToolApprovalClassMandatoryAlsoSuspendsWithoutStepFlag(t *testing.T) {
	node := NewRouterNode()
	reg := &stubRegistry{tools: []Tool{&stubTool{name: "send_mail", approval: ApprovalMandatory}}}
	state := GraphState{
		ThreadID:    "t1",
		Plan:        &Plan{Steps: []Step{{Number: 1, Description: "mail it", ToolHints: []string{"send_mail"}, Status: StepPending}}},
		CurrentStep: 0,
	}
	res := node(withRegistry(context.Background(), reg), state)

	if !res.Delta.AwaitingApproval {
		t.Fatalf("expected AwaitingApproval true when a hinted tool is mandatory-class")
	}
}

func TestExecutorNode_SuccessAdvancesStepAndRoutesToRouter(t *testing.T) {
	gw := &stubGateway{
		execFn: func(ctx context.Context, step Step, state GraphState, tools []Tool) (ExecResult, error) {
			return ExecResult{ResultText: "done", Rationale: "it was easy"}, nil
		},
	}
	node := NewExecutorNode(emit.NewNullEmitter())
	state := GraphState{
		ThreadID:    "t1",
		Plan:        &Plan{Steps: []Step{{Number: 1, Description: "first", Status: StepInProgress}}},
		CurrentStep: 0,
	}
	res := node(ctxWith(gw, &stubRegistry{}), state)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Route.To != "router" {
		t.Fatalf("expected route to router, got %+v", res.Route)
	}
	if res.Delta.CurrentStep != 1 {
		t.Fatalf("expected CurrentStep to advance to 1, got %d", res.Delta.CurrentStep)
	}
	if res.Delta.Plan.Steps[0].Status != StepCompleted || res.Delta.Plan.Steps[0].Result != "done" {
		t.Fatalf("expected step completed with result, got %+v", res.Delta.Plan.Steps[0])
	}
}

func TestExecutorNode_FailureMarksFailedAndDoesNotAdvance(t *testing.T) {
	gw := &stubGateway{
		execFn: func(ctx context.Context, step Step, state GraphState, tools []Tool) (ExecResult, error) {
			return ExecResult{}, errors.New("tool blew up")
		},
	}
	node := NewExecutorNode(emit.NewNullEmitter())
	state := GraphState{
		ThreadID:    "t1",
		Plan:        &Plan{Steps: []Step{{Number: 1, Description: "first", Status: StepInProgress}}},
		CurrentStep: 0,
	}
	res := node(ctxWith(gw, &stubRegistry{}), state)

	var execErr *ExecutionError
	if !errors.As(res.Err, &execErr) {
		t.Fatalf("expected *ExecutionError, got %v (%T)", res.Err, res.Err)
	}
	if res.Delta.CurrentStep != 0 {
		t.Fatalf("expected CurrentStep unchanged on failure, got %d", res.Delta.CurrentStep)
	}
	if res.Delta.Plan.Steps[0].Status != StepFailed {
		t.Fatalf("expected step marked failed, got %s", res.Delta.Plan.Steps[0].Status)
	}
}

func TestExecutorNode_PendingEditBypassesGatewayAndCallsToolDirectly(t *testing.T) {
	called := map[string]interface{}{}
	tool := &stubTool{
		name:     "send_mail",
		approval: ApprovalMandatory,
		call: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			for k, v := range input {
				called[k] = v
			}
			return map[string]interface{}{"sent": true}, nil
		},
	}
	node := NewExecutorNode(emit.NewNullEmitter())
	state := GraphState{
		ThreadID:    "t1",
		Plan:        &Plan{Steps: []Step{{Number: 1, Description: "mail it", ToolHints: []string{"send_mail"}, Status: StepInProgress}}},
		CurrentStep: 0,
		PendingEdit: map[string]interface{}{"to": "override@example.com"},
	}
	reg := &stubRegistry{tools: []Tool{tool}}
	res := node(withRegistry(context.Background(), reg), state)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if called["to"] != "override@example.com" {
		t.Fatalf("expected edited input to reach the tool directly, got %+v", called)
	}
	if res.Delta.PendingEdit != nil {
		t.Fatalf("expected PendingEdit cleared after consumption")
	}
	if res.Delta.Plan.Steps[0].Status != StepCompleted {
		t.Fatalf("expected step completed, got %s", res.Delta.Plan.Steps[0].Status)
	}
}

func TestExecutorNode_PendingEditWithNoAuthorizedToolFails(t *testing.T) {
	node := NewExecutorNode(emit.NewNullEmitter())
	state := GraphState{
		ThreadID:    "t1",
		Plan:        &Plan{Steps: []Step{{Number: 1, Description: "mail it", Status: StepInProgress}}},
		CurrentStep: 0,
		PendingEdit: map[string]interface{}{"to": "x@example.com"},
	}
	res := node(withRegistry(context.Background(), &stubRegistry{}), state)

	var execErr *ExecutionError
	if !errors.As(res.Err, &execErr) {
		t.Fatalf("expected *ExecutionError, got %v (%T)", res.Err, res.Err)
	}
}

func TestSynthesizerNode_MarksCompleteAndSummarizes(t *testing.T) {
	node := NewSynthesizerNode(emit.NewNullEmitter())
	state := GraphState{
		ThreadID: "t1",
		Plan: &Plan{Steps: []Step{
			{Number: 1, Status: StepCompleted},
			{Number: 2, Status: StepFailed},
			{Number: 3, Status: StepSkipped},
		}},
	}
	res := node(context.Background(), state)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !res.Route.Terminal {
		t.Fatalf("expected stop route, got %+v", res.Route)
	}
	if !res.Delta.IsComplete || !res.Delta.Plan.IsComplete {
		t.Fatalf("expected completion flags set")
	}
	if len(res.Delta.Messages) != 1 {
		t.Fatalf("expected one summary message, got %d", len(res.Delta.Messages))
	}
}

func TestSummarizeHistory_FoldsOlderTurnsIntoSystemMessage(t *testing.T) {
	msgs := make([]Message, 0, 15)
	for i := 0; i < 15; i++ {
		msgs = append(msgs, Message{Role: RoleUser, Content: "turn"})
	}
	out := summarizeHistory(msgs, 10)
	if len(out) != 11 {
		t.Fatalf("expected 10 recent messages plus 1 summary, got %d", len(out))
	}
	if out[0].Role != RoleSystem {
		t.Fatalf("expected first message to be the folded summary, got role %s", out[0].Role)
	}
}

func TestSummarizeHistory_ShortHistoryPassesThroughUnchanged(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "hi"}}
	out := summarizeHistory(msgs, 10)
	if len(out) != 1 {
		t.Fatalf("expected history unchanged, got %d messages", len(out))
	}
}

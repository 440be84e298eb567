package workflow

import (
	"testing"
	"time"
)

func TestMerge_AppendsMessagesAcrossCalls(t *testing.T) {
	prev := GraphState{Messages: []Message{{Role: RoleUser, Content: "hi"}}}
	delta := GraphState{Messages: []Message{{Role: RoleAssistant, Content: "hello"}}}

	out := Merge(prev, delta)

	if len(out.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out.Messages))
	}
	if out.Messages[1].Content != "hello" {
		t.Fatalf("expected the new message appended last, got %+v", out.Messages)
	}
}

func TestMerge_EmptyDeltaMessagesDoesNotClearHistory(t *testing.T) {
	prev := GraphState{Messages: []Message{{Role: RoleUser, Content: "hi"}}}
	out := Merge(prev, GraphState{})

	if len(out.Messages) != 1 {
		t.Fatalf("expected history preserved when delta has no messages, got %d", len(out.Messages))
	}
}

func TestMerge_PlanReplacesPrevious(t *testing.T) {
	prev := GraphState{Plan: &Plan{Request: "old"}}
	out := Merge(prev, GraphState{Plan: &Plan{Request: "new"}})

	if out.Plan.Request != "new" {
		t.Fatalf("expected plan replaced, got %q", out.Plan.Request)
	}
}

func TestMerge_CurrentStepAlwaysOverwritesIncludingZero(t *testing.T) {
	prev := GraphState{CurrentStep: 3}
	out := Merge(prev, GraphState{CurrentStep: 0})

	if out.CurrentStep != 0 {
		t.Fatalf("expected CurrentStep reset to 0, got %d", out.CurrentStep)
	}
}

func TestMerge_RegistryOnlyReplacedWhenDeltaHasIntegrations(t *testing.T) {
	prev := GraphState{Registry: RegistrySnapshot{Integrations: []IntegrationInfo{{IntegrationID: "search"}}}}
	out := Merge(prev, GraphState{})

	if len(out.Registry.Integrations) != 1 {
		t.Fatalf("expected registry preserved when delta carries none, got %+v", out.Registry)
	}

	out = Merge(out, GraphState{Registry: RegistrySnapshot{Integrations: []IntegrationInfo{{IntegrationID: "mail"}}}})
	if out.Registry.Integrations[0].IntegrationID != "mail" {
		t.Fatalf("expected registry replaced, got %+v", out.Registry)
	}
}

func TestMerge_TokenAndCostTotalsAccumulate(t *testing.T) {
	prev := GraphState{InputTokens: 10, OutputTokens: 5, EstimatedCostUSD: 0.01}
	out := Merge(prev, GraphState{InputTokens: 3, OutputTokens: 2, EstimatedCostUSD: 0.004})

	if out.InputTokens != 13 || out.OutputTokens != 7 {
		t.Fatalf("expected accumulated token totals, got in=%d out=%d", out.InputTokens, out.OutputTokens)
	}
	if out.EstimatedCostUSD < 0.0139 || out.EstimatedCostUSD > 0.0141 {
		t.Fatalf("expected accumulated cost around 0.014, got %v", out.EstimatedCostUSD)
	}
}

func TestMerge_UpdatedAtOnlyAdvancesWhenDeltaSetsIt(t *testing.T) {
	now := time.Now()
	prev := GraphState{UpdatedAt: now}
	out := Merge(prev, GraphState{})

	if !out.UpdatedAt.Equal(now) {
		t.Fatalf("expected UpdatedAt preserved when delta leaves it zero")
	}
}

func TestMerge_AwaitingApprovalAndIsCompleteAreExplicitlyOverwritten(t *testing.T) {
	prev := GraphState{AwaitingApproval: true, IsComplete: false}
	out := Merge(prev, GraphState{AwaitingApproval: false, IsComplete: true})

	if out.AwaitingApproval {
		t.Fatalf("expected AwaitingApproval cleared")
	}
	if !out.IsComplete {
		t.Fatalf("expected IsComplete set")
	}
}

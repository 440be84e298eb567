package workflow

// Merge is the graph.Reducer for GraphState: nodes return partial deltas,
// Merge folds each delta into the accumulated state. Messages are
// appended, never replaced (the sequence is append-only). CurrentStep,
// AwaitingApproval, IsComplete, PendingInterrupt and PendingEdit are
// always overwritten by the delta's value. The token and cost totals are
// added to the running totals. ThreadID, Plan, Registry, LastError and
// UpdatedAt replace the previous value only when the delta sets them.
func Merge(prev, delta GraphState) GraphState {
	if delta.ThreadID != "" {
		prev.ThreadID = delta.ThreadID
	}
	if len(delta.Messages) > 0 {
		prev.Messages = append(prev.Messages, delta.Messages...)
	}
	if delta.Plan != nil {
		prev.Plan = delta.Plan
	}
	// CurrentStep is always explicitly set by every node (0 is a valid
	// index, not a "no change" sentinel), mirroring AwaitingApproval and
	// IsComplete below.
	prev.CurrentStep = delta.CurrentStep
	if len(delta.Registry.Integrations) > 0 {
		prev.Registry = delta.Registry
	}
	if delta.LastError != "" {
		prev.LastError = delta.LastError
	}
	// AwaitingApproval and IsComplete are explicit booleans a node may
	// need to clear, so every node that emits a delta must set them
	// deliberately to the correct value (nodes always do; see nodes.go).
	prev.AwaitingApproval = delta.AwaitingApproval
	prev.IsComplete = delta.IsComplete
	prev.PendingInterrupt = delta.PendingInterrupt
	prev.PendingEdit = delta.PendingEdit

	prev.InputTokens += delta.InputTokens
	prev.OutputTokens += delta.OutputTokens
	prev.EstimatedCostUSD += delta.EstimatedCostUSD
	if !delta.UpdatedAt.IsZero() {
		prev.UpdatedAt = delta.UpdatedAt
	}
	return prev
}

package emit

// Event is one observability record from workflow execution: a node
// starting or finishing, a routing decision, a checkpoint write, a
// token of streamed output, an error.
type Event struct {
	// RunID identifies the workflow execution (the thread id) that
	// emitted this event.
	RunID string

	// Step is the sequential transition number within one run,
	// 1-indexed. Zero for run-level events.
	Step int

	// NodeID identifies which node emitted this event. Empty for
	// run-level events.
	NodeID string

	// Msg names the event kind ("node_start", "node_end", "node_error",
	// "routing_decision", "thinking", "token", "step_thinking").
	Msg string

	// Meta carries event-specific structured data. Common keys:
	// "checkpoint_id", "error", "content", "step_number", "next_node".
	Meta map[string]interface{}
}

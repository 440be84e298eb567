// Package emit provides event emission and observability for graph
// execution: every node transition, routing decision, and checkpoint
// write flows through an Emitter.
package emit

import "context"

// Emitter receives observability events from workflow execution and
// forwards them to a backend (log lines, OTel spans, an in-memory
// buffer, or an SSE stream).
//
// Implementations must be safe for concurrent use, must not panic, and
// should not block graph execution: buffer or drop rather than stall a
// transition.
type Emitter interface {
	// Emit sends one event. Errors are handled internally (logged or
	// dropped), never returned.
	Emit(event Event)

	// EmitBatch sends multiple events in order in a single operation.
	// Individual event failures are logged and skipped; an error is
	// returned only for failures that doom the whole batch.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until buffered events are delivered or ctx expires.
	// Call before shutdown and at workflow completion. Safe to call
	// multiple times.
	Flush(ctx context.Context) error
}

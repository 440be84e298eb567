package emit

import "context"

// NullEmitter discards all events. It is the default emitter when a
// caller opts out of observability, and useful in tests that don't
// assert on events.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit implements Emitter.
func (n *NullEmitter) Emit(event Event) {}

// EmitBatch implements Emitter.
func (n *NullEmitter) EmitBatch(_ context.Context, _ []Event) error { return nil }

// Flush implements Emitter.
func (n *NullEmitter) Flush(_ context.Context) error { return nil }

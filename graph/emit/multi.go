package emit

import "context"

// MultiEmitter fans one stream of events out to several Emitters. It is
// how a deployment gets a LogEmitter and an OTelEmitter observing the
// same run without either one knowing about the other.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter builds a MultiEmitter over emitters, in the order they
// should receive each event. A nil entry is skipped rather than panicking,
// so a caller can pass an optional tracer emitter straight through without
// a conditional at every call site.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	out := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return &MultiEmitter{emitters: out}
}

// Emit implements Emitter.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

// EmitBatch implements Emitter. It reports the first error but still
// dispatches events to every emitter.
func (m *MultiEmitter) EmitBatch(ctx context.Context, events []Event) error {
	var firstErr error
	for _, e := range m.emitters {
		if err := e.EmitBatch(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Flush implements Emitter, flushing every wrapped emitter and reporting
// the first error.
func (m *MultiEmitter) Flush(ctx context.Context) error {
	var firstErr error
	for _, e := range m.emitters {
		if err := e.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

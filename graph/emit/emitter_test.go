package emit

import (
	"context"
	"testing"
)

// captureEmitter is a minimal Emitter implementation for exercising the
// interface contract.
type captureEmitter struct {
	events []Event
}

func (c *captureEmitter) Emit(event Event) {
	c.events = append(c.events, event)
}

func (c *captureEmitter) EmitBatch(_ context.Context, events []Event) error {
	c.events = append(c.events, events...)
	return nil
}

func (c *captureEmitter) Flush(_ context.Context) error { return nil }

func TestEmitter_InterfaceContract(t *testing.T) {
	var _ Emitter = (*captureEmitter)(nil)
}

func TestEmitter_Emit(t *testing.T) {
	t.Run("events are captured in order", func(t *testing.T) {
		emitter := &captureEmitter{}
		for i := 1; i <= 3; i++ {
			emitter.Emit(Event{RunID: "t-1", Step: i, Msg: "node_start"})
		}

		if len(emitter.events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(emitter.events))
		}
		for i, event := range emitter.events {
			if event.Step != i+1 {
				t.Errorf("event %d: Step = %d, want %d", i, event.Step, i+1)
			}
		}
	})

	t.Run("metadata round-trips", func(t *testing.T) {
		emitter := &captureEmitter{}
		emitter.Emit(Event{
			RunID:  "t-1",
			NodeID: "executor",
			Msg:    "node_end",
			Meta:   map[string]interface{}{"checkpoint_id": "cp-1", "duration_ms": 250},
		})

		meta := emitter.events[0].Meta
		if meta["checkpoint_id"] != "cp-1" {
			t.Errorf("checkpoint_id = %v", meta["checkpoint_id"])
		}
		if meta["duration_ms"] != 250 {
			t.Errorf("duration_ms = %v", meta["duration_ms"])
		}
	})

	t.Run("zero value event is accepted", func(t *testing.T) {
		emitter := &captureEmitter{}
		emitter.Emit(Event{})
		if len(emitter.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(emitter.events))
		}
	})
}

func TestEmitter_EmitBatch(t *testing.T) {
	emitter := &captureEmitter{}
	batch := []Event{
		{RunID: "t-1", Step: 1, Msg: "node_start"},
		{RunID: "t-1", Step: 1, Msg: "node_end"},
	}

	if err := emitter.EmitBatch(context.Background(), batch); err != nil {
		t.Fatalf("EmitBatch() error = %v", err)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
	if emitter.events[0].Msg != "node_start" || emitter.events[1].Msg != "node_end" {
		t.Errorf("batch order not preserved: %v", emitter.events)
	}
}

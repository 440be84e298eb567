package workflow

import (
	"context"
	"io"
	"sync"

	"github.com/flowforge/agentcore/checkpointer"
	"github.com/flowforge/agentcore/graph/emit"
)

// sseBridge is an emit.Emitter that turns the node-lifecycle events the
// graph engine and nodes already emit into the client-facing SSE frame
// sequence. It reads back the checkpoint the engine just committed
// on every node_end to build the canonical progress frame (the engine
// itself never sees GraphState's fields, only the reducer does, so this
// is the one place shaped enough to project it into a Frame) and emits
// integrations_ready right after the planner's first thinking frame, the
// earliest point the caller's authorized tool set is known to the
// stream.
type sseBridge struct {
	w           io.Writer
	checkpoints checkpointer.Checkpointer[GraphState]
	metadata    MetadataStore
	snapshot    RegistrySnapshot
	isNewThread bool
	request     string

	mu               sync.Mutex
	integrationsSent bool
	approvalSent     bool
}

func newSSEBridge(w io.Writer, checkpoints checkpointer.Checkpointer[GraphState], metadata MetadataStore, snapshot RegistrySnapshot, isNew bool, request string) *sseBridge {
	return &sseBridge{w: w, checkpoints: checkpoints, metadata: metadata, snapshot: snapshot, isNewThread: isNew, request: request}
}

func (b *sseBridge) write(f Frame) {
	_ = WriteFrame(b.w, f)
}

// Emit implements emit.Emitter. Node-emitted frames (thinking, token,
// step_thinking) map straight onto their Frame counterpart; node_end and
// node_error are the engine's own lifecycle events, not one the nodes
// emit directly.
func (b *sseBridge) Emit(event emit.Event) {
	switch event.Msg {
	case "thinking":
		content, _ := event.Meta["content"].(string)
		b.write(Frame{Type: FrameThinking, Content: content})
		if event.NodeID == "planner" {
			b.sendIntegrationsReady()
		}
	case "token":
		content, _ := event.Meta["content"].(string)
		step, _ := event.Meta["step_number"].(int)
		b.write(Frame{Type: FrameToken, StepNumber: step, Content: content})
	case "step_thinking":
		content, _ := event.Meta["content"].(string)
		step, _ := event.Meta["step_number"].(int)
		b.write(Frame{Type: FrameStepThinking, StepNumber: step, Content: content})
	case "node_end":
		b.onNodeEnd(event)
	case "node_error":
		msg, _ := event.Meta["error"].(string)
		b.write(Frame{Type: FrameError, Message: msg})
	}
}

// EmitBatch implements emit.Emitter.
func (b *sseBridge) EmitBatch(ctx context.Context, events []emit.Event) error {
	for _, e := range events {
		b.Emit(e)
	}
	return nil
}

// Flush implements emit.Emitter. Every frame is written (and flushed via
// the underlying http.Flusher, if w supports it) synchronously inside
// Emit, so there is nothing buffered here to flush.
func (b *sseBridge) Flush(ctx context.Context) error { return nil }

func (b *sseBridge) sendIntegrationsReady() {
	b.mu.Lock()
	if b.integrationsSent {
		b.mu.Unlock()
		return
	}
	b.integrationsSent = true
	b.mu.Unlock()
	b.write(Frame{Type: FrameIntegrationsReady, Integrations: b.snapshot.Integrations})
}

// onNodeEnd reads back the checkpoint the engine just committed for this
// event's RunID (the thread id) and projects it into a progress frame.
// This read is safe without extra synchronization: the Service holds the
// thread's advisory lock for the duration of the whole Run/Resume call,
// so no other writer can race this checkpoint.
func (b *sseBridge) onNodeEnd(event emit.Event) {
	rec, err := b.checkpoints.GetLatest(context.Background(), event.RunID)
	if err != nil {
		return
	}
	state := rec.State

	if b.isNewThread {
		_ = b.metadata.CreateIfAbsent(context.Background(), ConversationMetadata{ThreadID: event.RunID, Title: titleFromRequest(b.request)})
	}

	b.write(Frame{
		Type:             FrameProgress,
		ThreadID:         state.ThreadID,
		CurrentStep:      state.CurrentStep,
		Plan:             state.Plan,
		EstimatedCostUSD: state.EstimatedCostUSD,
	})

	if state.AwaitingApproval && state.PendingInterrupt != nil {
		b.mu.Lock()
		already := b.approvalSent
		b.approvalSent = true
		b.mu.Unlock()
		if !already {
			b.write(Frame{Type: FrameApprovalRequired, ThreadID: state.ThreadID, Interrupt: state.PendingInterrupt})
		}
	}
}

// finish writes the terminal frame for one ChatStream call. A node_error
// event already wrote an error frame via Emit before the engine returned
// it, so finish only ever adds `done`; an error closes the stream with
// no done frame after it.
func (b *sseBridge) finish(final GraphState, runErr error) error {
	if runErr != nil {
		return runErr
	}
	b.write(Frame{Type: FrameDone})
	return nil
}

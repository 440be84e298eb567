package checkpointer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemCheckpointer is the process-local, in-memory Checkpointer backend.
//
// It is the default backend when no durable store DSN is configured, and
// the fallback when the durable backend is unreachable at startup. Safe
// for concurrent use by multiple threads; writes to a single thread are
// serialized by the embedded mutex in addition to the Service's own
// per-thread advisory lock.
type MemCheckpointer[S any] struct {
	mu       sync.Mutex
	byThread map[string][]Record[S] // newest last
}

// NewMemCheckpointer creates an empty in-memory checkpointer.
func NewMemCheckpointer[S any]() *MemCheckpointer[S] {
	return &MemCheckpointer[S]{byThread: make(map[string][]Record[S])}
}

func (m *MemCheckpointer[S]) Put(_ context.Context, threadID, parentCheckpointID string, state S, meta Metadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.byThread[threadID]
	currentLatest := ""
	if len(history) > 0 {
		currentLatest = history[len(history)-1].CheckpointID
	}
	if currentLatest != parentCheckpointID {
		return "", fmt.Errorf("%w: thread %s latest is %q, put specified parent %q", ErrConflict, threadID, currentLatest, parentCheckpointID)
	}

	id := uuid.NewString()
	rec := Record[S]{
		ThreadID:           threadID,
		CheckpointID:       id,
		ParentCheckpointID: parentCheckpointID,
		State:              state,
		Metadata:           meta,
	}
	m.byThread[threadID] = append(history, rec)
	return id, nil
}

func (m *MemCheckpointer[S]) GetLatest(_ context.Context, threadID string) (Record[S], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.byThread[threadID]
	if len(history) == 0 {
		var zero Record[S]
		return zero, ErrNotFound
	}
	return history[len(history)-1], nil
}

func (m *MemCheckpointer[S]) List(_ context.Context, threadID string) ([]Record[S], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.byThread[threadID]
	out := make([]Record[S], len(history))
	for i, rec := range history {
		out[len(history)-1-i] = rec
	}
	return out, nil
}

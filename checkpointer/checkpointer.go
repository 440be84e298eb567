// Package checkpointer persists graph-state snapshots per thread and
// retrieves the latest snapshot to resume execution.
//
// A thread's checkpoints form a linked list via ParentCheckpointID, oldest
// first. Writes are serialized per thread by the caller (the workflow
// Service holds a per-thread advisory lock for the duration of one graph
// transition); the store itself only needs to guarantee that a completed
// Put is durable before it returns, and that GetLatest observes every Put
// that returned successfully beforehand (read-your-writes).
package checkpointer

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by GetLatest when a thread has no checkpoints yet.
var ErrNotFound = errors.New("checkpointer: thread has no checkpoints")

// ErrConflict is returned by Put when two writers race to extend the same
// parent checkpoint for a thread. The runtime surfaces this as a fatal
// checkpointer error for the current request.
var ErrConflict = errors.New("checkpointer: concurrent write to thread")

// Metadata accompanies every checkpoint: which node produced it and when.
type Metadata struct {
	NodeName  string    `json:"node_name"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is one immutable checkpoint in a thread's history.
type Record[S any] struct {
	ThreadID           string   `json:"thread_id"`
	CheckpointID       string   `json:"checkpoint_id"`
	ParentCheckpointID string   `json:"parent_checkpoint_id"`
	State              S        `json:"state"`
	Metadata           Metadata `json:"metadata"`
}

// Checkpointer is the durable key-value store of graph state versions,
// keyed by thread.
//
// Type parameter S is the graph state type; it must be JSON-serializable
// for any backend other than the in-memory one.
type Checkpointer[S any] interface {
	// Put persists state as a new checkpoint whose parent is
	// parentCheckpointID (empty string for the first checkpoint of a
	// thread). It returns only after the write is durable, and returns the
	// newly assigned checkpoint id.
	//
	// Put returns ErrConflict if parentCheckpointID does not match the
	// thread's current latest checkpoint id at commit time, signalling a
	// racing writer.
	Put(ctx context.Context, threadID, parentCheckpointID string, state S, meta Metadata) (checkpointID string, err error)

	// GetLatest returns the most recently committed checkpoint for a
	// thread, or ErrNotFound if the thread has none.
	GetLatest(ctx context.Context, threadID string) (Record[S], error)

	// List returns every checkpoint for a thread, newest first, for
	// history reconstruction. Returns an empty slice (not ErrNotFound)
	// for an unknown thread.
	List(ctx context.Context, threadID string) ([]Record[S], error)
}

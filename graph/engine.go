// Package graph provides the core graph execution engine for the workflow
// core: a fixed small state machine (not an arbitrary-cycle graph) that
// sequences nodes, checkpoints after every transition, and can be
// suspended and resumed across process boundaries.
package graph

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/flowforge/agentcore/checkpointer"
	"github.com/flowforge/agentcore/graph/emit"
)

// contextKey is a private type for context value keys, to avoid collisions
// with keys set by callers.
type contextKey string

// RNGKey is the context key under which Run/Resume stores a seeded
// *rand.Rand, derived from the thread id so that any node consulting it
// produces the same sequence across a checkpoint/resume cycle.
const RNGKey contextKey = "graph.rng"

// initRNG seeds a random source from threadID so replays of the same
// thread draw the same sequence of values from ctx.Value(RNGKey).
func initRNG(threadID string) *rand.Rand {
	var seed int64
	for _, r := range threadID {
		seed = seed*31 + int64(r)
	}
	if seed == 0 {
		seed = 1
	}
	return rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic by design, not security-sensitive
}

// Engine orchestrates the plan-and-execute state machine: it sequences
// registered nodes, applies the reducer, persists a checkpoint after every
// transition, and emits observability events. Unlike a general workflow
// engine, Engine never fans a step out to multiple concurrent nodes:
// the only loop in this graph is executor→router→executor, and at most
// one node is ever "in progress" per thread.
type Engine[S any] struct {
	mu sync.RWMutex

	reducer     Reducer[S]
	nodes       map[string]Node[S]
	policies    map[string]NodePolicy
	edges       []Edge[S]
	startNode   string
	checkpoints checkpointer.Checkpointer[S]
	emitter     emit.Emitter
	metrics     *PrometheusMetrics
	costTracker *CostTracker
	opts        Options
}

// New creates an Engine. checkpoints and emitter may not be nil once Run
// or Resume is called; emitter may be emit.NewNullEmitter() to opt out of
// observability.
func New[S any](reducer Reducer[S], checkpoints checkpointer.Checkpointer[S], emitter emit.Emitter, options ...interface{}) *Engine[S] {
	cfg := &engineConfig{}
	for _, opt := range options {
		switch v := opt.(type) {
		case Options:
			cfg.opts = v
		case Option:
			_ = v(cfg)
		}
	}

	return &Engine[S]{
		reducer:     reducer,
		nodes:       make(map[string]Node[S]),
		policies:    make(map[string]NodePolicy),
		edges:       make([]Edge[S], 0),
		checkpoints: checkpoints,
		emitter:     emitter,
		metrics:     cfg.opts.Metrics,
		costTracker: cfg.opts.CostTracker,
		opts:        cfg.opts,
	}
}

// Add registers a node under nodeID. Nodes must be added before Run.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}
	e.nodes[nodeID] = node
	return nil
}

// SetPolicy attaches a NodePolicy (timeout, retry) to a node previously
// registered with Add.
func (e *Engine[S]) SetPolicy(nodeID string, policy NodePolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[nodeID] = policy
}

// StartAt sets the entry node for a fresh Run.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}
	e.startNode = nodeID
	return nil
}

// Connect adds an edge used as a fallback when a node's NodeResult does
// not set an explicit Route. Node-returned routing always takes
// precedence.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" || to == "" {
		return &EngineError{Message: "from/to node ID cannot be empty"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Run starts a brand-new thread at the configured start node.
func (e *Engine[S]) Run(ctx context.Context, threadID string, initial S) (S, error) {
	return e.drive(ctx, threadID, e.startNode, "", initial)
}

// Resume re-enters the graph at resumeNode using state already loaded and
// mutated by the caller (e.g. the workflow Service applying an
// approve/edit/skip/retry decision) and parentCheckpointID, the
// checkpoint that decision was read from. This is a fresh transition from
// loaded state, not a continuation of an in-memory call stack; there is
// no coroutine to resume, only a new Run that happens to start mid-graph.
func (e *Engine[S]) Resume(ctx context.Context, threadID, resumeNode, parentCheckpointID string, state S) (S, error) {
	return e.drive(ctx, threadID, resumeNode, parentCheckpointID, state)
}

func (e *Engine[S]) drive(ctx context.Context, threadID, startNode, parentCheckpointID string, initial S) (S, error) {
	var zero S

	if e.reducer == nil {
		return zero, &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.checkpoints == nil {
		return zero, &EngineError{Message: "checkpointer is required", Code: "MISSING_CHECKPOINTER"}
	}
	if startNode == "" {
		return zero, &EngineError{Message: "no start node (call StartAt, or pass a resume node)", Code: "NO_START_NODE"}
	}

	e.mu.RLock()
	_, exists := e.nodes[startNode]
	e.mu.RUnlock()
	if !exists {
		return zero, &EngineError{Message: "node does not exist: " + startNode, Code: "NODE_NOT_FOUND"}
	}

	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunWallClockBudget)
		defer cancel()
	}
	ctx = context.WithValue(ctx, RNGKey, initRNG(threadID))

	if e.metrics != nil {
		e.metrics.SetInflightRuns(1)
		defer e.metrics.SetInflightRuns(0)
	}

	currentState := initial
	currentNode := startNode
	parentCheckpoint := parentCheckpointID
	step := 0

	for {
		step++
		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, &EngineError{Message: "workflow exceeded MaxSteps limit", Code: "MAX_STEPS_EXCEEDED"}
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		e.mu.RLock()
		nodeImpl, exists := e.nodes[currentNode]
		policy, hasPolicy := e.policies[currentNode]
		e.mu.RUnlock()
		if !exists {
			return zero, &EngineError{Message: "node not found during execution: " + currentNode, Code: "NODE_NOT_FOUND"}
		}
		var policyPtr *NodePolicy
		if hasPolicy {
			policyPtr = &policy
		}

		e.emitNodeStart(threadID, currentNode, step)
		start := time.Now()
		result, runErr := e.runNodeWithRetry(ctx, nodeImpl, currentNode, currentState, policyPtr)
		latency := time.Since(start)

		if runErr != nil {
			// Infrastructure-level failure (timeout/context exhausted all
			// retry attempts): no NodeResult to trust, nothing to merge or
			// checkpoint. Distinct from a node-returned error below, which
			// always carries a valid Delta that must be checkpointed
			// (e.g. a step transitioning to failed).
			if e.metrics != nil {
				e.metrics.RecordStepLatency(currentNode, latency, "error")
			}
			e.emitError(threadID, currentNode, step, runErr)
			return zero, runErr
		}

		currentState = e.reducer(currentState, result.Delta)

		cpStart := time.Now()
		checkpointID, err := e.checkpoints.Put(ctx, threadID, parentCheckpoint, currentState, checkpointer.Metadata{
			NodeName:  currentNode,
			Timestamp: time.Now(),
		})
		if e.metrics != nil {
			e.metrics.RecordCheckpointWrite(time.Since(cpStart))
		}
		if err != nil {
			return currentState, &EngineError{Message: "checkpoint write failed: " + err.Error(), Code: "CHECKPOINTER_ERROR", Cause: err}
		}
		parentCheckpoint = checkpointID

		e.emitNodeEnd(threadID, currentNode, step, checkpointID)

		if result.Err != nil {
			if e.metrics != nil {
				e.metrics.RecordStepLatency(currentNode, latency, "error")
			}
			e.emitError(threadID, currentNode, step, result.Err)
			return currentState, result.Err
		}
		if e.metrics != nil {
			e.metrics.RecordStepLatency(currentNode, latency, "success")
		}

		if result.Route.Terminal {
			e.emitRoutingDecision(threadID, currentNode, step, map[string]interface{}{"terminal": true})
			return currentState, nil
		}

		if result.Route.To != "" {
			e.emitRoutingDecision(threadID, currentNode, step, map[string]interface{}{"next_node": result.Route.To})
			currentNode = result.Route.To
			continue
		}

		nextNode := e.evaluateEdges(currentNode, currentState)
		if nextNode == "" {
			return zero, &EngineError{Message: "no valid route from node: " + currentNode, Code: "NO_ROUTE"}
		}
		e.emitRoutingDecision(threadID, currentNode, step, map[string]interface{}{"next_node": nextNode, "via_edge": true})
		currentNode = nextNode
	}
}

// runNodeWithRetry executes a node once, or multiple times under its
// RetryPolicy, applying the configured timeout on every attempt.
func (e *Engine[S]) runNodeWithRetry(ctx context.Context, node Node[S], nodeID string, state S, policy *NodePolicy) (NodeResult[S], error) {
	maxAttempts := 1
	var rp *RetryPolicy
	if policy != nil && policy.RetryPolicy != nil {
		rp = policy.RetryPolicy
		if rp.MaxAttempts > 0 {
			maxAttempts = rp.MaxAttempts
		}
	}

	var lastResult NodeResult[S]
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if e.metrics != nil {
				e.metrics.IncrementRetries(nodeID, "retry")
			}
			rng, _ := ctx.Value(RNGKey).(*rand.Rand)
			delay := computeBackoff(attempt-1, rp.BaseDelay, rp.MaxDelay, rng)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lastResult, ctx.Err()
			}
		}

		result, timeoutErr := executeNodeWithTimeout(ctx, node, nodeID, state, policy, e.opts.DefaultNodeTimeout)
		lastResult, lastErr = result, timeoutErr
		if timeoutErr == nil && result.Err == nil {
			return result, nil
		}

		effErr := timeoutErr
		if effErr == nil {
			effErr = result.Err
		}
		if rp == nil || rp.Retryable == nil || !rp.Retryable(effErr) {
			return result, timeoutErr
		}
	}
	return lastResult, lastErr
}

// evaluateEdges returns the first matching outgoing edge's destination,
// or "" if none match.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

func (e *Engine[S]) emitNodeStart(threadID, nodeID string, step int) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: threadID, Step: step, NodeID: nodeID, Msg: "node_start"})
}

func (e *Engine[S]) emitNodeEnd(threadID, nodeID string, step int, checkpointID string) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{
		RunID: threadID, Step: step, NodeID: nodeID, Msg: "node_end",
		Meta: map[string]interface{}{"checkpoint_id": checkpointID},
	})
}

func (e *Engine[S]) emitError(threadID, nodeID string, step int, err error) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{
		RunID: threadID, Step: step, NodeID: nodeID, Msg: "node_error",
		Meta: map[string]interface{}{"error": err.Error()},
	})
}

func (e *Engine[S]) emitRoutingDecision(threadID, nodeID string, step int, meta map[string]interface{}) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: threadID, Step: step, NodeID: nodeID, Msg: "routing_decision", Meta: meta})
}

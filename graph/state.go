package graph

// Reducer merges a node's partial state update (delta) into the
// accumulated state (prev) and returns the result. It must be
// deterministic (the same (prev, delta) always produces the same
// output) so a checkpointed run can be re-derived transition by
// transition.
//
// Typical field treatments: replace when the delta sets a value,
// append for ordered sequences, add for counters.
type Reducer[S any] func(prev S, delta S) S

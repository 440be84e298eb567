package workflow

import (
	"context"

	"github.com/flowforge/agentcore/graph"
)

// Gateway and Registry are assembled per request from caller-supplied
// tokens and cannot be serialized into GraphState, so they travel on
// the context for the lifetime of one Run/Resume call rather than
// through the engine's persisted state. The cost tracker travels the
// same way: it is a per-run accumulator, not durable state.
type contextKey string

const (
	gatewayContextKey     contextKey = "workflow.gateway"
	registryContextKey    contextKey = "workflow.registry"
	costTrackerContextKey contextKey = "workflow.cost_tracker"
)

func withGateway(ctx context.Context, gw Gateway) context.Context {
	return context.WithValue(ctx, gatewayContextKey, gw)
}

func gatewayFromContext(ctx context.Context) Gateway {
	gw, _ := ctx.Value(gatewayContextKey).(Gateway)
	return gw
}

func withRegistry(ctx context.Context, reg Registry) context.Context {
	return context.WithValue(ctx, registryContextKey, reg)
}

func registryFromContext(ctx context.Context) Registry {
	reg, _ := ctx.Value(registryContextKey).(Registry)
	return reg
}

// costTracking bundles a graph.CostTracker with the model ID its calls
// should be priced under, since GraphState's InputTokens/OutputTokens
// accumulate across potentially different providers over a thread's
// life but one run uses a single Gateway/model.
type costTracking struct {
	tracker *graph.CostTracker
	modelID string
}

func withCostTracker(ctx context.Context, tracker *graph.CostTracker, modelID string) context.Context {
	if tracker == nil {
		return ctx
	}
	return context.WithValue(ctx, costTrackerContextKey, costTracking{tracker: tracker, modelID: modelID})
}

// recordCost charges inputTokens/outputTokens against the context's cost
// tracker, if any, and returns the marginal USD cost of this one call
// (the tracker's running total is cumulative, so callers must diff
// before/after rather than assign the total into a GraphState delta that
// the reducer will add onto the previous total).
func recordCost(ctx context.Context, inputTokens, outputTokens int, nodeID string) float64 {
	ct, ok := ctx.Value(costTrackerContextKey).(costTracking)
	if !ok || ct.tracker == nil {
		return 0
	}
	before := ct.tracker.GetTotalCost()
	_ = ct.tracker.RecordLLMCall(ct.modelID, inputTokens, outputTokens, nodeID)
	return ct.tracker.GetTotalCost() - before
}

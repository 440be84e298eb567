// Package graph provides the core graph execution engine for the workflow core.
package graph

import "time"

// Option is a functional option for configuring an Engine.
//
// engine := New(reducer, checkpointer, emitter, WithMaxSteps(20), WithDefaultNodeTimeout(10*time.Second))
type Option func(*engineConfig) error

type engineConfig struct {
	opts Options
}

// Options configures Engine execution behavior. Zero values are valid.
type Options struct {
	// MaxSteps bounds the number of node transitions in one Run/Resume
	// call, guarding against a missing router exit turning
	// executor→router→executor into an infinite loop. 0 means no limit.
	MaxSteps int

	// DefaultNodeTimeout bounds a single node's execution when it has no
	// NodePolicy.Timeout of its own. 0 means no default timeout.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds the total duration of one Run/Resume
	// call. 0 disables the budget.
	RunWallClockBudget time.Duration

	// Metrics, if set, receives Prometheus observations for every node
	// transition and checkpoint write.
	Metrics *PrometheusMetrics

	// CostTracker, if set, accumulates LLM token usage and estimated cost
	// across the run for surfacing in progress frame metadata.
	CostTracker *CostTracker
}

// WithMaxSteps sets Options.MaxSteps.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout sets Options.DefaultNodeTimeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget sets Options.RunWallClockBudget.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.RunWallClockBudget = d
		return nil
	}
}

// WithMetrics attaches a PrometheusMetrics collector.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}

// WithCostTracker attaches a CostTracker.
func WithCostTracker(tracker *CostTracker) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.CostTracker = tracker
		return nil
	}
}

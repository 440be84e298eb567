// Package graph provides the core graph execution engine for the workflow core.
package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects the graph runtime's production metrics, all
// namespaced "workflow_":
//
//   - inflight_runs (gauge): requests currently advancing the graph.
//   - step_latency_ms (histogram): per-node execution duration, labeled by
//     node_id and status (success/error).
//   - retries_total (counter): node retry attempts, labeled by node_id and
//     reason.
//   - checkpoint_write_latency_ms (histogram): Checkpointer.Put duration.
//   - approval_wait_seconds (histogram): time between a step entering
//     awaiting_approval and the resume decision that clears it, recorded
//     through RecordApprovalWait; no caller in this module records into it.
//
// Thread-safe; all counters/gauges are prometheus client types which are
// already safe for concurrent use.
type PrometheusMetrics struct {
	inflightRuns           prometheus.Gauge
	stepLatency            *prometheus.HistogramVec
	retries                *prometheus.CounterVec
	checkpointWriteLatency prometheus.Histogram
	approvalWait           prometheus.Histogram

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers the runtime's metrics with registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		inflightRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow",
			Name:      "inflight_runs",
			Help:      "Requests currently advancing the plan-and-execute graph",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "retries_total",
			Help:      "Node retry attempts",
		}, []string{"node_id", "reason"}),
		checkpointWriteLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "workflow",
			Name:      "checkpoint_write_latency_ms",
			Help:      "Checkpointer.Put duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000},
		}),
		approvalWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "workflow",
			Name:      "approval_wait_seconds",
			Help:      "Time a step spent in awaiting_approval before resume",
			Buckets:   []float64{1, 5, 30, 60, 300, 1800, 3600, 86400},
		}),
	}
}

func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

func (pm *PrometheusMetrics) IncrementRetries(nodeID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(nodeID, reason).Inc()
}

func (pm *PrometheusMetrics) RecordCheckpointWrite(latency time.Duration) {
	if !pm.isEnabled() {
		return
	}
	pm.checkpointWriteLatency.Observe(float64(latency.Milliseconds()))
}

func (pm *PrometheusMetrics) RecordApprovalWait(d time.Duration) {
	if !pm.isEnabled() {
		return
	}
	pm.approvalWait.Observe(d.Seconds())
}

func (pm *PrometheusMetrics) SetInflightRuns(n int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightRuns.Set(float64(n))
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable stops metric recording; useful in tests that assert on call
// counts to the underlying node logic without caring about metrics.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

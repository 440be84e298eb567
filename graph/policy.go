// Package graph provides the core graph execution engine for the workflow core.
package graph

import (
	"math/rand"
	"time"
)

// NodePolicy configures execution behavior for one node: its timeout
// and retry strategy. Unset fields fall back to Options defaults.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node.
	// If zero, Options.DefaultNodeTimeout is used.
	Timeout time.Duration

	// RetryPolicy specifies automatic retry behavior for transient
	// failures. If nil, no retries are attempted.
	RetryPolicy *RetryPolicy
}

// RetryPolicy defines automatic retry of transient node failures, with
// exponential backoff plus jitter so concurrent retries don't
// synchronize.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of execution attempts including
	// the initial one. Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff. The actual delay is
	// min(BaseDelay * 2^attempt, MaxDelay) + jitter(0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Must be >= BaseDelay when
	// both are set.
	MaxDelay time.Duration

	// Retryable decides whether an error warrants another attempt.
	// If nil, all errors are terminal. Typical retryable cases:
	// network timeouts, HTTP 429/503/504, provider overload.
	Retryable func(error) bool
}

// computeBackoff returns the delay before the next retry:
// min(base * 2^attempt, maxDelay) plus a jitter drawn from [0, base).
// rng should be the thread-seeded context RNG so retry timing is
// reproducible across a checkpoint/resume cycle; a nil rng falls back
// to the global source.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	exponentialDelay := base * (1 << attempt)
	if maxDelay > 0 && exponentialDelay > maxDelay {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if base > 0 {
		if rng != nil {
			jitter = time.Duration(rng.Int63n(int64(base)))
		} else {
			jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter timing, not security
		}
	}

	return exponentialDelay + jitter
}

// Validate checks the RetryPolicy constraints: MaxAttempts >= 1, and
// MaxDelay >= BaseDelay when both are set (MaxDelay == 0 means no cap).
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

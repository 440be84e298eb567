package workflow

import (
	"encoding/json"
	"fmt"
	"io"
)

// FrameType enumerates the nine SSE frame shapes of the stream protocol.
// The stream endpoint emits all of them except
// integration_added_incrementally, which nothing in this module produces.
type FrameType string

const (
	FrameThinking                    FrameType = "thinking"
	FrameIntegrationsReady           FrameType = "integrations_ready"
	FrameIntegrationAddedIncremental FrameType = "integration_added_incrementally"
	FrameProgress                    FrameType = "progress"
	FrameStepThinking                FrameType = "step_thinking"
	FrameToken                       FrameType = "token"
	FrameApprovalRequired            FrameType = "approval_required"
	FrameError                       FrameType = "error"
	FrameDone                        FrameType = "done"
)

// Frame is one SSE event. Type selects which optional fields are
// meaningful; json.Marshal omits the rest via omitempty.
type Frame struct {
	Type FrameType `json:"type"`

	// thinking / step_thinking
	Content      string `json:"content,omitempty"`
	DurationHint string `json:"duration_hint,omitempty"`
	StepNumber   int    `json:"step_number,omitempty"`

	// integrations_ready / integration_added_incrementally
	Integrations []IntegrationInfo `json:"integrations,omitempty"`
	Integration  *IntegrationInfo  `json:"integration,omitempty"`

	// progress
	ThreadID         string  `json:"thread_id,omitempty"`
	CurrentStep      int     `json:"current_step,omitempty"`
	Plan             *Plan   `json:"plan,omitempty"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd,omitempty"`

	// approval_required
	Interrupt *Interrupt `json:"interrupt,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// WriteFrame writes one SSE frame (`data: <json>\n\n`) to w and flushes
// if w supports it.
func WriteFrame(w io.Writer, f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("workflow: marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("workflow: write frame: %w", err)
	}
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return nil
}

type flusher interface {
	Flush()
}

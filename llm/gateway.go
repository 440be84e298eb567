// Package llm adapts the provider-agnostic chat model
// (github.com/flowforge/agentcore/graph/model, with its Anthropic/OpenAI/
// Google adapters) into the workflow.Gateway contract: structured plan
// generation and bounded tool-call-loop step execution, both with a
// token-streaming variant.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowforge/agentcore/graph/model"
	"github.com/flowforge/agentcore/workflow"
)

// maxPlanAttempts bounds the planner's schema-repair retry loop.
const maxPlanAttempts = 3

// maxToolIterations is the hard cap on tool-call round trips per step.
const maxToolIterations = 6

// Gateway implements workflow.Gateway over a single model.ChatModel.
// modelID is used purely for cost-tracking attribution (graph.CostTracker
// keys its pricing table by model id); it is not otherwise interpreted.
type Gateway struct {
	chat     model.ChatModel
	modelID  string
	retry    RetryConfig
	now      func() time.Time
	streamBy int // word-chunk size for the simulated streaming variants
}

// RetryConfig governs the gateway's handling of transient network errors
// from the underlying ChatModel: exponential backoff to a finite cap,
// permanent errors surfaced immediately.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig is 3 attempts with a 500ms base delay capped at 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// New builds a Gateway over chat, a provider adapter from graph/model's
// anthropic/openai/google packages (or model.MockChatModel in tests).
// modelID feeds graph.CostTracker attribution and carries no other
// meaning.
func New(chat model.ChatModel, modelID string) *Gateway {
	return &Gateway{
		chat:     chat,
		modelID:  modelID,
		retry:    DefaultRetryConfig(),
		now:      time.Now,
		streamBy: 1,
	}
}

// WithRetryConfig overrides the default retry behavior.
func (g *Gateway) WithRetryConfig(rc RetryConfig) *Gateway {
	g.retry = rc
	return g
}

// ModelID identifies the underlying model for cost-tracking attribution.
func (g *Gateway) ModelID() string { return g.modelID }

// Plan implements workflow.Gateway.
func (g *Gateway) Plan(ctx context.Context, request string, history []workflow.Message, registry workflow.Registry) (workflow.PlanResult, error) {
	messages := g.planMessages(request, history, registry, "")

	var lastErr error
	for attempt := 0; attempt < maxPlanAttempts; attempt++ {
		if attempt > 0 {
			messages = g.planMessages(request, history, registry, lastErr.Error())
		}
		out, err := g.chatWithRetry(ctx, messages, []model.ToolSpec{planToolSpec})
		if err != nil {
			return workflow.PlanResult{}, &workflow.PlannerError{Cause: err}
		}
		plan, perr := parsePlanOutput(request, out)
		if perr != nil {
			lastErr = perr
			continue
		}
		return workflow.PlanResult{Plan: plan, InputTokens: estimateTokens(messages), OutputTokens: estimateTextTokens(out.Text)}, nil
	}
	return workflow.PlanResult{}, &workflow.PlannerError{Cause: fmt.Errorf("planner did not produce a schema-valid plan after %d attempts: %w", maxPlanAttempts, lastErr)}
}

// PlanStream implements workflow.Gateway's streaming Plan variant. The
// underlying provider adapters (graph/model/{anthropic,openai,google})
// return a single complete ChatOut rather than incremental deltas, so
// streaming here is simulated by chunking the final plan's rationale
// into word-sized tokens after the call completes.
func (g *Gateway) PlanStream(ctx context.Context, request string, history []workflow.Message, registry workflow.Registry, onToken func(workflow.PlanToken)) (workflow.PlanResult, error) {
	result, err := g.Plan(ctx, request, history, registry)
	if err != nil {
		return result, err
	}
	if onToken != nil {
		for _, chunk := range chunkWords(result.Plan.Thinking) {
			onToken(workflow.PlanToken{Content: chunk})
		}
	}
	return result, nil
}

// ExecuteStep implements workflow.Gateway: runs a bounded tool-call loop,
// feeding each tool's output back to the model until it returns a final
// text answer or the iteration cap is hit.
func (g *Gateway) ExecuteStep(ctx context.Context, step workflow.Step, state workflow.GraphState, tools []workflow.Tool) (workflow.ExecResult, error) {
	return g.executeStep(ctx, step, state, tools, nil)
}

// ExecuteStepStream implements workflow.Gateway's streaming ExecuteStep
// variant; see PlanStream's doc comment for the same simulated-streaming
// caveat.
func (g *Gateway) ExecuteStepStream(ctx context.Context, step workflow.Step, state workflow.GraphState, tools []workflow.Tool, onToken func(workflow.StepToken)) (workflow.ExecResult, error) {
	return g.executeStep(ctx, step, state, tools, onToken)
}

func (g *Gateway) executeStep(ctx context.Context, step workflow.Step, state workflow.GraphState, tools []workflow.Tool, onToken func(workflow.StepToken)) (workflow.ExecResult, error) {
	messages := stepMessages(step, state)
	specs := toolSpecsFor(tools)
	toolOutputs := make(map[string]interface{})

	var totalIn, totalOut int
	for iter := 0; iter < maxToolIterations; iter++ {
		out, err := g.chatWithRetry(ctx, messages, specs)
		if err != nil {
			return workflow.ExecResult{}, &workflow.ExecutionError{StepNumber: step.Number, Cause: err}
		}
		totalIn += estimateTokens(messages)
		totalOut += estimateTextTokens(out.Text)

		if len(out.ToolCalls) == 0 {
			if onToken != nil {
				for _, chunk := range chunkWords(out.Text) {
					onToken(workflow.StepToken{Content: chunk})
				}
			}
			return workflow.ExecResult{
				ResultText:   out.Text,
				ToolOutputs:  toolOutputs,
				Rationale:    out.Text,
				InputTokens:  totalIn,
				OutputTokens: totalOut,
			}, nil
		}

		messages = append(messages, model.Message{Role: model.RoleAssistant, Content: out.Text})
		for _, call := range out.ToolCalls {
			tool := findTool(tools, call.Name)
			if tool == nil {
				messages = append(messages, model.Message{Role: "tool", Content: fmt.Sprintf("tool %q is not authorized for this step", call.Name)})
				continue
			}
			result, terr := tool.Call(ctx, call.Input)
			if terr != nil {
				return workflow.ExecResult{}, &workflow.ExecutionError{StepNumber: step.Number, Cause: fmt.Errorf("tool %q failed: %w", call.Name, terr)}
			}
			toolOutputs[call.Name] = result
			encoded, _ := json.Marshal(result)
			messages = append(messages, model.Message{Role: "tool", Content: string(encoded)})
		}
	}
	return workflow.ExecResult{}, &workflow.ExecutionError{StepNumber: step.Number, Cause: errors.New("tool-call loop exceeded the per-step iteration cap")}
}

// chatWithRetry retries transient ChatModel failures with exponential
// backoff: graph.computeBackoff's min(base * 2^attempt, max) term
// (unexported there), without jitter.
func (g *Gateway) chatWithRetry(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	var lastErr error
	for attempt := 0; attempt < max(g.retry.MaxAttempts, 1); attempt++ {
		if attempt > 0 {
			delay := backoff(attempt-1, g.retry.BaseDelay, g.retry.MaxDelay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return model.ChatOut{}, ctx.Err()
			}
		}
		out, err := g.chat.Chat(ctx, messages, tools)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransient(err) {
			return model.ChatOut{}, err
		}
	}
	return model.ChatOut{}, lastErr
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "rate limit", "429", "503", "504", "connection reset", "temporarily unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base * (1 << attempt)
	if d > max {
		d = max
	}
	return d
}

func findTool(tools []workflow.Tool, name string) workflow.Tool {
	for _, t := range tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func chunkWords(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, len(fields))
	for i, f := range fields {
		if i > 0 {
			f = " " + f
		}
		out[i] = f
	}
	return out
}

// estimateTokens is a rough chars/4 heuristic used only to populate
// graph.CostTracker attribution when the underlying provider SDK response
// doesn't surface real usage counters through model.ChatOut.
func estimateTokens(messages []model.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}

func estimateTextTokens(text string) int {
	return len(text) / 4
}

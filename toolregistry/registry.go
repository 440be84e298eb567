package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/flowforge/agentcore/graph/tool"
	"github.com/flowforge/agentcore/workflow"
)

// Registry implements workflow.Registry: an immutable, per-request view
// of the tools a caller is authorized to use, built once from a bag of
// per-integration bearer tokens.
type Registry struct {
	integrations []workflow.IntegrationInfo
	tools        []*boundTool
}

// Build produces a Registry from catalog, keeping only integrations
// whose CredentialKey is present (non-empty) in credentials; tools
// whose credential is missing are omitted entirely.
func Build(catalog []IntegrationDef, credentials map[string]string) *Registry {
	reg := &Registry{}
	for _, integ := range catalog {
		cred, ok := credentials[integ.CredentialKey]
		if !ok || cred == "" {
			continue
		}
		for _, td := range integ.Tools {
			limiter := rate.NewLimiter(rate.Limit(td.RatePerSecond), maxInt(td.Burst, 1))
			reg.tools = append(reg.tools, &boundTool{
				def:           td,
				integrationID: integ.IntegrationID,
				approval:      integ.ApprovalClass,
				inner:         td.New(cred),
				limiter:       limiter,
			})
		}
		reg.integrations = append(reg.integrations, workflow.IntegrationInfo{
			IntegrationID: integ.IntegrationID,
			DisplayName:   integ.DisplayName,
			IconID:        integ.IconID,
			ToolCount:     len(integ.Tools),
			ApprovalClass: integ.ApprovalClass,
		})
	}
	return reg
}

// Snapshot implements workflow.Registry.
func (r *Registry) Snapshot() workflow.RegistrySnapshot {
	return workflow.RegistrySnapshot{Integrations: r.integrations}
}

// ToolsFor implements workflow.Registry. An empty hint list, or a hint
// list that resolves to nothing in the authorized set, returns every
// authorized tool rather than none. The hint is advisory; the final
// choice belongs to the LLM given the full authorized set.
func (r *Registry) ToolsFor(stepHints []string) []workflow.Tool {
	if len(stepHints) == 0 {
		return r.allTools()
	}
	wanted := make(map[string]bool, len(stepHints))
	for _, h := range stepHints {
		wanted[h] = true
	}
	var matched []workflow.Tool
	for _, t := range r.tools {
		if wanted[t.Name()] {
			matched = append(matched, t)
		}
	}
	if len(matched) == 0 {
		return r.allTools()
	}
	return matched
}

func (r *Registry) allTools() []workflow.Tool {
	out := make([]workflow.Tool, len(r.tools))
	for i, t := range r.tools {
		out[i] = t
	}
	return out
}

// boundTool adapts one ToolDef's concrete graph/tool.Tool into
// workflow.Tool, adding the description/schema/approval-class metadata
// the executor and planner need, plus a per-tool rate limiter. Limits
// are per-process; there is no cross-deployment coordination.
type boundTool struct {
	def           ToolDef
	integrationID string
	approval      workflow.ApprovalClass
	inner         tool.Tool
	limiter       *rate.Limiter
}

func (b *boundTool) Name() string                          { return b.def.Name }
func (b *boundTool) Description() string                   { return b.def.Description }
func (b *boundTool) InputSchema() map[string]interface{}   { return b.def.InputSchema }
func (b *boundTool) ApprovalClass() workflow.ApprovalClass { return b.approval }

func (b *boundTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tool %s: rate limit wait: %w", b.def.Name, err)
	}
	return b.inner.Call(ctx, input)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func encodeJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

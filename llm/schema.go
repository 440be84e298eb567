package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/flowforge/agentcore/graph/model"
	"github.com/flowforge/agentcore/workflow"
)

// planOutput is the schema-conformant shape the planner must emit. It
// mirrors workflow.Plan/workflow.Step but only the fields the model is
// responsible for producing; status, result, and error are the
// runtime's, not the planner's, to set.
type planOutput struct {
	Thinking string       `json:"thinking" jsonschema:"required,description=Rationale for why these steps accomplish the request"`
	Steps    []stepOutput `json:"steps" jsonschema:"required,description=Ordered, 1-indexed, dense list of steps"`
}

type stepOutput struct {
	Description      string   `json:"description" jsonschema:"required,description=What this step does"`
	ToolHints        []string `json:"tool_hints,omitempty" jsonschema:"description=Tool ids this step will likely need"`
	RequiresApproval bool     `json:"requires_approval" jsonschema:"description=True if a human must confirm before this step runs"`
	ApprovalReason   string   `json:"approval_reason,omitempty" jsonschema:"description=Why approval is required, when requires_approval is true"`
}

// planToolSpec is generated once from planOutput via reflection and
// handed to the model as a forced-call tool, the most reliable way
// across the three wired providers to obtain schema-conformant
// structured output.
var planToolSpec = model.ToolSpec{
	Name:        "emit_plan",
	Description: "Emit the structured multi-step plan for the user's request.",
	Schema:      mustGenerateSchema[planOutput](),
}

func mustGenerateSchema[T any]() map[string]interface{} {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("llm: generate schema: %v", err))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("llm: decode schema: %v", err))
	}
	return m
}

func (g *Gateway) planMessages(request string, history []workflow.Message, registry workflow.Registry, repairNote string) []model.Message {
	var sb strings.Builder
	sb.WriteString("You are the planning stage of a workflow engine. Given the user's ")
	sb.WriteString("request and the tools available, call emit_plan with an ordered list ")
	sb.WriteString("of concrete steps that accomplish it. Flag any step that sends, ")
	sb.WriteString("publishes, or otherwise has an irreversible external effect with ")
	sb.WriteString("requires_approval=true and a one-sentence approval_reason.")
	if registry != nil {
		snap := registry.Snapshot()
		if len(snap.Integrations) > 0 {
			sb.WriteString(" Available integrations: ")
			for i, integ := range snap.Integrations {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(integ.IntegrationID)
			}
			sb.WriteString(".")
		}
	}
	messages := []model.Message{{Role: model.RoleSystem, Content: sb.String()}}
	for _, m := range history {
		messages = append(messages, model.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: request})
	if repairNote != "" {
		messages = append(messages, model.Message{
			Role:    model.RoleSystem,
			Content: "Your previous response was not a valid plan: " + repairNote + ". Call emit_plan again, correctly this time.",
		})
	}
	return messages
}

// parsePlanOutput extracts a planOutput from a ChatOut, preferring a
// forced emit_plan tool call, falling back to parsing Text as raw JSON
// for providers/mocks that answer in-line, and converts it into a
// validated workflow.Plan with dense 1..N step numbering.
func parsePlanOutput(request string, out model.ChatOut) (workflow.Plan, error) {
	raw, err := extractPlanPayload(out)
	if err != nil {
		return workflow.Plan{}, err
	}
	var po planOutput
	if err := json.Unmarshal(raw, &po); err != nil {
		return workflow.Plan{}, fmt.Errorf("plan payload is not valid JSON: %w", err)
	}
	if po.Thinking == "" {
		return workflow.Plan{}, fmt.Errorf("plan is missing rationale (thinking)")
	}
	if len(po.Steps) == 0 {
		return workflow.Plan{}, fmt.Errorf("plan has no steps")
	}

	steps := make([]workflow.Step, len(po.Steps))
	for i, s := range po.Steps {
		if strings.TrimSpace(s.Description) == "" {
			return workflow.Plan{}, fmt.Errorf("step %d is missing a description", i+1)
		}
		steps[i] = workflow.Step{
			Number:           i + 1,
			Description:      s.Description,
			ToolHints:        s.ToolHints,
			RequiresApproval: s.RequiresApproval,
			ApprovalReason:   s.ApprovalReason,
			Status:           workflow.StepPending,
		}
	}
	return workflow.Plan{Request: request, Thinking: po.Thinking, Steps: steps}, nil
}

func extractPlanPayload(out model.ChatOut) ([]byte, error) {
	for _, call := range out.ToolCalls {
		if call.Name == planToolSpec.Name {
			encoded, err := json.Marshal(call.Input)
			if err != nil {
				return nil, fmt.Errorf("re-encode tool call input: %w", err)
			}
			return encoded, nil
		}
	}
	text := strings.TrimSpace(out.Text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("model returned neither an emit_plan tool call nor plan text")
	}
	return []byte(text), nil
}

// stepMessages builds the execution-turn prompt for one step: its
// description, the original request for context, and prior steps'
// results so later steps can reference earlier output.
func stepMessages(step workflow.Step, state workflow.GraphState) []model.Message {
	var sb strings.Builder
	sb.WriteString("You are the execution stage of a workflow engine. Carry out exactly ")
	sb.WriteString("one step using the tools available to you, then respond with your ")
	sb.WriteString("final answer as plain text once no further tool calls are needed.")
	messages := []model.Message{{Role: model.RoleSystem, Content: sb.String()}}

	if state.Plan != nil {
		messages = append(messages, model.Message{Role: model.RoleUser, Content: "Original request: " + state.Plan.Request})
		for _, s := range state.Plan.Steps {
			if s.Number < step.Number && s.Result != "" {
				messages = append(messages, model.Message{
					Role:    model.RoleAssistant,
					Content: fmt.Sprintf("Step %d result: %s", s.Number, s.Result),
				})
			}
		}
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: fmt.Sprintf("Step %d: %s", step.Number, step.Description)})
	return messages
}

func toolSpecsFor(tools []workflow.Tool) []model.ToolSpec {
	if len(tools) == 0 {
		return nil
	}
	specs := make([]model.ToolSpec, len(tools))
	for i, t := range tools {
		specs[i] = model.ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.InputSchema()}
	}
	return specs
}

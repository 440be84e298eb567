// Package tool defines the executable-tool interface the step executor
// invokes, plus the HTTP-backed and mock implementations bound into the
// tool registry.
package tool

import "context"

// Tool is one callable external capability (a search, a document fetch,
// a mail send). Implementations validate their own input, respect
// context cancellation, and return structured output the LLM can be fed
// on the next tool-loop turn.
//
// Name must match the ToolSpec name advertised to the LLM: lowercase
// with underscores ("search_web", "send_mail").
type Tool interface {
	Name() string

	// Call executes the tool. input holds the parameters as key-value
	// pairs and may be nil for parameterless tools; its structure should
	// match the Schema in the corresponding ToolSpec. Errors are
	// returned for invalid input, transport failures, or context
	// cancellation.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Package model provides LLM integration adapters.
package model

import "context"

// ChatModel is the provider-agnostic chat interface the LLM gateway
// drives. Adapters for OpenAI, Anthropic, and Google live in the
// subpackages; each handles its provider's authentication, message
// format, tool-call encoding, and error translation behind this one
// method set.
type ChatModel interface {
	// Chat sends the conversation (plus optional tool specs, nil when
	// no tools apply) to the provider and returns its response: text,
	// tool calls, or both. Errors cover provider failures, transport
	// failures, and context cancellation.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn in an LLM conversation, in the common chat
// format shared by the wired providers: an optional leading system
// message, then alternating user and assistant turns.
type Message struct {
	// Role identifies the message sender.
	// Standard roles: "system", "user", "assistant".
	// Use the Role* constants for consistency.
	Role string

	// Content contains the message text.
	// May be empty for messages that only contain tool calls.
	Content string
}

// Standard role constants for LLM conversations.
// These align with the conventions used by major LLM providers.
const (
	// RoleSystem indicates a system message that sets context or instructions.
	// System messages typically appear first in a conversation.
	RoleSystem = "system"

	// RoleUser indicates a message from the human user.
	// User messages contain questions, requests, or input data.
	RoleUser = "user"

	// RoleAssistant indicates a response from the LLM.
	// Assistant messages contain generated text or tool calls.
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the LLM may call. Schema is JSON Schema
// for the tool's input parameters.
type ToolSpec struct {
	// Name uniquely identifies the tool.
	// Must be a valid function name (alphanumeric + underscores).
	Name string

	// Description explains what the tool does.
	// The LLM uses this to decide when to call the tool.
	Description string

	// Schema defines the tool's input parameters using JSON Schema format.
	// Optional for tools with no parameters.
	Schema map[string]interface{}
}

// ChatOut is one chat completion: generated text, requested tool
// calls, or both.
type ChatOut struct {
	// Text contains the LLM's generated response.
	// May be empty if the LLM only wants to call tools.
	Text string

	// ToolCalls contains tools the LLM wants to invoke.
	// Empty if the LLM provided a direct text response.
	ToolCalls []ToolCall
}

// ToolCall is the LLM's request to invoke one tool. The caller
// executes the tool with Input and feeds the result back as the next
// conversation turn.
type ToolCall struct {
	// Name identifies which tool to call.
	// Must match a ToolSpec.Name from the available tools.
	Name string

	// Input contains the parameters for the tool call.
	// Structure matches the ToolSpec.Schema for this tool.
	// May be nil for tools that take no parameters.
	Input map[string]interface{}
}

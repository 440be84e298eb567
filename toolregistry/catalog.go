// Package toolregistry builds a per-request workflow.Registry from
// caller-supplied credentials. Concrete tools wrap graph/tool.Tool
// implementations (HTTPTool for real network calls, MockTool in tests);
// this package adds the integration grouping, credential gating,
// approval classification, and per-integration rate limiting.
package toolregistry

import (
	"context"

	"github.com/flowforge/agentcore/graph/tool"
	"github.com/flowforge/agentcore/workflow"
)

// IntegrationDef is the static, credential-independent description of one
// integration: its display metadata, the credential key Build() looks
// for, and the tools it contributes once authorized.
type IntegrationDef struct {
	IntegrationID string
	DisplayName   string
	IconID        string
	CredentialKey string
	ApprovalClass workflow.ApprovalClass
	Tools         []ToolDef
}

// ToolDef is the static description of one callable tool within an
// integration, plus a factory that binds it to a concrete graph/tool.Tool
// implementation once the integration's credential is known.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	// RatePerSecond/Burst configure the per-tool token bucket, bounding
	// a single workflow's own tool-call loop. Limits are per-process
	// only; nothing is coordinated across deployments.
	RatePerSecond float64
	Burst         int
	New           func(credential string) tool.Tool
}

// DefaultCatalog is the built-in set of integrations this core ships
// with: a silent read-only search, an advisory document reader, and a
// mandatory-approval mail sender, one integration per approval class.
func DefaultCatalog() []IntegrationDef {
	return []IntegrationDef{
		{
			IntegrationID: "search",
			DisplayName:   "Web Search",
			IconID:        "search",
			CredentialKey: "search_token",
			ApprovalClass: workflow.ApprovalSilent,
			Tools: []ToolDef{
				{
					Name:        "search_web",
					Description: "Search the web and return matching results.",
					InputSchema: map[string]interface{}{
						"type":       "object",
						"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
						"required":   []string{"query"},
					},
					RatePerSecond: 2,
					Burst:         4,
					New: func(credential string) tool.Tool {
						return newBearerHTTPTool("https://api.search.example/v1/search", credential)
					},
				},
			},
		},
		{
			IntegrationID: "docs",
			DisplayName:   "Documents",
			IconID:        "file-text",
			CredentialKey: "docs_token",
			ApprovalClass: workflow.ApprovalAdvisory,
			Tools: []ToolDef{
				{
					Name:        "read_document",
					Description: "Fetch a document's contents by id.",
					InputSchema: map[string]interface{}{
						"type":       "object",
						"properties": map[string]interface{}{"document_id": map[string]interface{}{"type": "string"}},
						"required":   []string{"document_id"},
					},
					RatePerSecond: 3,
					Burst:         6,
					New: func(credential string) tool.Tool {
						return newBearerHTTPTool("https://api.docs.example/v1/documents", credential)
					},
				},
			},
		},
		{
			IntegrationID: "mail",
			DisplayName:   "Mail",
			IconID:        "mail",
			CredentialKey: "mail_token",
			ApprovalClass: workflow.ApprovalMandatory,
			Tools: []ToolDef{
				{
					Name:        "send_mail",
					Description: "Send an email to one or more recipients.",
					InputSchema: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"to":      map[string]interface{}{"type": "string"},
							"subject": map[string]interface{}{"type": "string"},
							"body":    map[string]interface{}{"type": "string"},
						},
						"required": []string{"to", "body"},
					},
					RatePerSecond: 1,
					Burst:         2,
					New: func(credential string) tool.Tool {
						return newBearerHTTPTool("https://api.mail.example/v1/send", credential)
					},
				},
			},
		},
	}
}

// newBearerHTTPTool wraps tool.NewHTTPTool so callers only ever supply a
// query/body and never see the bearer token: the credential is injected
// into every outgoing request's Authorization header by boundHTTPTool
// (below), not passed through LLM-visible input.
func newBearerHTTPTool(baseURL, credential string) tool.Tool {
	return &boundHTTPTool{base: baseURL, credential: credential, inner: tool.NewHTTPTool()}
}

// boundHTTPTool is the credential-carrying adapter between a ToolDef's
// static endpoint and the generic tool.HTTPTool, which expects the full
// URL/headers in its input map rather than holding them itself.
type boundHTTPTool struct {
	base       string
	credential string
	inner      *tool.HTTPTool
}

func (b *boundHTTPTool) Name() string { return "http_request" }

func (b *boundHTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	headers := map[string]interface{}{"Authorization": "Bearer " + b.credential}
	req := map[string]interface{}{
		"method":  "POST",
		"url":     b.base,
		"headers": headers,
	}
	if body, ok := input["body"]; ok {
		req["body"] = body
	} else {
		req["body"] = encodeJSON(input)
	}
	return b.inner.Call(ctx, req)
}

package toolregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/agentcore/graph/tool"
	"github.com/flowforge/agentcore/workflow"
)

func testCatalog() []IntegrationDef {
	return []IntegrationDef{
		{
			IntegrationID: "search",
			DisplayName:   "Web Search",
			IconID:        "search",
			CredentialKey: "search_token",
			ApprovalClass: workflow.ApprovalSilent,
			Tools: []ToolDef{
				{
					Name:          "search_web",
					Description:   "search",
					RatePerSecond: 1000,
					Burst:         1000,
					New: func(credential string) tool.Tool {
						return &mockTool{name: "search_web", credential: credential}
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
					Name:          "send_mail",
					Description:   "send mail",
					RatePerSecond: 1000,
					Burst:         1000,
					New: func(credential string) tool.Tool {
						return &mockTool{name: "send_mail", credential: credential}
					},
				},
			},
		},
	}
}

type mockTool struct {
	name       string
	credential string
}

func (m *mockTool) Name() string { return m.name }

func (m *mockTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"credential": m.credential}, nil
}

func TestBuild_OmitsIntegrationsMissingCredentials(t *testing.T) {
	reg := Build(testCatalog(), map[string]string{"search_token": "s3cr3t"})

	snap := reg.Snapshot()
	require.Len(t, snap.Integrations, 1)
	assert.Equal(t, "search", snap.Integrations[0].IntegrationID)

	tools := reg.ToolsFor(nil)
	require.Len(t, tools, 1)
	assert.Equal(t, "search_web", tools[0].Name())
}

func TestBuild_EmptyCredentialIsTreatedAsMissing(t *testing.T) {
	reg := Build(testCatalog(), map[string]string{"search_token": ""})
	assert.Empty(t, reg.Snapshot().Integrations)
}

func TestRegistry_ToolsFor_MatchesHintedTools(t *testing.T) {
	reg := Build(testCatalog(), map[string]string{"search_token": "a", "mail_token": "b"})

	matched := reg.ToolsFor([]string{"send_mail"})
	require.Len(t, matched, 1)
	assert.Equal(t, "send_mail", matched[0].Name())
	assert.Equal(t, workflow.ApprovalMandatory, matched[0].ApprovalClass())
}

func TestRegistry_ToolsFor_UnmatchedHintFallsBackToAllAuthorizedTools(t *testing.T) {
	reg := Build(testCatalog(), map[string]string{"search_token": "a"})

	matched := reg.ToolsFor([]string{"does_not_exist"})
	require.Len(t, matched, 1)
	assert.Equal(t, "search_web", matched[0].Name())
}

func TestRegistry_ToolsFor_NoHintsReturnsEveryAuthorizedTool(t *testing.T) {
	reg := Build(testCatalog(), map[string]string{"search_token": "a", "mail_token": "b"})
	assert.Len(t, reg.ToolsFor(nil), 2)
}

func TestBoundTool_Call_InjectsCredential(t *testing.T) {
	reg := Build(testCatalog(), map[string]string{"search_token": "tok-123"})
	tools := reg.ToolsFor([]string{"search_web"})
	require.Len(t, tools, 1)

	out, err := tools[0].Call(context.Background(), map[string]interface{}{"query": "go"})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", out["credential"])
}

func TestBoundTool_Call_RateLimitBlocksUntilContextCanceled(t *testing.T) {
	catalog := []IntegrationDef{
		{
			IntegrationID: "search",
			CredentialKey: "search_token",
			ApprovalClass: workflow.ApprovalSilent,
			Tools: []ToolDef{
				{
					Name:          "search_web",
					RatePerSecond: 0.0001,
					Burst:         1,
					New: func(credential string) tool.Tool {
						return &mockTool{name: "search_web", credential: credential}
					},
				},
			},
		},
	}
	reg := Build(catalog, map[string]string{"search_token": "tok"})
	tools := reg.ToolsFor(nil)
	require.Len(t, tools, 1)

	// Exhaust the single burst token, then the next call should fail fast
	// against an already-canceled context rather than waiting out the
	// (very slow) refill.
	ctx, cancel := context.WithCancel(context.Background())
	_, err := tools[0].Call(ctx, nil)
	require.NoError(t, err)
	cancel()
	_, err = tools[0].Call(ctx, nil)
	assert.Error(t, err)
}

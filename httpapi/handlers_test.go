package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/agentcore/checkpointer"
	"github.com/flowforge/agentcore/graph/emit"
	"github.com/flowforge/agentcore/workflow"
)

// scriptedGateway is a workflow.Gateway whose Plan emits two steps, the
// second requiring approval whenever the request mentions "mail",
// enough to drive both the happy-path and suspend/resume scenarios
// end-to-end through the real HTTP surface.
type scriptedGateway struct{}

func (scriptedGateway) Plan(ctx context.Context, request string, history []workflow.Message, registry workflow.Registry) (workflow.PlanResult, error) {
	steps := []workflow.Step{
		{Number: 1, Description: "research the topic", Status: workflow.StepPending},
	}
	if strings.Contains(request, "mail") {
		steps = append(steps, workflow.Step{
			Number:           2,
			Description:      "send the mail",
			RequiresApproval: true,
			ApprovalReason:   "sending mail requires confirmation",
			Status:           workflow.StepPending,
		})
	}
	return workflow.PlanResult{Plan: workflow.Plan{Request: request, Thinking: "plan for: " + request, Steps: steps}}, nil
}

func (scriptedGateway) ExecuteStep(ctx context.Context, step workflow.Step, state workflow.GraphState, tools []workflow.Tool) (workflow.ExecResult, error) {
	return workflow.ExecResult{ResultText: "done: " + step.Description, Rationale: "because asked"}, nil
}

func (g scriptedGateway) PlanStream(ctx context.Context, request string, history []workflow.Message, registry workflow.Registry, onToken func(workflow.PlanToken)) (workflow.PlanResult, error) {
	return g.Plan(ctx, request, history, registry)
}

func (g scriptedGateway) ExecuteStepStream(ctx context.Context, step workflow.Step, state workflow.GraphState, tools []workflow.Tool, onToken func(workflow.StepToken)) (workflow.ExecResult, error) {
	return g.ExecuteStep(ctx, step, state, tools)
}

type emptyRegistry struct{}

func (emptyRegistry) Snapshot() workflow.RegistrySnapshot     { return workflow.RegistrySnapshot{} }
func (emptyRegistry) ToolsFor(hints []string) []workflow.Tool { return nil }

func newTestService() *workflow.Service {
	cp := checkpointer.NewMemCheckpointer[workflow.GraphState]()
	return workflow.NewService(
		cp,
		scriptedGateway{},
		"mock-model",
		func(credentials map[string]string) workflow.Registry { return emptyRegistry{} },
		workflow.NewInMemoryMetadataStore(),
		nil,
		emit.NewNullEmitter(),
	)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestChat_FreshRequestNoApprovalCompletes(t *testing.T) {
	router := NewRouter(newTestService())

	rec := doJSON(t, router, http.MethodPost, "/chat", chatRequestBody{Request: "summarize doc X"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ThreadID)
	require.True(t, resp.IsComplete)
	require.Len(t, resp.Plan.Steps, 1)
	assert.Equal(t, workflow.StepCompleted, resp.Plan.Steps[0].Status)
}

func TestChat_MissingRequestIs400(t *testing.T) {
	router := NewRouter(newTestService())
	rec := doJSON(t, router, http.MethodPost, "/chat", chatRequestBody{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_TopLevelIntegrationTokensReachTheRegistry(t *testing.T) {
	var seen map[string]string
	cp := checkpointer.NewMemCheckpointer[workflow.GraphState]()
	svc := workflow.NewService(
		cp,
		scriptedGateway{},
		"mock-model",
		func(credentials map[string]string) workflow.Registry {
			seen = credentials
			return emptyRegistry{}
		},
		workflow.NewInMemoryMetadataStore(),
		nil,
		emit.NewNullEmitter(),
	)
	router := NewRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"request": "summarize doc X", "search_token": "s3", "mail_token": "m4"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "s3", seen["search_token"])
	assert.Equal(t, "m4", seen["mail_token"])
}

func TestChat_MalformedBodyIs400(t *testing.T) {
	router := NewRouter(newTestService())
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatThenResume_ApprovalRequiredThenApprove(t *testing.T) {
	router := NewRouter(newTestService())

	rec := doJSON(t, router, http.MethodPost, "/chat", chatRequestBody{Request: "email the summary to a@b.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var first chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.False(t, first.IsComplete)
	require.Len(t, first.Plan.Steps, 2)
	assert.Equal(t, workflow.StepAwaitingApproval, first.Plan.Steps[1].Status)

	rec = doJSON(t, router, http.MethodPost, "/chat/resume", resumeRequestBody{ThreadID: first.ThreadID, Action: "approve"})
	require.Equal(t, http.StatusOK, rec.Code)
	var second chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.IsComplete)
	assert.Equal(t, workflow.StepCompleted, second.Plan.Steps[1].Status)
}

func TestChatThenResume_Skip(t *testing.T) {
	router := NewRouter(newTestService())

	rec := doJSON(t, router, http.MethodPost, "/chat", chatRequestBody{Request: "email the summary to a@b.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var first chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = doJSON(t, router, http.MethodPost, "/chat/resume", resumeRequestBody{ThreadID: first.ThreadID, Action: "skip"})
	require.Equal(t, http.StatusOK, rec.Code)
	var second chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.IsComplete)
	assert.Equal(t, workflow.StepSkipped, second.Plan.Steps[1].Status)
}

func TestResume_NotAwaitingApprovalIs409(t *testing.T) {
	router := NewRouter(newTestService())

	rec := doJSON(t, router, http.MethodPost, "/chat", chatRequestBody{Request: "summarize doc X"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = doJSON(t, router, http.MethodPost, "/chat/resume", resumeRequestBody{ThreadID: resp.ThreadID, Action: "approve"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResume_UnknownThreadIs409(t *testing.T) {
	router := NewRouter(newTestService())
	rec := doJSON(t, router, http.MethodPost, "/chat/resume", resumeRequestBody{ThreadID: "no-such-thread", Action: "approve"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetry_StepNumberOutOfRangeIs400(t *testing.T) {
	router := NewRouter(newTestService())

	rec := doJSON(t, router, http.MethodPost, "/chat", chatRequestBody{Request: "summarize doc X"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = doJSON(t, router, http.MethodPost, "/chat/retry", retryRequestBody{ThreadID: resp.ThreadID, StepNumber: 99})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_UnknownThreadIs404(t *testing.T) {
	router := NewRouter(newTestService())
	req := httptest.NewRequest(http.MethodGet, "/chat/history/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory_ReturnsLatestStateForKnownThread(t *testing.T) {
	router := NewRouter(newTestService())

	rec := doJSON(t, router, http.MethodPost, "/chat", chatRequestBody{Request: "summarize doc X"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/chat/history/"+resp.ThreadID, nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)

	var hist historyResponseBody
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &hist))
	assert.True(t, hist.IsComplete)
	require.Len(t, hist.Plan.Steps, 1)
}

func TestChatStream_EmitsSSEFramesEndingInDone(t *testing.T) {
	router := NewRouter(newTestService())

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(chatRequestBody{Request: "summarize doc X"}))
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var sawDone, sawProgress bool
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(payload), &frame))
		switch frame["type"] {
		case "done":
			sawDone = true
		case "progress":
			sawProgress = true
		}
	}
	assert.True(t, sawDone, "expected a done frame")
	assert.True(t, sawProgress, "expected at least one progress frame")
}

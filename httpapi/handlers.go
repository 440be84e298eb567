package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flowforge/agentcore/workflow"
)

type chatRequestBody struct {
	Request     string            `json:"request"`
	ThreadID    string            `json:"thread_id,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// decodeChatBody accepts integration tokens in either wire shape: a
// nested "credentials" map, or top-level "<integration>_token" fields
// ({"request": ..., "mail_token": "..."}). Top-level tokens win on
// key collision.
func decodeChatBody(r io.Reader) (chatRequestBody, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return chatRequestBody{}, err
	}

	var out chatRequestBody
	if v, ok := raw["request"]; ok {
		if err := json.Unmarshal(v, &out.Request); err != nil {
			return chatRequestBody{}, err
		}
	}
	if v, ok := raw["thread_id"]; ok {
		if err := json.Unmarshal(v, &out.ThreadID); err != nil {
			return chatRequestBody{}, err
		}
	}
	if v, ok := raw["credentials"]; ok {
		if err := json.Unmarshal(v, &out.Credentials); err != nil {
			return chatRequestBody{}, err
		}
	}
	for key, v := range raw {
		if !strings.HasSuffix(key, "_token") {
			continue
		}
		var token string
		if err := json.Unmarshal(v, &token); err != nil {
			return chatRequestBody{}, err
		}
		if out.Credentials == nil {
			out.Credentials = make(map[string]string)
		}
		out.Credentials[key] = token
	}
	return out, nil
}

type chatResponseBody struct {
	ThreadID   string         `json:"thread_id"`
	Plan       *workflow.Plan `json:"plan,omitempty"`
	IsComplete bool           `json:"is_complete"`
}

func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	body, err := decodeChatBody(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	resp, err := h.svc.Chat(r.Context(), workflow.ChatRequest{
		Request:     body.Request,
		ThreadID:    body.ThreadID,
		Credentials: body.Credentials,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponseBody{ThreadID: resp.ThreadID, Plan: resp.Plan, IsComplete: resp.IsComplete})
}

// chatStream commits to a 200 text/event-stream response as soon as the
// request body parses; everything after that, including a request that
// turns out to be invalid, is reported as an `error` SSE frame rather
// than a different status code, since headers are already on the wire.
func (h *handler) chatStream(w http.ResponseWriter, r *http.Request) {
	body, err := decodeChatBody(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if err := h.svc.ChatStream(r.Context(), workflow.ChatRequest{
		Request:     body.Request,
		ThreadID:    body.ThreadID,
		Credentials: body.Credentials,
	}, w); err != nil {
		h.logger.Printf("chat stream for thread %q ended in error: %v", body.ThreadID, err)
	}
}

type resumeRequestBody struct {
	ThreadID string                 `json:"thread_id"`
	Action   string                 `json:"action"`
	Content  map[string]interface{} `json:"content,omitempty"`
}

func (h *handler) resume(w http.ResponseWriter, r *http.Request) {
	var body resumeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	resp, err := h.svc.Resume(r.Context(), workflow.ResumeRequest{
		ThreadID: body.ThreadID,
		Action:   workflow.ResumeAction(body.Action),
		Content:  body.Content,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponseBody{ThreadID: resp.ThreadID, Plan: resp.Plan, IsComplete: resp.IsComplete})
}

type retryRequestBody struct {
	ThreadID   string `json:"thread_id"`
	StepNumber int    `json:"step_number"`
}

func (h *handler) retry(w http.ResponseWriter, r *http.Request) {
	var body retryRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	resp, err := h.svc.Retry(r.Context(), workflow.RetryRequest{ThreadID: body.ThreadID, StepNumber: body.StepNumber})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponseBody{ThreadID: resp.ThreadID, Plan: resp.Plan, IsComplete: resp.IsComplete})
}

type historyResponseBody struct {
	ThreadID           string                     `json:"thread_id"`
	Messages           []workflow.Message         `json:"messages"`
	Plan               *workflow.Plan             `json:"plan,omitempty"`
	CurrentStepIndex   int                        `json:"current_step_index"`
	LoadedIntegrations []workflow.IntegrationInfo `json:"loaded_integrations"`
	IsComplete         bool                       `json:"is_complete"`
	AwaitingApproval   bool                       `json:"awaiting_approval"`
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	resp, err := h.svc.History(r.Context(), threadID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponseBody{
		ThreadID:           resp.ThreadID,
		Messages:           resp.Messages,
		Plan:               resp.Plan,
		CurrentStepIndex:   resp.CurrentStepIndex,
		LoadedIntegrations: resp.LoadedIntegrations,
		IsComplete:         resp.IsComplete,
		AwaitingApproval:   resp.AwaitingApproval,
	})
}

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

// writeServiceError maps a workflow error to its status code: InputError
// 400, StateMismatchError 409, NotFoundError 404. Anything else
// (PlannerError, ExecutionError, CheckpointerError, or an opaque
// infrastructure failure from the graph engine) is logged with full
// detail server-side and reported to the caller as a bare 500, so no
// internal error text (which could embed a tool's raw response) ever
// reaches the client.
func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	var inputErr *workflow.InputError
	var stateErr *workflow.StateMismatchError
	var notFoundErr *workflow.NotFoundError
	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

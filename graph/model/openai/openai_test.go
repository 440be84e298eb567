package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowforge/agentcore/graph/model"
)

// mockOpenAIClient stands in for the SDK-backed client. errors scripts
// one outcome per call for retry tests; err is a constant failure.
type mockOpenAIClient struct {
	response     string
	toolCalls    []model.ToolCall
	err          error
	errors       []error
	callCount    int
	lastMessages []model.Message
}

func (m *mockOpenAIClient) createChatCompletion(_ context.Context, messages []model.Message, _ []model.ToolSpec) (model.ChatOut, error) {
	m.callCount++
	m.lastMessages = messages

	if len(m.errors) > 0 {
		if m.callCount <= len(m.errors) {
			if err := m.errors[m.callCount-1]; err != nil {
				return model.ChatOut{}, err
			}
		}
	} else if m.err != nil {
		return model.ChatOut{}, m.err
	}

	return model.ChatOut{Text: m.response, ToolCalls: m.toolCalls}, nil
}

func newTestModel(client openaiClient) *ChatModel {
	return &ChatModel{
		client:     client,
		modelName:  "gpt-4o",
		maxRetries: 3,
		retryDelay: time.Millisecond,
	}
}

func TestChatModel_Defaults(t *testing.T) {
	m := NewChatModel("test-api-key", "")
	if m.modelName == "" {
		t.Error("empty modelName should select a default")
	}
	if m.maxRetries != 3 || m.retryDelay != time.Second {
		t.Errorf("retry defaults = %d/%v", m.maxRetries, m.retryDelay)
	}
}

func TestChatModel_Chat(t *testing.T) {
	t.Run("text response", func(t *testing.T) {
		mock := &mockOpenAIClient{response: "plan emitted"}
		m := newTestModel(mock)

		out, err := m.Chat(context.Background(), []model.Message{
			{Role: model.RoleSystem, Content: "You are the planning stage."},
			{Role: model.RoleUser, Content: "plan this"},
		}, nil)
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if out.Text != "plan emitted" {
			t.Errorf("Text = %q", out.Text)
		}
		if len(mock.lastMessages) != 2 {
			t.Errorf("messages forwarded = %d, want 2", len(mock.lastMessages))
		}
	})

	t.Run("tool call response", func(t *testing.T) {
		mock := &mockOpenAIClient{
			toolCalls: []model.ToolCall{{Name: "read_document", Input: map[string]interface{}{"document_id": "d1"}}},
		}
		m := newTestModel(mock)

		out, err := m.Chat(context.Background(),
			[]model.Message{{Role: model.RoleUser, Content: "read d1"}},
			[]model.ToolSpec{{Name: "read_document"}})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if len(out.ToolCalls) != 1 || out.ToolCalls[0].Input["document_id"] != "d1" {
			t.Errorf("ToolCalls = %v", out.ToolCalls)
		}
	})

	t.Run("canceled context short-circuits", func(t *testing.T) {
		mock := &mockOpenAIClient{response: "never"}
		m := newTestModel(mock)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := m.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: "x"}}, nil); !errors.Is(err, context.Canceled) {
			t.Fatalf("Chat() error = %v, want context.Canceled", err)
		}
		if mock.callCount != 0 {
			t.Errorf("client called %d times after cancellation", mock.callCount)
		}
	})
}

func TestChatModel_Retries(t *testing.T) {
	t.Run("transient error then success", func(t *testing.T) {
		mock := &mockOpenAIClient{
			errors:   []error{errors.New("connection reset"), nil},
			response: "recovered",
		}
		m := newTestModel(mock)

		out, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if out.Text != "recovered" || mock.callCount != 2 {
			t.Errorf("Text = %q, callCount = %d", out.Text, mock.callCount)
		}
	})

	t.Run("rate limit errors back off and retry", func(t *testing.T) {
		mock := &mockOpenAIClient{
			errors:   []error{&rateLimitError{message: "429"}, &rateLimitError{message: "429"}, nil},
			response: "after backoff",
		}
		m := newTestModel(mock)

		out, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if out.Text != "after backoff" || mock.callCount != 3 {
			t.Errorf("Text = %q, callCount = %d", out.Text, mock.callCount)
		}
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		mock := &mockOpenAIClient{err: errors.New("invalid request: bad schema")}
		m := newTestModel(mock)

		if _, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil); err == nil {
			t.Fatal("expected error")
		}
		if mock.callCount != 1 {
			t.Errorf("callCount = %d, want 1 (no retry)", mock.callCount)
		}
	})

	t.Run("retries exhausted surfaces last error", func(t *testing.T) {
		mock := &mockOpenAIClient{err: errors.New("network timeout")}
		m := newTestModel(mock)

		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if mock.callCount != m.maxRetries+1 {
			t.Errorf("callCount = %d, want %d", mock.callCount, m.maxRetries+1)
		}
	})
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &rateLimitError{message: "429"}, true},
		{"timeout", errors.New("request timeout"), true},
		{"503", errors.New("HTTP 503 unavailable"), true},
		{"invalid key", errors.New("incorrect api key provided"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseToolInput(t *testing.T) {
	t.Run("valid JSON decodes", func(t *testing.T) {
		got := parseToolInput(`{"query":"workflow engines","limit":3}`)
		if got["query"] != "workflow engines" {
			t.Errorf("got = %v", got)
		}
	})

	t.Run("empty string is nil", func(t *testing.T) {
		if got := parseToolInput(""); got != nil {
			t.Errorf("got = %v, want nil", got)
		}
	})

	t.Run("malformed JSON is preserved raw", func(t *testing.T) {
		got := parseToolInput(`{not json`)
		if got["_raw"] != `{not json` {
			t.Errorf("got = %v", got)
		}
	})
}

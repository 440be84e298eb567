package model

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMockChatModel_InterfaceContract(t *testing.T) {
	var _ ChatModel = (*MockChatModel)(nil)
}

func TestMockChatModel_ResponseSequence(t *testing.T) {
	mock := &MockChatModel{
		Responses: []ChatOut{
			{Text: "first"},
			{Text: "second"},
		},
	}
	ctx := context.Background()
	messages := []Message{{Role: RoleUser, Content: "plan this request"}}

	out1, err := mock.Chat(ctx, messages, nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if out1.Text != "first" {
		t.Errorf("first response = %q", out1.Text)
	}

	out2, _ := mock.Chat(ctx, messages, nil)
	if out2.Text != "second" {
		t.Errorf("second response = %q", out2.Text)
	}

	// Exhausted sequences repeat the final response.
	out3, _ := mock.Chat(ctx, messages, nil)
	if out3.Text != "second" {
		t.Errorf("third response = %q, want %q repeated", out3.Text, "second")
	}
}

func TestMockChatModel_NoResponsesConfigured(t *testing.T) {
	mock := &MockChatModel{}

	out, err := mock.Chat(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if out.Text != "" || len(out.ToolCalls) != 0 {
		t.Errorf("out = %+v, want zero value", out)
	}
}

func TestMockChatModel_ErrorInjection(t *testing.T) {
	injected := errors.New("provider unavailable")
	mock := &MockChatModel{Err: injected}

	_, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if !errors.Is(err, injected) {
		t.Fatalf("Chat() error = %v, want injected error", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("failed calls should still be recorded, CallCount() = %d", mock.CallCount())
	}
}

func TestMockChatModel_CallHistory(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "ok"}}}
	ctx := context.Background()

	tools := []ToolSpec{{Name: "search_web", Description: "search"}}
	_, _ = mock.Chat(ctx, []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "q1"}}, tools)
	_, _ = mock.Chat(ctx, []Message{{Role: RoleUser, Content: "q2"}}, nil)

	if len(mock.Calls) != 2 {
		t.Fatalf("len(Calls) = %d, want 2", len(mock.Calls))
	}
	if len(mock.Calls[0].Messages) != 2 || mock.Calls[0].Messages[1].Content != "q1" {
		t.Errorf("first call messages = %v", mock.Calls[0].Messages)
	}
	if len(mock.Calls[0].Tools) != 1 || mock.Calls[0].Tools[0].Name != "search_web" {
		t.Errorf("first call tools = %v", mock.Calls[0].Tools)
	}
	if mock.Calls[1].Tools != nil {
		t.Errorf("second call tools = %v, want nil", mock.Calls[1].Tools)
	}
}

func TestMockChatModel_ToolCallResponses(t *testing.T) {
	mock := &MockChatModel{
		Responses: []ChatOut{
			{ToolCalls: []ToolCall{{Name: "search_web", Input: map[string]interface{}{"query": "x"}}}},
			{Text: "final answer"},
		},
	}
	ctx := context.Background()

	out1, _ := mock.Chat(ctx, nil, nil)
	if len(out1.ToolCalls) != 1 || out1.ToolCalls[0].Name != "search_web" {
		t.Fatalf("first response tool calls = %v", out1.ToolCalls)
	}
	out2, _ := mock.Chat(ctx, nil, nil)
	if out2.Text != "final answer" || len(out2.ToolCalls) != 0 {
		t.Fatalf("second response = %+v", out2)
	}
}

func TestMockChatModel_Reset(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "a"}, {Text: "b"}}}
	ctx := context.Background()

	_, _ = mock.Chat(ctx, nil, nil)
	_, _ = mock.Chat(ctx, nil, nil)
	mock.Reset()

	if mock.CallCount() != 0 {
		t.Errorf("CallCount() after Reset = %d, want 0", mock.CallCount())
	}
	out, _ := mock.Chat(ctx, nil, nil)
	if out.Text != "a" {
		t.Errorf("response after Reset = %q, want cursor rewound to %q", out.Text, "a")
	}
}

func TestMockChatModel_ContextCancellation(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "never"}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := mock.Chat(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Chat() error = %v, want context.Canceled", err)
	}
	if mock.CallCount() != 0 {
		t.Errorf("canceled call should not be recorded, got %d", mock.CallCount())
	}
}

func TestMockChatModel_Concurrency(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "ok"}}}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, nil)
		}()
	}
	wg.Wait()

	if mock.CallCount() != 20 {
		t.Errorf("CallCount() = %d, want 20", mock.CallCount())
	}
}

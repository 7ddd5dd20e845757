package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// stubAdapter returns queued responses or errors in order.
type stubAdapter struct {
	name      string
	responses []*Response
	errs      []error
	calls     int
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &Response{
		Provider: s.name,
		Message:  AssistantMessage("done"),
	}, nil
}

func textResponse(text string) *Response {
	return &Response{Message: AssistantMessage(text), FinishReason: FinishReason{Reason: "stop"}}
}

func TestClientDefaultsToSoleProvider(t *testing.T) {
	adapter := &stubAdapter{name: "openai"}
	client := NewClient(WithProvider("openai", adapter))

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text() != "done" {
		t.Errorf("Text() = %q, want done", resp.Text())
	}
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient(WithProvider("openai", &stubAdapter{name: "openai"}))

	_, err := client.Complete(context.Background(), Request{Provider: "nope"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type = %T, want *ConfigurationError", err)
	}
}

func TestClientNoProviders(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type = %T, want *ConfigurationError", err)
	}
}

func TestClientRetriesTransientFailure(t *testing.T) {
	adapter := &stubAdapter{
		name: "openai",
		errs: []error{
			&ServerError{ProviderError: ProviderError{CallError: CallError{Message: "down"}, Retryable: true}},
			nil,
		},
		responses: []*Response{nil, textResponse("recovered")},
	}
	client := NewClient(
		WithProvider("openai", adapter),
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, BaseDelay: 0.001, BackoffMultiplier: 2.0}),
	)

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text() != "recovered" {
		t.Errorf("Text() = %q, want recovered", resp.Text())
	}
	if adapter.calls != 2 {
		t.Errorf("adapter calls = %d, want 2", adapter.calls)
	}
}

func TestClientDoesNotRetryAuthFailure(t *testing.T) {
	adapter := &stubAdapter{
		name: "openai",
		errs: []error{
			&AuthenticationError{ProviderError: ProviderError{CallError: CallError{Message: "bad key"}}},
		},
	}
	client := NewClient(
		WithProvider("openai", adapter),
		WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 2.0}),
	)

	_, err := client.Complete(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if adapter.calls != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.calls)
	}
}

func TestResponseOutcome(t *testing.T) {
	final := textResponse("the answer")
	outcome := final.Outcome()
	if outcome.RequestedTools() {
		t.Error("text response must not request tools")
	}
	if outcome.Answer != "the answer" {
		t.Errorf("Answer = %q", outcome.Answer)
	}

	withTools := &Response{Message: Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			ToolCallPart("call_1", "search_web", json.RawMessage(`{"query":"acme"}`)),
			ToolCallPart("call_2", "fetch_web_content", json.RawMessage(`{"url":"https://acme.example"}`)),
		},
	}}
	outcome = withTools.Outcome()
	if !outcome.RequestedTools() {
		t.Fatal("tool response must request tools")
	}
	if len(outcome.ToolCalls) != 2 || outcome.ToolCalls[0].Name != "search_web" {
		t.Errorf("unexpected tool calls: %+v", outcome.ToolCalls)
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}
	b := Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}
	sum := a.Add(b)
	if sum.InputTokens != 13 || sum.OutputTokens != 7 || sum.TotalTokens != 20 {
		t.Errorf("unexpected sum: %+v", sum)
	}
}

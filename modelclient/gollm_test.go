package modelclient

import (
	"errors"
	"testing"
)

func TestParseToolCalls(t *testing.T) {
	text := `I will look that up. [{"name": "search_web", "arguments": {"query": "acme pricing"}}]`
	calls := parseToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "search_web" {
		t.Errorf("Name = %q", calls[0].Name)
	}
	if calls[0].ID == "" {
		t.Error("call ID must be assigned")
	}

	cleaned := removeToolCallJSON(text, calls)
	if cleaned != "I will look that up." {
		t.Errorf("cleaned = %q", cleaned)
	}
}

func TestParseToolCallsPlainText(t *testing.T) {
	if calls := parseToolCalls("just a normal answer"); calls != nil {
		t.Errorf("expected nil, got %+v", calls)
	}
}

func TestParseToolCallsMalformedJSON(t *testing.T) {
	if calls := parseToolCalls(`[{"name": "search_web", "arguments":`); calls != nil {
		t.Errorf("expected nil for truncated JSON, got %+v", calls)
	}
}

func TestTranslateError(t *testing.T) {
	a := &GollmAdapter{provider: "openai"}

	tests := []struct {
		msg       string
		wantType  string
		retryable bool
	}{
		{"API error: 401 unauthorized", "*modelclient.AuthenticationError", false},
		{"rate limit exceeded, slow down", "*modelclient.RateLimitError", true},
		{"request exceeds context length", "*modelclient.ContextLengthError", false},
		{"500 internal server error", "*modelclient.ServerError", true},
		{"connection timeout", "*modelclient.RequestTimeoutError", true},
		{"something unexpected", "*modelclient.ProviderError", true},
	}
	for _, tt := range tests {
		err := a.translateError(errors.New(tt.msg))
		if got := typeName(err); got != tt.wantType {
			t.Errorf("%q: type = %s, want %s", tt.msg, got, tt.wantType)
		}
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("%q: IsRetryable = %v, want %v", tt.msg, got, tt.retryable)
		}
	}
}

func TestTranslateRequestToollessTurn(t *testing.T) {
	a := &GollmAdapter{provider: "openai"}
	req := Request{
		Messages: []Message{
			SystemMessage("extract product data"),
			UserMessage("https://acme.example"),
		},
		Tools:      []ToolDefinition{{Name: "search_web", Parameters: map[string]any{"type": "object"}}},
		ToolChoice: &ToolChoice{Mode: "none"},
	}
	// Should not panic and must drop the tool catalog when tool choice is none.
	prompt := a.translateRequest(req)
	if prompt == nil {
		t.Fatal("nil prompt")
	}
}

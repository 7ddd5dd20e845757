package modelclient

import (
	"errors"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		wantType  string
		retryable bool
	}{
		{400, "*modelclient.InvalidRequestError", false},
		{401, "*modelclient.AuthenticationError", false},
		{403, "*modelclient.AuthenticationError", false},
		{413, "*modelclient.ContextLengthError", false},
		{422, "*modelclient.InvalidRequestError", false},
		{429, "*modelclient.RateLimitError", true},
		{500, "*modelclient.ServerError", true},
		{503, "*modelclient.ServerError", true},
		{418, "*modelclient.ProviderError", true},
	}
	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "boom", "openai", nil)
		if err == nil {
			t.Fatalf("status %d: got nil error", tt.status)
		}
		if got := typeName(err); got != tt.wantType {
			t.Errorf("status %d: type = %s, want %s", tt.status, got, tt.wantType)
		}
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: IsRetryable = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *InvalidRequestError:
		return "*modelclient.InvalidRequestError"
	case *AuthenticationError:
		return "*modelclient.AuthenticationError"
	case *ContextLengthError:
		return "*modelclient.ContextLengthError"
	case *RateLimitError:
		return "*modelclient.RateLimitError"
	case *ServerError:
		return "*modelclient.ServerError"
	case *RequestTimeoutError:
		return "*modelclient.RequestTimeoutError"
	case *ProviderError:
		return "*modelclient.ProviderError"
	default:
		return "unknown"
	}
}

func TestCallErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := &CallError{Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if err.Error() != "wrapped: underlying" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestIsRetryableNil(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil error must not be retryable")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{
		CallError:  CallError{Message: "quota exceeded"},
		Provider:   "anthropic",
		StatusCode: 429,
		Retryable:  true,
	}
	want := "[anthropic] quota exceeded (status=429, retryable=true)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

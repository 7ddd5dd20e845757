package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tavilyStub(t *testing.T, handler func(req TavilySearchRequest, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req TavilySearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		handler(req, w)
	}))
}

func newTestTavily(t *testing.T, srv *httptest.Server, keys ...string) *TavilyClient {
	t.Helper()
	c, err := NewTavilyClient(keys, nil)
	if err != nil {
		t.Fatalf("NewTavilyClient failed: %v", err)
	}
	c.baseURL = srv.URL
	return c
}

func TestTavilySearchSuccess(t *testing.T) {
	srv := tavilyStub(t, func(req TavilySearchRequest, w http.ResponseWriter) {
		if req.APIKey != "key1" || req.SearchDepth != "basic" || !req.IncludeAnswer {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(TavilySearchResponse{
			Query:  req.Query,
			Answer: "Acme is a CRM",
			Results: []TavilyHit{
				{Title: "Acme", URL: "https://acme.example", Content: "CRM", Score: 0.9},
			},
		})
	})
	defer srv.Close()

	c := newTestTavily(t, srv, "key1")
	resp, err := c.Search(context.Background(), "acme crm", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.Answer != "Acme is a CRM" || len(resp.Results) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestTavilyRotatesKeyOnRateLimit(t *testing.T) {
	srv := tavilyStub(t, func(req TavilySearchRequest, w http.ResponseWriter) {
		if req.APIKey == "key1" {
			http.Error(w, "usage limit exceeded", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(TavilySearchResponse{Query: req.Query})
	})
	defer srv.Close()

	c := newTestTavily(t, srv, "key1", "key2")
	resp, err := c.Search(context.Background(), "acme", 5)
	if err != nil {
		t.Fatalf("Search failed after rotation: %v", err)
	}
	if resp == nil {
		t.Fatal("nil response")
	}

	// Rotation is sticky: the next search starts on key2.
	if idx := c.keyIndex(); idx != 1 {
		t.Errorf("current key index = %d, want 1", idx)
	}
}

func TestTavilyAllKeysExhausted(t *testing.T) {
	srv := tavilyStub(t, func(req TavilySearchRequest, w http.ResponseWriter) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	})
	defer srv.Close()

	c := newTestTavily(t, srv, "key1", "key2")
	_, err := c.Search(context.Background(), "acme", 5)
	if !errors.Is(err, ErrKeysExhausted) {
		t.Fatalf("err = %v, want ErrKeysExhausted", err)
	}
}

func TestTavilyNonRateLimitErrorNotRetried(t *testing.T) {
	calls := 0
	srv := tavilyStub(t, func(req TavilySearchRequest, w http.ResponseWriter) {
		calls++
		http.Error(w, "invalid request", http.StatusBadRequest)
	})
	defer srv.Close()

	c := newTestTavily(t, srv, "key1", "key2")
	_, err := c.Search(context.Background(), "acme", 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrKeysExhausted) {
		t.Error("bad request misclassified as exhaustion")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestTavilyRequiresKeys(t *testing.T) {
	if _, err := NewTavilyClient(nil, nil); err == nil {
		t.Fatal("expected error for empty key list")
	}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"tavily status 429: too many requests", true},
		{"your plan's set usage limit was reached", true},
		{"tavily status 403: forbidden", true},
		{"quota exceeded for this month", true},
		{"tavily status 400: invalid query", false},
		{"connection refused", false},
	}
	for _, tt := range tests {
		if got := isRateLimitError(errors.New(tt.msg)); got != tt.want {
			t.Errorf("isRateLimitError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestTavilyErrorMessageCarriesBody(t *testing.T) {
	srv := tavilyStub(t, func(req TavilySearchRequest, w http.ResponseWriter) {
		http.Error(w, "detailed upstream explanation", http.StatusBadRequest)
	})
	defer srv.Close()

	c := newTestTavily(t, srv, "key1")
	_, err := c.Search(context.Background(), "acme", 5)
	if err == nil || !strings.Contains(err.Error(), "detailed upstream explanation") {
		t.Errorf("err = %v, want body included", err)
	}
}

package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prodsnap/prodsnap/modelclient"
)

func TestExecuteBatchPreservesOrder(t *testing.T) {
	r := NewToolRegistry()
	// Later invocations finish first, so completion order is reversed.
	r.MustRegister(modelclient.ToolDefinition{Name: "slow"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		var in struct {
			N int `json:"n"`
		}
		json.Unmarshal(args, &in)
		time.Sleep(time.Duration(50-in.N*10) * time.Millisecond)
		return fmt.Sprintf("result-%d", in.N), nil
	})

	d := NewDispatcher(r, 5, nil)
	var invocations []ToolInvocation
	for i := 0; i < 5; i++ {
		invocations = append(invocations, ToolInvocation{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      "slow",
			Arguments: json.RawMessage(fmt.Sprintf(`{"n": %d}`, i)),
		})
	}

	results := d.ExecuteBatch(context.Background(), invocations)
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for i, res := range results {
		if res.ID != fmt.Sprintf("call_%d", i) {
			t.Errorf("results[%d].ID = %q", i, res.ID)
		}
		if res.Content != fmt.Sprintf("result-%d", i) {
			t.Errorf("results[%d].Content = %q", i, res.Content)
		}
		if !res.Success {
			t.Errorf("results[%d] not successful", i)
		}
	}
}

func TestExecuteBatchBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	r := NewToolRegistry()
	r.MustRegister(modelclient.ToolDefinition{Name: "track"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return "ok", nil
	})

	d := NewDispatcher(r, 3, nil)
	invocations := make([]ToolInvocation, 10)
	for i := range invocations {
		invocations[i] = ToolInvocation{ID: fmt.Sprintf("c%d", i), Name: "track", Arguments: json.RawMessage(`{}`)}
	}
	d.ExecuteBatch(context.Background(), invocations)

	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestExecuteBatchFailureDoesNotAbort(t *testing.T) {
	r := NewToolRegistry()
	r.MustRegister(modelclient.ToolDefinition{Name: "ok"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "fine", nil
	})
	r.MustRegister(modelclient.ToolDefinition{Name: "bad"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "", errors.New("upstream 503")
	})

	d := NewDispatcher(r, 5, nil)
	results := d.ExecuteBatch(context.Background(), []ToolInvocation{
		{ID: "c0", Name: "ok", Arguments: json.RawMessage(`{}`)},
		{ID: "c1", Name: "bad", Arguments: json.RawMessage(`{}`)},
		{ID: "c2", Name: "ok", Arguments: json.RawMessage(`{}`)},
	})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Errorf("success flags = %v %v %v, want true false true",
			results[0].Success, results[1].Success, results[2].Success)
	}
	if results[1].Content != "Error: upstream 503" {
		t.Errorf("failed content = %q", results[1].Content)
	}
}

func TestExecuteBatchUnknownTool(t *testing.T) {
	d := NewDispatcher(NewToolRegistry(), 5, nil)
	results := d.ExecuteBatch(context.Background(), []ToolInvocation{
		{ID: "c0", Name: "ghost", Arguments: json.RawMessage(`{}`)},
	})
	if results[0].Success {
		t.Error("unknown tool must fail")
	}
	if results[0].Content == "" {
		t.Error("failed result must carry a diagnostic")
	}
}

func TestExecuteBatchInvalidArguments(t *testing.T) {
	r := NewToolRegistry()
	called := false
	def := modelclient.ToolDefinition{
		Name: "strict",
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"url": map[string]any{"type": "string"}},
			"required":             []any{"url"},
			"additionalProperties": false,
		},
	}
	r.MustRegister(def, func(ctx context.Context, args json.RawMessage) (string, error) {
		called = true
		return "ok", nil
	})

	d := NewDispatcher(r, 5, nil)
	results := d.ExecuteBatch(context.Background(), []ToolInvocation{
		{ID: "c0", Name: "strict", Arguments: json.RawMessage(`{"wrong": true}`)},
	})
	if results[0].Success {
		t.Error("invalid arguments must fail")
	}
	if called {
		t.Error("handler must not run on invalid arguments")
	}
}

func TestExecuteBatchRecoversPanic(t *testing.T) {
	r := NewToolRegistry()
	r.MustRegister(modelclient.ToolDefinition{Name: "boom"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		panic("handler bug")
	})
	r.MustRegister(modelclient.ToolDefinition{Name: "ok"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "fine", nil
	})

	d := NewDispatcher(r, 5, nil)
	results := d.ExecuteBatch(context.Background(), []ToolInvocation{
		{ID: "c0", Name: "boom", Arguments: json.RawMessage(`{}`)},
		{ID: "c1", Name: "ok", Arguments: json.RawMessage(`{}`)},
	})
	if results[0].Success {
		t.Error("panicking tool must fail")
	}
	if !results[1].Success {
		t.Error("sibling invocation must still succeed")
	}
}

func TestExecuteBatchEmpty(t *testing.T) {
	d := NewDispatcher(NewToolRegistry(), 5, nil)
	if results := d.ExecuteBatch(context.Background(), nil); len(results) != 0 {
		t.Errorf("got %d results for empty batch", len(results))
	}
}

func TestExecuteBatchConcurrentSafe(t *testing.T) {
	r := NewToolRegistry()
	r.MustRegister(modelclient.ToolDefinition{Name: "echo"}, echoHandler)
	d := NewDispatcher(r, 5, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results := d.ExecuteBatch(context.Background(), []ToolInvocation{
				{ID: "c0", Name: "echo", Arguments: json.RawMessage(`{"x":1}`)},
				{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"x":2}`)},
			})
			if len(results) != 2 || !results[0].Success {
				t.Error("concurrent batch failed")
			}
		}()
	}
	wg.Wait()
}

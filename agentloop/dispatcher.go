package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultToolWorkers bounds how many tool handlers run at once.
const DefaultToolWorkers = 5

// ToolInvocation is one model-requested tool call to execute.
type ToolInvocation struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the outcome of one invocation. Content is what goes back to
// the model; on failure it carries the diagnostic instead of aborting the
// batch.
type ToolResult struct {
	ID       string
	Name     string
	Content  string
	Success  bool
	Duration time.Duration
}

// Dispatcher runs tool batches concurrently on a bounded worker pool.
// Results always come back in the same order as the invocations, regardless
// of completion order.
type Dispatcher struct {
	registry *ToolRegistry
	workers  int
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher. workers <= 0 uses DefaultToolWorkers.
func NewDispatcher(registry *ToolRegistry, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultToolWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, workers: workers, logger: logger}
}

// ExecuteBatch runs all invocations and returns one result per invocation in
// the original order. Unknown tools, invalid arguments, handler errors, and
// handler panics all become failed results; a batch never aborts part-way.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, invocations []ToolInvocation) []ToolResult {
	results := make([]ToolResult, len(invocations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, inv := range invocations {
		g.Go(func() error {
			results[i] = d.executeOne(gctx, inv)
			return nil
		})
	}
	g.Wait()

	return results
}

func (d *Dispatcher) executeOne(ctx context.Context, inv ToolInvocation) (result ToolResult) {
	start := time.Now()
	result = ToolResult{ID: inv.ID, Name: inv.Name}
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Content = fmt.Sprintf("Error: tool %s panicked: %v", inv.Name, r)
			d.logger.Error("tool handler panicked",
				zap.String("tool", inv.Name),
				zap.Any("panic", r))
		}
		result.Duration = time.Since(start)
	}()

	tool, ok := d.registry.Resolve(inv.Name)
	if !ok {
		result.Content = fmt.Sprintf("Error: unknown tool %q", inv.Name)
		d.logger.Warn("model requested unknown tool", zap.String("tool", inv.Name))
		return result
	}

	if err := tool.ValidateArguments(inv.Arguments); err != nil {
		result.Content = fmt.Sprintf("Error: invalid arguments for %s: %v", inv.Name, err)
		d.logger.Warn("tool arguments rejected",
			zap.String("tool", inv.Name),
			zap.Error(err))
		return result
	}

	content, err := tool.Handler(ctx, inv.Arguments)
	if err != nil {
		result.Content = fmt.Sprintf("Error: %v", err)
		d.logger.Warn("tool execution failed",
			zap.String("tool", inv.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return result
	}

	result.Success = true
	result.Content = content
	d.logger.Debug("tool executed",
		zap.String("tool", inv.Name),
		zap.Duration("duration", time.Since(start)))
	return result
}

// Package agentloop runs a bounded, tool-augmented model loop. Each iteration
// sends the conversation to the model; the model either answers or requests
// tools, which are dispatched concurrently and fed back as results. The final
// permitted iteration is always issued without tools, so the loop ends with a
// text answer no matter how eagerly the model keeps calling tools.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/prodsnap/prodsnap/eventlog"
	"github.com/prodsnap/prodsnap/modelclient"
)

// DefaultMaxIterations is the model-turn budget for one run.
const DefaultMaxIterations = 10

// ModelCaller is the slice of the model client the loop needs.
type ModelCaller interface {
	Complete(ctx context.Context, req modelclient.Request) (*modelclient.Response, error)
}

// Emitter receives the loop's progress events. eventlog.Emitter satisfies it.
type Emitter interface {
	Emit(ctx context.Context, kind eventlog.Kind, message string, fields map[string]any) int64
}

// Config tunes one loop run.
type Config struct {
	MaxIterations int // model-turn budget; <= 0 uses DefaultMaxIterations
	ToolWorkers   int // concurrent tool handlers; <= 0 uses DefaultToolWorkers
	Model         string
	Temperature   *float64
	MaxTokens     *int
	// ResponseFormat is forwarded on every model turn when set.
	ResponseFormat *modelclient.ResponseFormat
	// FinalInstruction is appended as a user message before the forced
	// tool-less turn. Empty uses a generic prompt.
	FinalInstruction string
}

const defaultFinalInstruction = "You have used all available tool calls. " +
	"Provide your final answer now using the information gathered so far."

// Result is the outcome of a completed run.
type Result struct {
	Answer     string
	Iterations int
	ToolCalls  int
	Usage      modelclient.Usage
}

// Loop drives the iterate-dispatch cycle for one conversation.
type Loop struct {
	client     ModelCaller
	registry   *ToolRegistry
	dispatcher *Dispatcher
	emitter    Emitter
	cfg        Config
	logger     *zap.Logger
}

// New creates a Loop. A nil emitter discards events.
func New(client ModelCaller, registry *ToolRegistry, emitter Emitter, cfg Config, logger *zap.Logger) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.FinalInstruction == "" {
		cfg.FinalInstruction = defaultFinalInstruction
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Loop{
		client:     client,
		registry:   registry,
		dispatcher: NewDispatcher(registry, cfg.ToolWorkers, logger),
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes the loop and returns the model's final text answer. A model
// call failure is fatal; a tool failure is reported back to the model as a
// failed result and the loop continues.
func (l *Loop) Run(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	messages := []modelclient.Message{
		modelclient.SystemMessage(systemPrompt),
		modelclient.UserMessage(userPrompt),
	}

	l.emitter.Emit(ctx, eventlog.KindStart, "Starting extraction", map[string]any{
		"max_iterations": l.cfg.MaxIterations,
	})

	result := &Result{}
	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		result.Iterations = iteration
		finalTurn := iteration == l.cfg.MaxIterations
		if finalTurn {
			messages = append(messages, modelclient.UserMessage(l.cfg.FinalInstruction))
		}

		resp, err := l.client.Complete(ctx, l.buildRequest(messages, finalTurn))
		if err != nil {
			return nil, fmt.Errorf("model call failed on iteration %d: %w", iteration, err)
		}
		result.Usage = result.Usage.Add(resp.Usage)

		outcome := resp.Outcome()
		if finalTurn || !outcome.RequestedTools() {
			result.Answer = resp.Text()
			l.logger.Info("loop finished",
				zap.Int("iterations", iteration),
				zap.Int("tool_calls", result.ToolCalls),
				zap.Bool("forced_final", finalTurn))
			return result, nil
		}

		messages = append(messages, resp.Message)
		messages = append(messages, l.dispatch(ctx, iteration, outcome.ToolCalls, result)...)
	}

	// Unreachable: the final iteration always returns above.
	return result, nil
}

// dispatch runs one requested batch and converts the results into tool
// messages for the next model turn.
func (l *Loop) dispatch(ctx context.Context, iteration int, calls []modelclient.ToolCallData, result *Result) []modelclient.Message {
	invocations := make([]ToolInvocation, len(calls))
	for i, call := range calls {
		invocations[i] = ToolInvocation{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
		l.emitter.Emit(ctx, eventlog.KindToolCall, fmt.Sprintf("Calling %s", call.Name), map[string]any{
			"tool":      call.Name,
			"iteration": iteration,
			"arguments": json.RawMessage(call.Arguments),
		})
	}

	results := l.dispatcher.ExecuteBatch(ctx, invocations)
	result.ToolCalls += len(results)

	messages := make([]modelclient.Message, 0, len(results))
	failed := 0
	for _, res := range results {
		messages = append(messages, modelclient.ToolResultMessage(res.ID, res.Content, !res.Success))
		if !res.Success {
			failed++
			l.emitter.Emit(ctx, eventlog.KindToolResult, fmt.Sprintf("%s failed", res.Name), map[string]any{
				"tool":      res.Name,
				"iteration": iteration,
				"success":   false,
				"error":     res.Content,
			})
		}
	}

	l.emitter.Emit(ctx, eventlog.KindProgress,
		fmt.Sprintf("Completed %d tool calls (iteration %d/%d)", len(results), iteration, l.cfg.MaxIterations),
		map[string]any{
			"iteration": iteration,
			"executed":  len(results),
			"failed":    failed,
		})
	return messages
}

func (l *Loop) buildRequest(messages []modelclient.Message, finalTurn bool) modelclient.Request {
	req := modelclient.Request{
		Model:          l.cfg.Model,
		Messages:       messages,
		Temperature:    l.cfg.Temperature,
		MaxTokens:      l.cfg.MaxTokens,
		ResponseFormat: l.cfg.ResponseFormat,
	}
	if finalTurn {
		req.ToolChoice = &modelclient.ToolChoice{Mode: "none"}
		return req
	}
	if defs := l.registry.Definitions(); len(defs) > 0 {
		req.Tools = defs
		req.ToolChoice = &modelclient.ToolChoice{Mode: "auto"}
	}
	return req
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, eventlog.Kind, string, map[string]any) int64 { return -1 }

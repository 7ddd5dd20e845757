// Package scraper runs the end-to-end extraction for one URL: it assembles
// the tool-augmented model loop, feeds its events into the job's log, parses
// the final answer into a ProductSnapshot, and stores the result.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/prodsnap/prodsnap/agentloop"
	"github.com/prodsnap/prodsnap/eventlog"
	"github.com/prodsnap/prodsnap/jobqueue"
	"github.com/prodsnap/prodsnap/modelclient"
	"github.com/prodsnap/prodsnap/snapshot"
)

const systemPrompt = "You are a product intelligence extractor. Extract structured product data from web pages to populate a product record.\n\n" +
	"INSTRUCTIONS:\n" +
	"1. Use the fetch_web_content tool strategically to gather information from multiple relevant pages.\n" +
	"2. Prioritize pages: homepage, about, features, pricing, contact, security/compliance.\n" +
	"3. Use the search_web tool for facts the site itself does not carry (reviews, funding, company background).\n" +
	"4. For optional fields: always attempt to find them. Only omit if absolutely unavailable from the sources.\n" +
	"5. Never fabricate data - only use verified information from fetched content.\n" +
	"6. Write in neutral, professional, third-person tone.\n" +
	"7. Keep numeric values as numbers (e.g., 2023, 4.5).\n" +
	"8. All URLs must begin with https:// and be copy-paste ready.\n" +
	"9. For pricing: always fetch the dedicated pricing page (e.g., /pricing, /plans). Extract all available plans with plan name, amount, currency, period, and included features. Include free tiers and trials.\n" +
	"10. Return empty lists/nulls only when information truly cannot be found after thorough search.\n\n" +
	"OUTPUT: Valid JSON matching the provided schema exactly."

const finalInstruction = "You have used all available tool calls. " +
	"Provide the final product record now as a single valid JSON object matching the schema, " +
	"using only the information gathered so far. No other text."

// Task performs product extractions. Construct once and reuse across jobs.
type Task struct {
	client   agentloop.ModelCaller
	registry *agentloop.ToolRegistry
	results  jobqueue.ResultStore
	logger   *zap.Logger

	// Loop tuning; zero values take the loop defaults.
	Model         string
	MaxIterations int
	ToolWorkers   int
}

// NewTask creates a Task over a model client, a populated tool registry, and
// a result store.
func NewTask(client agentloop.ModelCaller, registry *agentloop.ToolRegistry, results jobqueue.ResultStore, logger *zap.Logger) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Task{
		client:   client,
		registry: registry,
		results:  results,
		logger:   logger,
	}
}

// Run extracts a ProductSnapshot for url, streaming progress through emitter
// and storing the result under jobID. The terminal event is always emitted
// here: complete with the snapshot on success, error on any failure.
func (t *Task) Run(ctx context.Context, jobID, url string, emitter agentloop.Emitter) (*snapshot.ProductSnapshot, error) {
	logger := t.logger.With(zap.String("job_id", jobID), zap.String("url", url))
	logger.Info("starting extraction")

	loop := agentloop.New(t.client, t.registry, emitter, agentloop.Config{
		MaxIterations: t.MaxIterations,
		ToolWorkers:   t.ToolWorkers,
		Model:         t.Model,
		ResponseFormat: &modelclient.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: snapshot.Schema(),
			Strict:     true,
		},
		FinalInstruction: finalInstruction,
	}, logger)

	result, err := loop.Run(ctx, systemPrompt, userPrompt(url))
	if err != nil {
		return nil, t.fail(ctx, emitter, logger, err)
	}

	snap, err := snapshot.ParseLoose(result.Answer)
	if err != nil {
		return nil, t.fail(ctx, emitter, logger, fmt.Errorf("final answer is not a valid product record: %w", err))
	}
	if snap.Website == "" {
		snap.Website = url
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, t.fail(ctx, emitter, logger, fmt.Errorf("encode result: %w", err))
	}
	if t.results != nil {
		if err := t.results.SetResult(ctx, jobID, data); err != nil {
			return nil, t.fail(ctx, emitter, logger, err)
		}
	}

	emitter.Emit(ctx, eventlog.KindComplete, "Extraction complete", map[string]any{
		"data":       json.RawMessage(data),
		"iterations": result.Iterations,
		"tool_calls": result.ToolCalls,
	})
	logger.Info("extraction complete",
		zap.Int("iterations", result.Iterations),
		zap.Int("tool_calls", result.ToolCalls))
	return snap, nil
}

func (t *Task) fail(ctx context.Context, emitter agentloop.Emitter, logger *zap.Logger, err error) error {
	logger.Error("extraction failed", zap.Error(err))
	emitter.Emit(ctx, eventlog.KindError, "Extraction failed", map[string]any{
		"error": err.Error(),
	})
	return err
}

func userPrompt(url string) string {
	return fmt.Sprintf("Extract product information and create a product record from this URL: %s\n\n"+
		"Use the fetch_web_content tool to retrieve content from the URL and any related pages you need, "+
		"and search_web for supporting facts. Then provide your analysis as a valid JSON object.\n\n"+
		"Only return valid JSON for the product record, no other text. "+
		"Make sure to fetch the actual page content before analyzing.", url)
}

// JobPayload is the queued payload for an asynchronous extraction.
type JobPayload struct {
	URL string `json:"url"`
}

// Handler adapts the task into a jobqueue worker handler, wiring a fresh
// emitter over the given event store per job.
func (t *Task) Handler(store eventlog.Store) jobqueue.Handler {
	return func(ctx context.Context, job jobqueue.Job) error {
		var payload JobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode job payload: %w", err)
		}
		if payload.URL == "" {
			return fmt.Errorf("job %s has no url", job.ID)
		}

		emitter := eventlog.NewEmitter(store, job.ID, t.logger)
		defer emitter.Close()
		_, err := t.Run(ctx, job.ID, payload.URL, emitter)
		return err
	}
}

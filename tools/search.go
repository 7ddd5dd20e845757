package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/prodsnap/prodsnap/agentloop"
	"github.com/prodsnap/prodsnap/modelclient"
)

const (
	maxQueryLength    = 400
	defaultMaxResults = 5
	maxMaxResults     = 10
)

// SearchResult is the JSON document search_web returns.
type SearchResult struct {
	Success      bool        `json:"success"`
	Query        string      `json:"query,omitempty"`
	Answer       string      `json:"answer,omitempty"`
	Results      []TavilyHit `json:"results,omitempty"`
	ResultsCount int         `json:"results_count,omitempty"`
	ResponseTime float64     `json:"response_time,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Searcher exposes Tavily search as the search_web tool.
type Searcher struct {
	client *TavilyClient
	logger *zap.Logger
}

// NewSearcher creates a Searcher over a shared Tavily client.
func NewSearcher(client *TavilyClient, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{client: client, logger: logger}
}

// Definition returns the function schema for search_web.
func (s *Searcher) Definition() modelclient.ToolDefinition {
	return modelclient.ToolDefinition{
		Name:        "search_web",
		Description: "Search the internet for relevant information and richer data to enhance content quality and context.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query (max 400 characters)",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (1-10, default: 5)",
					"minimum":     1,
					"maximum":     10,
					"default":     5,
				},
			},
			"required":             []any{"query"},
			"additionalProperties": false,
		},
		Strict: true,
	}
}

// Handle is the ToolHandler for search_web.
func (s *Searcher) Handle(ctx context.Context, arguments json.RawMessage) (string, error) {
	var args struct {
		Query      string `json:"query"`
		MaxResults *int   `json:"max_results"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return "", fmt.Errorf("parse search arguments: %w", err)
	}

	maxResults := defaultMaxResults
	if args.MaxResults != nil {
		maxResults = *args.MaxResults
	}
	return s.Search(ctx, args.Query, maxResults), nil
}

// Search validates the query, clamps max_results to 1..10, and executes the
// search. Failures come back inside the JSON document.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) string {
	if query == "" {
		return marshalResult(SearchResult{Success: false, Error: "Search query cannot be empty"})
	}
	if len(query) > maxQueryLength {
		return marshalResult(SearchResult{Success: false, Error: "Search query must be less than 400 characters"})
	}
	if maxResults < 1 {
		maxResults = defaultMaxResults
	} else if maxResults > maxMaxResults {
		maxResults = maxMaxResults
	}

	s.logger.Info("searching web",
		zap.Int("query_len", len(query)),
		zap.Int("max_results", maxResults))

	resp, err := s.client.Search(ctx, query, maxResults)
	if err != nil {
		s.logger.Warn("web search failed", zap.Error(err))
		return marshalResult(SearchResult{Success: false, Error: err.Error()})
	}

	return marshalResult(SearchResult{
		Success:      true,
		Query:        resp.Query,
		Answer:       resp.Answer,
		Results:      resp.Results,
		ResultsCount: len(resp.Results),
		ResponseTime: resp.ResponseTime,
	})
}

// RegisterSearchTool adds search_web to a registry.
func RegisterSearchTool(r *agentloop.ToolRegistry, s *Searcher) error {
	return r.Register(s.Definition(), s.Handle)
}

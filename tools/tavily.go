package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// ErrKeysExhausted is returned when every configured Tavily key has hit its
// rate or usage limit.
var ErrKeysExhausted = errors.New("all Tavily API keys have hit rate limits")

// TavilySearchRequest mirrors the Tavily /search request body.
type TavilySearchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
	IncludeImages     bool   `json:"include_images"`
}

// TavilyHit is one search result.
type TavilyHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// TavilySearchResponse mirrors the Tavily /search response body.
type TavilySearchResponse struct {
	Query        string      `json:"query"`
	Answer       string      `json:"answer"`
	Results      []TavilyHit `json:"results"`
	ResponseTime float64     `json:"response_time"`
}

// TavilyClient calls the Tavily search API, rotating to the next configured
// key whenever the current one hits a rate or usage limit. Construct it once
// and share it: the rotation index is the client's state.
type TavilyClient struct {
	keys    []string
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu         sync.Mutex
	currentKey int
}

// NewTavilyClient creates a client over one or more API keys.
func NewTavilyClient(keys []string, logger *zap.Logger) (*TavilyClient, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one Tavily API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initialized Tavily client", zap.Int("keys", len(keys)))
	return &TavilyClient{
		keys:    keys,
		baseURL: tavilyEndpoint,
		client:  &http.Client{Timeout: fetchTimeout},
		logger:  logger,
	}, nil
}

// Search executes one search, rotating keys on rate limits. Non-rate-limit
// failures are returned immediately.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) (*TavilySearchResponse, error) {
	attempts := 0
	for attempts < len(c.keys) {
		keyIndex := c.keyIndex()
		resp, err := c.searchOnce(ctx, c.keys[keyIndex], query, maxResults)
		if err == nil {
			return resp, nil
		}

		if !isRateLimitError(err) {
			return nil, err
		}
		c.logger.Warn("Tavily key rate limited",
			zap.Int("key_index", keyIndex),
			zap.Error(err))
		if !c.advanceKey(keyIndex) {
			c.logger.Error("all Tavily API keys exhausted")
			return nil, fmt.Errorf("%w: %v", ErrKeysExhausted, err)
		}
		attempts++
	}
	return nil, ErrKeysExhausted
}

func (c *TavilyClient) keyIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentKey
}

// advanceKey moves past keyIndex if it is still the current key. Returns
// false when there is no next key to try.
func (c *TavilyClient) advanceKey(keyIndex int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentKey != keyIndex {
		// A concurrent caller already rotated.
		return true
	}
	if c.currentKey+1 >= len(c.keys) {
		return false
	}
	c.currentKey++
	c.logger.Warn("switched to backup Tavily API key", zap.Int("key_index", c.currentKey))
	return true
}

func (c *TavilyClient) searchOnce(ctx context.Context, apiKey, query string, maxResults int) (*TavilySearchResponse, error) {
	body, err := json.Marshal(TavilySearchRequest{
		APIKey:        apiKey,
		Query:         query,
		SearchDepth:   "basic",
		MaxResults:    maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read tavily response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed TavilySearchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}
	if parsed.ResponseTime == 0 {
		parsed.ResponseTime = time.Since(start).Seconds()
	}
	return &parsed, nil
}

// rateLimitIndicators match the message shapes Tavily uses for rate and
// usage limit rejections.
var rateLimitIndicators = []string{
	"rate limit",
	"ratelimit",
	"too many requests",
	"429",
	"quota exceeded",
	"limit exceeded",
	"usage limit",
	"forbidden",
}

func isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitIndicators {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

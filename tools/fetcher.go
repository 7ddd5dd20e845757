// Package tools implements the tool catalog the extraction loop exposes to
// the model: fetching web pages as visible text, and searching the web.
// Every handler returns a JSON document with a success flag; failures are
// data handed back to the model, not Go errors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/prodsnap/prodsnap/agentloop"
	"github.com/prodsnap/prodsnap/modelclient"
)

const (
	fetchTimeout = 30 * time.Second
	fetchUA      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

	// Pages can be enormous; cap what we hand to the model.
	maxFetchBytes = 4 << 20
)

// Link is one anchor extracted from a fetched page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// FetchResult is the JSON document fetch_web_content returns.
type FetchResult struct {
	Success    bool   `json:"success"`
	URL        string `json:"url,omitempty"`
	Text       string `json:"text,omitempty"`
	TextLength int    `json:"text_length,omitempty"`
	Links      []Link `json:"links,omitempty"`
	LinksCount int    `json:"links_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Fetcher fetches URLs and extracts their visible text and links.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a Fetcher with a 30s timeout and redirect following.
func NewFetcher(logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
	}
}

// Definition returns the function schema for fetch_web_content.
func (f *Fetcher) Definition() modelclient.ToolDefinition {
	return modelclient.ToolDefinition{
		Name:        "fetch_web_content",
		Description: "Fetch a URL and extract its visible text content and links.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The full URL (must start with http:// or https://)",
				},
			},
			"required":             []any{"url"},
			"additionalProperties": false,
		},
		Strict: true,
	}
}

// Handle is the ToolHandler for fetch_web_content.
func (f *Fetcher) Handle(ctx context.Context, arguments json.RawMessage) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return "", fmt.Errorf("parse fetch arguments: %w", err)
	}
	return f.Fetch(ctx, args.URL), nil
}

// Fetch retrieves the URL and returns the extraction result as JSON. Fetch
// problems come back inside the document so the model can react to them.
func (f *Fetcher) Fetch(ctx context.Context, url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return marshalResult(FetchResult{Success: false, Error: "URL must start with http:// or https://"})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return marshalResult(FetchResult{Success: false, Error: fmt.Sprintf("Failed to fetch URL: %v", err)})
	}
	req.Header.Set("User-Agent", fetchUA)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("fetch failed", zap.String("url", url), zap.Error(err))
		return marshalResult(FetchResult{Success: false, Error: fmt.Sprintf("Failed to fetch URL: %v", err)})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("fetch returned error status", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return marshalResult(FetchResult{Success: false, Error: fmt.Sprintf("Failed to fetch URL: status %d", resp.StatusCode)})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return marshalResult(FetchResult{Success: false, Error: fmt.Sprintf("Failed to read response: %v", err)})
	}

	text, links := ExtractContent(string(body))
	return marshalResult(FetchResult{
		Success:    true,
		URL:        url,
		Text:       text,
		TextLength: len(text),
		Links:      links,
		LinksCount: len(links),
	})
}

// skipElements never contribute visible text.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"iframe":   true,
}

// ExtractContent parses HTML and returns the visible text (one trimmed chunk
// per line) and all non-placeholder links.
func ExtractContent(rawHTML string) (string, []Link) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		// html.Parse is extremely tolerant; treat a hard failure as no content.
		return "", nil
	}

	var chunks []string
	var links []Link

	var walk func(n *html.Node, inAnchor *strings.Builder)
	walk = func(n *html.Node, inAnchor *strings.Builder) {
		switch n.Type {
		case html.ElementNode:
			if skipElements[n.Data] {
				return
			}
			if n.Data == "a" {
				var href string
				for _, attr := range n.Attr {
					if attr.Key == "href" {
						href = strings.TrimSpace(attr.Val)
						break
					}
				}
				var anchorText strings.Builder
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c, &anchorText)
				}
				if href != "" && href != "#" {
					text := strings.TrimSpace(anchorText.String())
					if text == "" {
						text = "[no text]"
					}
					links = append(links, Link{Href: href, Text: text})
				}
				return
			}
		case html.TextNode:
			if chunk := strings.TrimSpace(n.Data); chunk != "" {
				chunks = append(chunks, chunk)
				if inAnchor != nil {
					inAnchor.WriteString(chunk)
					inAnchor.WriteString(" ")
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inAnchor)
		}
	}
	walk(doc, nil)

	return strings.Join(chunks, "\n"), links
}

func marshalResult(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return `{"success": false, "error": "failed to encode result"}`
	}
	return string(raw)
}

// RegisterFetchTool adds fetch_web_content to a registry.
func RegisterFetchTool(r *agentloop.ToolRegistry, f *Fetcher) error {
	return r.Register(f.Definition(), f.Handle)
}

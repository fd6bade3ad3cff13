package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxQueries caps web searches per content item. The budget is shared by the
// whole analysis run, not per section.
const maxQueries = 3

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient talks to the web-search grounding provider.
type SearchClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewSearchClient(httpClient *http.Client, baseURL, apiKey string) *SearchClient {
	return &SearchClient{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

func (c *SearchClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

func (c *SearchClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	searchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	endpoint := c.baseURL + "/search?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(searchCtx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider returned HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return payload.Results, nil
}

// Gather runs the deduplicated query budget and renders the results into an
// evidence block for the fact-check prompt. Individual search failures are
// logged and skipped; an empty return means fact-checking proceeds ungrounded.
func (c *SearchClient) Gather(ctx context.Context, queries []string) string {
	if !c.Configured() || len(queries) == 0 {
		return ""
	}

	seen := map[string]bool{}
	var b strings.Builder

	for _, query := range queries {
		query = strings.TrimSpace(query)
		key := strings.ToLower(query)
		if query == "" || seen[key] {
			continue
		}
		seen[key] = true
		if len(seen) > maxQueries {
			break
		}

		results, err := c.Search(ctx, query)
		if err != nil {
			slog.Warn("Web search failed, skipping query", "query", query, "error", err)
			continue
		}

		fmt.Fprintf(&b, "Search: %s\n", query)
		for _, r := range results {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
		}
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ScrapeClient calls the generic web-scraping provider, which renders a page
// and returns its readable text plus metadata.
type ScrapeClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewScrapeClient(httpClient *http.Client, baseURL, apiKey string) *ScrapeClient {
	return &ScrapeClient{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

type scrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title       string `json:"title"`
			Author      string `json:"author"`
			OGImage     string `json:"ogImage"`
			StatusCode  int    `json:"statusCode"`
			Description string `json:"description"`
		} `json:"metadata"`
	} `json:"data"`
	Error string `json:"error"`
}

func (c *ScrapeClient) Scrape(ctx context.Context, pageURL string) (*Result, error) {
	var parsed scrapeResponse

	err := withRetry(ctx, 45*time.Second, func(ctx context.Context) error {
		body, err := json.Marshal(map[string]any{
			"url":     pageURL,
			"formats": []string{"markdown"},
		})
		if err != nil {
			return permanentFailure(FailUnsupported, err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/scrape", bytes.NewReader(body))
		if err != nil {
			return permanentFailure(FailUnsupported, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return transientFailure(FailTimeout, err)
			}
			return transientFailure(FailNetwork, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500:
			return transientFailure(FailNetwork, fmt.Errorf("scrape provider returned HTTP %d", resp.StatusCode))
		case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusPaymentRequired:
			return rejectedFailure(FailBlocked, fmt.Errorf("scrape provider returned HTTP %d", resp.StatusCode))
		default:
			return rejectedFailure(FailBlocked, fmt.Errorf("scrape provider returned HTTP %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return transientFailure(FailNetwork, fmt.Errorf("failed to decode scrape response: %w", err))
		}
		if !parsed.Success {
			return rejectedFailure(FailBlocked, fmt.Errorf("scrape rejected: %s", parsed.Error))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if parsed.Data.Markdown == "" {
		return nil, permanentFailure(FailEmpty, fmt.Errorf("scrape returned no text for %s", pageURL))
	}

	return &Result{
		Text:         parsed.Data.Markdown,
		Title:        parsed.Data.Metadata.Title,
		Author:       parsed.Data.Metadata.Author,
		ThumbnailURL: parsed.Data.Metadata.OGImage,
	}, nil
}

package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

const fetchTimeout = 30 * time.Second

// maxFeedBytes caps the response body read per feed.
const maxFeedBytes = 10 << 20

// Item is one normalized feed entry.
type Item struct {
	URL         string
	Title       string
	PublishedAt time.Time
}

// Fetcher retrieves and parses RSS/Atom feeds. Outbound requests are smoothed
// through a shared rate limiter so a large due batch does not burst-hammer
// feed hosts.
type Fetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

func NewFetcher(httpClient *http.Client, userAgent string) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(4), 8),
		userAgent:  userAgent,
	}
}

// Fetch downloads and parses one feed. authHeader, when non-empty, is sent as
// the Authorization header for private feeds.
func (f *Fetcher) Fetch(ctx context.Context, url, authHeader string) (string, []Item, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", nil, fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// gofeed parsers are not safe for concurrent use; one per call.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		url := entry.Link
		if url == "" && len(entry.Enclosures) > 0 {
			url = entry.Enclosures[0].URL
		}
		if url == "" {
			continue
		}
		item := Item{URL: url, Title: entry.Title}
		if entry.PublishedParsed != nil {
			item.PublishedAt = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			item.PublishedAt = entry.UpdatedParsed.UTC()
		}
		items = append(items, item)
	}

	return feed.Title, items, nil
}

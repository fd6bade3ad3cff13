package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// Dispatcher routes a content URL to the extractor for its kind.
type Dispatcher struct {
	video      *VideoClient
	scraper    *ScrapeClient
	httpClient *http.Client
	userAgent  string
}

func NewDispatcher(video *VideoClient, scraper *ScrapeClient, httpClient *http.Client, userAgent string) *Dispatcher {
	return &Dispatcher{
		video:      video,
		scraper:    scraper,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Run classifies the URL and extracts its text. Podcast URLs return a pending
// result carrying the resolved audio URL instead of text.
func (d *Dispatcher) Run(ctx context.Context, rawURL string) (Kind, *Result, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return "", nil, permanentFailure(FailUnsupported, fmt.Errorf("malformed URL: %w", err))
	}

	kind := Classify(rawURL)
	slog.Debug("Content classified", "url", rawURL, "kind", kind)

	var result *Result
	var err error
	switch kind {
	case KindVideo:
		result, err = d.video.Extract(ctx, rawURL)
	case KindSocial:
		result, err = d.extractSocial(ctx, rawURL)
	case KindPodcast:
		result, err = d.resolvePodcast(ctx, rawURL)
	default:
		result, err = d.extractArticle(ctx, rawURL)
	}

	if err != nil {
		return kind, nil, err
	}

	if !result.PendingTranscription && strings.TrimSpace(result.Text) == "" {
		return kind, nil, permanentFailure(FailEmpty, fmt.Errorf("extraction produced no text for %s", rawURL))
	}

	return kind, result, nil
}

// extractArticle prefers the scraping provider and falls back to a direct
// fetch with readability extraction when the provider cannot serve the page.
func (d *Dispatcher) extractArticle(ctx context.Context, pageURL string) (*Result, error) {
	result, scrapeErr := d.scraper.Scrape(ctx, pageURL)
	if scrapeErr == nil {
		return result, nil
	}

	slog.Warn("Scrape provider failed, trying direct fetch", "url", pageURL, "error", scrapeErr)

	data, err := d.fetchHTML(ctx, pageURL)
	if err != nil {
		return nil, scrapeErr
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(data)), parsedURL)
	if err != nil || article.TextContent == "" {
		return nil, scrapeErr
	}

	return &Result{
		Text:   article.TextContent,
		Title:  article.Title,
		Author: article.Byline,
	}, nil
}

func (d *Dispatcher) extractSocial(ctx context.Context, postURL string) (*Result, error) {
	result, err := d.scraper.Scrape(ctx, postURL)
	if err != nil {
		return nil, err
	}
	return result, nil
}

var audioLinkPattern = regexp.MustCompile(`https?://[^\s"'<>]+\.(?:mp3|m4a|wav|ogg|aac)(?:\?[^\s"'<>]*)?`)

// resolvePodcast finds the audio URL behind a podcast link. Direct audio URLs
// pass through; podcast pages are fetched and scanned for an audio link.
func (d *Dispatcher) resolvePodcast(ctx context.Context, podcastURL string) (*Result, error) {
	u, _ := url.Parse(podcastURL)
	path := strings.ToLower(u.Path)
	for _, suffix := range audioSuffixes {
		if strings.HasSuffix(path, suffix) {
			return &Result{PendingTranscription: true, AudioURL: podcastURL}, nil
		}
	}

	data, err := d.fetchHTML(ctx, podcastURL)
	if err != nil {
		return nil, err
	}

	match := audioLinkPattern.FindString(string(data))
	if match == "" {
		return nil, permanentFailure(FailUnsupported, fmt.Errorf("no audio URL found on %s", podcastURL))
	}

	return &Result{PendingTranscription: true, AudioURL: match}, nil
}

func (d *Dispatcher) fetchHTML(ctx context.Context, pageURL string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, "GET", pageURL, nil)
	if err != nil {
		return nil, permanentFailure(FailUnsupported, err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if fetchCtx.Err() == context.DeadlineExceeded {
			return nil, transientFailure(FailTimeout, err)
		}
		return nil, transientFailure(FailNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, transientFailure(FailNetwork, fmt.Errorf("HTTP error: %d", resp.StatusCode))
	default:
		return nil, rejectedFailure(FailBlocked, fmt.Errorf("HTTP error: %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, transientFailure(FailNetwork, fmt.Errorf("failed to read response body: %w", err))
	}

	return data, nil
}

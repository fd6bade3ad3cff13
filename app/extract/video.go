package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// VideoClient fetches transcripts and metadata for video URLs from the video
// transcript provider.
type VideoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewVideoClient(httpClient *http.Client, baseURL, apiKey string) *VideoClient {
	return &VideoClient{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

type videoTranscriptResponse struct {
	Content []struct {
		Text   string `json:"text"`
		Offset int    `json:"offset"`
	} `json:"content"`
	Lang string `json:"lang"`
}

type videoMetadataResponse struct {
	Title     string `json:"title"`
	Channel   struct {
		Name string `json:"name"`
	} `json:"channel"`
	Duration  int    `json:"duration"`
	Thumbnail string `json:"thumbnail"`
}

func (c *VideoClient) Extract(ctx context.Context, videoURL string) (*Result, error) {
	var transcript videoTranscriptResponse
	err := withRetry(ctx, 30*time.Second, func(ctx context.Context) error {
		return c.getJSON(ctx, "/youtube/transcript?text=false&url="+url.QueryEscape(videoURL), &transcript)
	})
	if err != nil {
		return nil, err
	}

	if len(transcript.Content) == 0 {
		return nil, permanentFailure(FailEmpty, fmt.Errorf("no transcript available for %s", videoURL))
	}

	var b strings.Builder
	for i, chunk := range transcript.Content {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(chunk.Text))
	}

	result := &Result{Text: b.String()}

	// Metadata is best-effort; a transcript without a title is still usable.
	var meta videoMetadataResponse
	err = withRetry(ctx, 15*time.Second, func(ctx context.Context) error {
		return c.getJSON(ctx, "/youtube/video?id="+url.QueryEscape(videoURL), &meta)
	})
	if err == nil {
		result.Title = meta.Title
		result.Author = meta.Channel.Name
		result.DurationSeconds = meta.Duration
		result.ThumbnailURL = meta.Thumbnail
	}

	return result, nil
}

func (c *VideoClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return permanentFailure(FailUnsupported, err)
	}
	req.Header.Set("x-api-key", c.apiKey)

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
		return transientFailure(FailNetwork, fmt.Errorf("provider returned HTTP %d", resp.StatusCode))
	default:
		return rejectedFailure(FailBlocked, fmt.Errorf("provider returned HTTP %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transientFailure(FailNetwork, fmt.Errorf("failed to decode provider response: %w", err))
	}

	return nil
}

package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/recapio/recap/app/pipeline"
)

const stageTranscribe = "TRANSCRIBE"

// Job statuses reported by the transcription provider.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusError      = "error"
)

type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	StartMs int    `json:"start"`
}

type Job struct {
	ID            string      `json:"id"`
	Status        string      `json:"status"`
	Utterances    []Utterance `json:"utterances"`
	AudioDuration float64     `json:"audio_duration"`
	Error         string      `json:"error"`
}

// WebhookPayload is the completion callback the provider posts back. The
// handler must be idempotent; duplicate deliveries are expected.
type WebhookPayload struct {
	TranscriptID  string      `json:"transcript_id"`
	Status        string      `json:"status"`
	Utterances    []Utterance `json:"utterances"`
	AudioDuration float64     `json:"audio_duration"`
	Error         string      `json:"error"`
}

// Client talks to the transcription provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(httpClient *http.Client, baseURL, apiKey string) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// Configured reports whether provider credentials are present. The recovery
// path must not poll without them.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Submit requests speaker-diarized transcription of the audio URL and returns
// the provider job id.
func (c *Client) Submit(ctx context.Context, audioURL, webhookURL string) (string, error) {
	payload := map[string]any{
		"audio_url":      audioURL,
		"speaker_labels": true,
	}
	if webhookURL != "" {
		payload["webhook_url"] = webhookURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	submitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(submitCtx, "POST", c.baseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pipeline.NewError(pipeline.KindTransient, stageTranscribe, "NETWORK", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := pipeline.KindProviderRejected
		if resp.StatusCode >= 500 {
			kind = pipeline.KindTransient
		}
		return "", pipeline.NewError(kind, stageTranscribe, "SUBMIT_REJECTED",
			fmt.Errorf("provider returned HTTP %d", resp.StatusCode))
	}

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("provider returned no job id")
	}

	return job.ID, nil
}

// GetStatus polls the provider's job-status endpoint directly. Used only by
// the recovery path when a webhook never arrived.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*Job, error) {
	statusCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(statusCtx, "GET", c.baseURL+"/v2/transcript/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipeline.NewError(pipeline.KindTransient, stageTranscribe, "NETWORK", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := pipeline.KindProviderRejected
		if resp.StatusCode >= 500 {
			kind = pipeline.KindTransient
		}
		return nil, pipeline.NewError(kind, stageTranscribe, "STATUS_REJECTED",
			fmt.Errorf("provider returned HTTP %d", resp.StatusCode))
	}

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &job, nil
}

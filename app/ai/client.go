package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrEmptyCompletion indicates the provider returned 2xx with no usable text.
var ErrEmptyCompletion = errors.New("empty completion")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Client is a chat-completion HTTP client. Every call, success or failure, is
// logged with latency and token counts for cost accounting.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

func NewClient(httpClient *http.Client, baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		timeout:    timeout,
	}
}

func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(start)

	if err != nil {
		observeCall(req.Model, "network_error", latency, 0, 0)
		slog.Error("AI call failed", "model", req.Model, "latency", latency, "error", err)
		return nil, fmt.Errorf("failed to call AI provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		observeCall(req.Model, fmt.Sprintf("http_%d", resp.StatusCode), latency, 0, 0)
		slog.Error("AI call rejected", "model", req.Model, "latency", latency, "status", resp.StatusCode, "body", string(data))
		return nil, fmt.Errorf("AI provider returned HTTP %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		observeCall(req.Model, "decode_error", latency, 0, 0)
		return nil, fmt.Errorf("failed to decode AI response: %w", err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		observeCall(req.Model, "empty", latency, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
		return nil, ErrEmptyCompletion
	}

	observeCall(req.Model, "ok", latency, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	slog.Info("AI call completed",
		"model", req.Model,
		"latency", latency,
		"prompt_tokens", parsed.Usage.PromptTokens,
		"completion_tokens", parsed.Usage.CompletionTokens)

	return &Completion{
		Text:             parsed.Choices[0].Message.Content,
		Model:            req.Model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

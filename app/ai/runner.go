package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllModelsFailed indicates every model in a fallback chain was exhausted.
var ErrAllModelsFailed = errors.New("all models in chain failed")

// Runner consumes an ordered model chain with a single generic attempt loop.
// A non-2xx response, empty completion, or JSON-parse failure advances to the
// next model in the chain.
type Runner struct {
	client *Client
}

func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// AttemptText runs the chain until one model produces a non-empty completion.
func (r *Runner) AttemptText(ctx context.Context, chain Chain, system, user string) (*Completion, error) {
	var lastErr error

	for _, model := range chain {
		completion, err := r.client.Complete(ctx, Request{
			Model:       model.Name,
			Temperature: model.Temperature,
			MaxTokens:   model.MaxTokens,
			Messages: []Message{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
		})
		if err != nil {
			lastErr = err
			slog.Warn("Model attempt failed, falling back", "model", model.Name, "error", err)
			continue
		}
		return completion, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllModelsFailed, lastErr)
	}
	return nil, ErrAllModelsFailed
}

// AttemptJSON runs the chain until one model produces a completion that parses
// into out. Returns the name of the model that succeeded.
func (r *Runner) AttemptJSON(ctx context.Context, chain Chain, system, user string, out any) (string, error) {
	var lastErr error

	for _, model := range chain {
		completion, err := r.client.Complete(ctx, Request{
			Model:       model.Name,
			Temperature: model.Temperature,
			MaxTokens:   model.MaxTokens,
			Messages: []Message{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
		})
		if err != nil {
			lastErr = err
			slog.Warn("Model attempt failed, falling back", "model", model.Name, "error", err)
			continue
		}

		if err := json.Unmarshal([]byte(ExtractJSON(completion.Text)), out); err != nil {
			lastErr = fmt.Errorf("failed to parse model JSON: %w", err)
			slog.Warn("Model returned unparseable JSON, falling back", "model", model.Name, "error", err)
			continue
		}

		return completion.Model, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %w", ErrAllModelsFailed, lastErr)
	}
	return "", ErrAllModelsFailed
}

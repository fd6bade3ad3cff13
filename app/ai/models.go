package ai

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelRef describes one model in an ordered fallback chain. Adding or
// reordering models is a configuration change, not a code change.
type ModelRef struct {
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type Chain []ModelRef

// Chains groups the fallback chains by workload: fast for cheap
// pre/post-processing, analysis for the main sections, translation for the
// translation service.
type Chains struct {
	Fast        Chain `yaml:"fast"`
	Analysis    Chain `yaml:"analysis"`
	Translation Chain `yaml:"translation"`
}

// DefaultChains is the built-in configuration used when no models file is
// present.
func DefaultChains() Chains {
	return Chains{
		Fast: Chain{
			{Name: "google/gemini-2.0-flash-001", Temperature: 0.3, MaxTokens: 1024},
			{Name: "openai/gpt-4o-mini", Temperature: 0.3, MaxTokens: 1024},
		},
		Analysis: Chain{
			{Name: "anthropic/claude-sonnet-4", Temperature: 0.4, MaxTokens: 4096},
			{Name: "openai/gpt-4o", Temperature: 0.4, MaxTokens: 4096},
			{Name: "google/gemini-2.5-pro", Temperature: 0.4, MaxTokens: 4096},
		},
		Translation: Chain{
			{Name: "google/gemini-2.0-flash-001", Temperature: 0.2, MaxTokens: 8192},
			{Name: "openai/gpt-4o-mini", Temperature: 0.2, MaxTokens: 8192},
		},
	}
}

// LoadChains reads model chains from a YAML file, falling back to the built-in
// defaults when the file does not exist.
func LoadChains(path string) (Chains, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultChains(), nil
	}
	if err != nil {
		return Chains{}, fmt.Errorf("failed to read models file: %w", err)
	}

	var chains Chains
	if err := yaml.Unmarshal(data, &chains); err != nil {
		return Chains{}, fmt.Errorf("failed to parse models file: %w", err)
	}

	defaults := DefaultChains()
	if len(chains.Fast) == 0 {
		chains.Fast = defaults.Fast
	}
	if len(chains.Analysis) == 0 {
		chains.Analysis = defaults.Analysis
	}
	if len(chains.Translation) == 0 {
		chains.Translation = defaults.Translation
	}

	return chains, nil
}

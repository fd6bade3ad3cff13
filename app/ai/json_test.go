package ai

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"bare array", `[1, 2]`, `[1, 2]`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading prose", "Here is the result:\n{\"a\": 1}", `{"a": 1}`},
		{"trailing prose", "{\"a\": 1}\nHope that helps!", "{\"a\": 1}\nHope that helps!"},
		{"prose both sides", "Sure: {\"a\": {\"b\": 2}} done", `{"a": {"b": 2}}`},
		{"whitespace", "  \n {\"a\": 1} \n ", `{"a": 1}`},
		{"no json", "nothing here", "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.input); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

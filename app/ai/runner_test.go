package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// chatServer fakes the chat-completion endpoint, answering per-model.
type chatServer struct {
	mu       sync.Mutex
	answers  map[string]func() (int, string)
	received []string
}

func (s *chatServer) handler(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.received = append(s.received, req.Model)
	answer := s.answers[req.Model]
	s.mu.Unlock()

	if answer == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	status, text := answer()
	w.WriteHeader(status)
	if status == http.StatusOK {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": text}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func newTestRunner(t *testing.T, s *chatServer) (*Runner, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.handler))
	t.Cleanup(srv.Close)
	client := NewClient(srv.Client(), srv.URL, "test-key", 5*time.Second)
	return NewRunner(client), srv
}

func TestClient_Complete_ParsesUsage(t *testing.T) {
	server := &chatServer{answers: map[string]func() (int, string){
		"m1": func() (int, string) { return http.StatusOK, "hello" },
	}}
	runner, _ := newTestRunner(t, server)

	completion, err := runner.AttemptText(context.Background(), Chain{{Name: "m1"}}, "sys", "user")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if completion.Text != "hello" {
		t.Errorf("Expected completion text 'hello', got %q", completion.Text)
	}
	if completion.PromptTokens != 10 || completion.CompletionTokens != 5 {
		t.Errorf("Token usage not parsed: %+v", completion)
	}
}

func TestRunner_FallbackOnHTTPError(t *testing.T) {
	server := &chatServer{answers: map[string]func() (int, string){
		"primary":   func() (int, string) { return http.StatusInternalServerError, "" },
		"secondary": func() (int, string) { return http.StatusOK, `{"value": 42}` },
	}}
	runner, _ := newTestRunner(t, server)

	var out struct {
		Value int `json:"value"`
	}
	model, err := runner.AttemptJSON(context.Background(),
		Chain{{Name: "primary"}, {Name: "secondary"}}, "sys", "user", &out)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if model != "secondary" {
		t.Errorf("Expected fallback to secondary, got %s", model)
	}
	if out.Value != 42 {
		t.Errorf("Expected parsed value 42, got %d", out.Value)
	}
	if len(server.received) != 2 || server.received[0] != "primary" {
		t.Errorf("Chain order not respected: %v", server.received)
	}
}

func TestRunner_FallbackOnUnparseableJSON(t *testing.T) {
	server := &chatServer{answers: map[string]func() (int, string){
		"primary":   func() (int, string) { return http.StatusOK, "I cannot produce JSON today" },
		"secondary": func() (int, string) { return http.StatusOK, "```json\n{\"value\": 7}\n```" },
	}}
	runner, _ := newTestRunner(t, server)

	var out struct {
		Value int `json:"value"`
	}
	model, err := runner.AttemptJSON(context.Background(),
		Chain{{Name: "primary"}, {Name: "secondary"}}, "sys", "user", &out)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if model != "secondary" || out.Value != 7 {
		t.Errorf("Expected fenced JSON from secondary, got model=%s value=%d", model, out.Value)
	}
}

func TestRunner_FallbackOnEmptyCompletion(t *testing.T) {
	server := &chatServer{answers: map[string]func() (int, string){
		"primary":   func() (int, string) { return http.StatusOK, "" },
		"secondary": func() (int, string) { return http.StatusOK, "text" },
	}}
	runner, _ := newTestRunner(t, server)

	completion, err := runner.AttemptText(context.Background(),
		Chain{{Name: "primary"}, {Name: "secondary"}}, "sys", "user")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if completion.Model != "secondary" {
		t.Errorf("Expected secondary to serve, got %s", completion.Model)
	}
}

func TestRunner_AllModelsFailed(t *testing.T) {
	server := &chatServer{answers: map[string]func() (int, string){
		"m1": func() (int, string) { return http.StatusBadGateway, "" },
		"m2": func() (int, string) { return http.StatusTooManyRequests, "" },
	}}
	runner, _ := newTestRunner(t, server)

	var out map[string]any
	_, err := runner.AttemptJSON(context.Background(), Chain{{Name: "m1"}, {Name: "m2"}}, "sys", "user", &out)
	if err == nil {
		t.Fatalf("Expected error when all models fail")
	}
	if len(server.received) != 2 {
		t.Errorf("Both models should have been attempted, got %v", server.received)
	}
}

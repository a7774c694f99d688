package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/efebarandurmaz/quill/internal/llm"
)

func TestNew_SetsDefaults(t *testing.T) {
	client := New("test-key", "test-model", "")

	if client.baseURL != defaultBaseURL {
		t.Errorf("expected default baseURL %q, got %q", defaultBaseURL, client.baseURL)
	}
	if client.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", client.Name())
	}
}

func TestComplete_LiftsSystemMessages(t *testing.T) {
	var captured map[string]any
	var headers http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": "Ciao"}, {"type": "text", "text": "!"}},
			"model":       "claude-test",
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 12, "output_tokens": 2},
		})
	}))
	defer server.Close()

	client := New("test-api-key", "claude-test", server.URL)
	resp, err := client.Complete(context.Background(), &llm.Prompt{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "Translate the following from English into Italian"},
		{Role: llm.RoleUser, Content: "hi!"},
	}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if headers.Get("x-api-key") != "test-api-key" {
		t.Errorf("expected x-api-key header, got %q", headers.Get("x-api-key"))
	}
	if headers.Get("anthropic-version") != apiVersion {
		t.Errorf("expected anthropic-version %q, got %q", apiVersion, headers.Get("anthropic-version"))
	}
	if captured["system"] != "Translate the following from English into Italian" {
		t.Errorf("expected system prompt to be lifted, got %v", captured["system"])
	}
	msgs := captured["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 inline message, got %d", len(msgs))
	}
	if captured["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("expected default max_tokens, got %v", captured["max_tokens"])
	}

	if resp.Content != "Ciao!" {
		t.Errorf("expected concatenated text 'Ciao!', got %q", resp.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 2 {
		t.Errorf("unexpected usage: %+v", resp)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("expected stop reason end_turn, got %q", resp.StopReason)
	}
}

func TestComplete_Options(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{"content": []map[string]string{{"text": "ok"}}})
	}))
	defer server.Close()

	temp, topP, maxTokens := 0.7, 0.9, 256
	_, err := New("k", "m", server.URL).Complete(context.Background(), llm.TextPrompt("hello"), &llm.RequestOptions{
		Temperature: &temp,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
		StopSeqs:    []string{"END"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured["temperature"] != 0.7 || captured["top_p"] != 0.9 || captured["max_tokens"] != float64(256) {
		t.Errorf("options not forwarded: %v", captured)
	}
	if _, ok := captured["system"]; ok {
		t.Error("expected no system field for a user-only prompt")
	}
}

func TestComplete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"type":"overloaded_error"}}`))
	}))
	defer server.Close()

	_, err := New("k", "m", server.URL).Complete(context.Background(), llm.TextPrompt("hello"), nil)
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *llm.APIError, got %v", err)
	}
	if !apiErr.Temporary() {
		t.Error("expected 503 to be temporary")
	}
}

func TestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Errorf("expected stream=true, got %v", body["stream"])
		}
		events := []string{
			`{"type":"message_start","message":{"model":"claude-test","usage":{"input_tokens":12}}}`,
			`{"type":"content_block_start","index":0}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Cia"}}`,
			`{"type":"ping"}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"o!"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`,
			`{"type":"message_stop"}`,
		}
		for _, ev := range events {
			fmt.Fprintf(w, "event: x\ndata: %s\n\n", ev)
		}
	}))
	defer server.Close()

	ch, err := New("k", "m", server.URL).Stream(context.Background(), llm.TextPrompt("hi!"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if resp.Content != "Ciao!" {
		t.Errorf("expected 'Ciao!', got %q", resp.Content)
	}
	if resp.Model != "claude-test" || resp.InputTokens != 12 || resp.OutputTokens != 2 || resp.StopReason != "end_turn" {
		t.Errorf("unexpected final chunk data: %+v", resp)
	}
}

func TestStream_ErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer server.Close()

	ch, err := New("k", "m", server.URL).Stream(context.Background(), llm.TextPrompt("hi!"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := llm.Collect(context.Background(), ch); err == nil {
		t.Fatal("expected stream error")
	}
}

func TestEmbed_Unsupported(t *testing.T) {
	if _, err := New("k", "m", "").Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error")
	}
}

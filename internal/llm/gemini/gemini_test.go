package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/efebarandurmaz/quill/internal/llm"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), "", "", "", "")
	require.Error(t, err)
}

func TestContents_MapsRoles(t *testing.T) {
	c := &Client{model: defaultModel}
	temp, maxTokens := 0.2, 64

	contents, config := c.contents(&llm.Prompt{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "Translate the following from English into Italian"},
		{Role: llm.RoleUser, Content: "hi!"},
		{Role: llm.RoleAssistant, Content: "ciao!"},
	}}, &llm.RequestOptions{Temperature: &temp, MaxTokens: &maxTokens})

	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "hi!", contents[0].Parts[0].Text)

	require.NotNil(t, config.SystemInstruction)
	assert.Equal(t, "Translate the following from English into Italian", config.SystemInstruction.Parts[0].Text)
	require.NotNil(t, config.Temperature)
	assert.InDelta(t, 0.2, *config.Temperature, 1e-6)
	assert.Equal(t, int32(64), config.MaxOutputTokens)
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]string{{"text": "Ciao!"}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]int{"promptTokenCount": 9, "candidatesTokenCount": 3},
			"modelVersion":  "gemini-test-001",
		})
	}))
	defer server.Close()

	c, err := New(context.Background(), "test-key", "gemini-test", server.URL, "")
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), llm.TextPrompt("hi!"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Ciao!", resp.Content)
	assert.Equal(t, "gemini-test-001", resp.Model)
	assert.Equal(t, 9, resp.InputTokens)
	assert.Equal(t, 3, resp.OutputTokens)
	assert.Equal(t, "STOP", resp.StopReason)
}

package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"system", RoleSystem},
		{"user", RoleUser},
		{"human", RoleUser},
		{" Assistant ", RoleAssistant},
		{"ai", RoleAssistant},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}

	_, err := ParseRole("tool")
	assert.Error(t, err)
	assert.False(t, Role("tool").Valid())
}

func TestTextPrompt(t *testing.T) {
	p := TextPrompt("hi!")
	require.Len(t, p.Messages, 1)
	assert.Equal(t, Message{Role: RoleUser, Content: "hi!"}, p.Messages[0])
	assert.Empty(t, p.SystemPrompt)
}

func TestPrompt_SplitSystem(t *testing.T) {
	p := &Prompt{
		SystemPrompt: "be brief",
		Messages: []Message{
			{Role: RoleSystem, Content: "translate to Italian"},
			{Role: RoleUser, Content: "hi!"},
			{Role: RoleAssistant, Content: "ciao!"},
		},
	}
	system, turns := p.SplitSystem()
	assert.Equal(t, "be brief\n\ntranslate to Italian", system)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "hi!"},
		{Role: RoleAssistant, Content: "ciao!"},
	}, turns)
}

func TestCollect(t *testing.T) {
	ch := make(chan StreamChunk, 4)
	ch <- StreamChunk{Content: "Ci", Model: "m"}
	ch <- StreamChunk{Content: "ao"}
	ch <- StreamChunk{Content: "!", Done: true, InputTokens: 3, OutputTokens: 2, StopReason: "stop"}
	close(ch)

	resp, err := Collect(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, &Response{Content: "Ciao!", Model: "m", InputTokens: 3, OutputTokens: 2, StopReason: "stop"}, resp)
}

func TestCollect_ChunkError(t *testing.T) {
	boom := errors.New("connection reset")
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Content: "par"}
	ch <- StreamChunk{Err: boom}
	close(ch)

	_, err := Collect(context.Background(), ch)
	assert.ErrorIs(t, err, boom)
}

func TestCollect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, make(chan StreamChunk))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamFromResponse(t *testing.T) {
	want := &Response{Content: "hello", Model: "m", InputTokens: 1, OutputTokens: 1, StopReason: "stop"}
	got, err := Collect(context.Background(), StreamFromResponse(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAPIError(t *testing.T) {
	err := &APIError{Provider: "openai", StatusCode: 503, Body: "overloaded"}
	assert.Equal(t, "openai: 503 Service Unavailable: overloaded", err.Error())
	assert.True(t, err.Temporary())
	assert.False(t, (&APIError{StatusCode: 401}).Temporary())
	assert.True(t, (&APIError{StatusCode: 429}).Temporary())
}

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/llm/llmtest"
)

func newMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Scrape(t *testing.T) {
	m := newMetrics(t)
	ctx := context.Background()

	m.RecordRequest(ctx, "translate", "invoke", "ok")
	m.RecordRequest(ctx, "translate", "render", "missing_variable")
	m.RecordLLMRequest(ctx, "openai", "gpt-4o", 250*time.Millisecond, 12, 3, nil)
	m.RecordLLMRequest(ctx, "openai", "", time.Second, 0, 0, errors.New("boom"))
	m.RecordStreamChunks(ctx, "translate", 4)

	body := scrape(t, m)
	assert.Contains(t, body, "quill_server_requests")
	assert.Contains(t, body, `outcome="missing_variable"`)
	assert.Contains(t, body, `template="translate"`)
	assert.Contains(t, body, "quill_llm_requests")
	assert.Contains(t, body, "quill_llm_errors")
	assert.Contains(t, body, "quill_llm_duration")
	assert.Contains(t, body, `direction="input"`)
	assert.Contains(t, body, "quill_stream_chunks")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordRequest(ctx, "t", "invoke", "ok")
	m.RecordLLMRequest(ctx, "p", "m", time.Second, 1, 1, nil)
	m.RecordStreamChunks(ctx, "t", 1)
	assert.NoError(t, m.Shutdown(ctx))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTracedProvider_RecordsMetrics(t *testing.T) {
	m := newMetrics(t)
	inner := &llmtest.Provider{
		ProviderName: "acme",
		Responses:    []*llm.Response{{Content: "Ciao!", Model: "acme-1", InputTokens: 7, OutputTokens: 2}},
	}
	traced := NewTracedProvider(inner, WithMetrics(m))

	_, err := traced.Complete(context.Background(), translatePrompt(), nil)
	require.NoError(t, err)

	body := scrape(t, m)
	assert.Contains(t, body, `model="acme-1"`)
	assert.Contains(t, body, `provider="acme"`)
	assert.Contains(t, body, `direction="output"`)
	assert.NotContains(t, body, "quill_llm_errors_total{")
}

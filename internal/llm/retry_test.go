package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/llm/llmtest"
)

func fastRetry(maxRetries int) *llm.RetryConfig {
	return &llm.RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestRetryProvider_Complete_RetriesTemporaryErrors(t *testing.T) {
	inner := &llmtest.Provider{
		Errors:    []error{&llm.APIError{Provider: "fake", StatusCode: 503}, &llm.APIError{Provider: "fake", StatusCode: 429}},
		Responses: []*llm.Response{{Content: "ok"}},
	}
	p := llm.NewRetryProvider(inner, fastRetry(3))

	resp, err := p.Complete(context.Background(), llm.TextPrompt("hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, inner.Calls())
}

func TestRetryProvider_Complete_StopsOnClientError(t *testing.T) {
	inner := &llmtest.Provider{
		Errors: []error{&llm.APIError{Provider: "fake", StatusCode: 401, Body: "bad key"}},
	}
	p := llm.NewRetryProvider(inner, fastRetry(3))

	_, err := p.Complete(context.Background(), llm.TextPrompt("hi"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-retryable")
	assert.Equal(t, 1, inner.Calls())

	var apiErr *llm.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestRetryProvider_Complete_DailyLimitNotRetried(t *testing.T) {
	inner := &llmtest.Provider{
		Errors: []error{&llm.APIError{Provider: "fake", StatusCode: 429, Body: "Rate limit reached on tokens per day (TPD)"}},
	}
	p := llm.NewRetryProvider(inner, fastRetry(3))

	_, err := p.Complete(context.Background(), llm.TextPrompt("hi"), nil)
	require.Error(t, err)
	assert.Equal(t, 1, inner.Calls())
}

func TestRetryProvider_Complete_MaxRetriesExceeded(t *testing.T) {
	fail := errors.New("502 Bad Gateway")
	inner := &llmtest.Provider{Errors: []error{fail, fail, fail, fail}}
	p := llm.NewRetryProvider(inner, fastRetry(2))

	_, err := p.Complete(context.Background(), llm.TextPrompt("hi"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (2) exceeded")
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 3, inner.Calls())
}

func TestRetryProvider_Stream_RetriesOpen(t *testing.T) {
	inner := &llmtest.Provider{
		Errors:    []error{errors.New("500 Internal Server Error")},
		Responses: []*llm.Response{{Content: "ciao a tutti"}},
	}
	p := llm.NewRetryProvider(inner, fastRetry(2))

	ch, err := p.Stream(context.Background(), llm.TextPrompt("hi"), nil)
	require.NoError(t, err)
	resp, err := llm.Collect(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, "ciao a tutti", resp.Content)
	assert.Equal(t, 2, inner.Calls())
}

func TestRetryProvider_RespectsCancellation(t *testing.T) {
	inner := &llmtest.Provider{Errors: []error{errors.New("503"), errors.New("503"), errors.New("503")}}
	p := llm.NewRetryProvider(inner, &llm.RetryConfig{
		MaxRetries: 5,
		RetryDelay: time.Hour,
		MaxDelay:   time.Hour,
		Timeout:    time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Complete(ctx, llm.TextPrompt("hi"), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryProvider_Embed(t *testing.T) {
	inner := &llmtest.Provider{}
	p := llm.NewRetryProvider(inner, nil)
	assert.Equal(t, "fake", p.Name())

	vecs, err := p.Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, float32(1), vecs[0][0])
}

func TestWrapWithRetry(t *testing.T) {
	assert.Nil(t, llm.WrapWithRetry(nil, llm.ProviderConfig{}))

	wrapped := llm.WrapWithRetry(&llmtest.Provider{}, llm.ProviderConfig{MaxRetries: 4})
	rp, ok := wrapped.(*llm.RetryProvider)
	require.True(t, ok)
	assert.Equal(t, "fake", rp.Unwrap().Name())
}

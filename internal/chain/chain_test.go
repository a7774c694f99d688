package chain_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/efebarandurmaz/quill/internal/chain"
	"github.com/efebarandurmaz/quill/internal/fewshot"
	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/llm/llmtest"
	"github.com/efebarandurmaz/quill/internal/observability"
	"github.com/efebarandurmaz/quill/internal/output"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

func translate(t *testing.T) *prompt.Template {
	t.Helper()
	tmpl, err := prompt.New(
		prompt.System("Translate the following from English into {language}"),
		prompt.User("{text}"),
	)
	require.NoError(t, err)
	return tmpl
}

func TestInvoke(t *testing.T) {
	p := &llmtest.Provider{Responses: []*llm.Response{{Content: "<think>easy</think>Ciao!", Model: "m"}}}
	c := chain.New(translate(t), p, chain.WithName("translate"))

	res, err := c.Invoke(context.Background(), prompt.Bindings{"language": "Italian", "text": "hi!"})
	require.NoError(t, err)
	assert.Equal(t, "Ciao!", res.Output)
	assert.Equal(t, "m", res.Response.Model)

	sent := p.Prompts()[0].Messages
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "Translate the following from English into Italian"},
		{Role: llm.RoleUser, Content: "hi!"},
	}, sent)
	assert.Equal(t, sent, res.Messages)
}

func TestInvoke_MissingVariableSkipsProvider(t *testing.T) {
	p := &llmtest.Provider{}
	c := chain.New(translate(t), p)

	_, err := c.Invoke(context.Background(), prompt.Bindings{"text": "hi!"})
	var missing *prompt.MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "language", missing.Name)
	assert.Zero(t, p.Calls())
}

func TestInvoke_NoProvider(t *testing.T) {
	c := chain.New(translate(t), nil)
	_, err := c.Invoke(context.Background(), prompt.Bindings{"language": "x", "text": "y"})
	assert.ErrorIs(t, err, chain.ErrNoProvider)

	v, err := c.Render(context.Background(), prompt.Bindings{"language": "x", "text": "y"})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Len())
}

func TestInvoke_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	c := chain.New(translate(t), &llmtest.Provider{Errors: []error{boom}})
	_, err := c.Invoke(context.Background(), prompt.Bindings{"language": "x", "text": "y"})
	assert.ErrorIs(t, err, boom)
}

func TestInvoke_JSONParser(t *testing.T) {
	p := &llmtest.Provider{Responses: []*llm.Response{{Content: "```json\n{\"translation\": \"Ciao!\"}\n```"}}}
	c := chain.New(translate(t), p, chain.WithParser(output.JSONParser{}))

	res, err := c.Invoke(context.Background(), prompt.Bindings{"language": "Italian", "text": "hi!"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"translation": "Ciao!"}, res.Output)
}

func TestInvoke_RequestOptions(t *testing.T) {
	var seen *llm.RequestOptions
	p := optsRecorder{Provider: &llmtest.Provider{}, seen: &seen}
	temp := 0.1
	c := chain.New(translate(t), p, chain.WithRequestOptions(&llm.RequestOptions{Temperature: &temp}))

	_, err := c.Invoke(context.Background(), prompt.Bindings{"language": "x", "text": "y"})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, 0.1, *seen.Temperature)
}

type optsRecorder struct {
	*llmtest.Provider
	seen **llm.RequestOptions
}

func (o optsRecorder) Complete(ctx context.Context, p *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	*o.seen = opts
	return o.Provider.Complete(ctx, p, opts)
}

func TestStream(t *testing.T) {
	p := &llmtest.Provider{Responses: []*llm.Response{{Content: "Ciao a tutti"}}}
	c := chain.New(translate(t), p)

	ch, err := c.Stream(context.Background(), prompt.Bindings{"language": "Italian", "text": "hi all"})
	require.NoError(t, err)

	var parts []string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		if chunk.Content != "" {
			parts = append(parts, chunk.Content)
		}
	}
	assert.Equal(t, []string{"Ciao ", "a ", "tutti"}, parts)
}

// installTracer routes the global tracer to an in-memory exporter for the test.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func spanNamed(exporter *tracetest.InMemoryExporter, name string) (tracetest.SpanStub, bool) {
	for _, s := range exporter.GetSpans() {
		if s.Name == name {
			return s, true
		}
	}
	return tracetest.SpanStub{}, false
}

func TestStream_SpanCoversDrain(t *testing.T) {
	exporter := installTracer(t)
	p := &llmtest.Provider{Responses: []*llm.Response{{Content: "Ciao a tutti"}}}
	c := chain.New(translate(t), p, chain.WithName("translate"))

	ch, err := c.Stream(context.Background(), prompt.Bindings{"language": "Italian", "text": "hi all"})
	require.NoError(t, err)

	_, ended := spanNamed(exporter, observability.SpanChainStream)
	assert.False(t, ended, "span must stay open until the stream is drained")

	for range ch {
	}
	s, ended := spanNamed(exporter, observability.SpanChainStream)
	require.True(t, ended)
	var chunks int64
	for _, kv := range s.Attributes {
		if kv.Key == "quill.stream.chunks" {
			chunks = kv.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(4), chunks)
	assert.NotEqual(t, codes.Error, s.Status.Code)
}

func TestStream_SpanRecordsMidwayFailure(t *testing.T) {
	exporter := installTracer(t)
	p := &llmtest.Provider{
		Responses: []*llm.Response{{Content: "Ciao a tutti"}},
		StreamErr: errors.New("connection reset"),
	}
	c := chain.New(translate(t), p)

	ch, err := c.Stream(context.Background(), prompt.Bindings{"language": "Italian", "text": "hi all"})
	require.NoError(t, err)
	var last llm.StreamChunk
	for chunk := range ch {
		last = chunk
	}
	assert.EqualError(t, last.Err, "connection reset")

	s, ended := spanNamed(exporter, observability.SpanChainStream)
	require.True(t, ended)
	assert.Equal(t, codes.Error, s.Status.Code)
}

func TestStream_MissingVariable(t *testing.T) {
	c := chain.New(translate(t), &llmtest.Provider{})
	_, err := c.Stream(context.Background(), prompt.Bindings{})
	var missing *prompt.MissingVariableError
	assert.ErrorAs(t, err, &missing)
}

func TestBatch_PreservesOrder(t *testing.T) {
	p := &llmtest.Provider{}
	c := chain.New(prompt.FromString("word {n}"), p)

	inputs := make([]prompt.Bindings, 20)
	for i := range inputs {
		inputs[i] = prompt.Bindings{"n": fmt.Sprint(i)}
	}
	results, err := c.Batch(context.Background(), inputs, 4)
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("word %d", i), r.Output)
	}
	assert.Equal(t, 20, p.Calls())
}

func TestBatch_LimitsConcurrency(t *testing.T) {
	var inFlight, peak int32
	p := gate{Provider: &llmtest.Provider{}, inFlight: &inFlight, peak: &peak}
	c := chain.New(prompt.FromString("{n}"), p)

	inputs := make([]prompt.Bindings, 10)
	for i := range inputs {
		inputs[i] = prompt.Bindings{"n": fmt.Sprint(i)}
	}
	_, err := c.Batch(context.Background(), inputs, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

type gate struct {
	*llmtest.Provider
	inFlight, peak *int32
}

func (g gate) Complete(ctx context.Context, p *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	n := atomic.AddInt32(g.inFlight, 1)
	defer atomic.AddInt32(g.inFlight, -1)
	for {
		old := atomic.LoadInt32(g.peak)
		if n <= old || atomic.CompareAndSwapInt32(g.peak, old, n) {
			break
		}
	}
	return g.Provider.Complete(ctx, p, opts)
}

func TestBatch_FailsOnMissingVariable(t *testing.T) {
	c := chain.New(prompt.FromString("{n}"), &llmtest.Provider{})
	_, err := c.Batch(context.Background(), []prompt.Bindings{{"n": "1"}, {}}, 1)
	var missing *prompt.MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, err.Error(), "batch item 1")
}

func TestFewShot(t *testing.T) {
	tmpl, err := prompt.New(
		prompt.System("Give the antonym of every input."),
		prompt.Placeholder("examples", false),
		prompt.User("{word}"),
	)
	require.NoError(t, err)

	p := &llmtest.Provider{}
	sel := fewshot.StaticSelector{Examples: []fewshot.Example{{Input: "happy", Output: "sad"}}}
	c := chain.New(tmpl, p, chain.WithFewShot("examples", "word", sel))

	_, err = c.Invoke(context.Background(), prompt.Bindings{"word": "tall"})
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "Give the antonym of every input."},
		{Role: llm.RoleUser, Content: "happy"},
		{Role: llm.RoleAssistant, Content: "sad"},
		{Role: llm.RoleUser, Content: "tall"},
	}, p.Prompts()[0].Messages)
}

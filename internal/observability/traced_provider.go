package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// TracedProvider wraps an llm.Provider with spans and structured logs.
type TracedProvider struct {
	inner          llm.Provider
	tracer         trace.Tracer
	logger         zerolog.Logger
	metrics        *Metrics
	capturePrompts bool
}

// TracedOption configures a TracedProvider.
type TracedOption func(*TracedProvider)

// WithTracer sets the tracer. Defaults to the global tracer provider.
func WithTracer(t trace.Tracer) TracedOption {
	return func(p *TracedProvider) { p.tracer = t }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l zerolog.Logger) TracedOption {
	return func(p *TracedProvider) { p.logger = l }
}

// WithMetrics records call counts, latency and tokens in m.
func WithMetrics(m *Metrics) TracedOption {
	return func(p *TracedProvider) { p.metrics = m }
}

// WithPromptCapture records prompt and completion text on spans.
func WithPromptCapture(enabled bool) TracedOption {
	return func(p *TracedProvider) { p.capturePrompts = enabled }
}

// NewTracedProvider wraps inner.
func NewTracedProvider(inner llm.Provider, opts ...TracedOption) *TracedProvider {
	p := &TracedProvider{
		inner:  inner,
		tracer: otel.Tracer(TracerName),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TracedProvider) Name() string { return p.inner.Name() }

// Unwrap returns the wrapped provider.
func (p *TracedProvider) Unwrap() llm.Provider { return p.inner }

func (p *TracedProvider) start(ctx context.Context, name string, prompt *llm.Prompt, opts *llm.RequestOptions) (context.Context, trace.Span) {
	ctx, span := p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(RequestAttributes(p.inner.Name(), opts)...),
	)
	if p.capturePrompts && prompt != nil {
		span.SetAttributes(attribute.String(GenAIPrompt, formatPrompt(prompt)))
	}
	return ctx, span
}

func (p *TracedProvider) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	ctx, span := p.start(ctx, SpanLLMComplete, prompt, opts)
	defer span.End()

	start := time.Now()
	resp, err := p.inner.Complete(ctx, prompt, opts)
	if err != nil {
		RecordError(span, err)
		p.metrics.RecordLLMRequest(ctx, p.inner.Name(), "", time.Since(start), 0, 0, err)
		p.logger.Error().Err(err).Str("provider", p.inner.Name()).Msg("llm completion failed")
		return nil, err
	}

	p.finish(ctx, span, resp, time.Since(start))
	return resp, nil
}

// Stream keeps the span open until the stream is drained or fails.
func (p *TracedProvider) Stream(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (<-chan llm.StreamChunk, error) {
	ctx, span := p.start(ctx, SpanLLMStream, prompt, opts)

	start := time.Now()
	in, err := p.inner.Stream(ctx, prompt, opts)
	if err != nil {
		RecordError(span, err)
		span.End()
		p.metrics.RecordLLMRequest(ctx, p.inner.Name(), "", time.Since(start), 0, 0, err)
		p.logger.Error().Err(err).Str("provider", p.inner.Name()).Msg("llm stream failed")
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer span.End()

		var (
			resp    llm.Response
			text    []byte
			chunks  int
			failure error
		)
		for chunk := range in {
			if chunk.Err != nil {
				failure = chunk.Err
				RecordError(span, chunk.Err)
				p.logger.Error().Err(chunk.Err).Str("provider", p.inner.Name()).Msg("llm stream chunk failed")
			}
			chunks++
			text = append(text, chunk.Content...)
			if chunk.Model != "" {
				resp.Model = chunk.Model
			}
			if chunk.Done {
				resp.InputTokens = chunk.InputTokens
				resp.OutputTokens = chunk.OutputTokens
				resp.StopReason = chunk.StopReason
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				RecordError(span, ctx.Err())
				p.metrics.RecordLLMRequest(ctx, p.inner.Name(), resp.Model, time.Since(start), 0, 0, ctx.Err())
				return
			}
		}
		span.SetAttributes(attribute.Int("quill.stream.chunks", chunks))
		if failure != nil {
			p.metrics.RecordLLMRequest(ctx, p.inner.Name(), resp.Model, time.Since(start), 0, 0, failure)
			return
		}
		resp.Content = string(text)
		p.finish(ctx, span, &resp, time.Since(start))
	}()
	return out, nil
}

func (p *TracedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := p.tracer.Start(ctx, SpanLLMEmbed,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(GenAISystem, p.inner.Name()),
			attribute.Int("quill.embed.inputs", len(texts)),
		),
	)
	defer span.End()

	vecs, err := p.inner.Embed(ctx, texts)
	if err != nil {
		RecordError(span, err)
		return nil, err
	}
	return vecs, nil
}

func (p *TracedProvider) finish(ctx context.Context, span trace.Span, resp *llm.Response, d time.Duration) {
	p.metrics.RecordLLMRequest(ctx, p.inner.Name(), resp.Model, d, resp.InputTokens, resp.OutputTokens, nil)
	span.SetAttributes(ResponseAttributes(resp)...)
	span.SetAttributes(attribute.Int64("quill.llm.duration_ms", d.Milliseconds()))
	if p.capturePrompts {
		span.SetAttributes(attribute.String(GenAICompletion, resp.Content))
	}
	span.SetStatus(codes.Ok, "")

	p.logger.Debug().
		Str("provider", p.inner.Name()).
		Str("model", resp.Model).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Dur("duration", d).
		Msg("llm call completed")
}

var _ llm.Provider = (*TracedProvider)(nil)

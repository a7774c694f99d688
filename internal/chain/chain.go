// Package chain runs a template through a model provider and an output
// parser.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/quill/internal/fewshot"
	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/observability"
	"github.com/efebarandurmaz/quill/internal/output"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

// ErrNoProvider is returned when a chain that needs a model has none.
var ErrNoProvider = errors.New("chain: no model provider configured")

// Result is the outcome of one Invoke.
type Result struct {
	Messages []llm.Message `json:"messages"`
	Response *llm.Response `json:"response"`
	Output   any           `json:"output"`
}

// Chain renders Template, sends it to Provider and parses the reply.
type Chain struct {
	name     string
	tmpl     *prompt.Template
	provider llm.Provider
	parser   output.Parser
	reqOpts  *llm.RequestOptions
	logger   zerolog.Logger

	examples      fewshot.Selector
	examplesSlot  string
	examplesInput string
}

// Option configures a Chain.
type Option func(*Chain)

// WithName labels spans and logs; usually the catalog name.
func WithName(name string) Option { return func(c *Chain) { c.name = name } }

// WithParser replaces the default StringParser.
func WithParser(p output.Parser) Option { return func(c *Chain) { c.parser = p } }

// WithRequestOptions sets sampling options for every call.
func WithRequestOptions(o *llm.RequestOptions) Option { return func(c *Chain) { c.reqOpts = o } }

// WithLogger sets the chain logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Chain) { c.logger = l } }

// WithFewShot fills the placeholder slot with examples chosen for the value
// of the inputVar binding.
func WithFewShot(slot, inputVar string, sel fewshot.Selector) Option {
	return func(c *Chain) {
		c.examples = sel
		c.examplesSlot = slot
		c.examplesInput = inputVar
	}
}

// New builds a chain. provider may be nil for render-only use.
func New(tmpl *prompt.Template, provider llm.Provider, opts ...Option) *Chain {
	c := &Chain{
		name:     "inline",
		tmpl:     tmpl,
		provider: provider,
		parser:   output.StringParser{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the chain label.
func (c *Chain) Name() string { return c.name }

// Template returns the chain's template.
func (c *Chain) Template() *prompt.Template { return c.tmpl }

// Render produces the messages that Invoke would send.
func (c *Chain) Render(ctx context.Context, b prompt.Bindings, opts ...prompt.RenderOption) (*prompt.Value, error) {
	ctx, span := observability.StartRenderSpan(ctx, c.name, len(c.tmpl.Messages()))
	defer span.End()

	if c.examples != nil {
		examples, err := c.examples.Select(ctx, b[c.examplesInput])
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		span.SetAttributes(attribute.Int("quill.fewshot.examples", len(examples)))
		opts = append([]prompt.RenderOption{prompt.WithMessages(c.examplesSlot, fewshot.Messages(examples))}, opts...)
	}

	v, err := c.tmpl.Render(b, opts...)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("quill.prompt.messages", v.Len()))
	return v, nil
}

// Invoke renders, completes and parses.
func (c *Chain) Invoke(ctx context.Context, b prompt.Bindings, opts ...prompt.RenderOption) (*Result, error) {
	ctx, span := observability.StartChainSpan(ctx, observability.SpanChainInvoke, c.name)
	defer span.End()

	res, err := c.invoke(ctx, b, opts...)
	if err != nil {
		observability.RecordError(span, err)
		c.logger.Warn().Err(err).Str("template", c.name).Msg("chain invoke failed")
		return nil, err
	}
	return res, nil
}

func (c *Chain) invoke(ctx context.Context, b prompt.Bindings, opts ...prompt.RenderOption) (*Result, error) {
	if c.provider == nil {
		return nil, ErrNoProvider
	}
	v, err := c.Render(ctx, b, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := c.provider.Complete(ctx, v.Prompt(), c.reqOpts)
	if err != nil {
		return nil, fmt.Errorf("chain %s: complete: %w", c.name, err)
	}

	out, err := c.parser.Parse(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("chain %s: parse: %w", c.name, err)
	}

	c.logger.Debug().
		Str("template", c.name).
		Str("model", resp.Model).
		Int("messages", v.Len()).
		Msg("chain invoked")
	return &Result{Messages: v.ToMessages(), Response: resp, Output: out}, nil
}

// Stream renders and streams the raw completion. The parser is not applied.
// The chain.stream span stays open until the stream is drained or fails.
func (c *Chain) Stream(ctx context.Context, b prompt.Bindings, opts ...prompt.RenderOption) (<-chan llm.StreamChunk, error) {
	ctx, span := observability.StartChainSpan(ctx, observability.SpanChainStream, c.name)

	if c.provider == nil {
		span.End()
		return nil, ErrNoProvider
	}
	v, err := c.Render(ctx, b, opts...)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		return nil, err
	}
	in, err := c.provider.Stream(ctx, v.Prompt(), c.reqOpts)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		return nil, fmt.Errorf("chain %s: stream: %w", c.name, err)
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer span.End()

		chunks := 0
		for chunk := range in {
			if chunk.Err != nil {
				observability.RecordError(span, chunk.Err)
			}
			chunks++
			select {
			case out <- chunk:
			case <-ctx.Done():
				observability.RecordError(span, ctx.Err())
				return
			}
		}
		span.SetAttributes(attribute.Int("quill.stream.chunks", chunks))
	}()
	return out, nil
}

// Batch invokes the chain once per binding set with at most concurrency
// calls in flight. Results keep the order of inputs. The first failure
// cancels the remaining calls.
func (c *Chain) Batch(ctx context.Context, inputs []prompt.Bindings, concurrency int) ([]*Result, error) {
	ctx, span := observability.StartChainSpan(ctx, observability.SpanChainBatch, c.name)
	defer span.End()
	span.SetAttributes(
		attribute.Int("quill.batch.size", len(inputs)),
		attribute.Int("quill.batch.concurrency", concurrency),
	)

	results := make([]*Result, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, b := range inputs {
		i, b := i, b
		g.Go(func() error {
			res, err := c.Invoke(gctx, b)
			if err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return results, nil
}

package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metric names. The Prometheus exporter rewrites dots to underscores and adds
// _total or unit suffixes, so quill.llm.requests is scraped as
// quill_llm_requests_total.
const (
	MetricRequests     = "quill.server.requests"
	MetricLLMRequests  = "quill.llm.requests"
	MetricLLMErrors    = "quill.llm.errors"
	MetricLLMDuration  = "quill.llm.duration"
	MetricLLMTokens    = "quill.llm.tokens"
	MetricStreamChunks = "quill.stream.chunks"
)

// DefaultBuckets returns histogram buckets for model latency, in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
}

// Metrics records request and model counters and serves them in the
// Prometheus text format. A nil *Metrics is valid and records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	requests     metric.Int64Counter
	llmRequests  metric.Int64Counter
	llmErrors    metric.Int64Counter
	llmDuration  metric.Float64Histogram
	llmTokens    metric.Int64Counter
	streamChunks metric.Int64Counter
}

// NewMetrics creates a meter provider backed by its own Prometheus registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(TracerName)

	m := &Metrics{provider: provider, registry: registry}
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	m.requests = counter(MetricRequests, "Template API requests by template, operation and outcome")
	m.llmRequests = counter(MetricLLMRequests, "Model calls by provider and model")
	m.llmErrors = counter(MetricLLMErrors, "Failed model calls")
	m.llmTokens = counter(MetricLLMTokens, "Tokens used by model calls")
	m.streamChunks = counter(MetricStreamChunks, "Content fragments streamed to clients")
	m.llmDuration, err = meter.Float64Histogram(MetricLLMDuration,
		metric.WithDescription("Model call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DefaultBuckets()...),
	)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return m, nil
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one template API request.
func (m *Metrics) RecordRequest(ctx context.Context, template, operation, outcome string) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordLLMRequest records one model call. Tokens are only counted for
// successful calls.
func (m *Metrics) RecordLLMRequest(ctx context.Context, provider, model string, d time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
	m.llmRequests.Add(ctx, 1, attrs)
	m.llmDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
		return
	}
	m.llmTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("direction", "input"),
	))
	m.llmTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("direction", "output"),
	))
}

// RecordStreamChunks counts fragments sent for template.
func (m *Metrics) RecordStreamChunks(ctx context.Context, template string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.streamChunks.Add(ctx, int64(n), metric.WithAttributes(attribute.String("template", template)))
}

// Shutdown stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

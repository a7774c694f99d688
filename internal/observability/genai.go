package observability

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// GenAI attribute keys from the OpenTelemetry GenAI semantic conventions.
const (
	GenAISystem               = "gen_ai.system"
	GenAIRequestModel         = "gen_ai.request.model"
	GenAIRequestTemperature   = "gen_ai.request.temperature"
	GenAIRequestMaxTokens     = "gen_ai.request.max_tokens"
	GenAIRequestTopP          = "gen_ai.request.top_p"
	GenAIResponseModel        = "gen_ai.response.model"
	GenAIResponseFinishReason = "gen_ai.response.finish_reason"
	GenAIUsageInputTokens     = "gen_ai.usage.input_tokens"
	GenAIUsageOutputTokens    = "gen_ai.usage.output_tokens"

	// Prompt and completion text may contain sensitive data and are only
	// recorded when capture is enabled.
	GenAIPrompt     = "gen_ai.prompt"
	GenAICompletion = "gen_ai.completion"
)

// RequestAttributes describes a request to provider.
func RequestAttributes(provider string, opts *llm.RequestOptions) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(GenAISystem, provider)}
	if opts == nil {
		return attrs
	}
	if opts.Temperature != nil {
		attrs = append(attrs, attribute.Float64(GenAIRequestTemperature, *opts.Temperature))
	}
	if opts.MaxTokens != nil {
		attrs = append(attrs, attribute.Int(GenAIRequestMaxTokens, *opts.MaxTokens))
	}
	if opts.TopP != nil {
		attrs = append(attrs, attribute.Float64(GenAIRequestTopP, *opts.TopP))
	}
	return attrs
}

// ResponseAttributes describes a completed response.
func ResponseAttributes(resp *llm.Response) []attribute.KeyValue {
	if resp == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.Int(GenAIUsageInputTokens, resp.InputTokens),
		attribute.Int(GenAIUsageOutputTokens, resp.OutputTokens),
	}
	if resp.Model != "" {
		attrs = append(attrs, attribute.String(GenAIResponseModel, resp.Model))
	}
	if resp.StopReason != "" {
		attrs = append(attrs, attribute.String(GenAIResponseFinishReason, resp.StopReason))
	}
	return attrs
}

// formatPrompt renders a prompt as "role: content" lines.
func formatPrompt(p *llm.Prompt) string {
	var b strings.Builder
	if p.SystemPrompt != "" {
		b.WriteString("system: ")
		b.WriteString(p.SystemPrompt)
		b.WriteByte('\n')
	}
	for _, m := range p.Messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

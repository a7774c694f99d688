// Package metrics summarizes batch runs: item counts, token usage and
// per-model totals.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/efebarandurmaz/quill/internal/chain"
	"github.com/efebarandurmaz/quill/internal/temporal"
)

// BatchMetrics collects statistics for one batch run.
type BatchMetrics struct {
	Template     string                  `json:"template"`
	Mode         string                  `json:"mode"` // "local" or "workflow"
	Concurrency  int                     `json:"concurrency"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   time.Time               `json:"finished_at,omitempty"`
	Duration     time.Duration           `json:"duration_ms,omitempty"`
	Items        int                     `json:"items"`
	Succeeded    int                     `json:"succeeded"`
	Failed       int                     `json:"failed"`
	InputTokens  int                     `json:"input_tokens"`
	OutputTokens int                     `json:"output_tokens"`
	Models       map[string]ModelMetrics `json:"models,omitempty"`
	Errors       []string                `json:"errors,omitempty"`
}

// ModelMetrics aggregates the items answered by one model.
type ModelMetrics struct {
	Calls        int `json:"calls"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// New starts tracking a batch run.
func New(template, mode string, concurrency int) *BatchMetrics {
	return &BatchMetrics{
		Template:    template,
		Mode:        mode,
		Concurrency: concurrency,
		StartedAt:   time.Now(),
		Models:      make(map[string]ModelMetrics),
	}
}

func (m *BatchMetrics) add(model string, in, out int) {
	m.Items++
	m.Succeeded++
	m.InputTokens += in
	m.OutputTokens += out
	if model == "" {
		model = "unknown"
	}
	mm := m.Models[model]
	mm.Calls++
	mm.InputTokens += in
	mm.OutputTokens += out
	m.Models[model] = mm
}

// CollectResults records the results of an in-process batch.
func (m *BatchMetrics) CollectResults(results []*chain.Result) {
	for _, r := range results {
		if r == nil || r.Response == nil {
			continue
		}
		m.add(r.Response.Model, r.Response.InputTokens, r.Response.OutputTokens)
	}
}

// CollectWorkflow records the items of a finished batch workflow.
func (m *BatchMetrics) CollectWorkflow(out temporal.BatchOutput) {
	for _, item := range out.Items {
		if item.Error != "" {
			m.Items++
			m.Failed++
			m.Errors = append(m.Errors, fmt.Sprintf("item %d: %s", item.Index, item.Error))
			continue
		}
		m.add(item.Model, item.InputTokens, item.OutputTokens)
	}
}

// Fail records a run-level failure.
func (m *BatchMetrics) Fail(err error) {
	m.Errors = append(m.Errors, err.Error())
}

// Finish marks the run as complete.
func (m *BatchMetrics) Finish() {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
}

// PrintSummary writes a human-readable summary.
func (m *BatchMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\nbatch %s (%s, concurrency %d)\n", m.Template, m.Mode, m.Concurrency)
	fmt.Fprintf(w, "  duration:  %s\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  items:     %d ok, %d failed\n", m.Succeeded, m.Failed)
	fmt.Fprintf(w, "  tokens:    %d in, %d out\n", m.InputTokens, m.OutputTokens)

	models := make([]string, 0, len(m.Models))
	for name := range m.Models {
		models = append(models, name)
	}
	sort.Strings(models)
	for _, name := range models {
		mm := m.Models[name]
		fmt.Fprintf(w, "  %-24s %4d calls %8d in %8d out\n", name, mm.Calls, mm.InputTokens, mm.OutputTokens)
	}
	for _, e := range m.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}

// JSON returns the metrics as formatted JSON.
func (m *BatchMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

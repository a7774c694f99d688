package temporal

import (
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

const defaultConcurrency = 4

// BatchInput holds the workflow parameters.
type BatchInput struct {
	Template    string            // catalog template name
	BindingSets []prompt.Bindings // one render per entry
	Concurrency int               // items in flight (default 4)
}

// BatchItem is the outcome for one binding set. Error is set instead of the
// other fields when the item failed.
type BatchItem struct {
	Index        int
	Messages     []llm.Message
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Error        string
}

// BatchOutput holds the workflow result, in input order.
type BatchOutput struct {
	Items  []BatchItem
	Failed int
}

// Error types that activities mark non-retryable.
const (
	ErrTypeMissingVariable  = "MissingVariableError"
	ErrTypeTemplateNotFound = "TemplateNotFound"
	ErrTypeNoProvider       = "NoProvider"
)

// BatchWorkflow renders and completes every binding set of a catalog
// template. A failing item is reported in its BatchItem and does not stop
// the others.
func BatchWorkflow(ctx workflow.Context, input BatchInput) (*BatchOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeMissingVariable, ErrTypeTemplateNotFound, ErrTypeNoProvider},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	concurrency := input.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var a *Activities
	out := &BatchOutput{Items: make([]BatchItem, len(input.BindingSets))}

	for start := 0; start < len(input.BindingSets); start += concurrency {
		end := min(start+concurrency, len(input.BindingSets))

		renders := make([]workflow.Future, end-start)
		for i := start; i < end; i++ {
			renders[i-start] = workflow.ExecuteActivity(ctx, a.RenderActivity, RenderRequest{
				Template: input.Template,
				Bindings: input.BindingSets[i],
			})
		}

		completions := make([]workflow.Future, end-start)
		for i := start; i < end; i++ {
			item := &out.Items[i]
			item.Index = i
			if err := renders[i-start].Get(ctx, &item.Messages); err != nil {
				item.Error = fmt.Sprintf("render: %v", err)
				continue
			}
			completions[i-start] = workflow.ExecuteActivity(ctx, a.CompleteActivity, item.Messages)
		}

		for i := start; i < end; i++ {
			f := completions[i-start]
			if f == nil {
				continue
			}
			var resp llm.Response
			item := &out.Items[i]
			if err := f.Get(ctx, &resp); err != nil {
				item.Error = fmt.Sprintf("complete: %v", err)
				continue
			}
			item.Content = resp.Content
			item.Model = resp.Model
			item.InputTokens = resp.InputTokens
			item.OutputTokens = resp.OutputTokens
		}
	}

	for _, it := range out.Items {
		if it.Error != "" {
			out.Failed++
		}
	}
	workflow.GetLogger(ctx).Info("batch finished", "template", input.Template, "items", len(out.Items), "failed", out.Failed)
	return out, nil
}

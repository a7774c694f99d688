package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker serving the batch
// workflow and its activities.
func StartWorker(c client.Client, taskQueue string, acts *Activities) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(BatchWorkflow)
	w.RegisterActivity(acts)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// SubmitBatch starts a BatchWorkflow run and returns without waiting.
func SubmitBatch(ctx context.Context, c client.Client, taskQueue, workflowID string, input BatchInput) (client.WorkflowRun, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: taskQueue,
	}, BatchWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("starting batch workflow: %w", err)
	}
	return run, nil
}

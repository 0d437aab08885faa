package temporal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// NewWorker creates a worker with the answer workflow and acts registered.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(AnswerWorkflow)
	w.RegisterActivity(acts)
	return w
}

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string, acts *Activities) (worker.Worker, error) {
	w := NewWorker(c, taskQueue, acts)
	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// Submit starts AnswerWorkflow and waits for its result.
func Submit(ctx context.Context, c client.Client, taskQueue string, in AnswerInput) (string, *AnswerOutput, error) {
	opts := client.StartWorkflowOptions{
		ID:        "sift-answer-" + uuid.NewString(),
		TaskQueue: taskQueue,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, AnswerWorkflow, in)
	if err != nil {
		return "", nil, fmt.Errorf("starting workflow: %w", err)
	}
	var out AnswerOutput
	if err := run.Get(ctx, &out); err != nil {
		return run.GetID(), nil, fmt.Errorf("workflow %s: %w", run.GetID(), err)
	}
	return run.GetID(), &out, nil
}

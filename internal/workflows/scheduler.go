package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
)

// Scheduler starts prewarm workflows on a Temporal task queue.
type Scheduler struct {
	client    client.Client
	taskQueue string
}

var _ ports.PrewarmScheduler = (*Scheduler)(nil)

func NewScheduler(c client.Client, taskQueue string) *Scheduler {
	return &Scheduler{client: c, taskQueue: taskQueue}
}

// StartPrewarm starts a run and returns its run ID. Runs for the same grid
// and view share a workflow ID, so a duplicate request joins the running one.
func (s *Scheduler) StartPrewarm(ctx context.Context, req domain.PrewarmRequest) (string, error) {
	id := fmt.Sprintf("prewarm-%s-%d-%.5f-%.5f", req.GridID, req.View.Zoom, req.View.Center.Lat, req.View.Center.Lng)
	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                s.taskQueue,
		WorkflowExecutionTimeout: 30 * time.Minute,
	}, PrewarmWorkflow, req)
	if err != nil {
		return "", fmt.Errorf("start prewarm workflow: %w", err)
	}
	return run.GetRunID(), nil
}

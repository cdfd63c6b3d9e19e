package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
)

// MaxPrewarmDepth bounds how many zoom levels below the view are warmed.
const MaxPrewarmDepth = 3

// PrewarmWorkflow plans the tiles around a view and loads them for every
// source in parallel. A failing source does not stop the others.
func PrewarmWorkflow(ctx workflow.Context, req domain.PrewarmRequest) (domain.PrewarmResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting prewarm workflow", "grid", req.GridID, "zoom", req.View.Zoom, "sources", len(req.Sources))

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	// Step 1: Plan the tile set
	var tiles []domain.TileRef
	if err := workflow.ExecuteActivity(ctx, "PlanTiles", req).Get(ctx, &tiles); err != nil {
		return domain.PrewarmResult{}, err
	}

	// Step 2: Warm each source
	futures := make([]workflow.Future, 0, len(req.Sources))
	for _, src := range req.Sources {
		futures = append(futures, workflow.ExecuteActivity(ctx, "WarmSource", src, tiles))
	}

	res := domain.PrewarmResult{Tiles: len(tiles) * len(req.Sources)}
	for i, f := range futures {
		var warmed domain.PrewarmResult
		if err := f.Get(ctx, &warmed); err != nil {
			logger.Warn("source prewarm failed", "source", req.Sources[i].ID, "error", err)
			res.Failed += len(tiles)
			continue
		}
		res.Warmed += warmed.Warmed
		res.Failed += warmed.Failed
	}

	logger.Info("Prewarm finished", "tiles", res.Tiles, "warmed", res.Warmed, "failed", res.Failed)
	return res, nil
}

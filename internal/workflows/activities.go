package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/activity"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/pkg/geospatial"
)

// maxTilesPerZoom keeps a wide radius at deep zoom from exploding the plan.
const maxTilesPerZoom = 256

// PrewarmActivities holds the activity implementations for the prewarm workflow.
type PrewarmActivities struct {
	// Fetcher should be the cached fetcher so fetched tiles land in the cache.
	Fetcher ports.TileFetcher
	Log     *slog.Logger
}

// PlanTiles lists the tiles covering the request radius at every zoom from
// the view zoom to view zoom plus depth.
func (a *PrewarmActivities) PlanTiles(ctx context.Context, req domain.PrewarmRequest) ([]domain.TileRef, error) {
	depth := req.Depth
	if depth < 0 {
		depth = 0
	}
	if depth > MaxPrewarmDepth {
		depth = MaxPrewarmDepth
	}
	if req.RadiusMeters <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %v", req.RadiusMeters)
	}

	bounds := geospatial.BoundingBox(req.View.Center, req.RadiusMeters)
	var refs []domain.TileRef
	for z := req.View.Zoom; z <= req.View.Zoom+depth; z++ {
		tiles := geospatial.CoveringTiles(bounds, z, maxTilesPerZoom)
		if tiles == nil {
			a.logger().Warn("prewarm cover too large, stopping", "zoom", z)
			break
		}
		for _, t := range tiles {
			refs = append(refs, domain.TileRef{Z: int(t.Z), X: int(t.X), Y: int(t.Y)})
		}
	}
	return refs, nil
}

// WarmSource fetches every planned tile of one source. Individual tile
// failures are counted, not returned.
func (a *PrewarmActivities) WarmSource(ctx context.Context, src domain.TileSource, tiles []domain.TileRef) (domain.PrewarmResult, error) {
	res := domain.PrewarmResult{Tiles: len(tiles)}
	for i, t := range tiles {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := a.Fetcher.Fetch(ctx, src.URLTemplate, t.Z, t.X, t.Y); err != nil {
			res.Failed++
			a.logger().Debug("prewarm fetch failed", "source", src.ID, "z", t.Z, "x", t.X, "y", t.Y, "error", err)
		} else {
			res.Warmed++
		}
		if activity.IsActivity(ctx) {
			activity.RecordHeartbeat(ctx, i)
		}
	}
	a.logger().Info("source prewarmed", "source", src.ID, "warmed", res.Warmed, "failed", res.Failed)
	return res, nil
}

func (a *PrewarmActivities) logger() *slog.Logger {
	if a.Log == nil {
		return slog.Default()
	}
	return a.Log
}

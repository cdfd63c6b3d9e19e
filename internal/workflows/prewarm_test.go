package workflows_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/workflows"
)

type fakeFetcher struct {
	mu      sync.Mutex
	fetchFn func(ctx context.Context, url string, z, x, y int) ([]byte, error)
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, z, x, y int) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fetchFn(ctx, url, z, x, y)
}

var prewarmReq = domain.PrewarmRequest{
	GridID:       "ndvi",
	View:         domain.ViewState{Center: domain.GeoPoint{Lat: 9.145, Lng: 40.489673}, Zoom: 5},
	Depth:        1,
	RadiusMeters: 1000,
	Sources: []domain.TileSource{
		{ID: "2017", URLTemplate: "https://h/2017/{z}/{x}/{y}.pbf"},
		{ID: "2018", URLTemplate: "https://h/2018/{z}/{x}/{y}.pbf"},
	},
}

func TestPlanTiles(t *testing.T) {
	acts := &workflows.PrewarmActivities{}
	tiles, err := acts.PlanTiles(context.Background(), prewarmReq)
	if err != nil {
		t.Fatal(err)
	}
	// A 1 km radius fits in one tile at zooms 5 and 6.
	if len(tiles) != 2 || tiles[0].Z != 5 || tiles[1].Z != 6 {
		t.Errorf("tiles = %+v", tiles)
	}

	deep := prewarmReq
	deep.Depth = 10
	tiles, _ = acts.PlanTiles(context.Background(), deep)
	for _, tl := range tiles {
		if tl.Z > 5+workflows.MaxPrewarmDepth {
			t.Fatalf("planned zoom %d beyond max depth", tl.Z)
		}
	}

	bad := prewarmReq
	bad.RadiusMeters = 0
	if _, err := acts.PlanTiles(context.Background(), bad); err == nil {
		t.Error("expected error for zero radius")
	}
}

func TestPrewarmWorkflow(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	fetcher := &fakeFetcher{fetchFn: func(ctx context.Context, url string, z, x, y int) ([]byte, error) {
		if strings.Contains(url, "/2018/") && z == 6 {
			return nil, errors.New("503")
		}
		return []byte("pbf"), nil
	}}
	env.RegisterActivity(&workflows.PrewarmActivities{Fetcher: fetcher})

	env.ExecuteWorkflow(workflows.PrewarmWorkflow, prewarmReq)
	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var res domain.PrewarmResult
	if err := env.GetWorkflowResult(&res); err != nil {
		t.Fatal(err)
	}
	if res.Tiles != 4 || res.Warmed != 3 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
}

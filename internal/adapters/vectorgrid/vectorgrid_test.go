package vectorgrid_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/ndvigrid/internal/adapters/vectorgrid"
	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/usecases"
)

const template = "https://tiles.example/data/2019/{z}/{x}/{y}.pbf"

var testTile = maptile.At(orb.Point{40.5, 9.1}, 5)

// --- Fake fetcher ---

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

func ndviTile(t *testing.T, gzipped bool) []byte {
	t.Helper()

	ndvi := geojson.NewFeatureCollection()
	scored := geojson.NewFeature(orb.Point{40.5, 9.1})
	scored.Properties["score"] = 0.5
	ndvi.Append(scored)
	colored := geojson.NewFeature(orb.Point{40.6, 9.2})
	colored.Properties["color"] = "#abcdef"
	ndvi.Append(colored)

	water := geojson.NewFeatureCollection()
	water.Append(geojson.NewFeature(orb.Point{40.55, 9.15}))

	layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{"ndvi": ndvi, "water": water})
	layers.ProjectToTile(testTile)

	var data []byte
	var err error
	if gzipped {
		data, err = mvt.MarshalGzipped(layers)
	} else {
		data, err = mvt.Marshal(layers)
	}
	if err != nil {
		t.Fatalf("marshal tile: %v", err)
	}
	return data
}

func TestLayerNames(t *testing.T) {
	names, err := vectorgrid.LayerNames(ndviTile(t, false))
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "ndvi" || names[1] != "water" {
		t.Errorf("names = %v", names)
	}

	if names, err := vectorgrid.LayerNames(nil); err != nil || len(names) != 0 {
		t.Errorf("empty tile: names=%v err=%v", names, err)
	}
	if _, err := vectorgrid.LayerNames([]byte{0x1a, 0x05, 0x0a}); err == nil {
		t.Error("expected error for truncated tile")
	}
}

func TestNewLayer_RejectsTemplateWithoutPlaceholders(t *testing.T) {
	_, err := vectorgrid.NewLayer("https://tiles.example/static.pbf", &fakeFetcher{}, nil)
	if !errors.Is(err, vectorgrid.ErrInvalidTemplate) {
		t.Errorf("err = %v", err)
	}
}

func TestLayer_LoadFiresOnce(t *testing.T) {
	for _, gz := range []bool{false, true} {
		data := ndviTile(t, gz)
		fetcher := &fakeFetcher{fetchFn: func(ctx context.Context, url string, z, x, y int) ([]byte, error) {
			return data, nil
		}}
		layer, err := vectorgrid.NewLayer(template, fetcher, nil)
		if err != nil {
			t.Fatal(err)
		}

		fired := 0
		var got []string
		layer.OnceLoad(func(names []string) { fired++; got = names })

		if _, err := layer.Load(context.Background(), testTile); err != nil {
			t.Fatalf("gzip=%v: %v", gz, err)
		}
		if _, err := layer.Load(context.Background(), testTile.Parent()); err != nil {
			t.Fatal(err)
		}
		if _, err := layer.Load(context.Background(), testTile); err != nil {
			t.Fatal(err)
		}

		if fired != 1 || len(got) != 2 {
			t.Errorf("gzip=%v: load fired %d times with %v", gz, fired, got)
		}
		if fetcher.calls != 2 {
			t.Errorf("gzip=%v: fetches = %d, want 2 (tiles are kept)", gz, fetcher.calls)
		}

		late := 0
		layer.OnceLoad(func([]string) { late++ })
		if late != 1 {
			t.Error("a listener registered after discovery should run immediately")
		}
	}
}

func TestLayer_FetchErrorDoesNotFireLoad(t *testing.T) {
	boom := errors.New("503")
	fetcher := &fakeFetcher{fetchFn: func(ctx context.Context, url string, z, x, y int) ([]byte, error) {
		return nil, boom
	}}
	layer, _ := vectorgrid.NewLayer(template, fetcher, nil)
	fired := false
	layer.OnceLoad(func([]string) { fired = true })

	if _, err := layer.Render(context.Background(), testTile); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if fired {
		t.Error("load must not fire on a failed fetch")
	}
}

func TestLayer_ClosedRejectsLoads(t *testing.T) {
	fetcher := &fakeFetcher{fetchFn: func(ctx context.Context, url string, z, x, y int) ([]byte, error) {
		return nil, nil
	}}
	layer, _ := vectorgrid.NewLayer(template, fetcher, nil)
	layer.Close()
	if _, err := layer.Load(context.Background(), testTile); !errors.Is(err, vectorgrid.ErrLayerClosed) {
		t.Errorf("err = %v", err)
	}
}

// The controller styles the engine layer on discovery, so the very first
// render already carries resolved styles.
func TestLayer_StyledThroughController(t *testing.T) {
	data := ndviTile(t, false)
	fetcher := &fakeFetcher{fetchFn: func(ctx context.Context, url string, z, x, y int) ([]byte, error) {
		if z != int(testTile.Z) {
			t.Errorf("unexpected zoom %d", z)
		}
		return data, nil
	}}

	ctrl := usecases.NewVectorLayerController(vectorgrid.NewFactory(fetcher, nil), usecases.VectorLayerOptions{})
	surface := vectorgrid.NewSurface("2019", domain.ViewState{Center: domain.GeoPoint{Lat: 9.1, Lng: 40.5}, Zoom: 5})
	if err := ctrl.Create(context.Background(), template); err != nil {
		t.Fatal(err)
	}
	ctrl.Attach(surface)

	layer := ctrl.Layer().(*vectorgrid.Layer)
	fc, err := layer.Render(context.Background(), surface.VisibleTile())
	if err != nil {
		t.Fatal(err)
	}
	if ctrl.State() != domain.LayerAttached {
		t.Errorf("state = %s", ctrl.State())
	}
	if layer.Redraws() != 1 {
		t.Errorf("redraws = %d", layer.Redraws())
	}
	if len(fc.Features) != 3 {
		t.Fatalf("features = %d", len(fc.Features))
	}

	fills := map[string]int{}
	for _, f := range fc.Features {
		style, ok := f.Properties["style"].(domain.RenderStyle)
		if !ok {
			t.Fatalf("feature in layer %v has no style", f.Properties["layer"])
		}
		fills[style.FillColor]++
	}
	if fills["#40bf00"] != 1 || fills["#abcdef"] != 1 || fills[usecases.DefaultFillColor] != 1 {
		t.Errorf("fill colors = %v", fills)
	}
}

func TestLayer_UnstyledBeforeStyles(t *testing.T) {
	data := ndviTile(t, false)
	fetcher := &fakeFetcher{fetchFn: func(ctx context.Context, url string, z, x, y int) ([]byte, error) {
		return data, nil
	}}
	layer, _ := vectorgrid.NewLayer(template, fetcher, nil)

	fc, err := layer.Render(context.Background(), testTile)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fc.Features {
		if _, ok := f.Properties["style"]; ok {
			t.Fatal("features must stay unstyled with an empty style table")
		}
	}

	layer.SetStyles(usecases.ResolveStyles([]string{"ndvi"}))
	cached, _ := layer.Render(context.Background(), testTile)
	if cached != fc {
		t.Error("render output should be kept until Redraw")
	}

	layer.Redraw()
	fc, _ = layer.Render(context.Background(), testTile)
	styled := 0
	for _, f := range fc.Features {
		if _, ok := f.Properties["style"]; ok {
			styled++
		}
	}
	if styled != 2 {
		t.Errorf("styled features = %d, want the 2 ndvi features", styled)
	}
}

// A render racing with SetStyles and Redraw must not leave its unstyled
// output cached once the redraw is done.
func TestLayer_RenderDuringRestyleIsNotKept(t *testing.T) {
	data := ndviTile(t, false)
	fetcher := &fakeFetcher{fetchFn: func(ctx context.Context, url string, z, x, y int) ([]byte, error) {
		return data, nil
	}}

	for trial := 0; trial < 50; trial++ {
		layer, _ := vectorgrid.NewLayer(template, fetcher, nil)
		if _, err := layer.Load(context.Background(), testTile); err != nil {
			t.Fatal(err)
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, _ = layer.Render(context.Background(), testTile)
		}()
		go func() {
			defer wg.Done()
			<-start
			layer.SetStyles(usecases.ResolveStyles([]string{"ndvi", "water"}))
			layer.Redraw()
		}()
		close(start)
		wg.Wait()

		fc, err := layer.Render(context.Background(), testTile)
		if err != nil {
			t.Fatal(err)
		}
		for _, f := range fc.Features {
			if _, ok := f.Properties["style"]; !ok {
				t.Fatalf("trial %d: feature in layer %v left unstyled after redraw", trial, f.Properties["layer"])
			}
		}
	}
}

func TestSurface_ProgrammaticMovesAreSilent(t *testing.T) {
	s := vectorgrid.NewSurface("a", domain.ViewState{Zoom: 3})
	zooms, moves := 0, 0
	s.OnZoomEnd(func(int) { zooms++ })
	s.OnMoveEnd(func(domain.GeoPoint) { moves++ })

	s.SetZoom(4)
	s.SetView(domain.GeoPoint{Lat: 1, Lng: 2}, 5)
	if zooms != 0 || moves != 0 {
		t.Fatal("programmatic moves fired callbacks")
	}

	s.UserZoom(6)
	s.UserMove(domain.GeoPoint{Lat: 3, Lng: 4})
	if zooms != 1 || moves != 1 {
		t.Errorf("gesture callbacks zoom=%d move=%d", zooms, moves)
	}
	if s.Zoom() != 6 || !s.Center().Equal(domain.GeoPoint{Lat: 3, Lng: 4}) {
		t.Errorf("surface at %d %+v", s.Zoom(), s.Center())
	}
}

func TestSurface_Layers(t *testing.T) {
	s := vectorgrid.NewSurface("a", domain.ViewState{})
	l, _ := vectorgrid.NewLayer(template, &fakeFetcher{}, nil)
	s.AddLayer(l)
	s.AddLayer(l)
	if len(s.Layers()) != 1 || !s.HasLayer(l) {
		t.Fatalf("layers = %d", len(s.Layers()))
	}
	s.RemoveLayer(l)
	s.RemoveLayer(l)
	if s.HasLayer(l) {
		t.Error("layer still attached")
	}
}

// Gestures on one engine surface converge every surface of the grid.
func TestGrid_WithEngineSurfaces(t *testing.T) {
	fetcher := &fakeFetcher{fetchFn: func(ctx context.Context, url string, z, x, y int) ([]byte, error) {
		return nil, errors.New("offline")
	}}
	c := usecases.NewSyncController("test", domain.ViewState{Center: domain.GeoPoint{Lat: 9.145, Lng: 40.489673}, Zoom: 5}, nil)
	g := usecases.NewGrid(c, vectorgrid.SurfaceFactory{}, vectorgrid.NewFactory(fetcher, nil), usecases.VectorLayerOptions{})
	defer g.Close()

	for _, year := range []string{"2017", "2018", "2019"} {
		if _, err := g.Mount(context.Background(), domain.TileSource{ID: year, URLTemplate: template}); err != nil {
			t.Fatal(err)
		}
	}

	origin, _ := g.Viewport("2018")
	origin.Surface().(*vectorgrid.Surface).UserZoom(7)

	for _, vp := range g.Viewports() {
		if vp.Surface().Zoom() != 7 {
			t.Errorf("viewport %s zoom = %d", vp.ID(), vp.Surface().Zoom())
		}
	}
	if c.Broadcasts() != 1 {
		t.Errorf("broadcasts = %d", c.Broadcasts())
	}
}

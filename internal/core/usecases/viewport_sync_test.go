package usecases_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/usecases"
)

var initialView = domain.ViewState{Center: domain.GeoPoint{Lat: 9.145, Lng: 40.489673}, Zoom: 5}

func TestSyncController_SubscribeReturnsCurrentState(t *testing.T) {
	c := usecases.NewSyncController("test", initialView, nil)
	got, unsubscribe := c.Subscribe("a", func(domain.ViewState) {})
	defer unsubscribe()
	if !got.Equal(initialView) {
		t.Errorf("got %+v, want %+v", got, initialView)
	}
}

func TestSyncController_EqualityGuard(t *testing.T) {
	c := usecases.NewSyncController("test", initialView, nil)
	var received []domain.ViewState
	_, unsubscribe := c.Subscribe("a", func(vs domain.ViewState) { received = append(received, vs) })
	defer unsubscribe()

	changed, err := c.SetZoom(5)
	if err != nil || changed {
		t.Fatalf("SetZoom(same) = %v, %v; want no change", changed, err)
	}
	changed, _ = c.SetCenter(9.145, 40.489673)
	if changed {
		t.Fatal("SetCenter(same) should not broadcast")
	}
	if c.Broadcasts() != 0 || len(received) != 0 {
		t.Fatalf("expected no broadcasts, got %d", c.Broadcasts())
	}

	changed, _ = c.SetCenter(9.145, 41)
	if !changed || len(received) != 1 {
		t.Fatalf("a differing lng must broadcast once, got %d", len(received))
	}
	if received[0].Center.Lng != 41 || received[0].Zoom != 5 {
		t.Errorf("unexpected broadcast %+v", received[0])
	}
}

func TestSyncController_OrderedDeliveryAndUnsubscribe(t *testing.T) {
	c := usecases.NewSyncController("test", initialView, nil)
	var order []string
	_, unA := c.Subscribe("a", func(domain.ViewState) { order = append(order, "a") })
	_, unB := c.Subscribe("b", func(domain.ViewState) { order = append(order, "b") })
	_, unC := c.Subscribe("c", func(domain.ViewState) { order = append(order, "c") })
	defer unA()
	defer unC()

	_, _ = c.SetZoom(6)
	if got := len(order); got != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("delivery order = %v", order)
	}

	unB()
	unB() // second call is harmless
	order = nil
	_, _ = c.SetZoom(7)
	if len(order) != 2 || order[0] != "a" || order[1] != "c" {
		t.Fatalf("after unsubscribe delivery = %v", order)
	}
}

func TestSyncController_Validation(t *testing.T) {
	c := usecases.NewSyncController("test", initialView, nil)

	if _, err := c.SetZoom(-1); !errors.Is(err, usecases.ErrInvalidZoom) {
		t.Errorf("SetZoom(-1) err = %v", err)
	}
	if _, err := c.SetZoom(usecases.MaxZoom + 1); !errors.Is(err, usecases.ErrInvalidZoom) {
		t.Errorf("SetZoom(max+1) err = %v", err)
	}
	if _, err := c.SetCenter(91, 0); !errors.Is(err, usecases.ErrInvalidCenter) {
		t.Errorf("SetCenter(91, 0) err = %v", err)
	}
	if _, err := c.SetCenter(math.NaN(), 0); !errors.Is(err, usecases.ErrInvalidCenter) {
		t.Errorf("SetCenter(NaN, 0) err = %v", err)
	}
	if !c.State().Equal(initialView) {
		t.Error("rejected writes must not touch the state")
	}
}

func TestSyncController_ZoomButtons(t *testing.T) {
	c := usecases.NewSyncController("test", domain.ViewState{Zoom: 1}, nil)

	if z, _ := c.ZoomOut(); z != 0 {
		t.Fatalf("ZoomOut = %d", z)
	}
	if z, _ := c.ZoomOut(); z != 0 {
		t.Fatalf("zoom must not go below 0, got %d", z)
	}
	if c.Broadcasts() != 1 {
		t.Errorf("clamped ZoomOut should not broadcast again, broadcasts = %d", c.Broadcasts())
	}
	if z, _ := c.ZoomIn(); z != 1 {
		t.Fatalf("ZoomIn = %d", z)
	}
}

func TestSyncController_OutwardHooks(t *testing.T) {
	c := usecases.NewSyncController("grid-1", initialView, nil)
	var zooms, moves []domain.ViewChange
	c.OnZoomEnd(func(ch domain.ViewChange) { zooms = append(zooms, ch) })
	c.OnMoveEnd(func(ch domain.ViewChange) { moves = append(moves, ch) })

	_, _ = c.ReportUserZoomEnd("2019", 8)
	_, _ = c.ReportUserZoomEnd("2019", 8)
	_, _ = c.SetCenter(1, 2)

	if len(zooms) != 1 || len(moves) != 1 {
		t.Fatalf("hooks fired zoom=%d move=%d, want 1 each", len(zooms), len(moves))
	}
	if zooms[0].Origin != "2019" || zooms[0].Kind != domain.ChangeZoom || zooms[0].State.Zoom != 8 || zooms[0].GridID != "grid-1" {
		t.Errorf("unexpected zoom change %+v", zooms[0])
	}
	if moves[0].Origin != "" || moves[0].State.Center != (domain.GeoPoint{Lat: 1, Lng: 2}) {
		t.Errorf("unexpected move change %+v", moves[0])
	}
}

func TestSyncController_PanickingSubscriberIsIsolated(t *testing.T) {
	c := usecases.NewSyncController("test", initialView, nil)
	var got int
	_, un1 := c.Subscribe("bad", func(domain.ViewState) { panic("boom") })
	_, un2 := c.Subscribe("good", func(vs domain.ViewState) { got = vs.Zoom })
	defer un1()
	defer un2()

	_, _ = c.SetZoom(9)
	if got != 9 {
		t.Errorf("sibling viewport did not converge, zoom = %d", got)
	}
	if c.State().Zoom != 9 {
		t.Errorf("state zoom = %d", c.State().Zoom)
	}
}

func TestSyncController_Restore(t *testing.T) {
	c := usecases.NewSyncController("test", initialView, nil)
	calls := 0
	_, un := c.Subscribe("a", func(domain.ViewState) { calls++ })
	defer un()

	restored := domain.ViewState{Center: domain.GeoPoint{Lat: 1, Lng: 1}, Zoom: 3}
	c.Restore(restored)
	if calls != 0 || c.Broadcasts() != 0 {
		t.Error("Restore must not broadcast")
	}
	if !c.State().Equal(restored) {
		t.Errorf("state = %+v", c.State())
	}
}

// A gesture on any one viewport converges every viewport in one round, and
// the origin is not moved again.
func TestGrid_EchoSuppression(t *testing.T) {
	for _, n := range []int{1, 2, 8} {
		c := usecases.NewSyncController("test", initialView, nil)
		surfaces := &fakeSurfaceFactory{}
		g := usecases.NewGrid(c, surfaces, &fakeLayerFactory{}, usecases.VectorLayerOptions{})

		ids := make([]string, n)
		for i := 0; i < n; i++ {
			ids[i] = string(rune('a' + i))
			if _, err := g.Mount(context.Background(), domain.TileSource{ID: ids[i], URLTemplate: "http://tiles/" + ids[i] + "/{z}/{x}/{y}.pbf"}); err != nil {
				t.Fatalf("mount: %v", err)
			}
		}

		origin := surfaces.surfaces[ids[n-1]]
		origin.userZoom(11)

		if c.Broadcasts() != 1 {
			t.Fatalf("n=%d: broadcasts = %d, want 1", n, c.Broadcasts())
		}
		for _, id := range ids {
			vp, _ := g.Viewport(id)
			if vp.Mirror().Zoom != 11 {
				t.Errorf("n=%d: viewport %s mirror zoom = %d", n, id, vp.Mirror().Zoom)
			}
			if s := surfaces.surfaces[id]; s.Zoom() != 11 {
				t.Errorf("n=%d: viewport %s rendered zoom = %d", n, id, s.Zoom())
			}
		}
		if origin.zoomCalls != 0 {
			t.Errorf("n=%d: origin was moved programmatically %d times", n, origin.zoomCalls)
		}
		for _, id := range ids[:n-1] {
			if calls := surfaces.surfaces[id].zoomCalls; calls != 1 {
				t.Errorf("n=%d: viewport %s SetZoom calls = %d, want 1", n, id, calls)
			}
		}

		// An identical report is dropped by the equality guard.
		if changed, _ := c.ReportUserZoomEnd(ids[0], 11); changed {
			t.Errorf("n=%d: second identical report broadcast", n)
		}
		if c.Broadcasts() != 1 {
			t.Errorf("n=%d: broadcasts = %d after identical report", n, c.Broadcasts())
		}
		g.Close()
	}
}

func TestGrid_MoveGestureSyncsCenters(t *testing.T) {
	c := usecases.NewSyncController("test", initialView, nil)
	surfaces := &fakeSurfaceFactory{}
	g := usecases.NewGrid(c, surfaces, &fakeLayerFactory{}, usecases.VectorLayerOptions{})
	defer g.Close()

	for _, id := range []string{"2017", "2018", "2019"} {
		if _, err := g.Mount(context.Background(), domain.TileSource{ID: id, URLTemplate: "u/" + id}); err != nil {
			t.Fatal(err)
		}
	}

	target := domain.GeoPoint{Lat: 10.5, Lng: 38.75}
	surfaces.surfaces["2018"].userMove(target)

	for id, s := range surfaces.surfaces {
		if !s.Center().Equal(target) {
			t.Errorf("viewport %s center = %+v", id, s.Center())
		}
		if s.Zoom() != initialView.Zoom {
			t.Errorf("viewport %s zoom changed to %d", id, s.Zoom())
		}
	}
	if surfaces.surfaces["2018"].viewCalls != 0 {
		t.Error("origin viewport must not be re-centered")
	}
}

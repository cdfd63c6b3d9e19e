package usecases

import (
	"log/slog"
	"sync"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/pkg/metrics"
)

// Viewport is one mounted grid cell: a surface, its tile source and the
// controller of its vector layer.
type Viewport struct {
	source  domain.TileSource
	surface ports.MapSurface
	layer   *VectorLayerController
	log     *slog.Logger

	mu          sync.Mutex
	mirror      domain.ViewState
	unsubscribe func()
	closed      bool
}

// ID returns the viewport identifier.
func (v *Viewport) ID() string { return v.source.ID }

// Source returns the tile source currently shown.
func (v *Viewport) Source() domain.TileSource {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.source
}

// Surface returns the rendering surface.
func (v *Viewport) Surface() ports.MapSurface { return v.surface }

// Layer returns the vector layer controller.
func (v *Viewport) Layer() *VectorLayerController { return v.layer }

// Mirror returns the last view state received from the controller.
func (v *Viewport) Mirror() domain.ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mirror
}

// Apply mirrors vs and moves the surface only where its rendered state
// differs. The viewport that produced the change is already there, so for
// it this is a no-op.
func (v *Viewport) Apply(vs domain.ViewState) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.mirror = vs
	v.mu.Unlock()

	moved := false
	if v.surface.Zoom() != vs.Zoom {
		v.surface.SetZoom(vs.Zoom)
		moved = true
	}
	if !v.surface.Center().Equal(vs.Center) {
		v.surface.SetView(vs.Center, v.surface.Zoom())
		moved = true
	}

	if moved {
		metrics.SyncApplies.WithLabelValues("applied").Inc()
	} else {
		metrics.SyncApplies.WithLabelValues("noop").Inc()
	}
}

// close unsubscribes and detaches the layer before returning.
func (v *Viewport) close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsubscribe := v.unsubscribe
	v.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	v.layer.Detach(v.surface)
	v.log.Info("viewport unmounted")
}

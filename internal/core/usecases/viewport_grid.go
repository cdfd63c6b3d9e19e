package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/pkg/metrics"
)

var (
	ErrViewportNotFound = errors.New("viewport not found")
	ErrViewportExists   = errors.New("viewport already mounted")
)

// Grid wires viewports to one shared SyncController. It holds no styling or
// sync logic of its own.
type Grid struct {
	sync     *SyncController
	surfaces ports.SurfaceFactory
	layers   ports.LayerFactory
	layerOpt VectorLayerOptions
	log      *slog.Logger

	mu        sync.RWMutex
	viewports []*Viewport
}

// NewGrid creates an empty grid around controller.
func NewGrid(controller *SyncController, surfaces ports.SurfaceFactory, layers ports.LayerFactory, opts VectorLayerOptions) *Grid {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Grid{
		sync:     controller,
		surfaces: surfaces,
		layers:   layers,
		layerOpt: opts,
		log:      log.With("component", "grid", "grid", controller.GridID()),
	}
}

// Sync returns the shared controller.
func (g *Grid) Sync() *SyncController { return g.sync }

// Mount creates a viewport for src, subscribes it to the shared view state
// and attaches its vector layer.
func (g *Grid) Mount(ctx context.Context, src domain.TileSource) (*Viewport, error) {
	if src.ID == "" {
		return nil, fmt.Errorf("mount viewport: empty id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.findLocked(src.ID) >= 0 {
		return nil, fmt.Errorf("mount %s: %w", src.ID, ErrViewportExists)
	}

	vlog := g.log.With("viewport", src.ID)
	surface := g.surfaces.NewSurface(src.ID, g.sync.State())
	opts := g.layerOpt
	opts.Logger = vlog
	vp := &Viewport{
		source:  src,
		surface: surface,
		layer:   NewVectorLayerController(g.layers, opts),
		log:     vlog,
	}

	if err := vp.layer.Create(ctx, src.URLTemplate); err != nil {
		return nil, fmt.Errorf("mount %s: %w", src.ID, err)
	}
	vp.layer.Attach(surface)

	id := src.ID
	surface.OnZoomEnd(func(z int) {
		if _, err := g.sync.ReportUserZoomEnd(id, z); err != nil {
			vlog.Warn("zoom gesture rejected", "zoom", z, "error", err)
		}
	})
	surface.OnMoveEnd(func(c domain.GeoPoint) {
		if _, err := g.sync.ReportUserMoveEnd(id, c.Lat, c.Lng); err != nil {
			vlog.Warn("move gesture rejected", "lat", c.Lat, "lng", c.Lng, "error", err)
		}
	})

	current, unsubscribe := g.sync.Subscribe(id, vp.Apply)
	vp.unsubscribe = unsubscribe
	vp.Apply(current)

	g.viewports = append(g.viewports, vp)
	metrics.ActiveViewports.Inc()
	vlog.Info("viewport mounted", "url", src.URLTemplate, "year", src.Year)
	return vp, nil
}

// Unmount detaches the viewport's layer and unsubscribes it before returning.
func (g *Grid) Unmount(id string) error {
	g.mu.Lock()
	i := g.findLocked(id)
	if i < 0 {
		g.mu.Unlock()
		return fmt.Errorf("unmount %s: %w", id, ErrViewportNotFound)
	}
	vp := g.viewports[i]
	g.viewports = append(g.viewports[:i:i], g.viewports[i+1:]...)
	g.mu.Unlock()

	vp.close()
	metrics.ActiveViewports.Dec()
	return nil
}

// ReplaceSource swaps the tile URL of a viewport, recreating its layer.
func (g *Grid) ReplaceSource(ctx context.Context, id, urlTemplate string) error {
	vp, err := g.Viewport(id)
	if err != nil {
		return err
	}
	if err := vp.layer.Replace(ctx, urlTemplate); err != nil {
		return fmt.Errorf("replace source of %s: %w", id, err)
	}
	vp.mu.Lock()
	vp.source.URLTemplate = urlTemplate
	vp.mu.Unlock()
	return nil
}

// Viewport looks a mounted viewport up by id.
func (g *Grid) Viewport(id string) (*Viewport, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i := g.findLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrViewportNotFound)
	}
	return g.viewports[i], nil
}

// Viewports returns the mounted viewports in mount order.
func (g *Grid) Viewports() []*Viewport {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Viewport, len(g.viewports))
	copy(out, g.viewports)
	return out
}

// Close unmounts every viewport.
func (g *Grid) Close() {
	for _, vp := range g.Viewports() {
		_ = g.Unmount(vp.ID())
	}
}

func (g *Grid) findLocked(id string) int {
	for i, vp := range g.viewports {
		if vp.ID() == id {
			return i
		}
	}
	return -1
}

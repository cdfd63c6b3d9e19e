// Package vectorgrid is a headless map engine: surfaces that hold a rendered
// center and zoom, and vector-tile layers that fetch, decode and style
// Mapbox vector tiles on demand.
package vectorgrid

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
)

// Surface is an in-memory map surface.
type Surface struct {
	id string

	mu     sync.Mutex
	zoom   int
	center domain.GeoPoint
	layers []ports.VectorTileLayer
	onZoom []func(int)
	onMove []func(domain.GeoPoint)
}

var _ ports.MapSurface = (*Surface)(nil)

// NewSurface creates a surface rendering initial.
func NewSurface(id string, initial domain.ViewState) *Surface {
	return &Surface{id: id, zoom: initial.Zoom, center: initial.Center}
}

func (s *Surface) ID() string { return s.id }

func (s *Surface) Zoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

func (s *Surface) Center() domain.GeoPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.center
}

// SetZoom moves the surface programmatically. No callbacks fire.
func (s *Surface) SetZoom(zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = zoom
}

// SetView moves the surface programmatically. No callbacks fire.
func (s *Surface) SetView(center domain.GeoPoint, zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.center = center
	s.zoom = zoom
}

func (s *Surface) AddLayer(layer ports.VectorTileLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layers {
		if l == layer {
			return
		}
	}
	s.layers = append(s.layers, layer)
}

func (s *Surface) RemoveLayer(layer ports.VectorTileLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.layers {
		if l == layer {
			s.layers = append(s.layers[:i:i], s.layers[i+1:]...)
			return
		}
	}
}

func (s *Surface) HasLayer(layer ports.VectorTileLayer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layers {
		if l == layer {
			return true
		}
	}
	return false
}

// Layers returns the attached layers, bottom first.
func (s *Surface) Layers() []ports.VectorTileLayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.VectorTileLayer, len(s.layers))
	copy(out, s.layers)
	return out
}

func (s *Surface) OnZoomEnd(fn func(zoom int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onZoom = append(s.onZoom, fn)
}

func (s *Surface) OnMoveEnd(fn func(center domain.GeoPoint)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMove = append(s.onMove, fn)
}

// UserZoom renders a finished zoom gesture and then reports it.
func (s *Surface) UserZoom(zoom int) {
	s.mu.Lock()
	s.zoom = zoom
	fns := append(([]func(int))(nil), s.onZoom...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(zoom)
	}
}

// UserMove renders a finished pan gesture and then reports it.
func (s *Surface) UserMove(center domain.GeoPoint) {
	s.mu.Lock()
	s.center = center
	fns := append(([]func(domain.GeoPoint))(nil), s.onMove...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(center)
	}
}

// VisibleTile returns the tile under the surface center at its zoom.
func (s *Surface) VisibleTile() maptile.Tile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maptile.At(orb.Point{s.center.Lng, s.center.Lat}, maptile.Zoom(s.zoom))
}

// SurfaceFactory creates Surfaces.
type SurfaceFactory struct{}

func (SurfaceFactory) NewSurface(id string, initial domain.ViewState) ports.MapSurface {
	return NewSurface(id, initial)
}

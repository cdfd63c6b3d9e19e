package usecases_test

import (
	"context"
	"sync"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
)

// --- Fake surface ---

type fakeSurface struct {
	id string

	mu         sync.Mutex
	zoom       int
	center     domain.GeoPoint
	layers     map[ports.VectorTileLayer]bool
	zoomCalls  int
	viewCalls  int
	removeCall int
	onZoom     []func(int)
	onMove     []func(domain.GeoPoint)
}

func newFakeSurface(id string, vs domain.ViewState) *fakeSurface {
	return &fakeSurface{id: id, zoom: vs.Zoom, center: vs.Center, layers: map[ports.VectorTileLayer]bool{}}
}

func (s *fakeSurface) ID() string { return s.id }
func (s *fakeSurface) Zoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}
func (s *fakeSurface) Center() domain.GeoPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.center
}
func (s *fakeSurface) SetZoom(z int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = z
	s.zoomCalls++
}
func (s *fakeSurface) SetView(c domain.GeoPoint, z int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.center, s.zoom = c, z
	s.viewCalls++
}
func (s *fakeSurface) AddLayer(l ports.VectorTileLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[l] = true
}
func (s *fakeSurface) RemoveLayer(l ports.VectorTileLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.layers, l)
	s.removeCall++
}
func (s *fakeSurface) HasLayer(l ports.VectorTileLayer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers[l]
}
func (s *fakeSurface) layerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.layers)
}
func (s *fakeSurface) OnZoomEnd(fn func(int)) { s.onZoom = append(s.onZoom, fn) }
func (s *fakeSurface) OnMoveEnd(fn func(domain.GeoPoint)) {
	s.onMove = append(s.onMove, fn)
}

// userZoom simulates a finished zoom gesture: the surface renders z first,
// then reports it.
func (s *fakeSurface) userZoom(z int) {
	s.mu.Lock()
	s.zoom = z
	s.mu.Unlock()
	for _, fn := range s.onZoom {
		fn(z)
	}
}

func (s *fakeSurface) userMove(c domain.GeoPoint) {
	s.mu.Lock()
	s.center = c
	s.mu.Unlock()
	for _, fn := range s.onMove {
		fn(c)
	}
}

type fakeSurfaceFactory struct {
	surfaces map[string]*fakeSurface
}

func (f *fakeSurfaceFactory) NewSurface(id string, vs domain.ViewState) ports.MapSurface {
	if f.surfaces == nil {
		f.surfaces = map[string]*fakeSurface{}
	}
	s := newFakeSurface(id, vs)
	f.surfaces[id] = s
	return s
}

// --- Fake vector layer ---

type fakeLayer struct {
	url string

	mu      sync.Mutex
	onLoad  []func([]string)
	styles  domain.StyleTable
	redraws int
	closed  bool
}

func (l *fakeLayer) URLTemplate() string { return l.url }
func (l *fakeLayer) OnceLoad(fn func([]string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLoad = append(l.onLoad, fn)
}
func (l *fakeLayer) SetStyles(t domain.StyleTable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.styles = t
}
func (l *fakeLayer) Redraw() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.redraws++
}
func (l *fakeLayer) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// fireLoad delivers the one-time layer discovery signal.
func (l *fakeLayer) fireLoad(names ...string) {
	l.mu.Lock()
	fns := l.onLoad
	l.onLoad = nil
	l.mu.Unlock()
	for _, fn := range fns {
		fn(names)
	}
}

func (l *fakeLayer) redrawCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.redraws
}

func (l *fakeLayer) currentStyles() domain.StyleTable {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.styles
}

type fakeLayerFactory struct {
	mu     sync.Mutex
	newFn  func(ctx context.Context, url string) (ports.VectorTileLayer, error)
	layers []*fakeLayer
}

func (f *fakeLayerFactory) NewLayer(ctx context.Context, url string) (ports.VectorTileLayer, error) {
	if f.newFn != nil {
		return f.newFn(ctx, url)
	}
	l := &fakeLayer{url: url}
	f.mu.Lock()
	f.layers = append(f.layers, l)
	f.mu.Unlock()
	return l, nil
}

func (f *fakeLayerFactory) last() *fakeLayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.layers) == 0 {
		return nil
	}
	return f.layers[len(f.layers)-1]
}

func ptr[T any](v T) *T { return &v }

package ports

import (
	"context"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
)

// MapSurface is one rendering surface of the map engine.
//
// SetZoom and SetView are programmatic and must not fire the user interaction
// callbacks; only gestures do.
type MapSurface interface {
	ID() string
	Zoom() int
	Center() domain.GeoPoint
	SetZoom(zoom int)
	SetView(center domain.GeoPoint, zoom int)
	AddLayer(layer VectorTileLayer)
	RemoveLayer(layer VectorTileLayer)
	HasLayer(layer VectorTileLayer) bool
	OnZoomEnd(fn func(zoom int))
	OnMoveEnd(fn func(center domain.GeoPoint))
}

// SurfaceFactory creates a surface for a newly mounted viewport.
type SurfaceFactory interface {
	NewSurface(id string, initial domain.ViewState) MapSurface
}

// VectorTileLayer is a vector-tile layer of the map engine.
type VectorTileLayer interface {
	URLTemplate() string
	// OnceLoad registers fn to run once, when the first tile response yields
	// the set of data-layer names. fn may run on another goroutine.
	OnceLoad(fn func(layerNames []string))
	SetStyles(styles domain.StyleTable)
	Redraw()
	Close()
}

// LayerFactory builds engine layers from a tile URL template.
type LayerFactory interface {
	NewLayer(ctx context.Context, urlTemplate string) (VectorTileLayer, error)
}

// TileFetcher retrieves raw vector-tile payloads.
type TileFetcher interface {
	Fetch(ctx context.Context, urlTemplate string, z, x, y int) ([]byte, error)
}

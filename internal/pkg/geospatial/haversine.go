package geospatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Web mercator cannot represent the poles.
const maxMercatorLat = 85.05112878

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(a, b domain.GeoPoint) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c * 1000 // meters
}

// BoundingBox returns a bounding box around a point with the given radius in
// meters, clamped to the web mercator range.
func BoundingBox(center domain.GeoPoint, radiusMeters float64) domain.Bounds {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRad(center.Lat)))

	return domain.Bounds{
		MinLat: clamp(center.Lat-latDelta, -maxMercatorLat, maxMercatorLat),
		MinLng: clamp(center.Lng-lonDelta, -180, 180),
		MaxLat: clamp(center.Lat+latDelta, -maxMercatorLat, maxMercatorLat),
		MaxLng: clamp(center.Lng+lonDelta, -180, 180),
	}
}

// CoveringTiles lists the tiles at zoom that intersect b, row by row. It
// returns nil when the cover would exceed limit tiles.
func CoveringTiles(b domain.Bounds, zoom, limit int) []maptile.Tile {
	z := maptile.Zoom(zoom)
	nw := maptile.At(orb.Point{b.MinLng, b.MaxLat}, z)
	se := maptile.At(orb.Point{b.MaxLng, b.MinLat}, z)

	cols := int(se.X) - int(nw.X) + 1
	rows := int(se.Y) - int(nw.Y) + 1
	if cols <= 0 || rows <= 0 || cols*rows > limit {
		return nil
	}

	tiles := make([]maptile.Tile, 0, cols*rows)
	for y := nw.Y; y <= se.Y; y++ {
		for x := nw.X; x <= se.X; x++ {
			tiles = append(tiles, maptile.New(x, y, z))
		}
	}
	return tiles
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

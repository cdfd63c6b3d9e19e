package domain

import (
	"strings"
	"time"
)

// ViewState is the shared pan/zoom state of every viewport in a grid.
type ViewState struct {
	Center GeoPoint `json:"center"`
	Zoom   int      `json:"zoom"`
}

// Equal reports exact equality of center and zoom.
func (v ViewState) Equal(o ViewState) bool {
	return v.Zoom == o.Zoom && v.Center.Equal(o.Center)
}

// ChangeKind tells which half of the view state a cycle updated.
type ChangeKind string

const (
	ChangeZoom ChangeKind = "zoom"
	ChangeMove ChangeKind = "move"
)

// ViewChange is emitted after the sync controller finishes an update cycle.
type ViewChange struct {
	GridID string     `json:"grid_id"`
	Origin string     `json:"origin,omitempty"` // viewport that produced the change, "" for programmatic writes
	Kind   ChangeKind `json:"kind"`
	State  ViewState  `json:"state"`
	At     time.Time  `json:"at"`
	// Instance is the process that published the change.
	Instance string `json:"instance,omitempty"`
}

// Remote reports whether the change was replayed from another instance.
func (c ViewChange) Remote() bool {
	return strings.HasPrefix(c.Origin, RemoteOriginPrefix)
}

// RemoteOriginPrefix marks the origin of changes received from other
// instances of the same grid.
const RemoteOriginPrefix = "remote:"

// TileSource identifies the vector tiles shown by one viewport.
type TileSource struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Year        int    `json:"year" mapstructure:"year"`
	URLTemplate string `json:"url" mapstructure:"url"`
}

// PrewarmRequest asks for the tiles around a view to be loaded into the tile
// cache for every source, from Zoom down to Zoom+Depth.
type PrewarmRequest struct {
	GridID       string       `json:"grid_id"`
	View         ViewState    `json:"view"`
	Depth        int          `json:"depth"`
	RadiusMeters float64      `json:"radius_m"`
	Sources      []TileSource `json:"sources"`
}

// TileRef addresses one tile.
type TileRef struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// PrewarmResult summarizes a prewarm run.
type PrewarmResult struct {
	Tiles  int `json:"tiles"`
	Warmed int `json:"warmed"`
	Failed int `json:"failed"`
}

package vectorgrid

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
)

var (
	ErrLayerClosed     = errors.New("layer closed")
	ErrInvalidTemplate = errors.New("tile url template must contain {z}, {x} and {y}")
)

// Renderer produces styled features for one tile.
type Renderer interface {
	Render(ctx context.Context, tile maptile.Tile) (*geojson.FeatureCollection, error)
}

// Layer is a vector-tile layer. Tiles are fetched on first render, decoded
// and kept; the first tile that carries layer names fires the load signal.
type Layer struct {
	url     string
	fetcher ports.TileFetcher
	log     *slog.Logger

	mu       sync.Mutex
	styles   domain.StyleTable
	tiles    map[maptile.Tile]mvt.Layers
	rendered map[maptile.Tile]*geojson.FeatureCollection
	onLoad   []func([]string)
	names    []string
	loaded   bool
	redraws  int
	// styleGen changes whenever styles or rendered output are invalidated;
	// a render only caches its output if styleGen is unchanged.
	styleGen uint64
	closed   bool
}

var (
	_ ports.VectorTileLayer = (*Layer)(nil)
	_ Renderer              = (*Layer)(nil)
)

// NewLayer creates an empty layer for urlTemplate.
func NewLayer(urlTemplate string, fetcher ports.TileFetcher, log *slog.Logger) (*Layer, error) {
	if !ValidTemplate(urlTemplate) {
		return nil, fmt.Errorf("%q: %w", urlTemplate, ErrInvalidTemplate)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Layer{
		url:      urlTemplate,
		fetcher:  fetcher,
		log:      log.With("component", "vectorgrid", "url", urlTemplate),
		styles:   domain.StyleTable{},
		tiles:    make(map[maptile.Tile]mvt.Layers),
		rendered: make(map[maptile.Tile]*geojson.FeatureCollection),
	}, nil
}

// ValidTemplate reports whether t carries the {z}, {x} and {y} placeholders.
func ValidTemplate(t string) bool {
	return strings.Contains(t, "{z}") && strings.Contains(t, "{x}") && strings.Contains(t, "{y}")
}

func (l *Layer) URLTemplate() string { return l.url }

// OnceLoad registers fn for the layer discovery signal. If discovery already
// happened fn runs immediately.
func (l *Layer) OnceLoad(fn func(layerNames []string)) {
	l.mu.Lock()
	if !l.loaded {
		l.onLoad = append(l.onLoad, fn)
		l.mu.Unlock()
		return
	}
	names := append([]string(nil), l.names...)
	l.mu.Unlock()
	fn(names)
}

// SetStyles installs the style table used by later renders.
func (l *Layer) SetStyles(styles domain.StyleTable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.styles = styles
	l.styleGen++
}

// Redraw drops rendered output so loaded tiles are restyled on next render.
func (l *Layer) Redraw() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rendered = make(map[maptile.Tile]*geojson.FeatureCollection)
	l.redraws++
	l.styleGen++
}

// Redraws returns how many times the layer was redrawn.
func (l *Layer) Redraws() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.redraws
}

// Close releases cached tiles and pending load callbacks.
func (l *Layer) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.onLoad = nil
	l.tiles = nil
	l.rendered = nil
}

// Load fetches and decodes a tile unless it is already held.
func (l *Layer) Load(ctx context.Context, tile maptile.Tile) (mvt.Layers, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLayerClosed
	}
	if layers, ok := l.tiles[tile]; ok {
		l.mu.Unlock()
		return layers, nil
	}
	l.mu.Unlock()

	data, err := l.fetcher.Fetch(ctx, l.url, int(tile.Z), int(tile.X), int(tile.Y))
	if err != nil {
		return nil, fmt.Errorf("fetch tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
	}
	raw, err := Inflate(data)
	if err != nil {
		return nil, fmt.Errorf("inflate tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
	}
	names, err := LayerNames(raw)
	if err != nil {
		return nil, fmt.Errorf("scan tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
	}
	var layers mvt.Layers
	if len(raw) > 0 {
		layers, err = mvt.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("decode tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
		}
		layers.ProjectToWGS84(tile)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLayerClosed
	}
	l.tiles[tile] = layers
	var fire []func([]string)
	if !l.loaded && len(names) > 0 {
		l.loaded = true
		l.names = names
		fire = l.onLoad
		l.onLoad = nil
	}
	l.mu.Unlock()

	if fire != nil {
		l.log.Debug("data layers discovered", "layers", names)
	}
	for _, fn := range fire {
		fn(append([]string(nil), names...))
	}
	return layers, nil
}

// Render returns the features of tile with their style under
// properties["style"] and their data layer under properties["layer"].
// Features of a layer with no rule carry no style.
func (l *Layer) Render(ctx context.Context, tile maptile.Tile) (*geojson.FeatureCollection, error) {
	layers, err := l.Load(ctx, tile)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if fc, ok := l.rendered[tile]; ok {
		l.mu.Unlock()
		return fc, nil
	}
	styles, gen := l.styles, l.styleGen
	l.mu.Unlock()

	fc := geojson.NewFeatureCollection()
	for _, layer := range layers {
		rule, styled := styles.Lookup(layer.Name)
		for _, f := range layer.Features {
			out := geojson.NewFeature(f.Geometry)
			out.ID = f.ID
			for k, v := range f.Properties {
				out.Properties[k] = v
			}
			out.Properties["layer"] = layer.Name
			if styled {
				out.Properties["style"] = rule(domain.FeaturePropsFromMap(f.Properties))
			}
			fc.Append(out)
		}
	}

	l.mu.Lock()
	if !l.closed && l.styleGen == gen {
		l.rendered[tile] = fc
	}
	l.mu.Unlock()
	return fc, nil
}

// Inflate gunzips data when it carries the gzip magic bytes and returns it
// unchanged otherwise.
func Inflate(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Factory builds Layers that share one fetcher.
type Factory struct {
	fetcher ports.TileFetcher
	log     *slog.Logger
}

var _ ports.LayerFactory = (*Factory)(nil)

// NewFactory creates a layer factory.
func NewFactory(fetcher ports.TileFetcher, log *slog.Logger) *Factory {
	return &Factory{fetcher: fetcher, log: log}
}

func (f *Factory) NewLayer(_ context.Context, urlTemplate string) (ports.VectorTileLayer, error) {
	layer, err := NewLayer(urlTemplate, f.fetcher, f.log)
	if err != nil {
		return nil, err
	}
	return layer, nil
}

package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/pkg/metrics"
)

// VectorLayerOptions tunes a VectorLayerController.
type VectorLayerOptions struct {
	// StyleTimeout installs the wildcard style rule when layer discovery has
	// not fired in time. Zero waits forever.
	StyleTimeout time.Duration
	Logger       *slog.Logger
}

// VectorLayerController owns the vector layer of one viewport through
// Unattached → Loading → Styled → Attached and back to Unattached on teardown.
type VectorLayerController struct {
	factory ports.LayerFactory
	opts    VectorLayerOptions
	log     *slog.Logger

	mu      sync.Mutex
	layer   ports.VectorTileLayer
	styles  domain.StyleTable
	styled  bool
	surface ports.MapSurface
	// gen invalidates load signals and timers of a torn-down layer
	gen   uint64
	timer *time.Timer
}

// NewVectorLayerController creates an Unattached controller.
func NewVectorLayerController(factory ports.LayerFactory, opts VectorLayerOptions) *VectorLayerController {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &VectorLayerController{
		factory: factory,
		opts:    opts,
		log:     log.With("component", "vector_layer"),
	}
}

// State returns the current lifecycle phase.
func (c *VectorLayerController) State() domain.LayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *VectorLayerController) stateLocked() domain.LayerState {
	switch {
	case c.layer == nil:
		return domain.LayerUnattached
	case !c.styled:
		return domain.LayerLoading
	case c.surface != nil:
		return domain.LayerAttached
	default:
		return domain.LayerStyled
	}
}

// URLTemplate returns the tile URL of the current layer, or "".
func (c *VectorLayerController) URLTemplate() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layer == nil {
		return ""
	}
	return c.layer.URLTemplate()
}

// Layer returns the engine layer, or nil when Unattached.
func (c *VectorLayerController) Layer() ports.VectorTileLayer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layer
}

// Styles returns the installed style table.
func (c *VectorLayerController) Styles() domain.StyleTable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.styles
}

// Create builds the engine layer in Loading state with an empty style table.
// A controller that already holds a layer is torn down first.
func (c *VectorLayerController) Create(ctx context.Context, urlTemplate string) error {
	layer, err := c.factory.NewLayer(ctx, urlTemplate)
	if err != nil {
		return fmt.Errorf("create vector layer %s: %w", urlTemplate, err)
	}

	c.mu.Lock()
	c.teardownLocked()
	c.gen++
	gen := c.gen
	c.layer = layer
	c.styles = domain.StyleTable{}
	c.styled = false
	layer.SetStyles(c.styles)
	if c.opts.StyleTimeout > 0 {
		c.timer = time.AfterFunc(c.opts.StyleTimeout, func() { c.onStyleTimeout(gen) })
	}
	c.mu.Unlock()

	layer.OnceLoad(func(names []string) { c.onLoad(gen, names) })
	return nil
}

func (c *VectorLayerController) onLoad(gen uint64, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.layer == nil {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.styles = ResolveStyles(names)
	c.styled = true
	c.layer.SetStyles(c.styles)
	c.layer.Redraw()
	metrics.LayersStyled.Inc()
	c.log.Info("vector layer styled", "url", c.layer.URLTemplate(), "layers", names)
}

func (c *VectorLayerController) onStyleTimeout(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.layer == nil || c.styled {
		return
	}
	c.timer = nil
	c.styles = domain.StyleTable{domain.WildcardLayer: StyleFor}
	c.styled = true
	c.layer.SetStyles(c.styles)
	c.layer.Redraw()
	metrics.LayerStyleTimeouts.Inc()
	c.log.Warn("layer discovery timed out, using fallback style",
		"url", c.layer.URLTemplate(),
		"timeout", c.opts.StyleTimeout.String(),
	)
}

// Attach adds the layer to surface. Attaching again, or attaching with no
// layer, is a no-op.
func (c *VectorLayerController) Attach(surface ports.MapSurface) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.layer == nil || surface == nil {
		return
	}
	if c.surface == surface && surface.HasLayer(c.layer) {
		return
	}
	if c.surface != nil && c.surface != surface {
		c.surface.RemoveLayer(c.layer)
	}
	c.surface = surface
	surface.AddLayer(c.layer)
}

// Detach removes the layer from surface, discards the style table and returns
// the controller to Unattached. Detaching twice is a no-op.
func (c *VectorLayerController) Detach(surface ports.MapSurface) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if surface != nil && c.layer != nil && surface.HasLayer(c.layer) {
		surface.RemoveLayer(c.layer)
	}
	c.teardownLocked()
}

// Replace tears down the current layer and recreates it from a new URL,
// reattaching it to the surface it was on.
func (c *VectorLayerController) Replace(ctx context.Context, urlTemplate string) error {
	c.mu.Lock()
	surface := c.surface
	c.mu.Unlock()

	c.Detach(surface)
	if err := c.Create(ctx, urlTemplate); err != nil {
		return err
	}
	c.Attach(surface)
	return nil
}

// Close tears down the layer wherever it is attached.
func (c *VectorLayerController) Close() {
	c.mu.Lock()
	surface := c.surface
	c.mu.Unlock()
	c.Detach(surface)
}

func (c *VectorLayerController) teardownLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.layer != nil {
		if c.surface != nil && c.surface.HasLayer(c.layer) {
			c.surface.RemoveLayer(c.layer)
		}
		c.layer.Close()
	}
	c.gen++
	c.layer = nil
	c.styles = nil
	c.styled = false
	c.surface = nil
}

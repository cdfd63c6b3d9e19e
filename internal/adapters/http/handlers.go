package http

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/ndvigrid/internal/adapters/vectorgrid"
	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/usecases"
	"github.com/samirrijal/ndvigrid/internal/pkg/colorscale"
	"github.com/samirrijal/ndvigrid/internal/workflows"
)

// ViewportInfo describes one mounted viewport.
type ViewportInfo struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Year       int             `json:"year"`
	URL        string          `json:"url"`
	LayerState string          `json:"layer_state"`
	Zoom       int             `json:"zoom"`
	Center     domain.GeoPoint `json:"center"`
}

// GridLayout is the full grid as a client renders it.
type GridLayout struct {
	GridID    string           `json:"grid_id"`
	View      domain.ViewState `json:"view"`
	BaseLayer BaseLayer        `json:"base_layer"`
	Viewports []ViewportInfo   `json:"viewports"`
}

// ViewResult is returned by view state writes.
type ViewResult struct {
	Changed bool             `json:"changed"`
	View    domain.ViewState `json:"view"`
}

type zoomRequest struct {
	Zoom *int `json:"zoom"`
}

type centerRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type sourceRequest struct {
	URL string `json:"url"`
}

type prewarmRequest struct {
	Depth        int     `json:"depth"`
	RadiusMeters float64 `json:"radius_m"`
}

// gestureSurface is a surface that can replay user gestures.
type gestureSurface interface {
	UserZoom(zoom int)
	UserMove(center domain.GeoPoint)
}

func viewportInfo(vp *usecases.Viewport) ViewportInfo {
	src := vp.Source()
	return ViewportInfo{
		ID:         src.ID,
		Title:      src.Title,
		Year:       src.Year,
		URL:        src.URLTemplate,
		LayerState: vp.Layer().State().String(),
		Zoom:       vp.Surface().Zoom(),
		Center:     vp.Surface().Center(),
	}
}

// GetGridHandler returns the grid layout.
func GetGridHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		vps := deps.Grid.Viewports()
		layout := GridLayout{
			GridID:    deps.Grid.Sync().GridID(),
			View:      deps.Grid.Sync().State(),
			BaseLayer: deps.BaseLayer,
			Viewports: make([]ViewportInfo, 0, len(vps)),
		}
		for _, vp := range vps {
			layout.Viewports = append(layout.Viewports, viewportInfo(vp))
		}
		c.Set("Cache-Control", "no-cache")
		return c.JSON(layout)
	}
}

// GetViewHandler returns the shared view state.
func GetViewHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache")
		return c.JSON(deps.Grid.Sync().State())
	}
}

// SetZoomHandler sets the shared zoom.
func SetZoomHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req zoomRequest
		if err := c.BodyParser(&req); err != nil || req.Zoom == nil {
			return errBadRequest(c, "body must be {\"zoom\": <int>}")
		}
		changed, err := deps.Grid.Sync().SetZoom(*req.Zoom)
		if err != nil {
			return viewError(c, err)
		}
		return c.JSON(ViewResult{Changed: changed, View: deps.Grid.Sync().State()})
	}
}

// SetCenterHandler sets the shared center.
func SetCenterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req centerRequest
		if err := c.BodyParser(&req); err != nil || req.Lat == nil || req.Lng == nil {
			return errBadRequest(c, "body must be {\"lat\": <float>, \"lng\": <float>}")
		}
		changed, err := deps.Grid.Sync().SetCenter(*req.Lat, *req.Lng)
		if err != nil {
			return viewError(c, err)
		}
		return c.JSON(ViewResult{Changed: changed, View: deps.Grid.Sync().State()})
	}
}

// ZoomInHandler raises the shared zoom by one.
func ZoomInHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		before := deps.Grid.Sync().State().Zoom
		z, err := deps.Grid.Sync().ZoomIn()
		if err != nil {
			return viewError(c, err)
		}
		return c.JSON(ViewResult{Changed: z != before, View: deps.Grid.Sync().State()})
	}
}

// ZoomOutHandler lowers the shared zoom by one, never below 0.
func ZoomOutHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		before := deps.Grid.Sync().State().Zoom
		z, err := deps.Grid.Sync().ZoomOut()
		if err != nil {
			return viewError(c, err)
		}
		return c.JSON(ViewResult{Changed: z != before, View: deps.Grid.Sync().State()})
	}
}

// ViewportZoomEndHandler replays the end of a zoom gesture on one viewport.
func ViewportZoomEndHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		vp, err := deps.Grid.Viewport(c.Params("id"))
		if err != nil {
			return errNotFound(c, "viewport not found")
		}
		var req zoomRequest
		if err := c.BodyParser(&req); err != nil || req.Zoom == nil {
			return errBadRequest(c, "body must be {\"zoom\": <int>}")
		}
		changed, err := userZoom(deps, vp, *req.Zoom)
		if err != nil {
			return viewError(c, err)
		}
		return c.JSON(ViewResult{Changed: changed, View: deps.Grid.Sync().State()})
	}
}

// ViewportMoveEndHandler replays the end of a pan gesture on one viewport.
func ViewportMoveEndHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		vp, err := deps.Grid.Viewport(c.Params("id"))
		if err != nil {
			return errNotFound(c, "viewport not found")
		}
		var req centerRequest
		if err := c.BodyParser(&req); err != nil || req.Lat == nil || req.Lng == nil {
			return errBadRequest(c, "body must be {\"lat\": <float>, \"lng\": <float>}")
		}
		changed, err := userMove(deps, vp, domain.GeoPoint{Lat: *req.Lat, Lng: *req.Lng})
		if err != nil {
			return viewError(c, err)
		}
		return c.JSON(ViewResult{Changed: changed, View: deps.Grid.Sync().State()})
	}
}

// userZoom ends a zoom gesture on vp. Surfaces that model gestures report
// through their own zoomend hook; others report to the controller directly.
// It reports whether a broadcast happened.
func userZoom(deps *Dependencies, vp *usecases.Viewport, zoom int) (bool, error) {
	if !usecases.ValidZoom(zoom) {
		return false, usecases.ErrInvalidZoom
	}
	if s, ok := vp.Surface().(gestureSurface); ok {
		before := deps.Grid.Sync().Broadcasts()
		s.UserZoom(zoom)
		return deps.Grid.Sync().Broadcasts() != before, nil
	}
	return deps.Grid.Sync().ReportUserZoomEnd(vp.ID(), zoom)
}

// userMove ends a pan gesture on vp, like userZoom.
func userMove(deps *Dependencies, vp *usecases.Viewport, center domain.GeoPoint) (bool, error) {
	if !usecases.ValidCenter(center.Lat, center.Lng) {
		return false, usecases.ErrInvalidCenter
	}
	if s, ok := vp.Surface().(gestureSurface); ok {
		before := deps.Grid.Sync().Broadcasts()
		s.UserMove(center)
		return deps.Grid.Sync().Broadcasts() != before, nil
	}
	return deps.Grid.Sync().ReportUserMoveEnd(vp.ID(), center.Lat, center.Lng)
}

// ReplaceSourceHandler points a viewport at a new tile URL template.
func ReplaceSourceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		var req sourceRequest
		if err := c.BodyParser(&req); err != nil || req.URL == "" {
			return errBadRequest(c, "body must be {\"url\": <template>}")
		}
		if !vectorgrid.ValidTemplate(req.URL) {
			return errBadRequest(c, vectorgrid.ErrInvalidTemplate.Error())
		}

		err := deps.Grid.ReplaceSource(c.UserContext(), id, req.URL)
		switch {
		case errors.Is(err, usecases.ErrViewportNotFound):
			return errNotFound(c, "viewport not found")
		case errors.Is(err, vectorgrid.ErrInvalidTemplate):
			return errBadRequest(c, err.Error())
		case err != nil:
			return errInternal(c, err.Error())
		}

		vp, err := deps.Grid.Viewport(id)
		if err != nil {
			return errNotFound(c, "viewport not found")
		}
		if deps.Sources != nil {
			src := vp.Source()
			if err := deps.Sources.Upsert(c.UserContext(), &src); err != nil {
				LoggerFromCtx(c.UserContext()).Warn("persist tile source failed", "source", id, "error", err)
			}
		}
		return c.JSON(viewportInfo(vp))
	}
}

// ViewportTileHandler renders one tile of a viewport's layer as styled GeoJSON.
func ViewportTileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		vp, err := deps.Grid.Viewport(c.Params("id"))
		if err != nil {
			return errNotFound(c, "viewport not found")
		}
		tile, ok := parseTile(c)
		if !ok {
			return errBadRequest(c, "tile coordinates out of range")
		}

		renderer, ok := vp.Layer().Layer().(vectorgrid.Renderer)
		if !ok {
			return errUnavailable(c, "viewport layer is not loaded")
		}
		fc, err := renderer.Render(c.UserContext(), tile)
		if err != nil {
			if errors.Is(err, vectorgrid.ErrLayerClosed) {
				return errUnavailable(c, "viewport layer was replaced, retry")
			}
			LoggerFromCtx(c.UserContext()).Warn("tile render failed", "viewport", vp.ID(), "error", err)
			return errBadGateway(c, "tile source failed")
		}

		data, err := fc.MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Content-Type", "application/geo+json")
		c.Set("Cache-Control", "public, max-age=300")
		return c.Send(data)
	}
}

func parseTile(c *fiber.Ctx) (maptile.Tile, bool) {
	z, errZ := strconv.Atoi(c.Params("z"))
	x, errX := strconv.Atoi(c.Params("x"))
	y, errY := strconv.Atoi(c.Params("y"))
	if errZ != nil || errX != nil || errY != nil || !usecases.ValidZoom(z) {
		return maptile.Tile{}, false
	}
	n := 1 << uint(z)
	if x < 0 || y < 0 || x >= n || y >= n {
		return maptile.Tile{}, false
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), true
}

// ListSourcesHandler returns the tile source catalog, paginated.
func ListSourcesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var sources []domain.TileSource
		if deps.Sources != nil {
			var err error
			sources, err = deps.Sources.List(c.UserContext())
			if err != nil {
				return errInternal(c, err.Error())
			}
		} else {
			for _, vp := range deps.Grid.Viewports() {
				sources = append(sources, vp.Source())
			}
		}

		pg := pageFromQuery(c)
		sources = page(sources, &pg)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: sources, Pagination: pg})
	}
}

// LegendHandler returns the color ramp stops.
func LegendHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		steps := c.QueryInt("steps", 11)
		if steps < 2 || steps > 256 {
			return errBadRequest(c, "steps must be between 2 and 256")
		}
		c.Set("Cache-Control", "public, max-age=86400")
		return c.JSON(fiber.Map{
			"min":   colorscale.MinScore,
			"max":   colorscale.MaxScore,
			"stops": colorscale.Legend(steps),
		})
	}
}

// ColorHandler maps a score to its fill color.
func ColorHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("score")
		if raw == "" {
			return errBadRequest(c, "score is required")
		}
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(score) {
			return errBadRequest(c, "score must be a number")
		}
		c.Set("Cache-Control", "public, max-age=86400")
		return c.JSON(fiber.Map{
			"score": score,
			"color": colorscale.ColorFor(score),
		})
	}
}

// TimelineHandler returns the year selector state.
func TimelineHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache")
		return c.JSON(deps.Timeline.State())
	}
}

// TimelineActionHandler runs one selector action: next, previous, play or pause.
func TimelineActionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Params("action") {
		case "next":
			deps.Timeline.Next()
		case "previous":
			deps.Timeline.Previous()
		case "play":
			// Autoplay outlives the request.
			deps.Timeline.Play(deps.context())
		case "pause":
			deps.Timeline.Pause()
		default:
			return errNotFound(c, "unknown timeline action")
		}
		return c.JSON(deps.Timeline.State())
	}
}

// TimelineSelectHandler selects a year.
func TimelineSelectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		year, err := c.ParamsInt("year")
		if err != nil {
			return errBadRequest(c, "year must be an integer")
		}
		if err := deps.Timeline.Select(year); err != nil {
			if errors.Is(err, usecases.ErrYearOutOfRange) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(deps.Timeline.State())
	}
}

// PrewarmHandler starts a prewarm run for the current view.
func PrewarmHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Prewarm == nil {
			return errUnavailable(c, "prewarming is not configured")
		}

		var req prewarmRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid JSON body")
			}
		}
		if req.Depth < 0 || req.Depth > workflows.MaxPrewarmDepth {
			return errBadRequest(c, "depth must be between 0 and "+strconv.Itoa(workflows.MaxPrewarmDepth))
		}
		if req.RadiusMeters < 0 {
			return errBadRequest(c, "radius_m must not be negative")
		}
		if req.RadiusMeters == 0 {
			req.RadiusMeters = deps.PrewarmRadius
		}

		pr := domain.PrewarmRequest{
			GridID:       deps.Grid.Sync().GridID(),
			View:         deps.Grid.Sync().State(),
			Depth:        req.Depth,
			RadiusMeters: req.RadiusMeters,
		}
		for _, vp := range deps.Grid.Viewports() {
			pr.Sources = append(pr.Sources, vp.Source())
		}

		runID, err := deps.Prewarm.StartPrewarm(c.UserContext(), pr)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"run_id":  runID,
			"view":    pr.View,
			"sources": len(pr.Sources),
		})
	}
}

// viewError maps view state validation errors to 400.
func viewError(c *fiber.Ctx, err error) error {
	if errors.Is(err, usecases.ErrInvalidZoom) || errors.Is(err, usecases.ErrInvalidCenter) {
		return errBadRequest(c, err.Error())
	}
	return errInternal(c, err.Error())
}

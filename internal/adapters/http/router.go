package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/ndvigrid/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware(deps.gridID()))
	app.Use(AccessLogMiddleware())

	// A viewport pulls a screenful of tiles per move, so tiles are not limited.
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "/tiles/")
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	// Shared view state
	v1.Get("/grid", GetGridHandler(deps))
	v1.Get("/grid/view", GetViewHandler(deps))
	v1.Post("/grid/zoom", SetZoomHandler(deps))
	v1.Post("/grid/zoom/in", ZoomInHandler(deps))
	v1.Post("/grid/zoom/out", ZoomOutHandler(deps))
	v1.Post("/grid/center", SetCenterHandler(deps))

	// Viewports
	v1.Post("/grid/viewports/:id/zoomend", ViewportZoomEndHandler(deps))
	v1.Post("/grid/viewports/:id/moveend", ViewportMoveEndHandler(deps))
	v1.Put("/grid/viewports/:id/source", timeout.NewWithContext(ReplaceSourceHandler(deps), 15*time.Second))
	v1.Get("/grid/viewports/:id/tiles/:z/:x/:y", timeout.NewWithContext(ViewportTileHandler(deps), 30*time.Second))
	v1.Post("/grid/prewarm", timeout.NewWithContext(PrewarmHandler(deps), 15*time.Second))

	// Catalog and legend
	v1.Get("/sources", timeout.NewWithContext(ListSourcesHandler(deps), 15*time.Second))
	v1.Get("/legend", LegendHandler(deps))
	v1.Get("/color", ColorHandler(deps))

	// Year selector
	v1.Get("/timeline", TimelineHandler(deps))
	v1.Post("/timeline/select/:year", TimelineSelectHandler(deps))
	v1.Post("/timeline/:action", TimelineActionHandler(deps))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}

package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/ndvigrid/internal/adapters/postgres"
	"github.com/samirrijal/ndvigrid/internal/adapters/valkey"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/core/usecases"
)

// BaseLayer is the raster layer drawn under every viewport.
type BaseLayer struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Grid      *usecases.Grid
	Events    *usecases.ViewEventService
	Timeline  *usecases.Timeline
	BaseLayer BaseLayer
	// PrewarmRadius is the default radius in meters of a prewarm request.
	PrewarmRadius float64
	Sources       ports.TileSourceRepository
	Prewarm       ports.PrewarmScheduler
	NATS          *nats.Conn
	DB            *postgres.DB
	Cache         *valkey.Cache
	// Context bounds background work started by handlers, such as autoplay.
	Context context.Context
}

func (d *Dependencies) context() context.Context {
	if d.Context == nil {
		return context.Background()
	}
	return d.Context
}

func (d *Dependencies) gridID() string {
	if d.Grid == nil {
		return ""
	}
	return d.Grid.Sync().GridID()
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/ndvigrid/internal/adapters/http"
	natsadapter "github.com/samirrijal/ndvigrid/internal/adapters/nats"
	"github.com/samirrijal/ndvigrid/internal/adapters/postgres"
	"github.com/samirrijal/ndvigrid/internal/adapters/tilesource"
	"github.com/samirrijal/ndvigrid/internal/adapters/valkey"
	"github.com/samirrijal/ndvigrid/internal/adapters/vectorgrid"
	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/core/usecases"
	"github.com/samirrijal/ndvigrid/internal/pkg/config"
	"github.com/samirrijal/ndvigrid/internal/pkg/logging"
	"github.com/samirrijal/ndvigrid/internal/pkg/metrics"
	"github.com/samirrijal/ndvigrid/internal/pkg/telemetry"
	"github.com/samirrijal/ndvigrid/internal/workflows"
)

func main() {
	cfg, err := config.Load("ndvigrid-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instance := instanceID()
	slog.Info("starting", "grid", cfg.Grid.ID, "instance", instance)

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{
		BaseLayer:     http.BaseLayer{URL: cfg.Grid.BaseLayerURL, Attribution: cfg.Grid.BaseLayerAttr},
		PrewarmRadius: cfg.Grid.PrewarmRadius,
		Context:       ctx,
	}

	// Database: persisted view state and the tile source catalog
	var viewRepo ports.ViewStateRepository
	sources := cfg.Grid.Sources
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		deps.DB = db
		viewRepo = postgres.NewViewStateRepo(db)

		sourceRepo := postgres.NewTileSourceRepo(db)
		if err := sourceRepo.UpsertBatch(ctx, sources); err != nil {
			slog.Warn("seed tile sources failed", "error", err)
		}
		if stored, err := sourceRepo.List(ctx); err != nil {
			slog.Warn("list tile sources failed, using configured sources", "error", err)
		} else if len(stored) > 0 {
			sources = orderLike(stored, cfg.Grid.Sources)
		}
		deps.Sources = sourceRepo

		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					metrics.UpdateDBPoolMetrics(db.Pool.Stat())
				}
			}
		}()
	}

	// Tile fetching, read-through cached when valkey is up
	var fetcher ports.TileFetcher = tilesource.NewHTTPFetcher(cfg.Grid.FetchTimeout, "ndvigrid/1.0")
	if cfg.Valkey.Enabled {
		cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
		if err != nil {
			slog.Warn("valkey unavailable, fetching tiles uncached", "error", err)
		} else {
			defer cache.Close()
			deps.Cache = cache
			fetcher = tilesource.NewCachedFetcher(fetcher, cache, cfg.Grid.TileCacheTTL, slog.Default())
		}
	}

	// NATS: cross-instance view sync
	var publisher ports.EventPublisher
	var subscriber *natsadapter.Subscriber
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, running standalone", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
			deps.NATS = pub.Conn()

			subscriber, err = natsadapter.NewSubscriber(cfg.NATS.URL, cfg.NATS.ConsumerIdle)
			if err != nil {
				slog.Warn("nats subscriber unavailable", "error", err)
			} else {
				defer subscriber.Close()
			}
		}
	}

	// Grid
	controller := usecases.NewSyncController(cfg.Grid.ID, cfg.Grid.InitialView(), slog.Default())
	events := usecases.NewViewEventService(controller, viewRepo, publisher, instance, slog.Default())
	if _, err := events.Restore(ctx); err != nil {
		slog.Warn("restore view state failed, using initial view", "error", err)
	}
	deps.Events = events

	grid := usecases.NewGrid(controller, vectorgrid.SurfaceFactory{}, vectorgrid.NewFactory(fetcher, slog.Default()), usecases.VectorLayerOptions{
		StyleTimeout: cfg.Grid.StyleTimeout,
		Logger:       slog.Default(),
	})
	defer grid.Close()
	for _, src := range sources {
		if _, err := grid.Mount(ctx, src); err != nil {
			slog.Error("mount viewport failed", "source", src.ID, "error", err)
		}
	}
	deps.Grid = grid

	go events.Run(ctx)
	if subscriber != nil {
		err := subscriber.SubscribeViewChanges(ctx, cfg.Grid.ID, func(ctx context.Context, change *domain.ViewChange) error {
			return events.ApplyRemote(ctx, change)
		})
		if err != nil {
			slog.Warn("subscribe view changes failed", "error", err)
		}
	}

	timeline, err := usecases.NewTimeline(cfg.Timeline.FirstYear, cfg.Timeline.LastYear, cfg.Timeline.Interval)
	if err != nil {
		log.Fatalf("timeline: %v", err)
	}
	defer timeline.Pause()
	deps.Timeline = timeline

	// Temporal: prewarm scheduling
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    slog.Default(),
		})
		if err != nil {
			slog.Warn("temporal unavailable, prewarming disabled", "error", err)
		} else {
			defer tc.Close()
			deps.Prewarm = workflows.NewScheduler(tc, cfg.Temporal.TaskQueue)
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "NDVI Grid API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "viewports", len(grid.Viewports()))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// instanceID names this process among the instances sharing a grid.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ndvigrid"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// orderLike returns stored in the order of the configured sources, followed
// by catalog entries that are not configured, by year.
func orderLike(stored, configured []domain.TileSource) []domain.TileSource {
	byID := make(map[string]domain.TileSource, len(stored))
	for _, s := range stored {
		byID[s.ID] = s
	}
	out := make([]domain.TileSource, 0, len(stored))
	for _, c := range configured {
		if s, ok := byID[c.ID]; ok {
			out = append(out, s)
			delete(byID, c.ID)
		}
	}
	for _, s := range stored {
		if _, ok := byID[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

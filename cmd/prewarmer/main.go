package main

import (
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/ndvigrid/internal/adapters/tilesource"
	"github.com/samirrijal/ndvigrid/internal/adapters/valkey"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/pkg/config"
	"github.com/samirrijal/ndvigrid/internal/pkg/logging"
	"github.com/samirrijal/ndvigrid/internal/workflows"
)

func main() {
	cfg, err := config.Load("ndvigrid-prewarmer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	// Prewarming only makes sense in front of the shared tile cache.
	cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	var fetcher ports.TileFetcher = tilesource.NewHTTPFetcher(cfg.Grid.FetchTimeout, "ndvigrid-prewarmer")
	fetcher = tilesource.NewCachedFetcher(fetcher, cache, cfg.Grid.TileCacheTTL, slog.Default())

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.PrewarmWorkflow)
	w.RegisterActivity(&workflows.PrewarmActivities{
		Fetcher: fetcher,
		Log:     slog.Default().With("component", "prewarm"),
	})

	slog.Info("prewarm worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

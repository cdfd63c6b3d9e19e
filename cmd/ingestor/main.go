package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/ndvigrid/internal/adapters/postgres"
	"github.com/samirrijal/ndvigrid/internal/adapters/tilesource"
	"github.com/samirrijal/ndvigrid/internal/adapters/vectorgrid"
	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/pkg/config"
	"github.com/samirrijal/ndvigrid/internal/pkg/logging"
)

// ---------------------------------------------------------------------------
// Manifest types
// ---------------------------------------------------------------------------

// Manifest lists tile sources to add to the catalog.
type Manifest struct {
	Source  string              `json:"source"`
	Sources []domain.TileSource `json:"sources"`
}

// probeResult is what one source returned for the probe tile.
type probeResult struct {
	Source domain.TileSource
	Layers []string
	Bytes  int
	Err    error
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

// The ingestor probes every source of a manifest with one tile under the
// configured initial view and writes the reachable ones to the catalog.
//
//	ingestor [manifest.json] [id,id,...]
//
// Without a manifest the configured sources are ingested.
func main() {
	cfg, err := config.Load("ndvigrid-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	repo := postgres.NewTileSourceRepo(db)

	manifest := Manifest{Source: "config", Sources: cfg.Grid.Sources}
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			log.Fatalf("read manifest: %v", err)
		}
		if err := json.Unmarshal(data, &manifest); err != nil {
			log.Fatalf("parse manifest: %v", err)
		}
	}

	// Filter sources (optional CLI arg: id list)
	idFilter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, id := range strings.Split(os.Args[2], ",") {
			idFilter[strings.TrimSpace(id)] = true
		}
	}

	slog.Info("NDVI catalog ingestor", "sources", len(manifest.Sources), "from", manifest.Source)

	fetcher := tilesource.NewHTTPFetcher(cfg.Grid.FetchTimeout, "ndvigrid-ingestor")
	view := cfg.Grid.InitialView()
	tile := maptile.At(orb.Point{view.Center.Lng, view.Center.Lat}, maptile.Zoom(view.Zoom))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []probeResult
	)
	sem := make(chan struct{}, 4) // max 4 concurrent probes

	for _, src := range manifest.Sources {
		if len(idFilter) > 0 && !idFilter[src.ID] {
			continue
		}

		wg.Add(1)
		go func(s domain.TileSource) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := probe(ctx, fetcher, s, tile)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Source.Year < results[j].Source.Year })

	ingested := 0
	for _, res := range results {
		logger := slog.With("source", res.Source.ID, "year", res.Source.Year)
		if res.Err != nil {
			logger.Error("probe failed, skipping", "url", res.Source.URLTemplate, "error", res.Err)
			continue
		}
		if len(res.Layers) == 0 {
			logger.Warn("probe tile is empty; layers will be discovered on first render", "tile", fmt.Sprintf("%d/%d/%d", tile.Z, tile.X, tile.Y))
		}
		src := res.Source
		if err := repo.Upsert(ctx, &src); err != nil {
			logger.Error("upsert failed", "error", err)
			continue
		}
		ingested++
		logger.Info("source ingested", "layers", res.Layers, "bytes", res.Bytes)
	}

	slog.Info("ingestion complete", "ingested", ingested, "probed", len(results))
	if ingested < len(results) {
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Per-source probe
// ---------------------------------------------------------------------------

func probe(ctx context.Context, fetcher ports.TileFetcher, src domain.TileSource, tile maptile.Tile) probeResult {
	res := probeResult{Source: src}
	if src.ID == "" || !vectorgrid.ValidTemplate(src.URLTemplate) {
		res.Err = fmt.Errorf("source %q: %w", src.ID, vectorgrid.ErrInvalidTemplate)
		return res
	}
	if src.Title == "" {
		res.Source.Title = fmt.Sprintf("%d NDVI", src.Year)
	}

	data, err := fetcher.Fetch(ctx, src.URLTemplate, int(tile.Z), int(tile.X), int(tile.Y))
	if err != nil {
		res.Err = err
		return res
	}
	res.Bytes = len(data)

	raw, err := vectorgrid.Inflate(data)
	if err != nil {
		res.Err = fmt.Errorf("inflate: %w", err)
		return res
	}
	res.Layers, res.Err = vectorgrid.LayerNames(raw)
	return res
}

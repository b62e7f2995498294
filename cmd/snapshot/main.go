// =============================================================================
// NEAREST GRID - SNAPSHOT
// =============================================================================
// One-shot tool: spawns a population, pairs every point with its nearest
// neighbour, prints the timing summary and writes the frame as PNG.
//
// USAGE:
//   go run ./cmd/snapshot -points 2000 -rows 20 -runs 10 -out frame.png
//
// World size, seed and render settings come from the same environment
// variables as the server; flags override them.
// =============================================================================
package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"nearest-grid/internal/config"
	"nearest-grid/internal/render"
	"nearest-grid/internal/sim"
	"nearest-grid/internal/spatial"
)

func main() {
	// Load environment
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env file found, using environment variables")
		}
	}

	appConfig := config.Load()

	points := flag.Int("points", appConfig.World.Points, "number of points to spawn")
	rows := flag.Int("rows", appConfig.World.Rows, "grid rows")
	seed := flag.Int64("seed", appConfig.World.Seed, "spawn seed (0 = time based)")
	workers := flag.Int("workers", appConfig.Batch.Workers, "batch workers")
	runs := flag.Int("runs", 1, "batches to run for the timing summary")
	verify := flag.Bool("verify", false, "cross-check every pair against a linear scan")
	out := flag.String("out", "frame.png", "PNG output path (empty to skip)")
	flag.Parse()

	appConfig.World.Points = *points
	appConfig.World.Rows = *rows
	appConfig.World.Seed = *seed
	appConfig.Batch.Workers = *workers
	appConfig.Batch.Rate = 0

	if err := appConfig.Validate(); err != nil {
		var cfgErr *spatial.ConfigError
		if errors.As(err, &cfgErr) {
			log.Fatalf("Grid configuration rejected (%s): %v", cfgErr.Field, err)
		}
		log.Fatalf("Configuration rejected: %v", err)
	}

	engine, err := sim.NewEngine(sim.EngineConfig{
		World:  appConfig.World,
		Batch:  appConfig.Batch,
		Limits: appConfig.Limits,
	})
	if err != nil {
		log.Fatalf("Engine: %v", err)
	}

	geom := engine.Geometry()
	gen := engine.Generation()
	log.Printf("World %.0fx%.0f, grid %dx%d, %d points, seed %d",
		geom.WorldWidth, geom.WorldHeight, geom.Columns, geom.Rows, gen.Count, gen.Seed)

	var snap *sim.Snapshot
	for i := 0; i < max(*runs, 1); i++ {
		snap = engine.RunBatch()
	}

	found := 0
	for _, p := range snap.Pairs {
		if p.To != 0 {
			found++
		}
	}
	stats := engine.GridStats()
	tel := engine.Telemetry()
	log.Printf("Pairs: %d of %d points have a neighbour", found, len(snap.Points))
	log.Printf("Grid: %d/%d cells occupied, max %d per cell, avg %.2f",
		stats.NonEmptyCells, stats.TotalCells, stats.MaxInCell, stats.AvgPerNonEmpty)
	log.Printf("Last batch: %s, %d cells scanned, %d verified candidates",
		snap.Elapsed, snap.Stats.CellsScanned+snap.Stats.VerifiedCells, snap.Stats.VerifiedCandidates)
	log.Printf("Timing over %d runs: mean %s, stddev %s, p50 %s, p95 %s, min %s, max %s",
		tel.Window, tel.Mean, tel.StdDev, tel.P50, tel.P95, tel.Min, tel.Max)

	if *verify {
		mismatches := 0
		for _, p := range snap.Pairs {
			_, linear, err := engine.Verify(p.From)
			if err != nil {
				log.Fatalf("Verify %d: %v", p.From, err)
			}
			var want uint64
			if linear.Nearest != nil {
				want = linear.Nearest.ID
			}
			if want != p.To {
				mismatches++
				log.Printf("Mismatch for %d: grid %d, linear %d", p.From, p.To, want)
			}
		}
		log.Printf("Verified %d pairs, %d mismatches", len(snap.Pairs), mismatches)
		if mismatches > 0 {
			os.Exit(1)
		}
	}

	if *out != "" {
		renderer := render.NewRenderer(appConfig.Render)
		if err := renderer.SavePNG(*out, snap, tel); err != nil {
			log.Fatalf("Write frame: %v", err)
		}
		log.Printf("Frame written to %s", *out)
	}
}

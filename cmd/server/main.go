package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nearest-grid/internal/api"
	"nearest-grid/internal/config"
	"nearest-grid/internal/render"
	"nearest-grid/internal/sim"
	"nearest-grid/internal/spatial"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🔎 ================================")
	log.Println("🔎  NEAREST GRID - SERVER")
	log.Println("🔎 ================================")

	appConfig := config.Load()
	if err := appConfig.Validate(); err != nil {
		var cfgErr *spatial.ConfigError
		if errors.As(err, &cfgErr) {
			log.Fatalf("❌ Grid configuration rejected (%s): %v", cfgErr.Field, err)
		}
		log.Fatalf("❌ Configuration rejected: %v", err)
	}
	worldCfg := appConfig.World
	serverCfg := appConfig.Server

	engine, err := sim.NewEngine(sim.EngineConfig{
		World:  worldCfg,
		Batch:  appConfig.Batch,
		Limits: appConfig.Limits,
	})
	if err != nil {
		log.Fatalf("❌ Engine: %v", err)
	}
	geom := engine.Geometry()
	log.Printf("🌍 World %.0fx%.0f, grid %dx%d (%.1fx%.1f cells), %d points",
		geom.WorldWidth, geom.WorldHeight, geom.Columns, geom.Rows, geom.CellWidth, geom.CellHeight, worldCfg.Points)
	limits := engine.GetLimits()
	log.Printf("🛡️ Resource limits: %d points, %d rows, %d cells", limits.MaxPoints, limits.MaxRows, limits.MaxCells)

	// Start event log
	if serverCfg.EventLogPath != "" {
		if err := engine.StartEventLog(serverCfg.EventLogPath); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		} else {
			log.Printf("📝 Event log: %s", serverCfg.EventLogPath)
		}
	}

	if serverCfg.DebugServer {
		if err := api.StartDebugServer(api.DefaultObservabilityConfig()); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	server := api.NewServer(engine, render.NewRenderer(appConfig.Render))

	// Run one batch so the first frame has lines
	engine.RunBatch()
	engine.Start()

	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	engine.Stop()
	engine.StopEventLog()
	log.Println("👋 Goodbye!")
}

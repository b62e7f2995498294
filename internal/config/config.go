// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for world, grid, batch and server settings.
//
// Every section has a DefaultX() and, where it makes sense, an XFromEnv()
// that applies environment overrides on top of the defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"nearest-grid/internal/spatial"
)

// =============================================================================
// WORLD & GRID CONFIGURATION
// =============================================================================

// WorldConfig describes the simulated world and its grid resolution.
type WorldConfig struct {
	Width  float64 // World width in world units (pixels for the renderer)
	Height float64 // World height
	Rows   int     // Grid rows; columns derive from the aspect ratio
	Points int     // Points spawned per reset
	Seed   int64   // Spawn seed, 0 = time based
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:  1920, // 1080p canvas
		Height: 1080,
		Rows:   10,
		Points: 500,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if w := getEnvFloat("WORLD_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvFloat("WORLD_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	if r := getEnvInt("GRID_ROWS", 0); r > 0 {
		cfg.Rows = r
	}
	if n := getEnvInt("POINT_COUNT", -1); n >= 0 {
		cfg.Points = n
	}
	if s := getEnvInt64("SPAWN_SEED", 0); s != 0 {
		cfg.Seed = s
	}

	return cfg
}

// Geometry builds the grid geometry for this world.
func (w WorldConfig) Geometry() (spatial.Geometry, error) {
	return spatial.NewGeometry(w.Width, w.Height, w.Rows)
}

// =============================================================================
// BATCH CONFIGURATION
// =============================================================================

// BatchConfig controls how full nearest-neighbour batches run.
type BatchConfig struct {
	Workers int // Parallel search workers, <= 1 means sequential
	Rate    int // Automatic batches per second, 0 = only on request
}

// DefaultBatch returns the default batch configuration.
func DefaultBatch() BatchConfig {
	return BatchConfig{
		Workers: 4,
		Rate:    0,
	}
}

// BatchFromEnv returns batch configuration with environment variable overrides.
func BatchFromEnv() BatchConfig {
	cfg := DefaultBatch()

	if w := getEnvInt("BATCH_WORKERS", 0); w > 0 {
		cfg.Workers = w
	}
	if r := getEnvInt("BATCH_RATE", -1); r >= 0 {
		cfg.Rate = r
	}

	return cfg
}

// =============================================================================
// RENDER CONFIGURATION
// =============================================================================

// RenderConfig holds frame rendering settings.
type RenderConfig struct {
	PointRadius float64
	LineWidth   float64
	ShowGrid    bool
}

// DefaultRender returns the default render configuration.
func DefaultRender() RenderConfig {
	return RenderConfig{
		PointRadius: 5,
		LineWidth:   2,
		ShowGrid:    true,
	}
}

// RenderFromEnv returns render configuration with environment variable overrides.
func RenderFromEnv() RenderConfig {
	cfg := DefaultRender()

	if r := getEnvFloat("RENDER_POINT_RADIUS", 0); r > 0 {
		cfg.PointRadius = r
	}
	if os.Getenv("RENDER_GRID") == "false" {
		cfg.ShowGrid = false
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int
	DebugServer  bool   // pprof + /metrics on localhost
	EventLogPath string // JSONL event log, "" disables
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:         3000,
		DebugServer:  true,
		EventLogPath: "events.jsonl",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.DebugServer = false
	}
	if path, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventLogPath = path
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// Limits caps what a reset request may ask for (DoS protection).
type Limits struct {
	MaxPoints int // Points per population
	MaxRows   int // Grid rows
	MaxCells  int // Rows * columns
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPoints: 100_000,
		MaxRows:   1_000,
		MaxCells:  1_000_000,
	}
}

// CheckPopulation validates a requested point count and geometry against the limits.
func (l Limits) CheckPopulation(points int, geom spatial.Geometry) error {
	if points < 0 || points > l.MaxPoints {
		return fmt.Errorf("point count %d outside [0, %d]", points, l.MaxPoints)
	}
	if geom.Rows > l.MaxRows {
		return fmt.Errorf("grid rows %d exceed limit %d", geom.Rows, l.MaxRows)
	}
	if geom.CellCount() > l.MaxCells {
		return fmt.Errorf("grid cells %d exceed limit %d", geom.CellCount(), l.MaxCells)
	}
	return nil
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World  WorldConfig
	Batch  BatchConfig
	Render RenderConfig
	Server ServerConfig
	Limits Limits
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		World:  WorldFromEnv(),
		Batch:  BatchFromEnv(),
		Render: RenderFromEnv(),
		Server: ServerFromEnv(),
		Limits: DefaultLimits(),
	}
}

// Validate checks the configuration before anything is built from it.
// Grid errors come back as *spatial.ConfigError.
func (c AppConfig) Validate() error {
	geom, err := c.World.Geometry()
	if err != nil {
		return err
	}
	if err := c.Limits.CheckPopulation(c.World.Points, geom); err != nil {
		return fmt.Errorf("world config: %w", err)
	}
	if c.Batch.Rate < 0 {
		return fmt.Errorf("batch rate %d must not be negative", c.Batch.Rate)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

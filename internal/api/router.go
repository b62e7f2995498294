package api

import (
	"io"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"nearest-grid/internal/sim"
	"nearest-grid/internal/spatial"
)

// EngineInterface defines the engine methods used by the API.
// This interface enables mocking for tests without a real population.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// GetSnapshot returns the latest lock-free immutable snapshot
	GetSnapshot() *sim.Snapshot
	// Reset replaces the population
	Reset(opts sim.ResetOptions) (sim.Generation, error)
	// RunBatch pairs every point with its nearest neighbour
	RunBatch() *sim.Snapshot
	// ClearPairs drops the pairing lines of the last batch
	ClearPairs() *sim.Snapshot
	// Nearest finds the neighbour of a stored point
	Nearest(id uint64) (sim.Neighbor, error)
	// NearestTo finds the stored point closest to a position
	NearestTo(x, y float64) sim.Neighbor
	// Verify compares the grid answer for a point with a linear scan
	Verify(id uint64) (grid, linear sim.Neighbor, err error)
	// GridState returns the geometry and bucket statistics of one grid
	GridState() (spatial.Geometry, spatial.GridStats)
	// Telemetry returns the rolling batch timing summary
	Telemetry() sim.TelemetrySummary
	// GetEventLogStats returns event log counters
	GetEventLogStats() map[string]interface{}
}

// FrameRenderer draws a snapshot as PNG.
type FrameRenderer interface {
	EncodePNG(w io.Writer, snap *sim.Snapshot, tel sim.TelemetrySummary) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    LimitConfig: &api.LimitConfig{
//	        Rate:  1000, // High limit for tests
//	        Burst: 1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the nearest-neighbour engine (required)
	Engine EngineInterface

	// Renderer serves /frame.png. If nil the route answers 404.
	Renderer FrameRenderer

	// RateLimiter is an optional pre-configured limiter.
	// If nil, a new one will be created using LimitConfig.
	RateLimiter *RequestLimiter

	// LimitConfig is only used if RateLimiter is nil. If both are nil,
	// DefaultLimitConfig applies.
	LimitConfig *LimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses DefaultCORSOrigins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the dependencies of the handler functions.
type routerHandlers struct {
	engine   EngineInterface
	renderer FrameRenderer
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// It starts no goroutines of its own and opens no listeners, so it is safe
// to use in tests with httptest.NewServer. When RateLimiter is nil the
// router owns a limiter whose cleanup goroutine lives for the process.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		limitCfg := DefaultLimitConfig
		if cfg.LimitConfig != nil {
			limitCfg = *cfg.LimitConfig
		}
		rateLimiter = NewRequestLimiter(limitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		engine:   cfg.Engine,
		renderer: cfg.Renderer,
	}

	r.Route("/api", func(r chi.Router) {
		// World
		r.Get("/state", h.handleGetState)
		r.Get("/points", h.handleGetPoints)
		r.Get("/grid", h.handleGetGrid)
		r.Post("/reset", h.handleReset)

		// Batches
		r.Post("/batch", h.handleRunBatch)
		r.Delete("/batch", h.handleClearBatch)
		r.Get("/telemetry", h.handleGetTelemetry)

		// Single queries
		r.Get("/nearest/{id}", h.handleNearest)
		r.Post("/query", h.handleQuery)
	})

	r.Get("/frame.png", h.handleFrame)

	return r
}

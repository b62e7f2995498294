package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"nearest-grid/internal/sim"
	"nearest-grid/internal/spatial"
)

// Server is the HTTP API server with WebSocket push of engine events.
type Server struct {
	engine      *sim.Engine
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *RequestLimiter

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer wires the API to a real engine and hooks the engine callbacks
// to metrics and the websocket hub.
//
// Background workers do NOT start until Start() is called.
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(engine *sim.Engine, renderer FrameRenderer) *Server {
	s := &Server{
		engine:      engine,
		wsHub:       NewWebSocketHub(),
		rateLimiter: NewRequestLimiter(DefaultLimitConfig),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Renderer:    renderer,
		RateLimiter: s.rateLimiter,
	})
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	engine.OnBatch = func(snap *sim.Snapshot, res spatial.BatchResult) {
		RecordBatch(res)
		s.wsHub.PublishBatch(snap)
	}
	engine.OnReset = func(snap *sim.Snapshot) {
		RecordReset(len(snap.Points))
		s.wsHub.PublishReset(snap)
	}
	RecordReset(len(engine.GetSnapshot().Points))

	return s
}

// Start runs the websocket hub and serves HTTP until Shutdown.
// Call this method only once.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	go s.eventLogStatsLoop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🖼️ Frame: http://localhost%s/frame.png", addr)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, closes websocket clients and stops the
// rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return err
}

// eventLogStatsLoop mirrors event log counters into prometheus.
func (s *Server) eventLogStatsLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.wsHub.done:
			return
		case <-ticker.C:
			stats := s.engine.GetEventLogStats()
			total, _ := stats["total"].(uint64)
			dropped, _ := stats["dropped"].(uint64)
			UpdateEventLogStats(total, dropped)
		}
	}
}

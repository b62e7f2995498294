package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"nearest-grid/internal/sim"
	"nearest-grid/internal/spatial"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 16

// batchResponse is the body of POST /api/batch and the batch:result event.
type batchResponse struct {
	Sequence   uint64              `json:"sequence"`
	Generation string              `json:"generation"`
	ElapsedNs  time.Duration       `json:"elapsedNs"`
	Found      int                 `json:"found"`
	Stats      spatial.SearchStats `json:"stats"`
	Pairs      []sim.PairSnapshot  `json:"pairs"`
}

func newBatchResponse(snap *sim.Snapshot) batchResponse {
	found := 0
	for _, p := range snap.Pairs {
		if p.To != 0 {
			found++
		}
	}
	pairs := snap.Pairs
	if pairs == nil {
		pairs = []sim.PairSnapshot{}
	}
	return batchResponse{
		Sequence:   snap.Sequence,
		Generation: snap.Generation.ID.String(),
		ElapsedNs:  snap.Elapsed,
		Found:      found,
		Stats:      snap.Stats,
		Pairs:      pairs,
	}
}

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.GetSnapshot()

	var lastBatch any
	if snap.Pairs != nil {
		lastBatch = map[string]any{
			"elapsedNs": snap.Elapsed,
			"pairs":     len(snap.Pairs),
			"stats":     snap.Stats,
		}
	}

	writeJSON(w, map[string]any{
		"sequence":   snap.Sequence,
		"generation": snap.Generation,
		"geometry":   snap.Geometry,
		"pointCount": len(snap.Points),
		"lastBatch":  lastBatch,
	})
}

func (h *routerHandlers) handleGetPoints(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.GetSnapshot()
	points := snap.Points
	if points == nil {
		points = []sim.PointSnapshot{}
	}
	writeJSON(w, map[string]any{
		"generation": snap.Generation.ID,
		"points":     points,
	})
}

func (h *routerHandlers) handleGetGrid(w http.ResponseWriter, r *http.Request) {
	geom, stats := h.engine.GridState()
	writeJSON(w, map[string]any{
		"geometry": geom,
		"stats":    stats,
	})
}

func (h *routerHandlers) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count *int  `json:"count"`
		Seed  int64 `json:"seed"`
		Rows  int   `json:"rows"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := sim.ResetOptions{Seed: req.Seed, Rows: req.Rows}
	if req.Count != nil {
		opts.Count = *req.Count
	} else {
		opts.Count = len(h.engine.GetSnapshot().Points)
	}

	gen, err := h.engine.Reset(opts)
	if err != nil {
		log.Printf("❌ Reset rejected: %v", err)
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap := h.engine.GetSnapshot()
	writeJSON(w, map[string]any{
		"generation": gen,
		"geometry":   snap.Geometry,
	})
}

func (h *routerHandlers) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, newBatchResponse(h.engine.RunBatch()))
}

func (h *routerHandlers) handleClearBatch(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.ClearPairs()
	writeJSON(w, map[string]any{
		"sequence": snap.Sequence,
		"cleared":  true,
	})
}

func (h *routerHandlers) handleGetTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"batches":  h.engine.Telemetry(),
		"eventLog": h.engine.GetEventLogStats(),
	})
}

func (h *routerHandlers) handleNearest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, "Invalid point id", http.StatusBadRequest)
		return
	}

	if verify, _ := strconv.ParseBool(r.URL.Query().Get("verify")); verify {
		grid, linear, err := h.engine.Verify(id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		agree := sameNeighbor(grid, linear)
		if !agree {
			log.Printf("⚠️ Grid and linear scan disagree for point %d: %+v vs %+v", id, grid.Nearest, linear.Nearest)
		}
		writeJSON(w, map[string]any{
			"grid":   grid,
			"linear": linear,
			"agree":  agree,
		})
		return
	}

	n, err := h.engine.Nearest(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, n)
}

func (h *routerHandlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.X == nil || req.Y == nil {
		writeError(w, "x and y are required", http.StatusBadRequest)
		return
	}

	writeJSON(w, h.engine.NearestTo(*req.X, *req.Y))
}

func (h *routerHandlers) handleFrame(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, "Rendering disabled", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.EncodePNG(&buf, h.engine.GetSnapshot(), h.engine.Telemetry()); err != nil {
		log.Printf("❌ Frame render failed: %v", err)
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// sameNeighbor compares two answers by neighbour id. Distances are computed
// from the same coordinates so equal ids mean equal distances.
func sameNeighbor(a, b sim.Neighbor) bool {
	if a.Nearest == nil || b.Nearest == nil {
		return a.Nearest == nil && b.Nearest == nil
	}
	return a.Nearest.ID == b.Nearest.ID
}

// Helper functions (package-level for reuse)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, spatial.ErrUnknownPoint) {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeError(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

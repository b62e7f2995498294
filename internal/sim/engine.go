package sim

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"nearest-grid/internal/config"
	"nearest-grid/internal/spatial"
)

// EngineConfig is everything the engine needs at construction.
type EngineConfig struct {
	World  config.WorldConfig
	Batch  config.BatchConfig
	Limits config.Limits
}

// ResetOptions describes a new population. Zero Rows keeps the current grid
// resolution; zero Seed picks a time-based one.
type ResetOptions struct {
	Count int
	Seed  int64
	Rows  int
}

// Neighbor is the value form of a search result handed outside the engine.
type Neighbor struct {
	Point    PointSnapshot       `json:"point"`
	Nearest  *PointSnapshot      `json:"nearest"` // nil when no other point exists
	Distance float64             `json:"distance"`
	Stats    spatial.SearchStats `json:"stats"`
}

// Engine owns one grid and point store and runs nearest-neighbour batches
// over it.
//
// Reset is the only mutator and takes the write lock, so it acts as a
// barrier: a batch or query holding the read lock always sees one complete
// population, never a half-cleared grid.
type Engine struct {
	mu     sync.RWMutex
	geom   spatial.Geometry
	store  *spatial.PointStore
	ids    *spatial.IDSource
	runner spatial.BatchRunner
	limits config.Limits
	gen    Generation

	snapshot atomic.Pointer[Snapshot]
	sequence atomic.Uint64

	telemetry *Telemetry
	eventLog  *EventLog

	batchRate int
	loopMu    sync.Mutex
	running   bool
	stopChan  chan struct{}
	loopDone  chan struct{}

	// Callbacks run after the lock is released. Set them before Start.
	OnBatch func(snap *Snapshot, res spatial.BatchResult)
	OnReset func(snap *Snapshot)
}

// NewEngine validates the grid configuration and spawns the initial
// population. A bad grid comes back as *spatial.ConfigError before anything
// is allocated.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	geom, err := cfg.World.Geometry()
	if err != nil {
		return nil, err
	}

	ids := &spatial.IDSource{}
	e := &Engine{
		geom:      geom,
		ids:       ids,
		store:     spatial.NewPointStore(spatial.NewGrid(geom), ids),
		runner:    spatial.BatchRunner{Workers: cfg.Batch.Workers},
		limits:    cfg.Limits,
		telemetry: &Telemetry{},
		eventLog:  NewEventLog(),
		batchRate: cfg.Batch.Rate,
	}

	if _, err := e.Reset(ResetOptions{Count: cfg.World.Points, Seed: cfg.World.Seed}); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset replaces the whole population. Invalid options leave the current
// population untouched.
func (e *Engine) Reset(opts ResetOptions) (Generation, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Geometry and limits are resolved against the grid held under the lock.
	e.mu.Lock()
	geom, err := e.resetGeometryLocked(opts)
	if err != nil {
		e.mu.Unlock()
		return Generation{}, err
	}
	if geom != e.geom {
		e.geom = geom
		e.store = spatial.NewPointStore(spatial.NewGrid(geom), e.ids)
	}
	if err := spatial.Spawn(e.store, opts.Count, rng); err != nil {
		e.mu.Unlock()
		return Generation{}, err
	}
	e.gen = Generation{
		ID:        uuid.New(),
		Seed:      seed,
		Count:     opts.Count,
		CreatedAt: time.Now(),
	}
	gen := e.gen
	snap := e.produceSnapshotLocked(nil)
	e.mu.Unlock()

	e.telemetry.Reset()
	e.eventLog.Emit(NewEvent(EventTypeReset, gen.ID.String(), ResetPayload{
		Seed:    seed,
		Count:   opts.Count,
		Rows:    geom.Rows,
		Columns: geom.Columns,
		Width:   geom.WorldWidth,
		Height:  geom.WorldHeight,
	}))
	log.Printf("🔁 World reset: %d points, %dx%d grid, seed %d (generation %s)",
		opts.Count, geom.Columns, geom.Rows, seed, gen.ID)

	if e.OnReset != nil {
		e.OnReset(snap)
	}
	return gen, nil
}

// resetGeometryLocked returns the geometry a reset with opts would use.
// Rows == 0 keeps the current resolution. Must hold e.mu.
func (e *Engine) resetGeometryLocked(opts ResetOptions) (spatial.Geometry, error) {
	geom := e.geom
	if opts.Rows > 0 && opts.Rows != geom.Rows {
		g, err := spatial.NewGeometry(geom.WorldWidth, geom.WorldHeight, opts.Rows)
		if err != nil {
			return spatial.Geometry{}, err
		}
		geom = g
	}
	if err := e.limits.CheckPopulation(opts.Count, geom); err != nil {
		return spatial.Geometry{}, fmt.Errorf("reset: %w", err)
	}
	return geom, nil
}

// RunBatch finds the nearest neighbour of every point and publishes the
// pairings in a new snapshot.
func (e *Engine) RunBatch() *Snapshot {
	e.mu.RLock()
	res := e.runner.Run(e.store)
	snap := e.produceSnapshotLocked(&res)
	gen := e.gen
	e.mu.RUnlock()

	e.telemetry.Record(res.Elapsed)
	e.eventLog.Emit(NewEvent(EventTypeBatch, gen.ID.String(), BatchPayload{
		Pairs:        len(res.Pairs),
		Found:        res.Found(),
		ElapsedNs:    res.Elapsed.Nanoseconds(),
		CellsScanned: res.Stats.CellsScanned + res.Stats.VerifiedCells,
		Verified:     res.Stats.VerifiedCandidates,
		Workers:      e.runner.Workers,
	}))

	if e.OnBatch != nil {
		e.OnBatch(snap, res)
	}
	return snap
}

// ClearPairs publishes a snapshot of the current population without pairing
// lines.
func (e *Engine) ClearPairs() *Snapshot {
	e.mu.RLock()
	snap := e.produceSnapshotLocked(nil)
	gen := e.gen
	e.mu.RUnlock()

	e.eventLog.Emit(NewEvent(EventTypeClear, gen.ID.String(), nil))
	return snap
}

// Nearest returns the nearest neighbour of a stored point.
func (e *Engine) Nearest(id uint64) (Neighbor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.store.Get(spatial.PointID(id))
	if !ok {
		return Neighbor{}, fmt.Errorf("nearest to %d: %w", id, spatial.ErrUnknownPoint)
	}
	return neighborFrom(snapshotPoint(p), spatial.NearestTo(e.store, p.Pos, p.ID)), nil
}

// NearestTo returns the stored point nearest to an arbitrary position.
// Positions outside the world are searched from the nearest edge cell.
func (e *Engine) NearestTo(x, y float64) Neighbor {
	e.mu.RLock()
	defer e.mu.RUnlock()

	query := PointSnapshot{X: x, Y: y}
	return neighborFrom(query, spatial.NearestTo(e.store, r2.Vec{X: x, Y: y}, spatial.NoPoint))
}

// Verify cross-checks the grid search for a stored point against a linear
// scan. Callers compare the two answers.
func (e *Engine) Verify(id uint64) (grid, linear Neighbor, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.store.Get(spatial.PointID(id))
	if !ok {
		return Neighbor{}, Neighbor{}, fmt.Errorf("verify %d: %w", id, spatial.ErrUnknownPoint)
	}
	self := snapshotPoint(p)
	grid = neighborFrom(self, spatial.NearestTo(e.store, p.Pos, p.ID))
	linear = neighborFrom(self, spatial.BruteForceNearest(e.store, p.Pos, p.ID))
	return grid, linear, nil
}

// GetSnapshot returns the latest published snapshot (never nil after NewEngine).
func (e *Engine) GetSnapshot() *Snapshot {
	return e.snapshot.Load()
}

// GridStats returns bucket statistics of the current grid.
func (e *Engine) GridStats() spatial.GridStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Grid().Stats()
}

// GridState returns the geometry and bucket statistics of the same grid.
func (e *Engine) GridState() (spatial.Geometry, spatial.GridStats) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.geom, e.store.Grid().Stats()
}

// Geometry returns the current grid geometry.
func (e *Engine) Geometry() spatial.Geometry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.geom
}

// Generation returns the current population's generation.
func (e *Engine) Generation() Generation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen
}

// Telemetry returns the rolling batch timing summary.
func (e *Engine) Telemetry() TelemetrySummary {
	return e.telemetry.Summary()
}

// GetLimits returns the engine's resource limits.
func (e *Engine) GetLimits() config.Limits {
	return e.limits
}

// Start runs a batch BatchConfig.Rate times per second until Stop.
// With a zero rate batches only run on request and Start is a no-op.
func (e *Engine) Start() {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.running || e.batchRate <= 0 {
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.loopDone = make(chan struct{})

	ticker := time.NewTicker(time.Second / time.Duration(e.batchRate))
	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.RunBatch()
			case <-stop:
				return
			}
		}
	}(e.stopChan, e.loopDone)

	log.Printf("⏱️ Batch loop started at %d batches/s", e.batchRate)
}

// Stop stops the batch loop and waits for an in-flight batch to finish.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	close(e.stopChan)
	<-e.loopDone
	log.Println("🛑 Batch loop stopped")
}

// StartEventLog starts the JSONL event log at filePath.
func (e *Engine) StartEventLog(filePath string) error {
	return e.eventLog.Start(filePath)
}

// StopEventLog flushes and closes the event log.
func (e *Engine) StopEventLog() {
	e.eventLog.Stop()
}

// GetEventLogStats returns event log counters.
func (e *Engine) GetEventLogStats() map[string]interface{} {
	return e.eventLog.GetStats()
}

// produceSnapshotLocked publishes a snapshot of the current population with
// the given batch's pairings (nil for none). Caller holds e.mu.
func (e *Engine) produceSnapshotLocked(res *spatial.BatchResult) *Snapshot {
	points := e.store.Points()
	snap := &Snapshot{
		Sequence:   e.sequence.Add(1),
		Timestamp:  time.Now(),
		Generation: e.gen,
		Geometry:   e.geom,
		Points:     make([]PointSnapshot, len(points)),
	}
	for i, p := range points {
		snap.Points[i] = snapshotPoint(p)
	}
	if res != nil {
		snap.Pairs = snapshotPairs(res.Pairs)
		snap.Elapsed = res.Elapsed
		snap.Stats = res.Stats
	}

	// Concurrent batches may finish out of order; keep the newest.
	for {
		cur := e.snapshot.Load()
		if cur != nil && cur.Sequence > snap.Sequence {
			return cur
		}
		if e.snapshot.CompareAndSwap(cur, snap) {
			return snap
		}
	}
}

func neighborFrom(self PointSnapshot, res spatial.SearchResult) Neighbor {
	n := Neighbor{Point: self, Distance: res.Distance, Stats: res.Stats}
	if res.Found() {
		near := snapshotPoint(res.Nearest)
		n.Nearest = &near
	}
	return n
}

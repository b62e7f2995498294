package spatial

import (
	"time"

	"golang.org/x/sync/errgroup"
)

// Pair is one point and its nearest neighbour. Nearest is nil when the
// store holds no other point.
type Pair struct {
	Point    *Point
	Nearest  *Point
	Distance float64
}

// BatchResult collects the pairings of one batch run.
type BatchResult struct {
	Pairs   []Pair
	Elapsed time.Duration
	Stats   SearchStats
}

// BatchRunner queries the nearest neighbour of every point in a store.
//
// With Workers > 1 the points are split into contiguous chunks searched
// concurrently; the store and grid are only read, so the caller must keep
// them unchanged until Run returns. Pairs are indexed like store.Points(),
// but consumers should not depend on that order.
type BatchRunner struct {
	Workers int
}

// minChunk keeps tiny batches from paying goroutine overhead per point.
const minChunk = 64

// Run searches every point and times the whole batch.
func (b BatchRunner) Run(store *PointStore) BatchResult {
	start := time.Now()
	points := store.Points()
	pairs := make([]Pair, len(points))

	workers := b.Workers
	if workers <= 1 || len(points) <= minChunk {
		stats := searchRange(store, points, pairs)
		return BatchResult{Pairs: pairs, Elapsed: time.Since(start), Stats: stats}
	}

	chunk := (len(points) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}
	chunks := (len(points) + chunk - 1) / chunk
	stats := make([]SearchStats, chunks)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < chunks; i++ {
		i := i
		lo := i * chunk
		hi := min(lo+chunk, len(points))
		g.Go(func() error {
			stats[i] = searchRange(store, points[lo:hi], pairs[lo:hi])
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	var total SearchStats
	for _, s := range stats {
		total.Add(s)
	}
	return BatchResult{Pairs: pairs, Elapsed: time.Since(start), Stats: total}
}

func searchRange(store *PointStore, points []*Point, out []Pair) SearchStats {
	var stats SearchStats
	for i, p := range points {
		res := NearestTo(store, p.Pos, p.ID)
		out[i] = Pair{Point: p, Nearest: res.Nearest, Distance: res.Distance}
		stats.Add(res.Stats)
	}
	return stats
}

// Found returns how many pairs have a neighbour.
func (r BatchResult) Found() int {
	n := 0
	for _, p := range r.Pairs {
		if p.Nearest != nil {
			n++
		}
	}
	return n
}

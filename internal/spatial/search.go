package spatial

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// verifyPad widens the verification box by a relative margin so a tie at
// exactly the provisional radius is not lost to sqrt rounding.
const verifyPad = 1e-9

// SearchResult is the outcome of one nearest-neighbour query.
type SearchResult struct {
	Nearest  *Point // nil when the store holds no other point
	Distance float64
	Stats    SearchStats
}

// Found reports whether a neighbour exists.
func (r SearchResult) Found() bool {
	return r.Nearest != nil
}

// SearchStats counts the work a query did. Layers and the two ring counters
// cover the expansion; the Verified counters cover the refinement pass.
type SearchStats struct {
	Layers             int `json:"layers"`
	CellsScanned       int `json:"cellsScanned"`
	Candidates         int `json:"candidates"`
	VerifiedCells      int `json:"verifiedCells"`
	VerifiedCandidates int `json:"verifiedCandidates"`
}

// Add accumulates o into s.
func (s *SearchStats) Add(o SearchStats) {
	s.Layers += o.Layers
	s.CellsScanned += o.CellsScanned
	s.Candidates += o.Candidates
	s.VerifiedCells += o.VerifiedCells
	s.VerifiedCandidates += o.VerifiedCandidates
}

// Nearest returns the stored point closest to the point with the given id,
// excluding the point itself.
func Nearest(store *PointStore, id PointID) (SearchResult, error) {
	p, ok := store.Get(id)
	if !ok {
		return SearchResult{}, fmt.Errorf("nearest to %d: %w", id, ErrUnknownPoint)
	}
	return NearestTo(store, p.Pos, p.ID), nil
}

// NearestTo returns the stored point closest to pos, ignoring the point
// whose id is exclude (use NoPoint to consider every point). Positions
// outside the world are searched from the nearest edge cell.
//
// The search grows a square window of cells around pos's cell one layer at
// a time, scanning only the newly exposed ring. Once candidates exist, the
// expansion continues until a layer adds none, or the window covers the
// whole grid. Ring
// distance is not Euclidean distance, so the provisional nearest is then
// verified by scanning every cell the disc of its radius touches that the
// window did not already cover. Ties go to the lowest id.
func NearestTo(store *PointStore, pos r2.Vec, exclude PointID) SearchResult {
	s := searcher{grid: store.Grid(), pos: pos, exclude: exclude}
	return s.run()
}

// BruteForceNearest is the linear reference scan with the same tie-break
// as NearestTo.
func BruteForceNearest(store *PointStore, pos r2.Vec, exclude PointID) SearchResult {
	s := searcher{pos: pos, exclude: exclude}
	for _, p := range store.Points() {
		s.consider(p)
	}
	res := s.result()
	res.Stats.Candidates = s.seen
	return res
}

type searcher struct {
	grid    *Grid
	pos     r2.Vec
	exclude PointID

	best   *Point
	bestD2 float64
	seen   int
}

func (s *searcher) run() SearchResult {
	geom := s.grid.Geometry()
	home := s.grid.CellFor(s.pos)
	full := cellBox{hi: Cell{Col: geom.Columns - 1, Row: geom.Rows - 1}}

	var stats SearchStats
	prev := emptyBox
	var window cellBox

	for layer := 0; ; layer++ {
		window = cellBox{
			lo: Cell{Col: max(home.Col-layer, 0), Row: max(home.Row-layer, 0)},
			hi: Cell{Col: min(home.Col+layer, full.hi.Col), Row: min(home.Row+layer, full.hi.Row)},
		}
		before := s.seen
		stats.Layers++
		stats.CellsScanned += s.scan(window, prev)

		// Stop on the first layer that adds nothing to a non-empty set.
		if before > 0 && s.seen == before {
			break
		}
		if window == full {
			break
		}
		prev = window
	}
	stats.Candidates = s.seen

	if s.best == nil {
		return SearchResult{Stats: stats}
	}

	r := math.Sqrt(s.bestD2)
	r += r * verifyPad
	lo, hi := s.grid.CellRange(r2.Box{
		Min: r2.Vec{X: s.pos.X - r, Y: s.pos.Y - r},
		Max: r2.Vec{X: s.pos.X + r, Y: s.pos.Y + r},
	})
	s.seen = 0
	stats.VerifiedCells = s.scan(cellBox{lo: lo, hi: hi}, window)
	stats.VerifiedCandidates = s.seen

	res := s.result()
	res.Stats = stats
	return res
}

// scan visits every cell of box outside skip and returns the number of
// cells visited.
func (s *searcher) scan(box, skip cellBox) int {
	cells := 0
	for row := box.lo.Row; row <= box.hi.Row; row++ {
		if row < skip.lo.Row || row > skip.hi.Row {
			for col := box.lo.Col; col <= box.hi.Col; col++ {
				s.visit(Cell{Col: col, Row: row})
				cells++
			}
			continue
		}
		for col := box.lo.Col; col <= box.hi.Col && col < skip.lo.Col; col++ {
			s.visit(Cell{Col: col, Row: row})
			cells++
		}
		for col := max(box.lo.Col, skip.hi.Col+1); col <= box.hi.Col; col++ {
			s.visit(Cell{Col: col, Row: row})
			cells++
		}
	}
	return cells
}

func (s *searcher) visit(c Cell) {
	for _, p := range s.grid.Bucket(c) {
		s.consider(p)
	}
}

func (s *searcher) consider(p *Point) {
	if p.ID == s.exclude {
		return
	}
	s.seen++
	d2 := r2.Norm2(r2.Sub(p.Pos, s.pos))
	if s.best == nil || d2 < s.bestD2 || (d2 == s.bestD2 && p.ID < s.best.ID) {
		s.best = p
		s.bestD2 = d2
	}
}

func (s *searcher) result() SearchResult {
	if s.best == nil {
		return SearchResult{}
	}
	return SearchResult{Nearest: s.best, Distance: math.Sqrt(s.bestD2)}
}

// cellBox is an inclusive rectangle of cells.
type cellBox struct {
	lo, hi Cell
}

// emptyBox contains no cell, so scanning with it as skip visits everything.
var emptyBox = cellBox{lo: Cell{Col: 1, Row: 1}, hi: Cell{Col: 0, Row: 0}}

package sim

import (
	"cmp"
	"fmt"
	"image/color"
	"slices"
	"time"

	"github.com/google/uuid"

	"nearest-grid/internal/spatial"
)

// Generation identifies one spawned population. Every reset creates a new one.
type Generation struct {
	ID        uuid.UUID `json:"id"`
	Seed      int64     `json:"seed"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
}

// PointSnapshot is an immutable copy of a point for rendering and the API.
type PointSnapshot struct {
	ID    uint64  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

// PairSnapshot is one pairing line. To is 0 when the point has no neighbour.
type PairSnapshot struct {
	From     uint64  `json:"from"`
	To       uint64  `json:"to"`
	Distance float64 `json:"distance"`
}

// Snapshot is the immutable published state: the current population and
// the pairings of the last batch over it. Readers get it lock-free.
type Snapshot struct {
	Sequence   uint64              `json:"sequence"`
	Timestamp  time.Time           `json:"timestamp"`
	Generation Generation          `json:"generation"`
	Geometry   spatial.Geometry    `json:"geometry"`
	Points     []PointSnapshot     `json:"points"`
	Pairs      []PairSnapshot      `json:"pairs"` // nil until a batch ran on this generation
	Elapsed    time.Duration       `json:"elapsedNs"`
	Stats      spatial.SearchStats `json:"stats"`
}

// PointByID finds a point in the snapshot (points are in ascending id order).
func (s *Snapshot) PointByID(id uint64) (PointSnapshot, bool) {
	i, ok := slices.BinarySearchFunc(s.Points, id, func(p PointSnapshot, id uint64) int {
		return cmp.Compare(p.ID, id)
	})
	if !ok {
		return PointSnapshot{}, false
	}
	return s.Points[i], true
}

func snapshotPoint(p *spatial.Point) PointSnapshot {
	return PointSnapshot{
		ID:    uint64(p.ID),
		X:     p.Pos.X,
		Y:     p.Pos.Y,
		Color: HexColor(p.Color),
	}
}

func snapshotPairs(pairs []spatial.Pair) []PairSnapshot {
	out := make([]PairSnapshot, len(pairs))
	for i, p := range pairs {
		out[i] = PairSnapshot{From: uint64(p.Point.ID), Distance: p.Distance}
		if p.Nearest != nil {
			out[i].To = uint64(p.Nearest.ID)
		}
	}
	return out
}

// HexColor formats c as #rrggbb.
func HexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

package spatial

import (
	"fmt"
	"image/color"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r2"
)

// IDSource hands out point ids. It is monotonic for its whole lifetime, so
// ids are never reused across resets. Safe for concurrent use.
type IDSource struct {
	last atomic.Uint64
}

// Next returns a fresh, never zero id.
func (s *IDSource) Next() PointID {
	return PointID(s.last.Add(1))
}

// PointStore owns the point records and mirrors every insertion into its Grid.
// Points are added all at once after a Reset and never moved or removed
// individually.
type PointStore struct {
	grid   *Grid
	ids    *IDSource
	points []*Point // ascending id order
	byID   map[PointID]*Point
}

// NewPointStore creates an empty store backed by grid. A nil ids gets a
// private IDSource.
func NewPointStore(grid *Grid, ids *IDSource) *PointStore {
	if ids == nil {
		ids = &IDSource{}
	}
	return &PointStore{
		grid: grid,
		ids:  ids,
		byID: make(map[PointID]*Point),
	}
}

// Grid returns the grid the store mirrors into.
func (s *PointStore) Grid() *Grid {
	return s.grid
}

// Insert creates a point with a fresh id and places it in the grid.
func (s *PointStore) Insert(pos r2.Vec, c color.RGBA) (*Point, error) {
	p := &Point{ID: s.ids.Next(), Pos: pos, Color: c}
	if _, exists := s.byID[p.ID]; exists {
		return nil, fmt.Errorf("insert point %d: %w", p.ID, ErrDuplicateID)
	}
	if err := s.grid.Insert(p); err != nil {
		return nil, fmt.Errorf("insert point %d: %w", p.ID, err)
	}
	s.points = append(s.points, p)
	s.byID[p.ID] = p
	return p, nil
}

// Get returns the point with the given id.
func (s *PointStore) Get(id PointID) (*Point, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Points returns all points in ascending id order. The slice is owned by
// the store.
func (s *PointStore) Points() []*Point {
	return s.points
}

// Len returns the number of stored points.
func (s *PointStore) Len() int {
	return len(s.points)
}

// Reset drops every point and clears the grid.
func (s *PointStore) Reset() {
	clear(s.points)
	s.points = s.points[:0]
	clear(s.byID)
	s.grid.Clear()
}

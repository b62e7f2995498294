package spatial

import (
	"image/color"

	"gonum.org/v1/gonum/spatial/r2"
)

// PointID identifies a point for its whole lifetime. Zero means "no point".
type PointID uint64

// NoPoint is the zero PointID, never assigned to a stored point.
const NoPoint PointID = 0

// Point is a stored point. Color is carried for renderers; the search
// never looks at it.
type Point struct {
	ID    PointID
	Pos   r2.Vec
	Color color.RGBA
}

// Cell is a (column, row) grid coordinate.
type Cell struct {
	Col, Row int
}

// Grid is a uniform partition of the world into Rows x Columns buckets.
//
// Memory layout: buckets are stored in row-major order (cells[row*cols+col]).
// Clear keeps bucket capacity so a reset population reuses the allocations.
type Grid struct {
	geom  Geometry
	cells [][]*Point
	count int
}

// NewGrid creates an empty grid for geom. geom must come from NewGeometry.
func NewGrid(geom Geometry) *Grid {
	return &Grid{
		geom:  geom,
		cells: make([][]*Point, geom.CellCount()),
	}
}

// Geometry returns the grid's immutable geometry.
func (g *Grid) Geometry() Geometry {
	return g.geom
}

// Len returns the number of points in all buckets.
func (g *Grid) Len() int {
	return g.count
}

// CellFor maps a position to its bucket, clamping out-of-world positions
// into the nearest edge cell.
func (g *Grid) CellFor(pos r2.Vec) Cell {
	return Cell{Col: g.geom.column(pos.X), Row: g.geom.row(pos.Y)}
}

// CellRange returns the clamped, inclusive cell box covering b.
func (g *Grid) CellRange(b r2.Box) (lo, hi Cell) {
	return g.CellFor(b.Min), g.CellFor(b.Max)
}

// CellBounds returns the world-space rectangle of c.
func (g *Grid) CellBounds(c Cell) r2.Box {
	return g.geom.CellBounds(c)
}

// Insert adds p to the bucket containing p.Pos.
func (g *Grid) Insert(p *Point) error {
	idx := g.index(g.CellFor(p.Pos))
	for _, q := range g.cells[idx] {
		if q.ID == p.ID {
			return ErrDuplicateID
		}
	}
	g.cells[idx] = append(g.cells[idx], p)
	g.count++
	return nil
}

// Clear empties every bucket without releasing its memory.
func (g *Grid) Clear() {
	for i := range g.cells {
		clear(g.cells[i])
		g.cells[i] = g.cells[i][:0]
	}
	g.count = 0
}

// Bucket returns the points in cell c. The slice is owned by the grid and
// must not be modified; it is only valid until the next Clear.
func (g *Grid) Bucket(c Cell) []*Point {
	if c.Col < 0 || c.Col >= g.geom.Columns || c.Row < 0 || c.Row >= g.geom.Rows {
		return nil
	}
	return g.cells[g.index(c)]
}

func (g *Grid) index(c Cell) int {
	return c.Row*g.geom.Columns + c.Col
}

// Stats returns grid statistics for debugging/profiling.
func (g *Grid) Stats() GridStats {
	var maxInCell, nonEmpty int
	for _, cell := range g.cells {
		n := len(cell)
		if n > maxInCell {
			maxInCell = n
		}
		if n > 0 {
			nonEmpty++
		}
	}

	avg := 0.0
	if nonEmpty > 0 {
		avg = float64(g.count) / float64(nonEmpty)
	}

	return GridStats{
		Rows:           g.geom.Rows,
		Columns:        g.geom.Columns,
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalPoints:    g.count,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avg,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	Rows           int     `json:"rows"`
	Columns        int     `json:"columns"`
	TotalCells     int     `json:"totalCells"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	TotalPoints    int     `json:"totalPoints"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}

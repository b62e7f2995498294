// Package spatial provides the uniform grid partition and the nearest-neighbour
// search built on top of it.
//
// Buckets hold pointers into the PointStore; the store is the only owner of
// point records. Nothing in this package does I/O or starts goroutines except
// BatchRunner, which fans reads out over a stable store.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrDuplicateID is returned when a point id is inserted twice.
	ErrDuplicateID = errors.New("duplicate point id")

	// ErrUnknownPoint is returned when an id is not present in the store.
	ErrUnknownPoint = errors.New("unknown point")
)

// ConfigError reports an unusable grid configuration.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid grid config: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Geometry is the immutable shape of a grid: world bounds and cell layout.
// A different resolution means a new Geometry and a new Grid.
type Geometry struct {
	WorldWidth  float64 `json:"worldWidth"`
	WorldHeight float64 `json:"worldHeight"`
	Rows        int     `json:"rows"`
	Columns     int     `json:"columns"`
	CellWidth   float64 `json:"cellWidth"`
	CellHeight  float64 `json:"cellHeight"`
}

// NewGeometry derives the column count from rows and the world aspect ratio
// (truncated) and validates the result.
func NewGeometry(worldWidth, worldHeight float64, rows int) (Geometry, error) {
	if !(worldWidth > 0) || math.IsInf(worldWidth, 0) {
		return Geometry{}, &ConfigError{Field: "world_width", Value: worldWidth, Reason: "must be a positive finite number"}
	}
	if !(worldHeight > 0) || math.IsInf(worldHeight, 0) {
		return Geometry{}, &ConfigError{Field: "world_height", Value: worldHeight, Reason: "must be a positive finite number"}
	}
	if rows <= 0 {
		return Geometry{}, &ConfigError{Field: "rows", Value: float64(rows), Reason: "must be at least 1"}
	}

	cols := math.Floor(float64(rows) * (worldWidth / worldHeight))
	if cols < 1 {
		return Geometry{}, &ConfigError{Field: "columns", Value: cols, Reason: "derived column count is zero, world too narrow for this row count"}
	}
	if cols > math.MaxInt32 {
		return Geometry{}, &ConfigError{Field: "columns", Value: cols, Reason: "derived column count too large"}
	}
	columns := int(cols)

	return Geometry{
		WorldWidth:  worldWidth,
		WorldHeight: worldHeight,
		Rows:        rows,
		Columns:     columns,
		CellWidth:   worldWidth / float64(columns),
		CellHeight:  worldHeight / float64(rows),
	}, nil
}

// CellCount is Rows*Columns.
func (g Geometry) CellCount() int {
	return g.Rows * g.Columns
}

// CellBounds returns the world-space rectangle of c.
func (g Geometry) CellBounds(c Cell) r2.Box {
	x := float64(c.Col) * g.CellWidth
	y := float64(c.Row) * g.CellHeight
	return r2.Box{
		Min: r2.Vec{X: x, Y: y},
		Max: r2.Vec{X: x + g.CellWidth, Y: y + g.CellHeight},
	}
}

// column maps an x coordinate to a clamped column index.
// NaN clamps to 0, +Inf to the last column.
func (g Geometry) column(x float64) int {
	return clampIndex(math.Floor(x/g.CellWidth), g.Columns)
}

// row maps a y coordinate to a clamped row index.
func (g Geometry) row(y float64) int {
	return clampIndex(math.Floor(y/g.CellHeight), g.Rows)
}

// clampIndex clamps before converting, since int(NaN) and int(Inf) are
// implementation defined.
func clampIndex(f float64, n int) int {
	if !(f >= 0) {
		return 0
	}
	if f >= float64(n-1) {
		return n - 1
	}
	return int(f)
}

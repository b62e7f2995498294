package spatial

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeometry(t *testing.T) {
	tests := []struct {
		name          string
		width, height float64
		rows          int
		wantCols      int
	}{
		{"square world", 1000, 1000, 10, 10},
		{"16:9 two rows truncates", 1920, 1080, 2, 3},
		{"16:9 ten rows", 1920, 1080, 10, 17},
		{"single cell", 50, 50, 1, 1},
		{"tall world", 100, 400, 8, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGeometry(tt.width, tt.height, tt.rows)
			require.NoError(t, err)
			assert.Equal(t, tt.rows, g.Rows)
			assert.Equal(t, tt.wantCols, g.Columns)
			assert.InDelta(t, tt.width/float64(tt.wantCols), g.CellWidth, 1e-9)
			assert.InDelta(t, tt.height/float64(tt.rows), g.CellHeight, 1e-9)
			assert.Equal(t, tt.rows*tt.wantCols, g.CellCount())
		})
	}
}

func TestNewGeometryRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name          string
		width, height float64
		rows          int
		field         string
	}{
		{"zero rows", 1000, 1000, 0, "rows"},
		{"negative rows", 1000, 1000, -3, "rows"},
		{"zero width", 0, 1000, 10, "world_width"},
		{"negative height", 1000, -1, 10, "world_height"},
		{"NaN width", math.NaN(), 1000, 10, "world_width"},
		{"infinite height", 1000, math.Inf(1), 10, "world_height"},
		{"derived columns zero", 10, 1000, 5, "columns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGeometry(tt.width, tt.height, tt.rows)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected *ConfigError, got %T", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestClampIndex(t *testing.T) {
	tests := []struct {
		in   float64
		n    int
		want int
	}{
		{0, 10, 0},
		{9, 10, 9},
		{10, 10, 9},
		{-1, 10, 0},
		{math.NaN(), 10, 0},
		{math.Inf(1), 10, 9},
		{math.Inf(-1), 10, 0},
		{3, 1, 0},
	}
	for _, tt := range tests {
		if got := clampIndex(tt.in, tt.n); got != tt.want {
			t.Errorf("clampIndex(%v, %d) = %d, want %d", tt.in, tt.n, got, tt.want)
		}
	}
}

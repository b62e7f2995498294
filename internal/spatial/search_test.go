package spatial

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestNearestCollinear(t *testing.T) {
	store := newTestStore(t, 1000, 1000, 10,
		r2.Vec{X: 0, Y: 0},   // id 1
		r2.Vec{X: 10, Y: 0},  // id 2
		r2.Vec{X: 100, Y: 0}, // id 3
	)

	tests := []struct {
		from     PointID
		want     PointID
		distance float64
	}{
		{1, 2, 10},
		{3, 2, 90},
		{2, 1, 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("from %d", tt.from), func(t *testing.T) {
			res, err := Nearest(store, tt.from)
			require.NoError(t, err)
			require.True(t, res.Found())
			assert.Equal(t, tt.want, res.Nearest.ID)
			assert.InDelta(t, tt.distance, res.Distance, 1e-9)
		})
	}
}

func TestNearestSinglePointHasNoNeighbor(t *testing.T) {
	store := newTestStore(t, 1920, 1080, 10, r2.Vec{X: 900, Y: 500})

	res, err := Nearest(store, 1)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Nil(t, res.Nearest)

	// Every cell was scanned before giving up.
	assert.Equal(t, store.Grid().Geometry().CellCount(), res.Stats.CellsScanned)
}

func TestNearestEmptyStore(t *testing.T) {
	store := newTestStore(t, 500, 500, 5)
	res := NearestTo(store, r2.Vec{X: 250, Y: 250}, NoPoint)
	assert.False(t, res.Found())
}

func TestNearestUnknownID(t *testing.T) {
	store := newTestStore(t, 500, 500, 5, r2.Vec{X: 1, Y: 1})
	_, err := Nearest(store, 99)
	assert.ErrorIs(t, err, ErrUnknownPoint)
}

// The first candidate found by ring expansion is not the closest point when
// the closer one sits in a cell past the scanned window. Only the
// verification pass can find it.
func TestNearestVerificationFindsPointOutsideWindow(t *testing.T) {
	store := newTestStore(t, 1000, 1000, 10,
		r2.Vec{X: 199, Y: 100}, // id 1, query, cell (1,1)
		r2.Vec{X: 0, Y: 299},   // id 2, cell (0,2): first ring hit, distance ~281
		r2.Vec{X: 400, Y: 100}, // id 3, cell (4,1): outside the layer-2 window, distance 201
	)

	res, err := Nearest(store, 1)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, PointID(3), res.Nearest.ID)
	assert.InDelta(t, 201, res.Distance, 1e-9)

	assert.Equal(t, 3, res.Stats.Layers, "layer 1 finds id 2, layer 2 adds nothing")
	assert.Equal(t, 1, res.Stats.Candidates)
	assert.Equal(t, 1, res.Stats.VerifiedCandidates)
	assert.Positive(t, res.Stats.VerifiedCells)
}

// Expansion keeps going while each layer adds candidates and stops at the
// first layer that adds none.
func TestNearestExpandsUntilLayerAddsNothing(t *testing.T) {
	store := newTestStore(t, 1000, 1000, 10,
		r2.Vec{X: 550, Y: 550}, // id 1, query, cell (5,5)
		r2.Vec{X: 450, Y: 550}, // id 2, layer 1
		r2.Vec{X: 350, Y: 550}, // id 3, layer 2
		r2.Vec{X: 250, Y: 550}, // id 4, layer 3
	)

	res, err := Nearest(store, 1)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, PointID(2), res.Nearest.ID)
	assert.InDelta(t, 100, res.Distance, 1e-9)

	assert.Equal(t, 5, res.Stats.Layers, "layers 0 to 3, then the empty layer 4")
	assert.Equal(t, 3, res.Stats.Candidates)
	assert.Equal(t, 9*9, res.Stats.CellsScanned)
	assert.Zero(t, res.Stats.VerifiedCells, "the radius 100 disc lies inside the window")
}

// The first non-empty layer only holds a diagonal corner point; the true
// nearest sits one layer further out along an axis. Returning the first
// layer's best would pick the corner point.
func TestNearestDiagonalCellCorrectness(t *testing.T) {
	store := newTestStore(t, 900, 900, 9,
		r2.Vec{X: 450, Y: 450}, // id 1, query, centre of cell (4,4)
		r2.Vec{X: 301, Y: 301}, // id 2, diagonal cell (3,3), distance ~210.7
		r2.Vec{X: 450, Y: 251}, // id 3, cell (4,2), distance 199
	)

	res, err := Nearest(store, 1)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, PointID(3), res.Nearest.ID)
	assert.InDelta(t, 199, res.Distance, 1e-9)
}

func TestNearestTieBreaksOnLowestID(t *testing.T) {
	store := newTestStore(t, 1000, 1000, 10,
		r2.Vec{X: 500, Y: 500}, // id 1, query
		r2.Vec{X: 600, Y: 500}, // id 2, distance 100
		r2.Vec{X: 400, Y: 500}, // id 3, distance 100
		r2.Vec{X: 500, Y: 400}, // id 4, distance 100
	)

	for i := 0; i < 5; i++ {
		res, err := Nearest(store, 1)
		require.NoError(t, err)
		assert.Equal(t, PointID(2), res.Nearest.ID)
	}

	brute := BruteForceNearest(store, r2.Vec{X: 500, Y: 500}, 1)
	assert.Equal(t, PointID(2), brute.Nearest.ID)
}

func TestNearestCoincidentPoints(t *testing.T) {
	store := newTestStore(t, 100, 100, 4,
		r2.Vec{X: 50, Y: 50},
		r2.Vec{X: 50, Y: 50},
		r2.Vec{X: 90, Y: 90},
	)

	res, err := Nearest(store, 2)
	require.NoError(t, err)
	assert.Equal(t, PointID(1), res.Nearest.ID)
	assert.Zero(t, res.Distance)
}

func TestNearestToOutOfBoundsQueryClamps(t *testing.T) {
	store := newTestStore(t, 1000, 1000, 10,
		r2.Vec{X: 10, Y: 10},
		r2.Vec{X: 990, Y: 990},
		r2.Vec{X: 500, Y: 990},
	)

	tests := []struct {
		name string
		pos  r2.Vec
		want PointID
	}{
		{"far negative", r2.Vec{X: -5000, Y: -5000}, 1},
		{"far positive", r2.Vec{X: 5000, Y: 5000}, 2},
		{"below bottom edge", r2.Vec{X: 450, Y: 3000}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NearestTo(store, tt.pos, NoPoint)
			require.True(t, res.Found())
			assert.Equal(t, tt.want, res.Nearest.ID)
			assert.Equal(t, BruteForceNearest(store, tt.pos, NoPoint).Nearest.ID, res.Nearest.ID)
		})
	}
}

func TestNearestBoundaryPositions(t *testing.T) {
	store := newTestStore(t, 1000, 1000, 10,
		r2.Vec{X: 1000, Y: 1000}, // far corner
		r2.Vec{X: 100, Y: 100},   // exact cell corner
		r2.Vec{X: 0, Y: 1000},
		r2.Vec{X: 1000, Y: 0},
	)

	for _, p := range store.Points() {
		res, err := Nearest(store, p.ID)
		require.NoError(t, err)
		require.True(t, res.Found())
		want := BruteForceNearest(store, p.Pos, p.ID)
		assert.Equal(t, want.Nearest.ID, res.Nearest.ID)
	}
}

func TestNearestMatchesBruteForce(t *testing.T) {
	for _, rows := range []int{1, 2, 5, 10, 50, 200} {
		for seed := int64(1); seed <= 5; seed++ {
			t.Run(fmt.Sprintf("rows=%d/seed=%d", rows, seed), func(t *testing.T) {
				store := newTestStore(t, 1920, 1080, rows)
				require.NoError(t, Spawn(store, 300, rand.New(rand.NewSource(seed))))

				for _, p := range store.Points() {
					got := NearestTo(store, p.Pos, p.ID)
					want := BruteForceNearest(store, p.Pos, p.ID)
					require.True(t, got.Found())
					require.Equal(t, want.Nearest.ID, got.Nearest.ID, "point %d at %v", p.ID, p.Pos)
					require.Equal(t, want.Distance, got.Distance)
				}
			})
		}
	}
}

func TestNearestClusteredMatchesBruteForce(t *testing.T) {
	// Two tight clusters at opposite corners leave most cells empty.
	rng := rand.New(rand.NewSource(11))
	var positions []r2.Vec
	for i := 0; i < 40; i++ {
		positions = append(positions,
			r2.Vec{X: 20 + rng.Float64()*30, Y: 20 + rng.Float64()*30},
			r2.Vec{X: 1850 + rng.Float64()*30, Y: 1020 + rng.Float64()*30},
		)
	}
	store := newTestStore(t, 1920, 1080, 40, positions...)

	for _, p := range store.Points() {
		got := NearestTo(store, p.Pos, p.ID)
		want := BruteForceNearest(store, p.Pos, p.ID)
		require.Equal(t, want.Nearest.ID, got.Nearest.ID)
	}

	// Arbitrary queries in the empty middle.
	for i := 0; i < 50; i++ {
		q := r2.Vec{X: rng.Float64() * 1920, Y: rng.Float64() * 1080}
		got := NearestTo(store, q, NoPoint)
		want := BruteForceNearest(store, q, NoPoint)
		require.Equal(t, want.Nearest.ID, got.Nearest.ID, "query %v", q)
	}
}

func TestNearestIndependentOfResolution(t *testing.T) {
	rng := rand.New(rand.NewSource(2024))
	positions := make([]r2.Vec, 400)
	for i := range positions {
		positions[i] = r2.Vec{X: rng.Float64() * 1920, Y: rng.Float64() * 1080}
	}

	coarse := newTestStore(t, 1920, 1080, 5, positions...)
	fine := newTestStore(t, 1920, 1080, 50, positions...)

	for _, p := range coarse.Points() {
		a, err := Nearest(coarse, p.ID)
		require.NoError(t, err)
		b, err := Nearest(fine, p.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Nearest.ID, b.Nearest.ID)
		assert.Equal(t, a.Distance, b.Distance)
	}
}

func TestNearestIdempotent(t *testing.T) {
	store := newTestStore(t, 1920, 1080, 10)
	require.NoError(t, Spawn(store, 200, rand.New(rand.NewSource(5))))

	for _, p := range store.Points()[:20] {
		first, err := Nearest(store, p.ID)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			again, err := Nearest(store, p.ID)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestNearestNeverReturnsSelf(t *testing.T) {
	store := newTestStore(t, 300, 300, 3)
	require.NoError(t, Spawn(store, 60, rand.New(rand.NewSource(3))))

	for _, p := range store.Points() {
		res, err := Nearest(store, p.ID)
		require.NoError(t, err)
		require.True(t, res.Found())
		assert.NotEqual(t, p.ID, res.Nearest.ID)
		assert.False(t, math.IsNaN(res.Distance))
	}
}

func BenchmarkNearest_1000Points(b *testing.B)  { benchmarkNearest(b, 1000, 20) }
func BenchmarkNearest_10000Points(b *testing.B) { benchmarkNearest(b, 10000, 60) }

func benchmarkNearest(b *testing.B, n, rows int) {
	store := newTestStore(b, 1920, 1080, rows)
	if err := Spawn(store, n, rand.New(rand.NewSource(1))); err != nil {
		b.Fatal(err)
	}
	points := store.Points()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		p := points[i%len(points)]
		NearestTo(store, p.Pos, p.ID)
	}
}

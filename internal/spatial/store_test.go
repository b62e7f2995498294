package spatial

import (
	"image/color"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

// newTestStore builds a store over a fresh grid and inserts positions in
// order, so the i-th position gets id i+1.
func newTestStore(t testing.TB, width, height float64, rows int, positions ...r2.Vec) *PointStore {
	t.Helper()
	geom, err := NewGeometry(width, height, rows)
	require.NoError(t, err)
	store := NewPointStore(NewGrid(geom), nil)
	for _, pos := range positions {
		_, err := store.Insert(pos, color.RGBA{G: 255, A: 255})
		require.NoError(t, err)
	}
	return store
}

func TestPointStoreInsertMirrorsGrid(t *testing.T) {
	store := newTestStore(t, 1000, 1000, 10,
		r2.Vec{X: 5, Y: 5},
		r2.Vec{X: 555, Y: 555},
	)

	require.Equal(t, 2, store.Len())
	require.Equal(t, 2, store.Grid().Len())

	for _, p := range store.Points() {
		bucket := store.Grid().Bucket(store.Grid().CellFor(p.Pos))
		assert.Contains(t, bucket, p)

		got, ok := store.Get(p.ID)
		assert.True(t, ok)
		assert.Same(t, p, got)
	}

	_, ok := store.Get(NoPoint)
	assert.False(t, ok)
}

func TestPointStoreIDsAreMonotonicAcrossResets(t *testing.T) {
	ids := &IDSource{}
	geom, err := NewGeometry(100, 100, 2)
	require.NoError(t, err)
	store := NewPointStore(NewGrid(geom), ids)

	a, err := store.Insert(r2.Vec{X: 1, Y: 1}, color.RGBA{})
	require.NoError(t, err)
	b, err := store.Insert(r2.Vec{X: 2, Y: 2}, color.RGBA{})
	require.NoError(t, err)
	assert.Less(t, a.ID, b.ID)
	assert.NotEqual(t, NoPoint, a.ID)

	store.Reset()
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, store.Grid().Len())
	_, ok := store.Get(a.ID)
	assert.False(t, ok)

	c, err := store.Insert(r2.Vec{X: 3, Y: 3}, color.RGBA{})
	require.NoError(t, err)
	assert.Greater(t, c.ID, b.ID, "ids must not be reused after reset")
}

func TestIDSourceConcurrent(t *testing.T) {
	ids := &IDSource{}
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[PointID]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]PointID, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, ids.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestSpawn(t *testing.T) {
	store := newTestStore(t, 1920, 1080, 10)

	require.NoError(t, Spawn(store, 250, rand.New(rand.NewSource(42))))
	require.Equal(t, 250, store.Len())
	assert.Equal(t, 250, store.Grid().Len())

	geom := store.Grid().Geometry()
	for _, p := range store.Points() {
		assert.GreaterOrEqual(t, p.Pos.X, 0.0)
		assert.Less(t, p.Pos.X, geom.WorldWidth)
		assert.GreaterOrEqual(t, p.Pos.Y, 0.0)
		assert.Less(t, p.Pos.Y, geom.WorldHeight)
		assert.Equal(t, uint8(255), p.Color.A)
	}

	// Respawn fully replaces the population.
	first := store.Points()[0].ID
	require.NoError(t, Spawn(store, 10, rand.New(rand.NewSource(7))))
	assert.Equal(t, 10, store.Len())
	_, ok := store.Get(first)
	assert.False(t, ok)
}

func TestSpawnDeterministicPositions(t *testing.T) {
	a := newTestStore(t, 800, 600, 6)
	b := newTestStore(t, 800, 600, 6)
	require.NoError(t, Spawn(a, 50, rand.New(rand.NewSource(99))))
	require.NoError(t, Spawn(b, 50, rand.New(rand.NewSource(99))))

	for i := range a.Points() {
		assert.Equal(t, a.Points()[i].Pos, b.Points()[i].Pos)
	}
}

func TestSpawnNegativeCount(t *testing.T) {
	store := newTestStore(t, 100, 100, 1)
	assert.Error(t, Spawn(store, -1, rand.New(rand.NewSource(1))))
}

package spatial

import (
	"fmt"
	"image/color"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"
)

// Spawn resets the store and fills it with count points placed uniformly in
// [0, WorldWidth) x [0, WorldHeight) with a random colour.
//
// Spawn is not atomic on its own; callers that share the store with readers
// must hold their write lock for the duration (see sim.Engine.Reset).
func Spawn(store *PointStore, count int, rng *rand.Rand) error {
	if count < 0 {
		return fmt.Errorf("spawn: negative point count %d", count)
	}

	geom := store.Grid().Geometry()
	store.Reset()
	for i := 0; i < count; i++ {
		pos := r2.Vec{
			X: rng.Float64() * geom.WorldWidth,
			Y: rng.Float64() * geom.WorldHeight,
		}
		if _, err := store.Insert(pos, RandomColor(rng)); err != nil {
			store.Reset()
			return fmt.Errorf("spawn: %w", err)
		}
	}
	return nil
}

// RandomColor returns a bright opaque colour so points stay visible on a
// dark background.
func RandomColor(rng *rand.Rand) color.RGBA {
	return color.RGBA{
		R: uint8(64 + rng.Intn(192)),
		G: uint8(64 + rng.Intn(192)),
		B: uint8(64 + rng.Intn(192)),
		A: 255,
	}
}

package render

import (
	"bytes"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nearest-grid/internal/config"
	"nearest-grid/internal/sim"
	"nearest-grid/internal/spatial"
)

func testSnapshot(t *testing.T, width, height float64, rows int) *sim.Snapshot {
	t.Helper()
	geom, err := spatial.NewGeometry(width, height, rows)
	require.NoError(t, err)
	return &sim.Snapshot{
		Geometry: geom,
		Points: []sim.PointSnapshot{
			{ID: 1, X: 100, Y: 100, Color: "#ff0000"},
			{ID: 2, X: 200, Y: 150, Color: "#00ff00"},
			{ID: 3, X: 380, Y: 280, Color: "#0000ff"},
		},
		Pairs: []sim.PairSnapshot{
			{From: 1, To: 2, Distance: 111.8},
			{From: 2, To: 1, Distance: 111.8},
			{From: 3, To: 2, Distance: 217.6},
		},
		Elapsed: 120 * time.Microsecond,
	}
}

func TestRenderSizeMatchesWorld(t *testing.T) {
	r := NewRenderer(config.DefaultRender())
	img := r.Render(testSnapshot(t, 400, 300, 3), sim.TelemetrySummary{})

	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestRenderScalesLargeWorld(t *testing.T) {
	r := NewRenderer(config.DefaultRender())
	img := r.Render(testSnapshot(t, 2*MaxCanvas, MaxCanvas, 4), sim.TelemetrySummary{})

	assert.Equal(t, MaxCanvas, img.Bounds().Dx())
	assert.Equal(t, MaxCanvas/2, img.Bounds().Dy())
}

func TestRenderDrawsPoints(t *testing.T) {
	cfg := config.DefaultRender()
	cfg.ShowGrid = false
	r := NewRenderer(cfg)
	img := r.Render(testSnapshot(t, 400, 300, 3), sim.TelemetrySummary{})

	// Centre of point 3, away from the overlay and from any line end.
	got := color.RGBAModel.Convert(img.At(380, 280)).(color.RGBA)
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, got)

	// An empty corner keeps the background.
	got = color.RGBAModel.Convert(img.At(395, 5)).(color.RGBA)
	assert.Equal(t, backgroundColor, got)
}

func TestRenderWithoutPairs(t *testing.T) {
	snap := testSnapshot(t, 400, 300, 3)
	snap.Pairs = nil

	r := NewRenderer(config.DefaultRender())
	assert.NotPanics(t, func() { r.Render(snap, sim.TelemetrySummary{}) })
}

func TestEncodePNG(t *testing.T) {
	r := NewRenderer(config.DefaultRender())
	var buf bytes.Buffer
	require.NoError(t, r.EncodePNG(&buf, testSnapshot(t, 400, 300, 3), sim.TelemetrySummary{Window: 3, Mean: time.Millisecond}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	r := NewRenderer(config.DefaultRender())
	require.NoError(t, r.SavePNG(path, testSnapshot(t, 400, 300, 3), sim.TelemetrySummary{}))
	assert.FileExists(t, path)

	err := r.SavePNG(filepath.Join(t.TempDir(), "missing", "frame.png"), testSnapshot(t, 400, 300, 3), sim.TelemetrySummary{})
	assert.Error(t, err)
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#ff8000", color.RGBA{255, 128, 0, 255}},
		{"#000000", color.RGBA{0, 0, 0, 255}},
		{"ff8000", color.RGBA{255, 255, 255, 255}},
		{"#zzzzzz", color.RGBA{255, 255, 255, 255}},
		{"", color.RGBA{255, 255, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseHexColor(tt.in))
		})
	}
}

func TestParseHexColorRoundTrip(t *testing.T) {
	c := color.RGBA{12, 200, 99, 255}
	assert.Equal(t, c, ParseHexColor(sim.HexColor(c)))
}

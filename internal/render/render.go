// Package render draws engine snapshots with gg: grid outlines, points,
// pairing lines and a timing overlay.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"

	"nearest-grid/internal/config"
	"nearest-grid/internal/sim"
	"nearest-grid/internal/spatial"
)

// MaxCanvas caps the longer side of a frame in pixels. Larger worlds are
// scaled down to fit.
const MaxCanvas = 4096

var (
	backgroundColor = color.RGBA{12, 12, 28, 255}
	gridColor       = color.RGBA{40, 40, 60, 255}
	overlayColor    = color.RGBA{18, 18, 24, 220}
	accentColor     = color.RGBA{0, 212, 255, 255}
	textColor       = color.RGBA{230, 230, 240, 255}
	mutedTextColor  = color.RGBA{160, 165, 180, 255}
)

// Renderer turns snapshots into images. It holds no per-frame state and is
// safe for concurrent use.
type Renderer struct {
	cfg      config.RenderConfig
	fontPath string
}

// NewRenderer creates a renderer. A system TrueType font is used for the
// overlay when one is found, otherwise gg's built-in face.
func NewRenderer(cfg config.RenderConfig) *Renderer {
	return &Renderer{cfg: cfg, fontPath: findFontPath()}
}

// Render draws snap. tel feeds the overlay; pass the zero value to show
// only the snapshot's own timing.
func (r *Renderer) Render(snap *sim.Snapshot, tel sim.TelemetrySummary) image.Image {
	geom := snap.Geometry
	scale := canvasScale(geom)
	w := int(math.Ceil(geom.WorldWidth * scale))
	h := int(math.Ceil(geom.WorldHeight * scale))

	dc := gg.NewContext(max(w, 1), max(h, 1))
	r.drawBackground(dc)
	if r.cfg.ShowGrid {
		r.drawGrid(dc, geom, scale)
	}
	r.drawPairs(dc, snap, scale)
	r.drawPoints(dc, snap.Points, scale)
	r.drawOverlay(dc, snap, tel)
	return dc.Image()
}

// EncodePNG renders snap and writes it to w as PNG.
func (r *Renderer) EncodePNG(w io.Writer, snap *sim.Snapshot, tel sim.TelemetrySummary) error {
	return png.Encode(w, r.Render(snap, tel))
}

// SavePNG renders snap to a PNG file.
func (r *Renderer) SavePNG(path string, snap *sim.Snapshot, tel sim.TelemetrySummary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.EncodePNG(f, snap, tel); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func canvasScale(geom spatial.Geometry) float64 {
	longest := math.Max(geom.WorldWidth, geom.WorldHeight)
	if longest <= MaxCanvas {
		return 1
	}
	return MaxCanvas / longest
}

func (r *Renderer) drawBackground(dc *gg.Context) {
	dc.SetColor(backgroundColor)
	dc.DrawRectangle(0, 0, float64(dc.Width()), float64(dc.Height()))
	dc.Fill()
}

// drawGrid outlines every cell. Cells thinner than two pixels are skipped,
// they would only fill the frame with line colour.
func (r *Renderer) drawGrid(dc *gg.Context, geom spatial.Geometry, scale float64) {
	if geom.CellWidth*scale < 2 || geom.CellHeight*scale < 2 {
		return
	}

	dc.SetColor(gridColor)
	dc.SetLineWidth(1)

	for col := 0; col <= geom.Columns; col++ {
		x := geom.CellBounds(spatial.Cell{Col: col}).Min.X * scale
		dc.DrawLine(x, 0, x, geom.WorldHeight*scale)
	}
	for row := 0; row <= geom.Rows; row++ {
		y := geom.CellBounds(spatial.Cell{Row: row}).Min.Y * scale
		dc.DrawLine(0, y, geom.WorldWidth*scale, y)
	}
	dc.Stroke()
}

// drawPairs draws a line from each point to its nearest neighbour in the
// point's colour.
func (r *Renderer) drawPairs(dc *gg.Context, snap *sim.Snapshot, scale float64) {
	if len(snap.Pairs) == 0 {
		return
	}

	dc.SetLineWidth(r.cfg.LineWidth)
	for _, pair := range snap.Pairs {
		if pair.To == 0 {
			continue
		}
		from, ok := snap.PointByID(pair.From)
		if !ok {
			continue
		}
		to, ok := snap.PointByID(pair.To)
		if !ok {
			continue
		}
		c := ParseHexColor(from.Color)
		c.A = 200
		dc.SetColor(c)
		dc.DrawLine(from.X*scale, from.Y*scale, to.X*scale, to.Y*scale)
		dc.Stroke()
	}
}

func (r *Renderer) drawPoints(dc *gg.Context, points []sim.PointSnapshot, scale float64) {
	radius := math.Max(r.cfg.PointRadius*scale, 1)
	for _, p := range points {
		dc.SetColor(ParseHexColor(p.Color))
		dc.DrawCircle(p.X*scale, p.Y*scale, radius)
		dc.Fill()
	}
}

// drawOverlay shows the last batch time and the rolling summary in the top
// left corner.
func (r *Renderer) drawOverlay(dc *gg.Context, snap *sim.Snapshot, tel sim.TelemetrySummary) {
	lines := []string{
		fmt.Sprintf("points %d  grid %dx%d", len(snap.Points), snap.Geometry.Columns, snap.Geometry.Rows),
	}
	if snap.Pairs != nil {
		lines = append(lines, fmt.Sprintf("batch %s  cells %d  verified %d",
			snap.Elapsed, snap.Stats.CellsScanned+snap.Stats.VerifiedCells, snap.Stats.VerifiedCandidates))
	} else {
		lines = append(lines, "no batch yet")
	}
	if tel.Window > 0 {
		lines = append(lines, fmt.Sprintf("mean %s  p95 %s  (%d runs)", tel.Mean, tel.P95, tel.Window))
	}

	fontSize := 14.0
	if r.fontPath != "" {
		_ = dc.LoadFontFace(r.fontPath, fontSize)
	}
	lineHeight := dc.FontHeight() * 1.5

	const margin, padding = 12.0, 10.0
	boxW := 0.0
	for _, l := range lines {
		w, _ := dc.MeasureString(l)
		boxW = math.Max(boxW, w)
	}
	boxW += 2 * padding
	boxH := float64(len(lines))*lineHeight + padding

	dc.SetColor(overlayColor)
	dc.DrawRoundedRectangle(margin, margin, boxW, boxH, 6)
	dc.Fill()
	dc.SetColor(accentColor)
	dc.DrawRoundedRectangle(margin, margin, 3, boxH, 1.5)
	dc.Fill()

	for i, l := range lines {
		if i == 0 {
			dc.SetColor(textColor)
		} else {
			dc.SetColor(mutedTextColor)
		}
		dc.DrawString(l, margin+padding, margin+float64(i+1)*lineHeight)
	}
}

// ParseHexColor parses #rrggbb. Anything else is white.
func ParseHexColor(hex string) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{255, 255, 255, 255}
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{255, 255, 255, 255}
	}
	return color.RGBA{r, g, b, 255}
}

func findFontPath() string {
	// Try common font locations
	paths := []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSansMono.ttf",
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/System/Library/Fonts/Menlo.ttc",
		"C:\\Windows\\Fonts\\consola.ttf",
		"C:\\Windows\\Fonts\\arial.ttf",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	matches, _ := filepath.Glob("*.ttf")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}

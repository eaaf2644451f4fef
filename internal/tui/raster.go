package tui

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/draw"

	"github.com/colonyops/folio/internal/core/styles"
	"github.com/colonyops/folio/internal/core/surface"
	"github.com/colonyops/folio/internal/viewer"
)

// SurfaceSource resolves the painted surface of a page.
type SurfaceSource interface {
	Surface(page int) (*surface.Surface, bool)
}

// Frame rasterizes the visible part of the document into a cols x rows*2
// pixel image, two pixels per terminal cell. The viewport width maps onto
// cols, so one terminal column covers ViewportWidth/cols document pixels.
func Frame(st viewer.State, src SurfaceSource, cols, rows int, sty styles.Styles) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, max(cols, 0), max(rows, 0)*2))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(sty.Canvas), image.Point{}, draw.Src)
	if cols <= 0 || rows <= 0 || st.ViewportWidth <= 0 {
		return frame
	}

	scale := float64(st.ViewportWidth) / float64(cols)
	top := st.ScrollTop
	bottom := top + float64(rows*2)*scale

	for _, p := range st.Pages {
		if p.Offset+p.Height <= top || p.Offset >= bottom || p.Height <= 0 {
			continue
		}

		width := float64(st.ViewportWidth) * st.Zoom
		surf, ok := src.Surface(p.Page)
		painted := ok && surf.Painted()
		if painted {
			if w, _ := surf.Size(); w > 0 {
				width = float64(w)
			}
		}

		dw := int(math.Ceil(width / scale))
		dh := int(math.Ceil(p.Height / scale))
		x := (cols - dw) / 2
		y := int(math.Floor((p.Offset - top) / scale))
		rect := image.Rect(x, y, x+dw, y+dh)

		switch {
		case painted:
			thumb := surf.Thumbnail(dw, dh)
			draw.Draw(frame, rect, thumb, image.Point{}, draw.Over)
		case p.Status == "failed":
			draw.Draw(frame, rect, image.NewUniform(styles.RGBA(sty.Palette.Error)), image.Point{}, draw.Src)
		default:
			draw.Draw(frame, rect, image.NewUniform(sty.Placeholder), image.Point{}, draw.Src)
		}
	}
	return frame
}

// halfBlocks renders img with one upper half block per pair of pixel rows:
// the foreground is the top pixel and the background the bottom one. Runs of
// identical cells share one styled segment.
func halfBlocks(img *image.RGBA) string {
	b := img.Bounds()
	var sb strings.Builder

	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		if y > b.Min.Y {
			sb.WriteByte('\n')
		}

		var (
			run      int
			top, bot color.RGBA
		)
		flush := func() {
			if run == 0 {
				return
			}
			sb.WriteString(lipgloss.NewStyle().
				Foreground(hex(top)).
				Background(hex(bot)).
				Render(strings.Repeat("▀", run)))
			run = 0
		}

		for x := b.Min.X; x < b.Max.X; x++ {
			t := img.RGBAAt(x, y)
			u := t
			if y+1 < b.Max.Y {
				u = img.RGBAAt(x, y+1)
			}
			if run > 0 && (t != top || u != bot) {
				flush()
			}
			top, bot = t, u
			run++
		}
		flush()
	}
	return sb.String()
}

func hex(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}

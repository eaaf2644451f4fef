// Package surface implements the drawable target a page is rasterized onto.
package surface

import (
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// Surface is an RGBA canvas. The render engine resizes and commits to it from
// the viewer loop; hosts read snapshots from any goroutine.
type Surface struct {
	mu      sync.RWMutex
	img     *image.RGBA
	painted bool
	version uint64
}

// New returns an empty, zero-sized surface.
func New() *Surface {
	return &Surface{img: image.NewRGBA(image.Rectangle{})}
}

// Resize sets the pixel dimensions and clears the contents.
func (s *Surface) Resize(width, height int) {
	width, height = max(0, width), max(0, height)

	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.img.Bounds(); b.Dx() == width && b.Dy() == height {
		clear(s.img.Pix)
	} else {
		s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	s.painted = false
	s.version++
}

// Clear resets every pixel to transparent.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.img.Pix)
	s.painted = false
	s.version++
}

// Commit paints src over the whole surface. A source whose size differs from
// the surface is scaled to fit.
func (s *Surface) Commit(src image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.img.Bounds()
	sb := src.Bounds()
	if sb.Dx() == dst.Dx() && sb.Dy() == dst.Dy() {
		draw.Draw(s.img, dst, src, sb.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(s.img, dst, src, sb, draw.Src, nil)
	}
	s.painted = true
	s.version++
}

// Size returns the pixel dimensions.
func (s *Surface) Size() (width, height int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Painted reports whether pixels were committed since the last resize or clear.
func (s *Surface) Painted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.painted
}

// Version increments on every mutation.
func (s *Surface) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a copy of the current pixels.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

// Thumbnail returns the contents scaled into a width x height image.
func (s *Surface) Thumbnail(width, height int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, max(0, width), max(0, height)))

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img.Bounds().Empty() || out.Bounds().Empty() {
		return out
	}
	draw.CatmullRom.Scale(out, out.Bounds(), s.img, s.img.Bounds(), draw.Src, nil)
	return out
}

// Package decoder defines the contract between the viewer and whatever turns
// document bytes into addressable pages. The viewer never parses documents
// itself; it only schedules work against these interfaces.
package decoder

import (
	"context"
	"errors"
	"image"
	"math"
)

// ErrDecodeFailure marks errors from a document that could not be opened.
// Implementations wrap their underlying error with it.
var ErrDecodeFailure = errors.New("document could not be decoded")

// ErrPageRange is returned when a page index is outside [1, NumPages].
var ErrPageRange = errors.New("page index out of range")

// Decoder opens a document from its raw bytes.
type Decoder interface {
	// Decode parses data. It must honour ctx cancellation at least before
	// returning, destroying any partially built document itself.
	Decode(ctx context.Context, data []byte) (Document, error)
}

// Document is a decoded, page-addressable document. Implementations must be
// safe for concurrent use by page workers.
type Document interface {
	NumPages() int
	// Page returns the 1-indexed page.
	Page(ctx context.Context, index int) (Page, error)
	// Destroy releases decoder resources. Calling it more than once is a no-op.
	Destroy() error
}

// Page is a single page of a Document.
type Page interface {
	Index() int
	// Size reports the native page size in points at scale 1.
	Size() Size
	// Render rasterizes the page at vp.Scale. The returned image has the
	// viewport's pixel dimensions.
	Render(ctx context.Context, vp Viewport) (image.Image, error)
	// Text returns the plain text of the page.
	Text(ctx context.Context) (string, error)
}

// Size is a width/height pair in points.
type Size struct {
	Width  float64
	Height float64
}

// Viewport is a page's pixel geometry at a given scale.
type Viewport struct {
	Scale  float64
	Width  int
	Height int
}

// ViewportFor computes the pixel viewport of a page of native size s at
// scale. Dimensions are rounded up and never smaller than one pixel.
func ViewportFor(s Size, scale float64) Viewport {
	return Viewport{
		Scale:  scale,
		Width:  max(1, int(math.Ceil(s.Width*scale))),
		Height: max(1, int(math.Ceil(s.Height*scale))),
	}
}

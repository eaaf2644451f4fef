// Package fitz implements the decoder contract on top of MuPDF through
// github.com/gen2brain/go-fitz.
package fitz

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	gofitz "github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/colonyops/folio/internal/core/decoder"
)

// pointsPerInch is MuPDF's unit: one point at scale 1 is one pixel at 72 DPI.
const pointsPerInch = 72.0

// ErrClosed is returned by pages of a destroyed document.
var ErrClosed = errors.New("document closed")

// Decoder opens PDF, XPS, EPUB and the other formats MuPDF understands.
type Decoder struct {
	log zerolog.Logger
}

var _ decoder.Decoder = (*Decoder)(nil)

// New creates a MuPDF-backed decoder.
func New(logger zerolog.Logger) *Decoder {
	return &Decoder{log: logger.With().Str("cmp", "fitz").Logger()}
}

// Decode implements decoder.Decoder.
func (d *Decoder) Decode(ctx context.Context, data []byte) (decoder.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", decoder.ErrDecodeFailure)
	}

	fd, err := gofitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", decoder.ErrDecodeFailure, err)
	}

	if err := ctx.Err(); err != nil {
		_ = fd.Close()
		return nil, err
	}

	n := fd.NumPage()
	if n <= 0 {
		_ = fd.Close()
		return nil, fmt.Errorf("%w: document has no pages", decoder.ErrDecodeFailure)
	}

	d.log.Debug().Int("pages", n).Int("bytes", len(data)).Msg("document decoded")
	return &Document{fd: fd, pages: n, log: d.log}, nil
}

// Document is an open MuPDF document. go-fitz serialises calls on one
// document internally; the read lock here only keeps Destroy from closing
// it under a running page call.
type Document struct {
	mu     sync.RWMutex
	fd     *gofitz.Document
	closed bool
	pages  int
	log    zerolog.Logger
}

// NumPages implements decoder.Document.
func (doc *Document) NumPages() int { return doc.pages }

// Page implements decoder.Document.
func (doc *Document) Page(ctx context.Context, index int) (decoder.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 1 || index > doc.pages {
		return nil, fmt.Errorf("page %d: %w", index, decoder.ErrPageRange)
	}

	var size decoder.Size
	err := doc.with(func(fd *gofitz.Document) error {
		rect, err := fd.Bound(index - 1)
		if err != nil {
			return err
		}
		size = decoder.Size{Width: float64(rect.Dx()), Height: float64(rect.Dy())}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("page %d bounds: %w", index, err)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("page %d: empty bounds", index)
	}

	return &Page{doc: doc, index: index, size: size}, nil
}

// Destroy implements decoder.Document.
func (doc *Document) Destroy() error {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.closed {
		return nil
	}
	doc.closed = true
	doc.log.Debug().Int("pages", doc.pages).Msg("document closed")
	return doc.fd.Close()
}

func (doc *Document) with(fn func(fd *gofitz.Document) error) error {
	doc.mu.RLock()
	defer doc.mu.RUnlock()
	if doc.closed {
		return ErrClosed
	}
	return fn(doc.fd)
}

// Page is one page of a Document.
type Page struct {
	doc   *Document
	index int
	size  decoder.Size
}

// Index implements decoder.Page.
func (p *Page) Index() int { return p.index }

// Size implements decoder.Page.
func (p *Page) Size() decoder.Size { return p.size }

// Render implements decoder.Page. MuPDF cannot be interrupted mid-page, so
// cancellation is checked on either side of the rasterization.
func (p *Page) Render(ctx context.Context, vp decoder.Viewport) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var img *image.RGBA
	err := p.doc.with(func(fd *gofitz.Document) error {
		var err error
		img, err = fd.ImageDPI(p.index-1, pointsPerInch*vp.Scale)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", p.index, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return fit(img, vp.Width, vp.Height), nil
}

// Text implements decoder.Page.
func (p *Page) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var text string
	err := p.doc.with(func(fd *gofitz.Document) error {
		var err error
		text, err = fd.Text(p.index - 1)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("text page %d: %w", p.index, err)
	}
	return text, nil
}

// fit returns img at exactly width×height. MuPDF rounds the pixmap to whole
// pixels from the transformed page box, which can differ from the viewport by
// a pixel.
func fit(img *image.RGBA, width, height int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height && b.Min == (image.Point{}) {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

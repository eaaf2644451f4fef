// Package decodertest provides an in-memory decoder with hooks for driving
// decode and render timing from tests.
package decodertest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/colonyops/folio/internal/core/decoder"
)

// PageSpec describes one fake page.
type PageSpec struct {
	Size decoder.Size
	Text string
}

// Letter returns n US-Letter pages whose text is "page <n>".
func Letter(n int) []PageSpec {
	pages := make([]PageSpec, n)
	for i := range pages {
		pages[i] = PageSpec{
			Size: decoder.Size{Width: 612, Height: 792},
			Text: fmt.Sprintf("page %d", i+1),
		}
	}
	return pages
}

// RenderCall records one Render invocation.
type RenderCall struct {
	Page  int
	Scale float64
}

// Decoder is a fake decoder.Decoder. Hooks may block to simulate slow work;
// they receive the caller's context and should return ctx.Err() when it is
// cancelled.
type Decoder struct {
	Pages []PageSpec

	// DecodeErr fails every Decode call.
	DecodeErr error
	// DecodeHook runs before a document is returned.
	DecodeHook func(ctx context.Context, data []byte) error
	// RenderHook runs before a page image is produced.
	RenderHook func(ctx context.Context, page int, vp decoder.Viewport) error
	// TextHook runs before page text is returned.
	TextHook func(ctx context.Context, page int) error
	// DestroyHook runs before a document is destroyed.
	DestroyHook func()

	mu   sync.Mutex
	docs []*Document
}

var _ decoder.Decoder = (*Decoder)(nil)

// New creates a fake decoder serving pages.
func New(pages []PageSpec) *Decoder {
	return &Decoder{Pages: pages}
}

// Decode implements decoder.Decoder.
func (d *Decoder) Decode(ctx context.Context, data []byte) (decoder.Document, error) {
	if d.DecodeHook != nil {
		if err := d.DecodeHook(ctx, data); err != nil {
			return nil, err
		}
	}
	if d.DecodeErr != nil {
		return nil, fmt.Errorf("%w: %w", decoder.ErrDecodeFailure, d.DecodeErr)
	}

	doc := &Document{decoder: d, pages: d.Pages}
	d.mu.Lock()
	d.docs = append(d.docs, doc)
	d.mu.Unlock()
	return doc, nil
}

// Documents returns every document produced so far, oldest first.
func (d *Decoder) Documents() []*Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Document(nil), d.docs...)
}

// Document is a fake decoder.Document.
type Document struct {
	decoder *Decoder
	pages   []PageSpec

	mu        sync.Mutex
	destroyed int
	renders   []RenderCall
	texts     int
}

// NumPages implements decoder.Document.
func (doc *Document) NumPages() int { return len(doc.pages) }

// Page implements decoder.Document.
func (doc *Document) Page(ctx context.Context, index int) (decoder.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 1 || index > len(doc.pages) {
		return nil, fmt.Errorf("page %d: %w", index, decoder.ErrPageRange)
	}
	return &Page{doc: doc, index: index, spec: doc.pages[index-1]}, nil
}

// Destroy implements decoder.Document. Every call is counted so tests can
// assert the caller destroys exactly once.
func (doc *Document) Destroy() error {
	if doc.decoder.DestroyHook != nil {
		doc.decoder.DestroyHook()
	}
	doc.mu.Lock()
	defer doc.mu.Unlock()
	doc.destroyed++
	return nil
}

// DestroyCount reports how many times Destroy was called.
func (doc *Document) DestroyCount() int {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return doc.destroyed
}

// Renders returns every Render call that produced an image.
func (doc *Document) Renders() []RenderCall {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return append([]RenderCall(nil), doc.renders...)
}

// TextCalls reports how many times page text was extracted.
func (doc *Document) TextCalls() int {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return doc.texts
}

// Page is a fake decoder.Page.
type Page struct {
	doc   *Document
	index int
	spec  PageSpec
}

// Index implements decoder.Page.
func (p *Page) Index() int { return p.index }

// Size implements decoder.Page.
func (p *Page) Size() decoder.Size { return p.spec.Size }

// Render implements decoder.Page. The image is filled with a grey level
// derived from the page index.
func (p *Page) Render(ctx context.Context, vp decoder.Viewport) (image.Image, error) {
	if hook := p.doc.decoder.RenderHook; hook != nil {
		if err := hook(ctx, p.index, vp); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, vp.Width, vp.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(PageColor(p.index)), image.Point{}, draw.Src)

	p.doc.mu.Lock()
	p.doc.renders = append(p.doc.renders, RenderCall{Page: p.index, Scale: vp.Scale})
	p.doc.mu.Unlock()
	return img, nil
}

// Text implements decoder.Page.
func (p *Page) Text(ctx context.Context) (string, error) {
	if hook := p.doc.decoder.TextHook; hook != nil {
		if err := hook(ctx, p.index); err != nil {
			return "", err
		}
	}
	p.doc.mu.Lock()
	p.doc.texts++
	p.doc.mu.Unlock()
	return p.spec.Text, nil
}

// PageColor is the fill colour used for a page index.
func PageColor(index int) color.RGBA {
	v := uint8(255 - (index*16)%200)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// Gate blocks hooks until released. It is convenient for holding a specific
// page's render open while the test changes viewer inputs.
type Gate struct {
	ch   chan struct{}
	once sync.Once
}

// NewGate returns a closed-on-release gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Wait blocks until Release or ctx cancellation.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release unblocks every waiter. It is safe to call more than once.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.ch) })
}

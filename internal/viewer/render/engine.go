// Package render rasterizes document pages onto their surfaces.
//
// # Sessions
//
// Every input that changes what a page should look like (the document, the
// zoom level, the container width) bumps the engine's render session. Work is
// started on worker goroutines and its continuation posted back to the viewer
// loop; each continuation compares the session, document ID and task it was
// started with against the engine's current values and silently drops its
// result on any mismatch. That compare-and-discard is the only
// synchronization the per-page maps need: they are only ever touched from the
// loop.
//
// # Sweeps
//
// A sweep walks pages 1..N in order and starts a render for every page that
// is not rendered, rendering or failed. Pages whose surface is not mounted yet
// are skipped and a bounded retry is scheduled. Failed pages are retried only
// on the next explicit trigger (Sweep, a width/zoom/document change).
package render

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/folio/internal/core/decoder"
	"github.com/colonyops/folio/internal/core/logging"
	"github.com/colonyops/folio/internal/core/surface"
	"github.com/colonyops/folio/internal/viewer/loop"
)

// PageState is the render state of a single page.
type PageState int

const (
	Unrendered PageState = iota
	Rendering
	Rendered
	Failed
)

func (s PageState) String() string {
	switch s {
	case Unrendered:
		return "unrendered"
	case Rendering:
		return "rendering"
	case Rendered:
		return "rendered"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("PageState(%d)", int(s))
	}
}

// ErrInvalidPageSize is reported for pages with a non-positive native width.
var ErrInvalidPageSize = errors.New("page has no width")

// SurfaceProvider resolves the mounted surface for a page.
type SurfaceProvider interface {
	Surface(page int) (*surface.Surface, bool)
}

// Options tunes the engine.
type Options struct {
	// RetryInterval is the delay between sweeps while surfaces are missing.
	RetryInterval time.Duration
	// MaxRetries bounds the missing-surface retry loop.
	MaxRetries int
	// MinScale is the smallest render scale ever used.
	MinScale float64
}

// DefaultOptions returns a 50ms x 30 retry budget and a 0.1 scale floor.
func DefaultOptions() Options {
	return Options{
		RetryInterval: 50 * time.Millisecond,
		MaxRetries:    30,
		MinScale:      0.1,
	}
}

// Hooks are optional callbacks invoked on the loop.
type Hooks struct {
	// PageSized runs when a page's surface is resized for a render.
	PageSized func(page int, vp decoder.Viewport)
	// PageRendered runs after pixels are committed and text merged.
	PageRendered func(page int, vp decoder.Viewport)
	// PageFailed runs when a page fails for a reason other than cancellation.
	PageFailed func(page int, err error)
}

// Stats counts pages by state.
type Stats struct {
	Unrendered int
	Rendering  int
	Rendered   int
	Failed     int
}

// Settled reports whether no page is unrendered or rendering.
func (s Stats) Settled() bool {
	return s.Unrendered == 0 && s.Rendering == 0
}

type task struct {
	id     uint64
	cancel context.CancelFunc
}

// Engine schedules page rasterization. All methods must be called from the
// loop goroutine except Session, which may be read from anywhere.
type Engine struct {
	loop     *loop.Loop
	surfaces SurfaceProvider
	opts     Options
	hooks    Hooks
	log      zerolog.Logger

	session atomic.Uint64

	doc       decoder.Document
	docID     uint64
	pageCount int
	zoom      float64
	width     int

	states     map[int]PageState
	tasks      map[int]*task
	text       map[int]string
	nextTaskID uint64
	retries    int
	retryTimer *loop.Timer
}

// New creates an engine with zoom 1 and no document.
func New(l *loop.Loop, surfaces SurfaceProvider, opts Options, hooks Hooks, logger zerolog.Logger) *Engine {
	return &Engine{
		loop:     l,
		surfaces: surfaces,
		opts:     opts,
		hooks:    hooks,
		log:      logger.With().Str("cmp", "render").Logger(),
		zoom:     1,
		states:   make(map[int]PageState),
		tasks:    make(map[int]*task),
		text:     make(map[int]string),
	}
}

// Session returns the current render session tag.
func (e *Engine) Session() uint64 { return e.session.Load() }

// SetDocument switches to doc, identified by docID. A nil doc clears the
// engine. Extracted text is discarded along with the old document.
func (e *Engine) SetDocument(doc decoder.Document, docID uint64, pageCount int) {
	if doc == e.doc && docID == e.docID && pageCount == e.pageCount {
		return
	}
	e.doc = doc
	e.docID = docID
	e.pageCount = max(0, pageCount)
	e.text = make(map[int]string)
	e.invalidate()
	e.sweep()
}

// SetZoom changes the zoom multiplier and re-renders every page.
func (e *Engine) SetZoom(zoom float64) {
	if zoom == e.zoom {
		return
	}
	e.zoom = zoom
	e.invalidate()
	e.sweep()
}

// SetContainerWidth changes the width pages are fitted to.
func (e *Engine) SetContainerWidth(width int) {
	if width == e.width {
		return
	}
	e.width = width
	e.invalidate()
	e.sweep()
}

// Sweep is an explicit render trigger, typically after surfaces were mounted.
// Failed pages get another attempt and the retry budget is refilled.
func (e *Engine) Sweep() {
	for page, st := range e.states {
		if st == Failed {
			e.states[page] = Unrendered
		}
	}
	e.retries = 0
	e.sweep()
}

// State returns the render state of page.
func (e *Engine) State(page int) PageState {
	return e.states[page]
}

// PageText returns extracted text for page, if any.
func (e *Engine) PageText(page int) (string, bool) {
	t, ok := e.text[page]
	return t, ok
}

// PageCount returns the number of pages of the current document.
func (e *Engine) PageCount() int { return e.pageCount }

// Stats counts pages by state.
func (e *Engine) Stats() Stats {
	var s Stats
	for page := 1; page <= e.pageCount; page++ {
		switch e.states[page] {
		case Unrendered:
			s.Unrendered++
		case Rendering:
			s.Rendering++
		case Rendered:
			s.Rendered++
		case Failed:
			s.Failed++
		}
	}
	return s
}

// invalidate starts a new session: live tasks are cancelled, page states
// forgotten and the retry loop stopped.
func (e *Engine) invalidate() {
	next := e.session.Add(1)
	for _, t := range e.tasks {
		t.cancel()
	}
	e.tasks = make(map[int]*task)
	e.states = make(map[int]PageState)
	e.retries = 0
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	e.log.Debug().Uint64("render_session", next).Uint64("document_id", e.docID).Float64("zoom", e.zoom).Int("width", e.width).Msg("render session started")
}

func (e *Engine) sweep() {
	if e.doc == nil || e.pageCount <= 0 || e.width <= 0 {
		return
	}

	session := e.session.Load()
	missing := 0
	for page := 1; page <= e.pageCount; page++ {
		switch e.states[page] {
		case Rendering, Rendered, Failed:
			continue
		}

		surf, ok := e.surfaces.Surface(page)
		if !ok {
			missing++
			continue
		}
		e.start(session, page, surf)
	}

	if missing > 0 {
		e.scheduleRetry(session, missing)
	}
}

func (e *Engine) scheduleRetry(session uint64, missing int) {
	if e.retryTimer != nil {
		return
	}
	if e.retries >= e.opts.MaxRetries {
		e.log.Debug().Uint64("render_session", session).Int("missing", missing).Msg("surface retry budget exhausted")
		return
	}
	e.retries++
	e.retryTimer = e.loop.AfterFunc(e.opts.RetryInterval, func() {
		if e.session.Load() != session {
			return
		}
		e.retryTimer = nil
		e.sweep()
	})
}

func (e *Engine) start(session uint64, page int, surf *surface.Surface) {
	if prev := e.tasks[page]; prev != nil {
		prev.cancel()
	}

	e.nextTaskID++
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.WithRenderSession(logging.WithDocumentID(ctx, e.docID), session)
	t := &task{id: e.nextTaskID, cancel: cancel}
	e.tasks[page] = t
	e.states[page] = Rendering

	doc, docID, zoom, width := e.doc, e.docID, e.zoom, e.width
	e.loop.Go(func() func() {
		p, err := doc.Page(ctx, page)
		return func() {
			if !e.current(session, docID, page, t) {
				t.cancel()
				return
			}
			if err != nil {
				e.fail(ctx, page, t, err)
				return
			}
			e.rasterize(ctx, session, docID, t, p, surf, zoom, width)
		}
	})
}

func (e *Engine) rasterize(ctx context.Context, session, docID uint64, t *task, p decoder.Page, surf *surface.Surface, zoom float64, width int) {
	page := p.Index()
	native := p.Size()
	if native.Width <= 0 || native.Height <= 0 {
		e.fail(ctx, page, t, fmt.Errorf("page %d: %w", page, ErrInvalidPageSize))
		return
	}

	scale := max(e.opts.MinScale, float64(width)/native.Width*zoom)
	vp := decoder.ViewportFor(native, scale)
	surf.Resize(vp.Width, vp.Height)
	if e.hooks.PageSized != nil {
		e.hooks.PageSized(page, vp)
	}

	e.loop.Go(func() func() {
		img, err := p.Render(ctx, vp)
		return func() {
			if !e.current(session, docID, page, t) {
				t.cancel()
				return
			}
			if err != nil {
				e.fail(ctx, page, t, err)
				return
			}
			surf.Commit(img)
			e.extractText(ctx, session, docID, t, p, vp)
		}
	})
}

func (e *Engine) extractText(ctx context.Context, session, docID uint64, t *task, p decoder.Page, vp decoder.Viewport) {
	page := p.Index()
	if _, ok := e.text[page]; ok {
		e.finish(page, t, vp)
		return
	}

	e.loop.Go(func() func() {
		text, err := p.Text(ctx)
		return func() {
			if !e.current(session, docID, page, t) {
				t.cancel()
				return
			}
			if err != nil {
				e.log.Warn().Ctx(ctx).Err(err).Int("page", page).Msg("text extraction failed")
			} else {
				e.text[page] = text
			}
			e.finish(page, t, vp)
		}
	})
}

func (e *Engine) finish(page int, t *task, vp decoder.Viewport) {
	t.cancel()
	delete(e.tasks, page)
	e.states[page] = Rendered
	if e.hooks.PageRendered != nil {
		e.hooks.PageRendered(page, vp)
	}
}

func (e *Engine) fail(ctx context.Context, page int, t *task, err error) {
	t.cancel()
	delete(e.tasks, page)

	if errors.Is(err, context.Canceled) {
		e.states[page] = Unrendered
		return
	}

	e.states[page] = Failed
	e.log.Warn().Ctx(ctx).Err(err).Int("page", page).Msg("page render failed")
	if e.hooks.PageFailed != nil {
		e.hooks.PageFailed(page, err)
	}
}

// current reports whether a continuation started under session, docID and t
// may still touch engine state.
func (e *Engine) current(session, docID uint64, page int, t *task) bool {
	return e.session.Load() == session && e.docID == docID && e.tasks[page] == t
}

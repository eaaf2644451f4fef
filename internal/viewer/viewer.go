// Package viewer assembles the document pipeline: lifecycle, render engine,
// layout, navigation and zoom all live on one loop goroutine. Commands may be
// called from any goroutine; they are posted to the loop. Read state is
// published as an immutable snapshot after every change.
package viewer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/colonyops/folio/internal/core/decoder"
	"github.com/colonyops/folio/internal/core/eventbus"
	"github.com/colonyops/folio/internal/core/prefs"
	"github.com/colonyops/folio/internal/core/surface"
	"github.com/colonyops/folio/internal/viewer/layout"
	"github.com/colonyops/folio/internal/viewer/lifecycle"
	"github.com/colonyops/folio/internal/viewer/loop"
	"github.com/colonyops/folio/internal/viewer/nav"
	"github.com/colonyops/folio/internal/viewer/render"
	"github.com/colonyops/folio/internal/viewer/zoom"
)

// Re-exported so hosts only need this package.
type (
	Source       = lifecycle.Source
	FocusRequest = nav.FocusRequest
	WheelEvent   = zoom.WheelEvent
)

// Options configures a Viewer.
type Options struct {
	Zoom   zoom.Options
	Render render.Options
	Layout layout.Options
	// Loader resolves Source.Locator. Nil uses lifecycle.NewLoader.
	Loader lifecycle.Loader
	// EventBuffer is the event bus queue size.
	EventBuffer int
}

// DefaultOptions returns the default zoom range, retry policy and layout.
func DefaultOptions() Options {
	return Options{
		Zoom:        zoom.DefaultOptions(),
		Render:      render.DefaultOptions(),
		Layout:      layout.DefaultOptions(),
		EventBuffer: 256,
	}
}

// PageInfo is the published geometry and render status of one page.
type PageInfo struct {
	Page    int     `json:"page"`
	Offset  float64 `json:"offset"`
	Height  float64 `json:"height"`
	Mounted bool    `json:"mounted"`
	Status  string  `json:"status"`
}

// State is an immutable snapshot of everything a host displays.
type State struct {
	Version        uint64        `json:"version"`
	DocumentID     uint64        `json:"documentId,omitempty"`
	TotalPages     int           `json:"totalPages"`
	CurrentPage    int           `json:"currentPage"`
	Loading        bool          `json:"loading"`
	Error          string        `json:"error,omitempty"`
	Zoom           float64       `json:"zoom"`
	ZoomPercent    int           `json:"zoomPercent"`
	CanZoomIn      bool          `json:"canZoomIn"`
	CanZoomOut     bool          `json:"canZoomOut"`
	CanGoBack      bool          `json:"canGoBack"`
	CanGoForward   bool          `json:"canGoForward"`
	SnippetLocated bool          `json:"snippetLocated"`
	Focus          *FocusRequest `json:"focus,omitempty"`
	RenderedPages  int           `json:"renderedPages"`
	FailedPages    int           `json:"failedPages"`
	ScrollTop      float64       `json:"scrollTop"`
	ContentHeight  float64       `json:"contentHeight"`
	ViewportWidth  int           `json:"viewportWidth"`
	ViewportHeight int           `json:"viewportHeight"`
	Pages          []PageInfo    `json:"pages"`
}

// Settled reports whether every page has finished rendering or failed.
func (s State) Settled() bool {
	return !s.Loading && s.RenderedPages+s.FailedPages == s.TotalPages
}

// Viewer is the goroutine-safe facade over the pipeline.
type Viewer struct {
	loop *loop.Loop
	bus  *eventbus.EventBus
	log  zerolog.Logger

	zoom      *zoom.Controller
	lifecycle *lifecycle.Manager
	engine    *render.Engine
	layout    *layout.Layout
	nav       *nav.Controller

	state atomic.Pointer[State]

	surfMu   sync.RWMutex
	surfaces map[int]*surface.Surface

	// loop-owned
	version uint64
	dirty   bool
	docID   uint64
	lastErr error
}

// New wires a viewer. The persisted zoom level is restored from store, which
// may be nil to disable persistence. Nothing runs until Run is called.
func New(opts Options, dec decoder.Decoder, store prefs.Store, logger zerolog.Logger) *Viewer {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultOptions().EventBuffer
	}

	l := loop.New()
	v := &Viewer{
		loop:     l,
		bus:      eventbus.New(opts.EventBuffer),
		log:      logger.With().Str("cmp", "viewer").Logger(),
		surfaces: make(map[int]*surface.Surface),
	}

	v.zoom = zoom.New(context.Background(), store, opts.Zoom, logger)
	v.layout = layout.New(l, opts.Layout, logger)
	v.lifecycle = lifecycle.New(l, dec, opts.Loader, logger)
	v.engine = render.New(l, v.layout, opts.Render, render.Hooks{
		PageSized:    v.onPageSized,
		PageRendered: v.onPageRendered,
		PageFailed:   v.onPageFailed,
	}, logger)
	v.nav = nav.New(v.layout, v.engine, logger)

	v.engine.SetZoom(v.zoom.Level())
	v.zoom.OnChange(v.onZoom)
	v.lifecycle.OnChange(v.onDocument)
	v.layout.OnMount(v.onMount)
	v.layout.OnIntersect(v.onIntersect)
	v.layout.OnScroll(func(float64) { v.markDirty() })
	v.nav.OnChange(v.onPage)

	v.state.Store(v.snapshot())
	return v
}

// Run drives the loop and the event bus until ctx is cancelled. Before the
// loop stops the document is closed, any pending decode is cancelled and the
// loop drains, so documents that finish decoding late are destroyed too.
func (v *Viewer) Run(ctx context.Context) error {
	busCtx, cancelBus := context.WithCancel(context.Background())
	defer cancelBus()
	go v.bus.Start(busCtx)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.loop.Run(loopCtx) }()

	<-ctx.Done()

	teardown := context.Background()
	if err := v.loop.Call(teardown, v.lifecycle.Close); err != nil {
		v.log.Warn().Err(err).Msg("close document on shutdown")
	}
	if err := v.loop.WaitIdle(teardown); err != nil {
		v.log.Warn().Err(err).Msg("drain loop on shutdown")
	}

	stopLoop()
	<-done
	return ctx.Err()
}

// Bus exposes the event bus for hosts that want individual events.
func (v *Viewer) Bus() *eventbus.EventBus { return v.bus }

// State returns the latest published snapshot.
func (v *Viewer) State() State { return *v.state.Load() }

// Subscribe calls fn with a fresh snapshot after every state change. fn runs
// on the event bus goroutine.
func (v *Viewer) Subscribe(fn func(State)) {
	v.bus.SubscribeStateChanged(func(eventbus.StateChangedPayload) { fn(v.State()) })
}

// WaitIdle blocks until no loop work, render worker or timer is pending.
func (v *Viewer) WaitIdle(ctx context.Context) error { return v.loop.WaitIdle(ctx) }

// Surface returns page's surface once its slot has been mounted.
func (v *Viewer) Surface(page int) (*surface.Surface, bool) {
	v.surfMu.RLock()
	defer v.surfMu.RUnlock()
	s, ok := v.surfaces[page]
	return s, ok
}

// PageText returns the extracted text of page.
func (v *Viewer) PageText(ctx context.Context, page int) (string, bool, error) {
	var (
		text string
		ok   bool
	)
	err := v.loop.Call(ctx, func() { text, ok = v.engine.PageText(page) })
	return text, ok, err
}

// Search returns the pages whose extracted text contains query.
func (v *Viewer) Search(ctx context.Context, query string) ([]int, error) {
	var pages []int
	err := v.loop.Call(ctx, func() { pages = v.nav.Search(query) })
	return pages, err
}

// Open loads src, replacing the current document.
func (v *Viewer) Open(src Source) { v.post(func() { v.lifecycle.Load(src) }) }

// Close drops the current document.
func (v *Viewer) Close() { v.post(v.lifecycle.Close) }

// Resize sets the viewport size. Pages are fitted to width.
func (v *Viewer) Resize(width, height int) {
	v.post(func() {
		v.layout.SetViewport(width, height)
		v.engine.SetContainerWidth(width)
		v.markDirty()
	})
}

// ScrollBy scrolls the viewport by dy immediately.
func (v *Viewer) ScrollBy(dy float64) {
	v.post(func() { v.layout.ScrollBy(dy, layout.Instant) })
}

// ScrollToPage smooth-scrolls to page n, clamped into range.
func (v *Viewer) ScrollToPage(n int) { v.post(func() { v.nav.ScrollToPage(n) }) }

// NextPage scrolls to the page after the current one.
func (v *Viewer) NextPage() { v.post(v.nav.NextPage) }

// PrevPage scrolls to the page before the current one.
func (v *Viewer) PrevPage() { v.post(v.nav.PrevPage) }

// ZoomIn raises the zoom level one step.
func (v *Viewer) ZoomIn() { v.post(func() { v.zoom.ZoomIn() }) }

// ZoomOut lowers the zoom level one step.
func (v *Viewer) ZoomOut() { v.post(func() { v.zoom.ZoomOut() }) }

// ZoomFit resets zoom to 100%.
func (v *Viewer) ZoomFit() { v.post(func() { v.zoom.ZoomFit() }) }

// Wheel applies a wheel gesture: a zoom with Ctrl or Meta held, otherwise a
// plain scroll.
func (v *Viewer) Wheel(ev WheelEvent) {
	v.post(func() {
		if !v.zoom.Wheel(ev) {
			v.layout.ScrollBy(ev.DeltaY, layout.Instant)
		}
	})
}

// Focus navigates to req.TargetPage when req.RequestID is new.
func (v *Viewer) Focus(req FocusRequest) {
	v.post(func() {
		v.nav.Focus(req)
		v.markDirty()
	})
}

// Sweep retries every page that is not rendered, including failed ones.
func (v *Viewer) Sweep() { v.post(v.engine.Sweep) }

func (v *Viewer) post(fn func()) {
	if !v.loop.Post(fn) {
		v.log.Debug().Msg("command dropped: viewer stopped")
	}
}

func (v *Viewer) onZoom(level float64) {
	v.engine.SetZoom(level)
	v.bus.PublishZoomChanged(eventbus.ZoomChangedPayload{Level: level, Percent: v.zoom.Percent()})
	v.markDirty()
}

func (v *Viewer) onDocument(h *lifecycle.Handle) {
	v.surfMu.Lock()
	v.surfaces = make(map[int]*surface.Surface)
	v.surfMu.Unlock()

	if h == nil {
		if v.docID != 0 {
			v.bus.PublishDocumentClosed(eventbus.DocumentClosedPayload{DocumentID: v.docID})
			v.docID = 0
		}
		v.layout.Reset(0)
		v.engine.SetDocument(nil, 0, 0)
		v.nav.Reset(0)

		if err := v.lifecycle.Err(); err != nil && err != v.lastErr {
			v.bus.PublishDocumentFailed(eventbus.DocumentFailedPayload{Err: err, Message: lifecycle.Message(err)})
		}
		v.lastErr = v.lifecycle.Err()
		v.markDirty()
		return
	}

	v.docID = h.ID()
	v.lastErr = nil
	pages := h.NumPages()
	v.layout.Reset(pages)
	v.engine.SetDocument(h.Document(), h.ID(), pages)
	v.nav.Reset(pages)
	v.bus.PublishDocumentLoaded(eventbus.DocumentLoadedPayload{DocumentID: h.ID(), Pages: pages})
	v.markDirty()
}

func (v *Viewer) onMount(pages []int) {
	v.surfMu.Lock()
	for _, p := range pages {
		if s, ok := v.layout.Surface(p); ok {
			v.surfaces[p] = s
		}
	}
	v.surfMu.Unlock()

	// Mounts happen in the middle of layout updates; sweep once they settle.
	v.loop.Post(v.engine.Sweep)
	v.markDirty()
}

func (v *Viewer) onIntersect(entries []layout.Entry) {
	v.nav.Observe(entries)
	v.markDirty()
}

func (v *Viewer) onPage(page int) {
	v.bus.PublishPageChanged(eventbus.PageChangedPayload{Page: page})
	v.markDirty()
}

func (v *Viewer) onPageSized(page int, vp decoder.Viewport) {
	v.layout.SetSlotSize(page, vp.Width, vp.Height)
}

func (v *Viewer) onPageRendered(page int, vp decoder.Viewport) {
	v.bus.PublishPageRendered(eventbus.PageRenderedPayload{
		DocumentID: v.docID,
		Page:       page,
		Width:      vp.Width,
		Height:     vp.Height,
	})
	v.markDirty()
}

func (v *Viewer) onPageFailed(page int, err error) {
	v.bus.PublishPageFailed(eventbus.PageFailedPayload{DocumentID: v.docID, Page: page, Err: err})
	v.markDirty()
}

// markDirty coalesces a burst of changes into one published snapshot.
func (v *Viewer) markDirty() {
	if v.dirty {
		return
	}
	v.dirty = true
	v.loop.Post(func() {
		v.dirty = false
		v.version++
		v.state.Store(v.snapshot())
		v.bus.PublishStateChanged(eventbus.StateChangedPayload{Version: v.version})
	})
}

func (v *Viewer) snapshot() *State {
	stats := v.engine.Stats()
	s := &State{
		Version:        v.version,
		DocumentID:     v.docID,
		TotalPages:     v.lifecycle.PageCount(),
		CurrentPage:    v.nav.CurrentPage(),
		Loading:        v.lifecycle.Loading(),
		Error:          lifecycle.Message(v.lifecycle.Err()),
		Zoom:           v.zoom.Level(),
		ZoomPercent:    v.zoom.Percent(),
		CanZoomIn:      v.zoom.CanZoomIn(),
		CanZoomOut:     v.zoom.CanZoomOut(),
		CanGoBack:      v.nav.CanGoBack(),
		CanGoForward:   v.nav.CanGoForward(),
		SnippetLocated: v.nav.IsSnippetLocated(),
		RenderedPages:  stats.Rendered,
		FailedPages:    stats.Failed,
		ScrollTop:      v.layout.ScrollTop(),
		ContentHeight:  v.layout.ContentHeight(),
		ViewportWidth:  v.layout.Width(),
		ViewportHeight: v.layout.ViewportHeight(),
	}
	if req, ok := v.nav.Focused(); ok {
		s.Focus = &req
	}

	slots := v.layout.Slots()
	s.Pages = make([]PageInfo, len(slots))
	for i, slot := range slots {
		s.Pages[i] = PageInfo{
			Page:    slot.Page,
			Offset:  slot.Offset,
			Height:  slot.Height,
			Mounted: slot.Mounted,
			Status:  v.engine.State(slot.Page).String(),
		}
	}
	return s
}

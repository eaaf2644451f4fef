// Package layout positions page slots in a vertically scrolling viewport.
//
// Slots are stacked top to bottom with a fixed gap. A slot's surface is
// mounted the first time the slot comes within the overscan window of the
// viewport and stays mounted until the next Reset. After every geometry change
// the intersection ratio of each mounted slot is recomputed and changed
// entries are delivered in a separately posted loop task, tagged with the
// layout generation so consumers can drop batches from a previous document.
package layout

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/folio/internal/core/surface"
	"github.com/colonyops/folio/internal/viewer/loop"
)

// LetterAspect is the height/width ratio used for slots that have not been
// sized by a render yet.
const LetterAspect = 1.294

// Behavior selects how a scroll is applied.
type Behavior int

const (
	Instant Behavior = iota
	Smooth
)

// Options tunes spacing, mounting and scroll animation.
type Options struct {
	// PageGap is the vertical space between slots.
	PageGap int
	// Overscan extends the mount window by this many viewport heights above
	// and below. Negative mounts every slot.
	Overscan float64
	// ScrollFrames is the number of frames in a smooth scroll.
	ScrollFrames int
	// FrameInterval is the delay between smooth scroll frames.
	FrameInterval time.Duration
}

// DefaultOptions returns a 16px gap, one viewport of overscan and a 12 frame
// smooth scroll at ~60fps.
func DefaultOptions() Options {
	return Options{
		PageGap:       16,
		Overscan:      1,
		ScrollFrames:  12,
		FrameInterval: 16 * time.Millisecond,
	}
}

// Entry is one intersection observation.
type Entry struct {
	Page       int
	Ratio      float64
	Generation uint64
}

// Slot describes one page's box.
type Slot struct {
	Page    int     `json:"page"`
	Offset  float64 `json:"offset"`
	Height  float64 `json:"height"`
	Sized   bool    `json:"sized"`
	Mounted bool    `json:"mounted"`
}

type slot struct {
	width   int
	height  int
	sized   bool
	surface *surface.Surface
}

type animation struct {
	from, to float64
	frame    int
	timer    *loop.Timer
}

// Layout is owned by the viewer loop; none of its methods are safe to call
// from other goroutines.
type Layout struct {
	loop *loop.Loop
	opts Options
	log  zerolog.Logger

	width          int
	viewportHeight int
	generation     uint64
	slots          []slot
	scrollTop      float64
	anim           *animation
	ratios         map[int]float64

	onMount     []func(pages []int)
	onIntersect []func(entries []Entry)
	onScroll    []func(top float64)
}

// New creates an empty layout.
func New(l *loop.Loop, opts Options, logger zerolog.Logger) *Layout {
	return &Layout{
		loop:   l,
		opts:   opts,
		log:    logger.With().Str("cmp", "layout").Logger(),
		ratios: make(map[int]float64),
	}
}

// OnMount registers fn to run synchronously whenever new surfaces are mounted.
func (lay *Layout) OnMount(fn func(pages []int)) { lay.onMount = append(lay.onMount, fn) }

// OnIntersect registers fn to receive intersection batches.
func (lay *Layout) OnIntersect(fn func(entries []Entry)) {
	lay.onIntersect = append(lay.onIntersect, fn)
}

// OnScroll registers fn to run whenever the scroll position changes.
func (lay *Layout) OnScroll(fn func(top float64)) { lay.onScroll = append(lay.onScroll, fn) }

// Reset replaces every slot with pageCount fresh, unmounted slots and scrolls
// to the top.
func (lay *Layout) Reset(pageCount int) {
	lay.stopAnimation()
	lay.generation++
	lay.slots = make([]slot, max(0, pageCount))
	lay.ratios = make(map[int]float64)
	lay.scrollTop = 0
	lay.log.Debug().Uint64("generation", lay.generation).Int("pages", pageCount).Msg("layout reset")
	lay.update()
}

// SetViewport changes the viewport size.
func (lay *Layout) SetViewport(width, height int) {
	if width == lay.width && height == lay.viewportHeight {
		return
	}
	lay.width = max(0, width)
	lay.viewportHeight = max(0, height)
	lay.update()
}

// SetSlotSize records the rendered pixel size of a page.
func (lay *Layout) SetSlotSize(page, width, height int) {
	if page < 1 || page > len(lay.slots) {
		return
	}
	s := &lay.slots[page-1]
	if s.sized && s.width == width && s.height == height {
		return
	}
	s.width, s.height, s.sized = width, height, true
	lay.update()
}

// ScrollTo moves the viewport top to y, clamped to the scrollable range. A
// newer scroll cancels any running animation.
func (lay *Layout) ScrollTo(y float64, b Behavior) {
	lay.stopAnimation()
	target := lay.clamp(y)

	if b == Instant || lay.opts.ScrollFrames <= 1 || target == lay.scrollTop {
		lay.setScrollTop(target)
		return
	}

	lay.anim = &animation{from: lay.scrollTop, to: target}
	lay.scheduleFrame(lay.anim)
}

// ScrollBy moves the viewport by dy relative to the current position.
func (lay *Layout) ScrollBy(dy float64, b Behavior) {
	lay.ScrollTo(lay.scrollTop+dy, b)
}

// Scrolling reports whether a smooth scroll is in progress.
func (lay *Layout) Scrolling() bool { return lay.anim != nil }

// ScrollTop returns the current scroll position.
func (lay *Layout) ScrollTop() float64 { return lay.scrollTop }

// ViewportHeight returns the viewport height.
func (lay *Layout) ViewportHeight() int { return lay.viewportHeight }

// Width returns the container width.
func (lay *Layout) Width() int { return lay.width }

// Generation changes every Reset.
func (lay *Layout) Generation() uint64 { return lay.generation }

// PageCount returns the number of slots.
func (lay *Layout) PageCount() int { return len(lay.slots) }

// ContentHeight is the total height of all slots and gaps.
func (lay *Layout) ContentHeight() float64 {
	if len(lay.slots) == 0 {
		return 0
	}
	return lay.SlotOffset(len(lay.slots)) + lay.slotHeight(len(lay.slots))
}

// SlotOffset returns the top of page's slot in content coordinates.
func (lay *Layout) SlotOffset(page int) float64 {
	page = min(max(page, 1), len(lay.slots)+1)
	var y float64
	for p := 1; p < page; p++ {
		y += lay.slotHeight(p) + float64(lay.opts.PageGap)
	}
	return y
}

// Mounted reports whether page has a surface.
func (lay *Layout) Mounted(page int) bool {
	_, ok := lay.Surface(page)
	return ok
}

// Surface returns page's surface once mounted.
func (lay *Layout) Surface(page int) (*surface.Surface, bool) {
	if page < 1 || page > len(lay.slots) {
		return nil, false
	}
	s := lay.slots[page-1].surface
	return s, s != nil
}

// Slots returns a copy of every slot's geometry.
func (lay *Layout) Slots() []Slot {
	out := make([]Slot, len(lay.slots))
	var y float64
	for i, s := range lay.slots {
		h := lay.slotHeight(i + 1)
		out[i] = Slot{Page: i + 1, Offset: y, Height: h, Sized: s.sized, Mounted: s.surface != nil}
		y += h + float64(lay.opts.PageGap)
	}
	return out
}

func (lay *Layout) slotHeight(page int) float64 {
	s := lay.slots[page-1]
	if s.sized {
		return float64(s.height)
	}
	return math.Ceil(float64(lay.width) * LetterAspect)
}

func (lay *Layout) clamp(y float64) float64 {
	maxTop := max(0, lay.ContentHeight()-float64(lay.viewportHeight))
	return min(max(y, 0), maxTop)
}

func (lay *Layout) setScrollTop(y float64) {
	if y == lay.scrollTop {
		return
	}
	lay.scrollTop = y
	for _, fn := range lay.onScroll {
		fn(y)
	}
	lay.update()
}

func (lay *Layout) stopAnimation() {
	if lay.anim == nil {
		return
	}
	lay.anim.timer.Stop()
	lay.anim = nil
}

func (lay *Layout) scheduleFrame(a *animation) {
	a.timer = lay.loop.AfterFunc(lay.opts.FrameInterval, func() {
		if lay.anim != a {
			return
		}
		a.frame++
		t := float64(a.frame) / float64(lay.opts.ScrollFrames)
		if a.frame >= lay.opts.ScrollFrames {
			lay.anim = nil
			lay.setScrollTop(lay.clamp(a.to))
			return
		}
		lay.setScrollTop(lay.clamp(a.from + (a.to-a.from)*easeOutCubic(t)))
		lay.scheduleFrame(a)
	})
}

func easeOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

// update re-clamps the scroll position, mounts slots entering the overscan
// window and queues intersection changes.
func (lay *Layout) update() {
	if top := lay.clamp(lay.scrollTop); top != lay.scrollTop {
		lay.scrollTop = top
		for _, fn := range lay.onScroll {
			fn(top)
		}
	}

	vh := float64(lay.viewportHeight)
	lo := lay.scrollTop - lay.opts.Overscan*vh
	hi := lay.scrollTop + vh + lay.opts.Overscan*vh
	mountAll := lay.opts.Overscan < 0

	var (
		mounted []int
		changed []Entry
		y       float64
	)
	for i := range lay.slots {
		page := i + 1
		h := lay.slotHeight(page)
		top, bottom := y, y+h
		y = bottom + float64(lay.opts.PageGap)

		s := &lay.slots[i]
		if s.surface == nil && (mountAll || (bottom > lo && top < hi)) {
			s.surface = surface.New()
			mounted = append(mounted, page)
		}
		if s.surface == nil {
			continue
		}

		ratio := intersection(top, bottom, lay.scrollTop, lay.scrollTop+vh)
		if prev, ok := lay.ratios[page]; !ok || prev != ratio {
			lay.ratios[page] = ratio
			changed = append(changed, Entry{Page: page, Ratio: ratio, Generation: lay.generation})
		}
	}

	if len(mounted) > 0 {
		lay.log.Debug().Ints("pages", mounted).Msg("mounted surfaces")
		for _, fn := range lay.onMount {
			fn(mounted)
		}
	}

	if len(changed) > 0 && len(lay.onIntersect) > 0 {
		lay.loop.Post(func() {
			for _, fn := range lay.onIntersect {
				fn(changed)
			}
		})
	}
}

// intersection returns the fraction of [top, bottom) visible in [vTop, vBottom).
func intersection(top, bottom, vTop, vBottom float64) float64 {
	h := bottom - top
	if h <= 0 {
		return 0
	}
	visible := min(bottom, vBottom) - max(top, vTop)
	if visible <= 0 {
		return 0
	}
	return min(1, visible/h)
}

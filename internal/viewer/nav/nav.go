// Package nav tracks the current page and drives programmatic navigation.
//
// The current page follows intersection batches from the layout: the mounted
// slot with the strictly greatest ratio wins, ties keep the previous page when
// it is among the tied and otherwise go to the lowest page index. Explicit
// scrolls set the current page optimistically without waiting for the next
// batch, and batches from the frames of that scroll only take effect once it
// has landed.
package nav

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/colonyops/folio/internal/viewer/layout"
)

// Geometry is the slice of the layout navigation needs.
type Geometry interface {
	Generation() uint64
	Mounted(page int) bool
	SlotOffset(page int) float64
	ScrollTop() float64
	ScrollBy(dy float64, b layout.Behavior)
	Scrolling() bool
}

// TextSource is a read-only view of extracted page text.
type TextSource interface {
	PageText(page int) (string, bool)
}

// FocusRequest asks the viewer to bring a page into view. A new RequestID
// re-triggers navigation even when TargetPage is unchanged.
type FocusRequest struct {
	TargetPage int    `json:"targetPage"`
	Snippet    string `json:"snippet,omitempty"`
	RequestID  string `json:"requestId"`
}

// Controller owns the current page. It must only be used from the viewer loop.
type Controller struct {
	geom Geometry
	text TextSource
	log  zerolog.Logger

	pageCount int
	current   int
	ratios    map[int]float64
	seeking   bool // a programmatic smooth scroll is still running

	focus       *FocusRequest
	pending     bool
	applied     bool
	lastApplied string

	onChange []func(page int)
}

// New creates a controller at page 1 with no document.
func New(geom Geometry, text TextSource, logger zerolog.Logger) *Controller {
	return &Controller{
		geom:    geom,
		text:    text,
		log:     logger.With().Str("cmp", "nav").Logger(),
		current: 1,
		ratios:  make(map[int]float64),
	}
}

// OnChange registers fn to run whenever the current page changes.
func (c *Controller) OnChange(fn func(page int)) { c.onChange = append(c.onChange, fn) }

// CurrentPage returns the page considered current.
func (c *Controller) CurrentPage() int { return c.current }

// PageCount returns the page count navigation clamps against.
func (c *Controller) PageCount() int { return c.pageCount }

// CanGoBack reports whether a previous page exists.
func (c *Controller) CanGoBack() bool { return c.pageCount > 0 && c.current > 1 }

// CanGoForward reports whether a next page exists.
func (c *Controller) CanGoForward() bool { return c.current < c.pageCount }

// Reset returns to page 1 for a new input. Observations from the previous
// document are forgotten; a held focus request stays held.
func (c *Controller) Reset(pageCount int) {
	c.ratios = make(map[int]float64)
	c.seeking = false
	c.pageCount = max(0, pageCount)
	c.setCurrent(1)
	c.applyPending()
}

// SetPageCount updates the page count once a document finishes loading and
// applies any held focus request that now fits.
func (c *Controller) SetPageCount(n int) {
	c.pageCount = max(0, n)
	if c.current > c.pageCount && c.pageCount > 0 {
		c.setCurrent(c.pageCount)
	}
	c.applyPending()
}

// Observe merges an intersection batch and recomputes the current page.
func (c *Controller) Observe(entries []layout.Entry) {
	gen := c.geom.Generation()
	for _, e := range entries {
		if e.Generation != gen || !c.geom.Mounted(e.Page) {
			continue
		}
		c.ratios[e.Page] = e.Ratio
	}
	if c.seeking {
		if c.geom.Scrolling() {
			return
		}
		c.seeking = false
	}

	var (
		best  float64
		tied  []int
		found bool
	)
	for page := 1; page <= c.pageCount; page++ {
		r := c.ratios[page]
		if r <= 0 {
			continue
		}
		switch {
		case !found || r > best:
			best, tied, found = r, []int{page}, true
		case r == best:
			tied = append(tied, page)
		}
	}
	if !found {
		return
	}

	next := tied[0]
	for _, p := range tied {
		if p == c.current {
			next = p
			break
		}
	}
	c.setCurrent(next)
}

// ScrollToPage clamps n into range, smooth-scrolls its slot to the top of the
// viewport and sets the current page immediately.
func (c *Controller) ScrollToPage(n int) {
	if c.pageCount <= 0 {
		return
	}
	n = min(max(n, 1), c.pageCount)
	dy := c.geom.SlotOffset(n) - c.geom.ScrollTop()
	c.geom.ScrollBy(dy, layout.Smooth)
	c.seeking = c.geom.Scrolling()
	c.setCurrent(n)
}

// NextPage scrolls to the page after the current one.
func (c *Controller) NextPage() { c.ScrollToPage(c.current + 1) }

// PrevPage scrolls to the page before the current one.
func (c *Controller) PrevPage() { c.ScrollToPage(c.current - 1) }

// Focus records req and navigates to its target if its RequestID is new. A
// request for a page beyond the known page count is held until the document
// has that many pages.
func (c *Controller) Focus(req FocusRequest) {
	r := req
	c.focus = &r
	if c.applied && req.RequestID == c.lastApplied {
		return
	}
	c.pending = true
	c.applyPending()
}

// Focused returns the most recent focus request.
func (c *Controller) Focused() (FocusRequest, bool) {
	if c.focus == nil {
		return FocusRequest{}, false
	}
	return *c.focus, true
}

// IsSnippetLocated reports whether the focus request's snippet appears in
// the extracted text of its target page.
func (c *Controller) IsSnippetLocated() bool {
	if c.focus == nil || c.text == nil {
		return false
	}
	snippet := Normalize(c.focus.Snippet)
	if snippet == "" {
		return false
	}
	text, ok := c.text.PageText(c.focus.TargetPage)
	if !ok {
		return false
	}
	return strings.Contains(Normalize(text), snippet)
}

// Search returns the pages, in order, whose extracted text contains query.
// Pages without extracted text are skipped.
func (c *Controller) Search(query string) []int {
	q := Normalize(query)
	if q == "" || c.text == nil {
		return nil
	}
	var pages []int
	for page := 1; page <= c.pageCount; page++ {
		text, ok := c.text.PageText(page)
		if ok && strings.Contains(Normalize(text), q) {
			pages = append(pages, page)
		}
	}
	return pages
}

func (c *Controller) applyPending() {
	if !c.pending || c.focus == nil {
		return
	}
	target := c.focus.TargetPage
	if target < 1 {
		c.pending = false
		return
	}
	if target > c.pageCount {
		c.log.Debug().Int("target", target).Int("pages", c.pageCount).Msg("holding focus request")
		return
	}
	c.pending = false
	c.applied = true
	c.lastApplied = c.focus.RequestID
	c.ScrollToPage(target)
}

func (c *Controller) setCurrent(page int) {
	if page == c.current {
		return
	}
	c.current = page
	for _, fn := range c.onChange {
		fn(page)
	}
}

// Normalize trims s, collapses runs of whitespace to one space and folds case.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

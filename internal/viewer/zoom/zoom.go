// Package zoom owns the viewer's zoom multiplier.
package zoom

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/colonyops/folio/internal/core/prefs"
)

// Key is the preference key the zoom level is stored under.
const Key = "zoom"

// Fit is the level ZoomFit resets to.
const Fit = 1.0

// Options bounds the zoom level.
type Options struct {
	Min     float64
	Max     float64
	Step    float64
	Default float64
}

// DefaultOptions returns the 50%–200% range in 10% steps.
func DefaultOptions() Options {
	return Options{Min: 0.5, Max: 2.0, Step: 0.1, Default: 1.0}
}

// WheelEvent is a pointer-wheel gesture over the page viewport.
type WheelEvent struct {
	DeltaY float64
	Ctrl   bool
	Meta   bool
}

// Controller holds the clamped zoom level. It is not safe for concurrent use;
// the viewer calls it from its loop.
type Controller struct {
	opts     Options
	store    prefs.Store
	log      zerolog.Logger
	level    float64
	onChange []func(level float64)
}

// New creates a controller, restoring the persisted level from store. A
// missing or unparseable value falls back to opts.Default; out-of-range values
// are clamped.
func New(ctx context.Context, store prefs.Store, opts Options, logger zerolog.Logger) *Controller {
	c := &Controller{
		opts:  opts,
		store: store,
		log:   logger.With().Str("cmp", "zoom").Logger(),
	}
	c.level = c.normalize(opts.Default)

	if store == nil {
		return c
	}

	raw, err := store.Get(ctx, Key)
	switch {
	case errors.Is(err, prefs.ErrNotFound):
	case err != nil:
		c.log.Warn().Err(err).Msg("failed to read persisted zoom")
	default:
		v, perr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if perr != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			c.log.Warn().Str("value", raw).Msg("ignoring unparseable persisted zoom")
			break
		}
		c.level = c.normalize(v)
	}

	return c
}

// OnChange registers fn to run after every effective level change.
func (c *Controller) OnChange(fn func(level float64)) {
	c.onChange = append(c.onChange, fn)
}

// Level returns the current multiplier.
func (c *Controller) Level() float64 { return c.level }

// Percent returns the level as a whole percentage.
func (c *Controller) Percent() int { return int(math.Round(c.level * 100)) }

// CanZoomIn reports whether ZoomIn would change the level.
func (c *Controller) CanZoomIn() bool { return c.level < c.opts.Max-1e-9 }

// CanZoomOut reports whether ZoomOut would change the level.
func (c *Controller) CanZoomOut() bool { return c.level > c.opts.Min+1e-9 }

// ZoomIn raises the level by one step.
func (c *Controller) ZoomIn() bool { return c.Set(c.level + c.opts.Step) }

// ZoomOut lowers the level by one step.
func (c *Controller) ZoomOut() bool { return c.Set(c.level - c.opts.Step) }

// ZoomFit resets the level to exactly 100%.
func (c *Controller) ZoomFit() bool { return c.Set(Fit) }

// Set clamps and applies level. It reports whether the level changed; only an
// effective change is persisted and broadcast.
func (c *Controller) Set(level float64) bool {
	next := c.normalize(level)
	if next == c.level {
		return false
	}
	c.level = next

	if c.store != nil {
		if err := c.store.Set(context.Background(), Key, strconv.FormatFloat(next, 'f', -1, 64)); err != nil {
			c.log.Warn().Err(err).Float64("level", next).Msg("failed to persist zoom")
		}
	}

	for _, fn := range c.onChange {
		fn(next)
	}
	return true
}

// Wheel applies a wheel gesture. Only a wheel with Ctrl or Meta held is a
// zoom gesture; it reports whether the event was consumed so the host can
// suppress scrolling.
func (c *Controller) Wheel(ev WheelEvent) bool {
	if !ev.Ctrl && !ev.Meta {
		return false
	}
	switch {
	case ev.DeltaY < 0:
		c.ZoomIn()
	case ev.DeltaY > 0:
		c.ZoomOut()
	}
	return true
}

// normalize snaps v to the step grid and clamps it into range.
func (c *Controller) normalize(v float64) float64 {
	if c.opts.Step > 0 {
		v = math.Round(v/c.opts.Step) * c.opts.Step
	}
	v = math.Round(v*1e6) / 1e6
	return min(c.opts.Max, max(c.opts.Min, v))
}

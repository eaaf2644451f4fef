package zoom

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/folio/internal/core/prefs"
)

func newController(t *testing.T, store prefs.Store) *Controller {
	t.Helper()
	return New(context.Background(), store, DefaultOptions(), zerolog.Nop())
}

func TestNew_RestoresPersistedLevel(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   float64
	}{
		{name: "nothing stored", stored: "", want: 1.0},
		{name: "valid value", stored: "1.3", want: 1.3},
		{name: "surrounding whitespace", stored: " 0.8\n", want: 0.8},
		{name: "above max clamps", stored: "3", want: 2.0},
		{name: "below min clamps", stored: "0.1", want: 0.5},
		{name: "garbage falls back", stored: "wide", want: 1.0},
		{name: "NaN falls back", stored: "NaN", want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := prefs.NewMemoryStore()
			if tt.stored != "" {
				require.NoError(t, store.Set(context.Background(), Key, tt.stored))
			}

			c := newController(t, store)
			assert.InDelta(t, tt.want, c.Level(), 1e-9)
		})
	}
}

func TestController_ZoomInPersists(t *testing.T) {
	store := prefs.NewMemoryStore()
	c := newController(t, store)

	assert.True(t, c.ZoomIn())
	assert.True(t, c.ZoomIn())
	assert.Equal(t, 120, c.Percent())

	raw, err := store.Get(context.Background(), Key)
	require.NoError(t, err)
	assert.Equal(t, "1.2", raw)

	restored := newController(t, store)
	assert.Equal(t, 120, restored.Percent())
}

func TestController_ZoomOutFloors(t *testing.T) {
	c := newController(t, prefs.NewMemoryStore())

	for range 20 {
		c.ZoomOut()
	}

	assert.Equal(t, 50, c.Percent())
	assert.False(t, c.CanZoomOut())
	assert.True(t, c.CanZoomIn())
	assert.False(t, c.ZoomOut(), "no change at the floor")
}

func TestController_ZoomInCeiling(t *testing.T) {
	c := newController(t, prefs.NewMemoryStore())

	for range 30 {
		c.ZoomIn()
	}

	assert.Equal(t, 200, c.Percent())
	assert.False(t, c.CanZoomIn())
}

func TestController_StepsDoNotDrift(t *testing.T) {
	c := newController(t, nil)

	for range 7 {
		c.ZoomIn()
	}
	for range 7 {
		c.ZoomOut()
	}

	assert.Equal(t, 1.0, c.Level())
}

func TestController_ZoomFit(t *testing.T) {
	c := newController(t, nil)
	c.ZoomIn()
	c.ZoomIn()

	assert.True(t, c.ZoomFit())
	assert.Equal(t, 1.0, c.Level())
	assert.False(t, c.ZoomFit(), "already at 100%")
}

func TestController_OnChangeOnlyOnEffectiveChange(t *testing.T) {
	c := newController(t, nil)

	var levels []float64
	c.OnChange(func(level float64) { levels = append(levels, level) })

	c.ZoomIn()
	c.ZoomFit()
	c.ZoomFit()
	c.Set(1.0)

	assert.Equal(t, []float64{1.1, 1.0}, levels)
}

func TestController_Wheel(t *testing.T) {
	tests := []struct {
		name        string
		event       WheelEvent
		wantHandled bool
		wantPercent int
	}{
		{name: "plain scroll never zooms", event: WheelEvent{DeltaY: -120}, wantHandled: false, wantPercent: 100},
		{name: "ctrl wheel up zooms in", event: WheelEvent{DeltaY: -120, Ctrl: true}, wantHandled: true, wantPercent: 110},
		{name: "ctrl wheel down zooms out", event: WheelEvent{DeltaY: 120, Ctrl: true}, wantHandled: true, wantPercent: 90},
		{name: "meta counts as modifier", event: WheelEvent{DeltaY: -1, Meta: true}, wantHandled: true, wantPercent: 110},
		{name: "zero delta is consumed without change", event: WheelEvent{Ctrl: true}, wantHandled: true, wantPercent: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t, nil)
			assert.Equal(t, tt.wantHandled, c.Wheel(tt.event))
			assert.Equal(t, tt.wantPercent, c.Percent())
		})
	}
}

type failingStore struct{ *prefs.MemoryStore }

func (failingStore) Set(context.Context, string, string) error { return assert.AnError }

func TestController_PersistFailureIsNotFatal(t *testing.T) {
	c := New(context.Background(), failingStore{MemoryStore: prefs.NewMemoryStore()}, DefaultOptions(), zerolog.Nop())

	assert.True(t, c.ZoomIn())
	assert.Equal(t, 110, c.Percent())
}

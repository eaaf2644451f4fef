package viewer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/folio/internal/core/decoder"
	"github.com/colonyops/folio/internal/core/decoder/decodertest"
	"github.com/colonyops/folio/internal/core/prefs"
	"github.com/colonyops/folio/internal/viewer/zoom"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Render.RetryInterval = time.Millisecond
	opts.Layout.FrameInterval = time.Millisecond
	opts.Layout.ScrollFrames = 3
	return opts
}

func startViewer(t *testing.T, opts Options, dec decoder.Decoder, store prefs.Store) *Viewer {
	t.Helper()

	v := New(opts, dec, store, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = v.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return v
}

func waitIdle(t *testing.T, v *Viewer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, v.WaitIdle(ctx))
}

func TestViewer_OpenRendersAllPages(t *testing.T) {
	opts := testOptions()
	opts.Layout.Overscan = -1
	v := startViewer(t, opts, decodertest.New(decodertest.Letter(3)), nil)

	v.Resize(612, 800)
	v.Open(Source{Data: []byte("%PDF")})
	waitIdle(t, v)

	st := v.State()
	assert.Equal(t, 3, st.TotalPages)
	assert.Equal(t, 3, st.RenderedPages)
	assert.Equal(t, 1, st.CurrentPage)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.True(t, st.Settled())
	assert.False(t, st.CanGoBack)
	assert.True(t, st.CanGoForward)
	require.Len(t, st.Pages, 3)
	for _, p := range st.Pages {
		assert.Equal(t, "rendered", p.Status)
		assert.InDelta(t, 792.0, p.Height, 1e-9)
	}

	surf, ok := v.Surface(2)
	require.True(t, ok)
	assert.True(t, surf.Painted())

	text, ok, err := v.PageText(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "page 2", text)

	pages, err := v.Search(context.Background(), "PAGE 3")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, pages)
}

func TestViewer_ZoomTwiceBeforePageThreeCompletes(t *testing.T) {
	dec := decodertest.New(decodertest.Letter(3))
	gate := decodertest.NewGate()
	started := make(chan struct{})
	var once sync.Once
	dec.RenderHook = func(ctx context.Context, page int, vp decoder.Viewport) error {
		if page == 3 && vp.Scale == 1.0 {
			once.Do(func() { close(started) })
			return gate.Wait(ctx)
		}
		return nil
	}

	opts := testOptions()
	opts.Layout.Overscan = -1
	store := prefs.NewMemoryStore()
	v := startViewer(t, opts, dec, store)

	v.Resize(612, 800)
	v.Open(Source{Data: []byte("%PDF")})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("page 3 never started rendering")
	}

	v.ZoomIn()
	v.ZoomIn()
	waitIdle(t, v)
	gate.Release()
	waitIdle(t, v)

	st := v.State()
	assert.Equal(t, 120, st.ZoomPercent)
	assert.Equal(t, 3, st.RenderedPages)

	surf, ok := v.Surface(3)
	require.True(t, ok)
	w, h := surf.Size()
	assert.Equal(t, int(math.Ceil(612*1.2)), w)
	assert.Equal(t, int(math.Ceil(792*1.2)), h)

	raw, err := store.Get(context.Background(), zoom.Key)
	require.NoError(t, err)
	assert.Equal(t, "1.2", raw)
}

func TestViewer_ZoomOutFloors(t *testing.T) {
	v := startViewer(t, testOptions(), decodertest.New(decodertest.Letter(1)), nil)

	for range 20 {
		v.ZoomOut()
	}
	waitIdle(t, v)

	st := v.State()
	assert.Equal(t, 50, st.ZoomPercent)
	assert.False(t, st.CanZoomOut)
	assert.True(t, st.CanZoomIn)
}

func TestViewer_RestoresPersistedZoom(t *testing.T) {
	store := prefs.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), zoom.Key, "1.5"))

	v := startViewer(t, testOptions(), decodertest.New(decodertest.Letter(1)), store)
	assert.Equal(t, 150, v.State().ZoomPercent)
}

func TestViewer_ScrollToPageTracksCurrentPage(t *testing.T) {
	v := startViewer(t, testOptions(), decodertest.New(decodertest.Letter(4)), nil)

	v.Resize(612, 400)
	v.Open(Source{Data: []byte("%PDF")})
	waitIdle(t, v)

	v.ScrollToPage(3)
	waitIdle(t, v)

	st := v.State()
	assert.Equal(t, 3, st.CurrentPage)
	assert.InDelta(t, st.Pages[2].Offset, st.ScrollTop, 1e-9)

	v.ScrollToPage(99)
	waitIdle(t, v)

	st = v.State()
	assert.Equal(t, 4, st.CurrentPage)
	assert.LessOrEqual(t, st.ScrollTop, st.ContentHeight-400)
	assert.False(t, st.CanGoForward)
}

func TestViewer_ScrollToLastPageInTallViewport(t *testing.T) {
	v := startViewer(t, testOptions(), decodertest.New(decodertest.Letter(3)), nil)

	// Two Letter pages fit, so the scroll ends with pages 2 and 3 both fully
	// visible.
	v.Resize(612, 1700)
	v.Open(Source{Data: []byte("%PDF")})
	waitIdle(t, v)

	v.ScrollToPage(3)
	waitIdle(t, v)

	st := v.State()
	assert.Equal(t, 3, st.CurrentPage)
	assert.False(t, st.CanGoForward)
	assert.InDelta(t, st.ContentHeight-1700, st.ScrollTop, 1e-9)
}

func TestViewer_FocusHeldUntilLoaded(t *testing.T) {
	dec := decodertest.New([]decodertest.PageSpec{
		{Size: decoder.Size{Width: 612, Height: 792}, Text: "History"},
		{Size: decoder.Size{Width: 612, Height: 792}, Text: "Final Diagnosis: bronchitis"},
		{Size: decoder.Size{Width: 612, Height: 792}, Text: "Plan"},
	})
	opts := testOptions()
	opts.Layout.Overscan = -1
	v := startViewer(t, opts, dec, nil)

	v.Resize(612, 400)
	v.Focus(FocusRequest{TargetPage: 2, Snippet: "  diagnosis ", RequestID: "5"})
	v.Open(Source{Data: []byte("%PDF")})
	waitIdle(t, v)

	st := v.State()
	assert.Equal(t, 2, st.CurrentPage)
	assert.True(t, st.SnippetLocated)
	require.NotNil(t, st.Focus)
	assert.Equal(t, "5", st.Focus.RequestID)
}

func TestViewer_DecodeFailureIsReported(t *testing.T) {
	dec := decodertest.New(nil)
	dec.DecodeErr = errors.New("not a pdf")
	v := startViewer(t, testOptions(), dec, nil)

	v.Resize(612, 400)
	v.Open(Source{Data: []byte("junk")})
	waitIdle(t, v)

	st := v.State()
	assert.False(t, st.Loading)
	assert.Equal(t, 0, st.TotalPages)
	assert.Contains(t, st.Error, "not a pdf")
}

func TestViewer_OpenReplacesAndDestroys(t *testing.T) {
	dec := decodertest.New(decodertest.Letter(2))
	v := startViewer(t, testOptions(), dec, nil)

	v.Resize(612, 400)
	v.Open(Source{Data: []byte("a")})
	waitIdle(t, v)
	v.ScrollToPage(2)
	waitIdle(t, v)
	first := v.State().DocumentID

	v.Open(Source{Data: []byte("b")})
	waitIdle(t, v)

	st := v.State()
	assert.Greater(t, st.DocumentID, first)
	assert.Equal(t, 1, st.CurrentPage)
	assert.Equal(t, 0.0, st.ScrollTop)

	docs := dec.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, 1, docs[0].DestroyCount())
	assert.Equal(t, 0, docs[1].DestroyCount())

	v.Close()
	waitIdle(t, v)
	assert.Equal(t, 1, docs[1].DestroyCount())
	assert.Equal(t, 0, v.State().TotalPages)
}

func TestViewer_RunDestroysDocumentsDecodedDuringShutdown(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		dec := decodertest.New(decodertest.Letter(2))
		dec.DecodeHook = func(context.Context, []byte) error {
			<-ctx.Done()
			return nil
		}

		v := New(testOptions(), dec, nil, zerolog.Nop())
		done := make(chan error, 1)
		go func() { done <- v.Run(ctx) }()

		v.Open(Source{Data: []byte("%PDF")})
		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return")
		}

		docs := dec.Documents()
		require.Len(t, docs, 1)
		assert.Equal(t, 1, docs[0].DestroyCount(), "run %d", i)
	}
}

func TestViewer_PlainWheelScrolls(t *testing.T) {
	v := startViewer(t, testOptions(), decodertest.New(decodertest.Letter(3)), nil)

	v.Resize(612, 400)
	v.Open(Source{Data: []byte("%PDF")})
	waitIdle(t, v)

	v.Wheel(WheelEvent{DeltaY: 120})
	waitIdle(t, v)
	assert.InDelta(t, 120.0, v.State().ScrollTop, 1e-9)
	assert.Equal(t, 100, v.State().ZoomPercent)

	v.Wheel(WheelEvent{DeltaY: -120, Ctrl: true})
	waitIdle(t, v)
	assert.Equal(t, 110, v.State().ZoomPercent)
}

func TestViewer_SubscribeReceivesSnapshots(t *testing.T) {
	v := startViewer(t, testOptions(), decodertest.New(decodertest.Letter(1)), nil)

	got := make(chan State, 16)
	v.Subscribe(func(s State) {
		select {
		case got <- s:
		default:
		}
	})

	v.ZoomIn()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-got:
			if s.ZoomPercent == 110 {
				return
			}
		case <-deadline:
			t.Fatal("no snapshot with the new zoom level")
		}
	}
}

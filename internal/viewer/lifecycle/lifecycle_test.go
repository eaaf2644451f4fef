package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/folio/internal/core/decoder"
	"github.com/colonyops/folio/internal/core/decoder/decodertest"
	"github.com/colonyops/folio/internal/viewer/loop"
)

type stubLoader struct {
	data map[string][]byte
}

func (s stubLoader) Load(_ context.Context, locator string) ([]byte, error) {
	data, ok := s.data[locator]
	if !ok {
		return nil, errors.New("no such document")
	}
	return data, nil
}

type harness struct {
	t       *testing.T
	loop    *loop.Loop
	dec     *decodertest.Decoder
	manager *Manager

	changes []*Handle
}

func newHarness(t *testing.T, dec *decodertest.Decoder, loader Loader) *harness {
	t.Helper()

	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h := &harness{t: t, loop: l, dec: dec, manager: New(l, dec, loader, zerolog.Nop())}
	h.manager.OnChange(func(handle *Handle) { h.changes = append(h.changes, handle) })
	return h
}

func (h *harness) on(fn func(m *Manager)) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.loop.Call(ctx, func() { fn(h.manager) }))
}

func (h *harness) idle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.loop.WaitIdle(ctx))
}

func (h *harness) handle() *Handle {
	var handle *Handle
	h.on(func(m *Manager) { handle = m.Handle() })
	return handle
}

// slowDecoder blocks decodes of the bytes "slow" until the returned gate is
// released, ignoring cancellation like a decoder that cannot be interrupted.
func slowDecoder(pages int) (*decodertest.Decoder, *decodertest.Gate, chan struct{}) {
	dec := decodertest.New(decodertest.Letter(pages))
	gate := decodertest.NewGate()
	started := make(chan struct{}, 1)
	dec.DecodeHook = func(_ context.Context, data []byte) error {
		if string(data) == "slow" {
			started <- struct{}{}
			_ = gate.Wait(context.Background())
		}
		return nil
	}
	return dec, gate, started
}

func TestManager_LoadAdoptsHandle(t *testing.T) {
	h := newHarness(t, decodertest.New(decodertest.Letter(3)), nil)

	var loading bool
	h.on(func(m *Manager) {
		m.Load(Source{Data: []byte("%PDF")})
		loading = m.Loading()
	})
	assert.True(t, loading)

	h.idle()
	h.on(func(m *Manager) {
		assert.False(t, m.Loading())
		assert.NoError(t, m.Err())
		assert.Equal(t, 3, m.PageCount())
		require.NotNil(t, m.Handle())
		assert.Positive(t, m.Handle().ID())
		assert.Equal(t, []*Handle{nil, m.Handle()}, h.changes)
	})
}

func TestManager_DecodeFailure(t *testing.T) {
	dec := decodertest.New(decodertest.Letter(1))
	dec.DecodeErr = errors.New("bad xref table")
	h := newHarness(t, dec, nil)

	h.on(func(m *Manager) { m.Load(Source{Data: []byte("junk")}) })
	h.idle()

	h.on(func(m *Manager) {
		assert.False(t, m.Loading())
		assert.Nil(t, m.Handle())
		assert.Equal(t, 0, m.PageCount())
		require.ErrorIs(t, m.Err(), decoder.ErrDecodeFailure)
		assert.True(t, strings.HasPrefix(Message(m.Err()), "Unable to open this document"))
	})

	// Resubmitting the same input is the retry.
	dec.DecodeErr = nil
	h.on(func(m *Manager) { m.Load(Source{Data: []byte("junk")}) })
	h.idle()

	h.on(func(m *Manager) {
		assert.NoError(t, m.Err())
		assert.Equal(t, 1, m.PageCount())
	})
}

func TestManager_LateDecodeIsDestroyed(t *testing.T) {
	dec, gate, started := slowDecoder(2)
	h := newHarness(t, dec, nil)

	h.on(func(m *Manager) { m.Load(Source{Data: []byte("slow")}) })
	<-started
	h.on(func(m *Manager) { m.Load(Source{Data: []byte("fast")}) })
	h.idle()

	current := h.handle()
	require.NotNil(t, current)

	gate.Release()
	h.idle()

	docs := dec.Documents()
	require.Len(t, docs, 2)
	for _, doc := range docs {
		if doc == current.Document() {
			assert.Equal(t, 0, doc.DestroyCount(), "adopted document must stay alive")
			continue
		}
		assert.Equal(t, 1, doc.DestroyCount(), "late document must be destroyed once")
	}
	assert.Same(t, current, h.handle())
}

func TestManager_CloseDuringDecode(t *testing.T) {
	dec, gate, started := slowDecoder(2)
	h := newHarness(t, dec, nil)

	h.on(func(m *Manager) { m.Load(Source{Data: []byte("slow")}) })
	<-started
	h.on(func(m *Manager) { m.Close() })
	gate.Release()
	h.idle()

	h.on(func(m *Manager) {
		assert.Nil(t, m.Handle())
		assert.False(t, m.Loading())
	})
	docs := dec.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].DestroyCount())
}

func TestManager_ReplaceAndCloseDestroyOnce(t *testing.T) {
	dec := decodertest.New(decodertest.Letter(2))
	h := newHarness(t, dec, nil)

	h.on(func(m *Manager) { m.Load(Source{Data: []byte("a")}) })
	h.idle()
	first := h.handle()

	h.on(func(m *Manager) { m.Load(Source{Data: []byte("b")}) })
	h.idle()
	second := h.handle()

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Greater(t, second.ID(), first.ID())

	h.on(func(m *Manager) {
		m.Close()
		m.Close()
	})
	h.idle()

	docs := dec.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, 1, docs[0].DestroyCount())
	assert.Equal(t, 1, docs[1].DestroyCount())
	assert.Nil(t, h.handle())
}

func TestManager_DestroyDoesNotBlockLoop(t *testing.T) {
	dec := decodertest.New(decodertest.Letter(2))
	h := newHarness(t, dec, nil)

	h.on(func(m *Manager) { m.Load(Source{Data: []byte("a")}) })
	h.idle()

	gate := decodertest.NewGate()
	destroying := make(chan struct{}, 1)
	dec.DestroyHook = func() {
		destroying <- struct{}{}
		_ = gate.Wait(context.Background())
	}

	h.on(func(m *Manager) { m.Load(Source{Data: []byte("b")}) })
	<-destroying

	// The loop keeps serving, and adopts the next document, while the first
	// one is still closing.
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		pages := 0
		err := h.loop.Call(ctx, func() { pages = h.manager.PageCount() })
		return err == nil && pages == 2
	}, 2*time.Second, 5*time.Millisecond)

	gate.Release()
	h.idle()

	docs := dec.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, 1, docs[0].DestroyCount())
	assert.Equal(t, 0, docs[1].DestroyCount())
}

func TestManager_DecodeAfterLoopStopsIsDestroyed(t *testing.T) {
	dec, gate, started := slowDecoder(2)

	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	m := New(l, dec, nil, zerolog.Nop())

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	require.NoError(t, l.Call(callCtx, func() { m.Load(Source{Data: []byte("slow")}) }))
	<-started

	cancel()
	<-done
	gate.Release()

	require.Eventually(t, func() bool {
		docs := dec.Documents()
		return len(docs) == 1 && docs[0].DestroyCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager_EmptySourceClears(t *testing.T) {
	dec := decodertest.New(decodertest.Letter(2))
	h := newHarness(t, dec, nil)

	h.on(func(m *Manager) { m.Load(Source{Data: []byte("a")}) })
	h.idle()
	h.on(func(m *Manager) { m.Load(Source{}) })
	h.idle()

	h.on(func(m *Manager) {
		assert.Nil(t, m.Handle())
		assert.Equal(t, 0, m.PageCount())
		assert.False(t, m.Loading())
	})
	assert.Equal(t, 1, dec.Documents()[0].DestroyCount())
}

func TestManager_LoadsLocator(t *testing.T) {
	loader := stubLoader{data: map[string][]byte{"https://example.test/a.pdf": []byte("%PDF")}}
	h := newHarness(t, decodertest.New(decodertest.Letter(4)), loader)

	h.on(func(m *Manager) { m.Load(Source{Locator: "https://example.test/a.pdf"}) })
	h.idle()
	h.on(func(m *Manager) { assert.Equal(t, 4, m.PageCount()) })

	h.on(func(m *Manager) { m.Load(Source{Locator: "https://example.test/missing.pdf"}) })
	h.idle()
	h.on(func(m *Manager) {
		require.ErrorIs(t, m.Err(), decoder.ErrDecodeFailure)
		assert.Contains(t, m.Err().Error(), "no such document")
	})
}

func TestHandle_DestroyIsIdempotent(t *testing.T) {
	dec := decodertest.New(decodertest.Letter(1))
	doc, err := dec.Decode(context.Background(), nil)
	require.NoError(t, err)

	h := newHandle(1, doc)
	require.NoError(t, h.Destroy())
	require.NoError(t, h.Destroy())

	assert.Equal(t, 1, dec.Documents()[0].DestroyCount())
	assert.Equal(t, 1, h.NumPages())
}

func TestSource(t *testing.T) {
	assert.True(t, Source{}.Empty())
	assert.False(t, Source{Locator: "a.pdf"}.Empty())
	assert.Equal(t, "<3 bytes>", Source{Data: []byte("abc"), Locator: "x"}.String())
	assert.Equal(t, "a.pdf", Source{Locator: "a.pdf"}.String())
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Equal(t, "boom", Message(errors.New("boom")))
}

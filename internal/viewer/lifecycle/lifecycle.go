// Package lifecycle owns the decoded document: it loads a source on a worker,
// adopts the result on the viewer loop and destroys handles that are
// superseded or closed.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/colonyops/folio/internal/core/decoder"
	"github.com/colonyops/folio/internal/core/logging"
	"github.com/colonyops/folio/internal/viewer/loop"
)

// Source is the input to Load. Data wins over Locator when both are set.
type Source struct {
	Data    []byte
	Locator string
}

// Empty reports whether the source carries no input.
func (s Source) Empty() bool { return len(s.Data) == 0 && s.Locator == "" }

// String describes the source for logs.
func (s Source) String() string {
	if len(s.Data) > 0 {
		return fmt.Sprintf("<%d bytes>", len(s.Data))
	}
	return s.Locator
}

// Handle is a decoded document with a monotonically increasing ID. Destroy
// is idempotent.
type Handle struct {
	id    uint64
	doc   decoder.Document
	pages int

	once sync.Once
	err  error
}

func newHandle(id uint64, doc decoder.Document) *Handle {
	return &Handle{id: id, doc: doc, pages: doc.NumPages()}
}

// ID returns the document ID.
func (h *Handle) ID() uint64 { return h.id }

// Document returns the underlying decoded document.
func (h *Handle) Document() decoder.Document { return h.doc }

// NumPages returns the page count captured at decode time.
func (h *Handle) NumPages() int { return h.pages }

// Destroy releases decoder resources. Only the first call reaches the
// decoder; later calls return its result.
func (h *Handle) Destroy() error {
	h.once.Do(func() {
		h.err = h.doc.Destroy()
	})
	return h.err
}

// Manager loads documents. All methods except the constructor must be called
// from the viewer loop.
type Manager struct {
	loop    *loop.Loop
	decoder decoder.Decoder
	loader  Loader
	log     zerolog.Logger

	generation uint64
	cancel     context.CancelFunc
	handle     *Handle
	loading    bool
	err        error

	onChange []func(h *Handle)
}

// New creates a manager. A nil loader falls back to NewLoader.
func New(l *loop.Loop, dec decoder.Decoder, loader Loader, logger zerolog.Logger) *Manager {
	if loader == nil {
		loader = NewLoader()
	}
	return &Manager{
		loop:    l,
		decoder: dec,
		loader:  loader,
		log:     logger.With().Str("cmp", "lifecycle").Logger(),
	}
}

// OnChange registers fn to run whenever the adopted handle, the loading flag
// or the error changes. h is nil while nothing is loaded.
func (m *Manager) OnChange(fn func(h *Handle)) { m.onChange = append(m.onChange, fn) }

// Handle returns the live handle, if any.
func (m *Manager) Handle() *Handle { return m.handle }

// Loading reports whether a decode is in flight.
func (m *Manager) Loading() bool { return m.loading }

// Err returns the last load failure. It is cleared by the next Load.
func (m *Manager) Err() error { return m.err }

// PageCount returns the live handle's page count, or zero.
func (m *Manager) PageCount() int {
	if m.handle == nil {
		return 0
	}
	return m.handle.NumPages()
}

// Load replaces the current document with src. Any in-flight decode is
// cancelled, listeners are told the document is gone and the previous handle
// is destroyed before the new decode starts.
// An empty source just clears. Failures are not retried; calling Load again
// with the same source retries.
func (m *Manager) Load(src Source) {
	m.generation++
	m.cancelPending()
	prev := m.handle
	m.handle = nil
	m.err = nil
	m.loading = !src.Empty()
	m.notify()
	m.destroy(prev)

	if src.Empty() {
		return
	}

	gen := m.generation
	ctx, cancel := context.WithCancel(logging.WithDocumentID(context.Background(), gen))
	m.cancel = cancel

	m.log.Debug().Ctx(ctx).Str("source", src.String()).Msg("decoding document")

	m.loop.Go(func() func() {
		doc, err := m.decode(ctx, src)
		if doc != nil && ctx.Err() != nil {
			m.discard(ctx, doc)
			return nil
		}

		adopt := func() {
			if gen != m.generation {
				if doc != nil {
					m.discard(ctx, doc)
				}
				return
			}

			m.cancel = nil
			cancel()
			m.loading = false

			if err != nil {
				m.err = err
				m.log.Warn().Ctx(ctx).Err(err).Msg("document load failed")
				m.notify()
				return
			}

			m.handle = newHandle(gen, doc)
			m.log.Info().Ctx(ctx).Int("pages", m.handle.NumPages()).Msg("document loaded")
			m.notify()
		}

		// A stopped loop never adopts, so nothing else would release doc.
		if !m.loop.Post(adopt) && doc != nil {
			m.discard(ctx, doc)
		}
		return nil
	})
}

// Close destroys the live handle and cancels any pending decode.
func (m *Manager) Close() {
	m.generation++
	m.cancelPending()
	prev := m.handle
	wasActive := m.loading || m.err != nil || prev != nil
	m.handle = nil
	m.loading = false
	m.err = nil
	if wasActive {
		m.notify()
	}
	m.destroy(prev)
}

func (m *Manager) decode(ctx context.Context, src Source) (decoder.Document, error) {
	data := src.Data
	if len(data) == 0 {
		var err error
		data, err = m.loader.Load(ctx, src.Locator)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", decoder.ErrDecodeFailure, err)
		}
	}

	doc, err := m.decoder.Decode(ctx, data)
	if err != nil {
		if errors.Is(err, decoder.ErrDecodeFailure) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", decoder.ErrDecodeFailure, err)
	}
	return doc, nil
}

func (m *Manager) discard(ctx context.Context, doc decoder.Document) {
	if err := doc.Destroy(); err != nil {
		m.log.Warn().Ctx(ctx).Err(err).Msg("failed to destroy superseded document")
		return
	}
	m.log.Debug().Ctx(ctx).Msg("destroyed superseded document")
}

func (m *Manager) cancelPending() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// destroy runs after listeners have detached from h. The decoder may wait
// for in-flight page renders before releasing, so it runs on a worker and
// the loop keeps serving commands meanwhile.
func (m *Manager) destroy(h *Handle) {
	if h == nil {
		return
	}
	release := func() {
		if err := h.Destroy(); err != nil {
			m.log.Warn().Uint64("document_id", h.ID()).Err(err).Msg("failed to destroy document")
		}
	}
	if !m.loop.Go(func() func() { release(); return nil }) {
		release()
	}
}

func (m *Manager) notify() {
	for _, fn := range m.onChange {
		fn(m.handle)
	}
}

// Message turns a load error into text suitable for showing in place of the
// page list.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, decoder.ErrDecodeFailure) {
		return "Unable to open this document: " + err.Error()
	}
	return err.Error()
}

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/colonyops/folio/internal/core/config"
	"github.com/colonyops/folio/internal/core/decoder"
	"github.com/colonyops/folio/internal/core/eventbus"
	"github.com/colonyops/folio/internal/core/logging"
	"github.com/colonyops/folio/internal/core/prefs"
	"github.com/colonyops/folio/internal/data/db"
	"github.com/colonyops/folio/internal/data/stores"
	"github.com/colonyops/folio/internal/integration/fitz"
	"github.com/colonyops/folio/internal/viewer"
)

// openPrefs returns the preference store selected by cfg.Prefs.Backend and
// a closer for it.
func openPrefs(cfg *config.Config) (prefs.Store, func() error, error) {
	switch cfg.Prefs.Backend {
	case config.PrefsBackendSQLite:
		database, err := db.Open(cfg.DataDir, cfg.DatabaseOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		return stores.NewPrefStore(database), database.Close, nil
	default:
		return prefs.NewFileStore(cfg.PrefsDir()), func() error { return nil }, nil
	}
}

func (f *Flags) decoder() decoder.Decoder {
	if f.Decoder != nil {
		return f.Decoder
	}
	return fitz.New(log.Logger)
}

// session is a running viewer owned by one command.
type session struct {
	viewer *viewer.Viewer
	cancel context.CancelFunc
	done   chan error
	close  func() error
}

// startViewer builds a viewer with the user's preferences and runs it until
// stop is called. A nil store from persist=false keeps zoom out of the
// preference store.
func startViewer(ctx context.Context, flags *Flags, opts viewer.Options, persist bool) (*session, error) {
	var (
		store     prefs.Store
		closeFunc = func() error { return nil }
	)
	if persist {
		s, closer, err := openPrefs(flags.Config)
		if err != nil {
			return nil, err
		}
		store, closeFunc = s, closer
	}

	v := viewer.New(opts, flags.decoder(), store, log.Logger)
	eventbus.NewNotificationRouter(v.Bus()).Register()
	eventbus.RegisterDebugLogger(v.Bus(), logging.Component("eventbus"))

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{viewer: v, cancel: cancel, done: make(chan error, 1), close: closeFunc}
	go func() { s.done <- v.Run(runCtx) }()
	return s, nil
}

// stop cancels the viewer, waits for it to exit and closes the store.
func (s *session) stop() {
	s.cancel()
	if err := <-s.done; err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("viewer stopped with error")
	}
	if err := s.close(); err != nil {
		log.Error().Err(err).Msg("failed to close preference store")
	}
}

// load opens locator and blocks until every mounted page has settled.
func (s *session) load(ctx context.Context, locator string) (viewer.State, error) {
	s.viewer.Open(viewer.Source{Locator: locator})
	if err := s.viewer.WaitIdle(ctx); err != nil {
		return viewer.State{}, fmt.Errorf("wait for %s: %w", locator, err)
	}

	st := s.viewer.State()
	if st.Error != "" {
		return st, errors.New(st.Error)
	}
	return st, nil
}

// Package server exposes a running viewer over HTTP: JSON read state,
// command endpoints, page images and a websocket state stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/colonyops/folio/internal/viewer"
)

// Config holds server configuration.
type Config struct {
	Addr     string
	AllowAll bool // allow all CORS origins
	Pprof    bool // mount /debug/pprof
}

// Server serves one viewer.
type Server struct {
	cfg    Config
	viewer *viewer.Viewer
	log    zerolog.Logger
	router chi.Router

	httpServer *http.Server
	listener   net.Listener

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New builds the router and subscribes to the viewer's state changes.
func New(cfg Config, v *viewer.Viewer, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		viewer:  v,
		log:     logger.With().Str("cmp", "server").Logger(),
		clients: make(map[*client]struct{}),
	}
	s.router = s.buildRouter()
	v.Subscribe(s.broadcast)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/search", s.handleSearch)

		r.Post("/open", s.handleOpen)
		r.Post("/close", s.command(s.viewer.Close))
		r.Post("/sweep", s.command(s.viewer.Sweep))
		r.Post("/resize", s.handleResize)
		r.Post("/scroll", s.handleScroll)
		r.Post("/focus", s.handleFocus)
		r.Post("/zoom/{action}", s.handleZoom)
		r.Post("/next", s.command(s.viewer.NextPage))
		r.Post("/prev", s.command(s.viewer.PrevPage))

		r.Get("/pages/{n}", s.handlePageImage)
		r.Get("/pages/{n}/text", s.handlePageText)
		r.Post("/pages/{n}/scroll", s.handlePageScroll)
	})

	return r
}

// requestLogger logs each request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.Info().Str("addr", listener.Addr().String()).Msg("folio server listening")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and closes every websocket client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

package server

import (
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/colonyops/folio/internal/viewer"
	"github.com/colonyops/folio/internal/viewer/lifecycle"
)

type errorResponse struct {
	Error string `json:"error"`
}

type searchResponse struct {
	Query string `json:"query"`
	Pages []int  `json:"pages"`
}

type textResponse struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func accepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// command adapts a no-argument viewer command into a handler.
func (s *Server) command(fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn()
		accepted(w)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.viewer.State())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	pages, err := s.viewer.Search(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if pages == nil {
		pages = []int{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Pages: pages})
}

// handleOpen loads ?url= when given, otherwise the raw request body.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if locator := r.URL.Query().Get("url"); locator != "" {
		s.viewer.Open(viewer.Source{Locator: locator})
		accepted(w)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, lifecycle.DefaultMaxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body or ?url= is required")
		return
	}

	s.viewer.Open(viewer.Source{Data: body})
	accepted(w)
}

type resizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type scrollRequest struct {
	DY *float64 `json:"dy"`
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid resize request: "+err.Error())
		return
	}
	if req.Width < 0 || req.Height < 0 {
		writeError(w, http.StatusBadRequest, "width and height must be non-negative")
		return
	}

	s.viewer.Resize(req.Width, req.Height)
	accepted(w)
}

func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid scroll request: "+err.Error())
		return
	}
	if req.DY == nil {
		writeError(w, http.StatusBadRequest, "dy is required")
		return
	}

	s.viewer.ScrollBy(*req.DY)
	accepted(w)
}

// handleFocus applies a focus request. A request without an ID gets a fresh
// one so that it always navigates.
func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	var req viewer.FocusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid focus request: "+err.Error())
		return
	}
	if req.TargetPage < 1 {
		writeError(w, http.StatusBadRequest, "targetPage must be at least 1")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	s.viewer.Focus(req)
	writeJSON(w, http.StatusAccepted, req)
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "in":
		s.viewer.ZoomIn()
	case "out":
		s.viewer.ZoomOut()
	case "fit":
		s.viewer.ZoomFit()
	default:
		writeError(w, http.StatusBadRequest, "zoom action must be in, out or fit")
		return
	}
	accepted(w)
}

// handlePageImage serves /api/pages/{n}.png.
func (s *Server) handlePageImage(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutSuffix(chi.URLParam(r, "n"), ".png")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	page, ok := parsePage(w, raw)
	if !ok {
		return
	}

	surf, ok := s.viewer.Surface(page)
	if !ok || !surf.Painted() {
		writeError(w, http.StatusNotFound, "page not rendered")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, surf.Snapshot()); err != nil {
		s.log.Warn().Err(err).Int("page", page).Msg("encode page image")
	}
}

func (s *Server) handlePageText(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, chi.URLParam(r, "n"))
	if !ok {
		return
	}

	text, found, err := s.viewer.PageText(r.Context(), page)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "page text not extracted")
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Page: page, Text: text})
}

func (s *Server) handlePageScroll(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, chi.URLParam(r, "n"))
	if !ok {
		return
	}
	s.viewer.ScrollToPage(page)
	accepted(w)
}

func parsePage(w http.ResponseWriter, raw string) (int, bool) {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return 0, false
	}
	return page, true
}

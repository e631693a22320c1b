// Package ui serves the dashboard page, its JSON API and the websocket feed.
package ui

import (
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"logdash/internal/history"
	"logdash/internal/rangesel"
	"logdash/internal/refresh"
	"logdash/internal/render"
)

const (
	defaultCycleLimit = 20
	maxBodyBytes      = 4096
)

// Refresher starts a manual refresh cycle.
type Refresher interface {
	Refresh()
}

// Options wires a Server. Assets, History, Bus and Metrics may be nil.
type Options struct {
	Render         *render.Context
	Refresher      Refresher
	Ranges         *rangesel.Selector
	History        *history.Ring
	Bus            *Bus
	Metrics        *refresh.Metrics
	Assets         fs.FS
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server is the dashboard HTTP surface.
type Server struct {
	rc        *render.Context
	refresher Refresher
	ranges    *rangesel.Selector
	hist      *history.Ring
	bus       *Bus
	metrics   *refresh.Metrics
	assets    fs.FS
	origins   []string
	logger    *slog.Logger
	now       func() time.Time

	clients clientSet
}

// NewServer creates a dashboard server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		rc:        opts.Render,
		refresher: opts.Refresher,
		ranges:    opts.Ranges,
		hist:      opts.History,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		assets:    opts.Assets,
		origins:   opts.AllowedOrigins,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Get("/logs/table", s.handleLogsTable)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/range", s.handleGetRange)
		r.Post("/range", s.handleSetRange)
		r.Delete("/range", s.handleClearRange)
		r.Get("/cycles", s.handleCycles)
	})

	r.Get("/*", s.handleStatic)
	return r
}

// requestLogger logs each request with slog once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.rc.HasStats() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("waiting for first refresh"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.rc.View())
}

func (s *Server) handleLogsTable(w http.ResponseWriter, r *http.Request) {
	body, err := s.rc.TableHTML()
	if err != nil {
		s.logger.Error("failed to render log table", "err", err)
		s.writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refresher.Refresh()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// RangeBody is the range request and announcement payload. Start and End are
// RFC 3339; Input is the picker's "Y-m-d H:i to Y-m-d H:i" text.
type RangeBody struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Input string     `json:"input,omitempty"`
}

func (s *Server) currentRange() *RangeBody {
	tr := s.ranges.Current()
	if tr == nil {
		return &RangeBody{}
	}
	return &RangeBody{Start: &tr.Start, End: &tr.End}
}

// handleGetRange seeds a loading page's picker. Until the user picks a range,
// each page load moves the default window to end at the current time.
func (s *Server) handleGetRange(w http.ResponseWriter, r *http.Request) {
	if s.ranges.Reseed(s.now()) {
		s.ranges.Close()
		if s.bus != nil {
			s.bus.PublishRange(s.currentRange())
		}
	}
	s.writeJSON(w, http.StatusOK, s.currentRange())
}

func (s *Server) handleSetRange(w http.ResponseWriter, r *http.Request) {
	var body RangeBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch {
	case body.Input != "":
		tr, err := rangesel.ParseInput(body.Input, s.rc.Location())
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if tr == nil {
			// A single picked date is not a range; the backend default applies.
			s.ranges.Clear()
		} else if err := s.ranges.Select(tr.Start, tr.End); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	case body.Start != nil && body.End != nil:
		if err := s.ranges.Select(*body.Start, *body.End); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		s.writeError(w, http.StatusBadRequest, "start and end, or input, are required")
		return
	}

	s.closeRange(w)
}

func (s *Server) handleClearRange(w http.ResponseWriter, r *http.Request) {
	s.ranges.Clear()
	s.closeRange(w)
}

// closeRange fires the selector's close signal, which starts a range cycle.
func (s *Server) closeRange(w http.ResponseWriter) {
	s.ranges.Close()
	cur := s.currentRange()
	if s.bus != nil {
		s.bus.PublishRange(cur)
	}
	s.writeJSON(w, http.StatusAccepted, cur)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		s.writeJSON(w, http.StatusOK, []history.Cycle{})
		return
	}
	limit := defaultCycleLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.hist.Recent(limit))
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}

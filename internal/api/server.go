// Package api serves the booking widget over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"reservo/internal/mode"
	"reservo/internal/widget"
)

// Server opens a widget session per request and renders its views.
type Server struct {
	src widget.Source
	sub widget.Submitter
	log *zerolog.Logger

	mu      sync.RWMutex
	opts    widget.Options
	origins []string
}

func NewServer(src widget.Source, sub widget.Submitter, opts widget.Options, log *zerolog.Logger) *Server {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	opts.Logger = log
	return &Server{src: src, sub: sub, opts: opts, log: log}
}

// Apply replaces the session options and the allowed origins for the requests
// that follow. A nil Now keeps the current clock.
func (s *Server) Apply(opts widget.Options, allowedOrigins []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.Now == nil {
		opts.Now = s.opts.Now
	}
	opts.Logger = s.log
	s.opts = opts
	s.origins = append([]string(nil), allowedOrigins...)
}

func (s *Server) options() widget.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Router builds the HTTP handler. allowedOrigins are the sites allowed to
// embed the widget; "*" allows any and "https://*.example.com" a subdomain.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	s.mu.Lock()
	s.origins = append([]string(nil), allowedOrigins...)
	s.mu.Unlock()

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: s.allowOrigin,
		AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:  []string{"Accept", "Content-Type"},
		MaxAge:          300,
	}))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api/v1/widget/{business}", func(r chi.Router) {
		r.Get("/config", s.handleConfig)
		r.Get("/calendar", s.handleCalendar)
		r.Get("/calendar.xlsx", s.handleCalendarExport)
		r.Get("/slots", s.handleSlots)
		r.Get("/workshops", s.handleWorkshops)
		r.Post("/reservations", s.handleReservation)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) allowOrigin(_ *http.Request, origin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	origin = strings.ToLower(origin)
	for _, o := range s.origins {
		o = strings.ToLower(o)
		if o == "*" || o == origin {
			return true
		}
		if prefix, suffix, ok := strings.Cut(o, "*"); ok &&
			len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

func (s *Server) open(ctx context.Context, r *http.Request) *widget.Session {
	return widget.Open(ctx, chi.URLParam(r, "business"), s.src, s.sub, s.options())
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps session errors to HTTP statuses.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, mode.ErrInvalidRequest), errors.Is(err, mode.ErrUnknownSelection),
		errors.Is(err, widget.ErrSlotsUnsupported), errors.Is(err, widget.ErrInvalidDate):
		status = http.StatusBadRequest
	case errors.Is(err, widget.ErrSubmissionRejected):
		status = http.StatusConflict
	case errors.Is(err, widget.ErrOccupancyUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, widget.ErrStale):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Retryable: widget.Retryable(err)})
}

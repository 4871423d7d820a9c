// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"voicecal/internal/auth"
	"voicecal/internal/models"
	"voicecal/internal/pipeline"
)

// maxUploadBytes is the transcription service's file size limit.
const maxUploadBytes = 25 << 20

// Calendar lists already scheduled events.
type Calendar interface {
	Upcoming(ctx context.Context, from, to time.Time) ([]models.CalendarEntry, error)
}

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	// RequireBearer rejects /api requests without an Authorization header.
	RequireBearer bool
	Gatherer      prometheus.Gatherer
	Clock         func() time.Time
}

// Server holds the HTTP handlers. Each bearer works on its own batch.
type Server struct {
	batches  *pipeline.Batches
	calendar Calendar
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Server.
func New(logger *slog.Logger, batches *pipeline.Batches, calendar Calendar, opts Options) *Server {
	s := &Server{
		batches:  batches,
		calendar: calendar,
		opts:     opts,
		now:      opts.Clock,
		logger:   logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)
	if s.opts.RequireBearer {
		api.Use(s.requireBearer)
	}

	api.HandleFunc("/items", s.listItems).Methods(http.MethodGet)
	api.HandleFunc("/items", s.createItem).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}", s.getItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", s.applyEdit).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}", s.deleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/edit", s.beginEdit).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}/edit", s.cancelEdit).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/schedule", s.scheduleItem).Methods(http.MethodPost)
	api.HandleFunc("/schedule", s.scheduleAll).Methods(http.MethodPost)
	api.HandleFunc("/calendar", s.listCalendar).Methods(http.MethodGet)

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	return cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
}

// batch returns the orchestrator holding the caller's items.
func (s *Server) batch(r *http.Request) *pipeline.Orchestrator {
	return s.batches.For(auth.Caller(r.Context()))
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.BearerFromContext(r.Context()); !ok {
			respondError(w, http.StatusUnauthorized, models.ErrAuth.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(started))
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Recovered from panic", "path", r.URL.Path, "error", err)
				respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ollie-ward/mealscan/internal/config"
	"github.com/ollie-ward/mealscan/internal/nutrition"
)

// Analyzer is the slice of the nutrition pipeline the handlers need.
// Declared here (at the consumer) so tests can plug in a stub.
type Analyzer interface {
	Analyze(ctx context.Context, mealText string) (*nutrition.NutritionResult, error)
}

// Server holds the HTTP router and all dependencies that handlers need.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	analyzer Analyzer

	// Per-session debounced analyzers for the preview endpoint. Each
	// session gets its own single-flight coordinator so one client's
	// keystroke burst never cancels another client's request.
	sessionsMu sync.Mutex
	sessions   map[string]*previewSession
}

// previewSession pairs a debounced analyzer with its last-used time so
// stale sessions can be pruned.
type previewSession struct {
	debounced *nutrition.Debounced
	lastUsed  time.Time
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler.
func New(cfg *config.Config, analyzer Analyzer) *Server {
	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		sessions: make(map[string]*previewSession),
	}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions,
// gathered in one method so the routing table is easy to scan.
func (s *Server) routes() {
	r := chi.NewRouter()

	// middleware.Logger prints a log line for every request: method,
	// path, status, and duration. middleware.Recoverer catches panics in
	// handlers and returns a 500 instead of crashing the whole process.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/v1/analyze", s.handleAnalyze)
	r.Post("/v1/analyze/preview", s.handlePreview)

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface. Every incoming
// request flows through this method, and we just delegate to chi's router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/baccarat-roads/internal/config"
	"github.com/MJE43/baccarat-roads/internal/scan"
	"github.com/MJE43/baccarat-roads/internal/scriptstore"
	"github.com/MJE43/baccarat-roads/internal/store"
)

const defaultRequestTimeout = 60 * time.Second

// Server handles HTTP requests
type Server struct {
	cfg          config.Config
	db           store.DB
	live         http.Handler
	sessions     *scriptstore.Store
	scanner      *scan.Scanner
	errorHandler *ErrorHandler
	logger       *log.Logger
	startTime    time.Time
}

// Option customises a Server
type Option func(*Server)

// WithLogger replaces the default stdout logger
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLive mounts the live table handler under /api/v1/live
func WithLive(h http.Handler) Option {
	return func(s *Server) { s.live = h }
}

// WithSessions enables persisted strategy sessions
func WithSessions(st *scriptstore.Store) Option {
	return func(s *Server) { s.sessions = st }
}

// NewServer creates a new API server. db may be nil, which disables run
// persistence and the /runs endpoints.
func NewServer(cfg config.Config, db store.DB, opts ...Option) *Server {
	server := &Server{
		cfg:       cfg,
		db:        db,
		scanner:   scan.NewScanner(cfg.Scan.Workers),
		logger:    log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(server)
	}
	server.errorHandler = NewErrorHandler(server.logger)

	server.logger.Printf(
		"server_startup engine_version=%s scanner_workers=%d database_enabled=%t live_enabled=%t sessions_enabled=%t",
		EngineVersion, server.scanner.Workers(), server.db != nil, server.live != nil, server.sessions != nil,
	)
	return server
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	timeout := s.cfg.Server.WriteTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(timeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/metrics", s.handleListMetrics)
		r.Post("/seed/hash", s.handleSeedHash)

		r.Post("/hand", s.handleHand)
		r.Post("/roads", s.handleRoads)
		r.Post("/roads/derived", s.handleDerivedRoad)
		r.Post("/shoe", s.handleShoe)
		r.Post("/settle", s.handleSettle)
		r.Post("/strategy", s.handleStrategy)
		r.Post("/scan", s.handleScan)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/hits", s.handleGetRunHits)

		r.Get("/strategies", s.handleListSessions)
		r.Get("/strategies/{id}", s.handleGetSession)
		r.Delete("/strategies/{id}", s.handleDeleteSession)
		r.Get("/strategies/{id}/hands", s.handleGetSessionHands)

		if s.live != nil {
			r.Mount("/live", s.live)
		}
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed status=%d err=%v", status, err)
	}
}

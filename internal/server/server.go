// Package server provides the HTTP server and routing for Helmsman.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/config"
	"github.com/quantarch/helmsman/internal/database"
	"github.com/quantarch/helmsman/internal/modules/ledger"
	"github.com/quantarch/helmsman/internal/modules/ops"
	"github.com/quantarch/helmsman/internal/modules/replay"
	"github.com/quantarch/helmsman/internal/orchestrator"
	"github.com/quantarch/helmsman/internal/stream"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Cfg       *config.Config
	LedgerDB  *database.DB
	CacheDB   *database.DB
	Hub       *stream.Hub
	Events    *ledger.EventRepository
	Replay    *replay.Service
	Ops       *ops.Manager
	Authority *ops.Authority
	Orch      *orchestrator.Orchestrator
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	cfg       *config.Config
	ledgerDB  *database.DB
	cacheDB   *database.DB
	hub       *stream.Hub
	events    *ledger.EventRepository
	replay    *replay.Service
	ops       *ops.Manager
	authority *ops.Authority
	orch      *orchestrator.Orchestrator
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Cfg,
		ledgerDB:  cfg.LedgerDB,
		cacheDB:   cfg.CacheDB,
		hub:       cfg.Hub,
		events:    cfg.Events,
		replay:    cfg.Replay,
		ops:       cfg.Ops,
		authority: cfg.Authority,
		orch:      cfg.Orch,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	allowedOrigins := []string{"http://localhost:*"}
	if s.cfg.DevMode {
		allowedOrigins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Actor", "X-Role"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events/stream", s.handleEventStream)
		r.Get("/events/tail", s.handleEventsTail)
		r.Get("/events/correlation/{id}", s.handleEventsByCorrelation)
		r.Get("/replay/{date}", s.handleReplayDay)

		r.Route("/ops", func(r chi.Router) {
			r.Post("/tick", s.handleTick)
			r.Post("/arm", s.handleArm)
			r.Post("/disarm", s.handleDisarm)
			r.Post("/kill", s.handleKill)
			r.Post("/gate", s.handleGate)
		})
	})
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	s.log.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the mux, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

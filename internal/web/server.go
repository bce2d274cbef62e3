// Package web is the HTTP surface: a chi server exposing enrollment,
// search, identity listing and stats as a thin JSON adapter over the domain
// packages.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/pawtrail/internal/enroll"
	"github.com/kozaktomas/pawtrail/internal/recognize"
	"github.com/kozaktomas/pawtrail/internal/store"
	"github.com/kozaktomas/pawtrail/internal/web/middleware"
)

// Server wires the domain services into an HTTP server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	log        *logrus.Logger

	manager    *enroll.Manager
	engine     *recognize.Engine
	identities store.IdentityStore
	searchLog  store.SearchLog
}

// NewServer creates the web server.
func NewServer(
	port int,
	manager *enroll.Manager,
	engine *recognize.Engine,
	identities store.IdentityStore,
	searchLog store.SearchLog,
	log *logrus.Logger,
) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:     r,
		log:        log,
		manager:    manager,
		engine:     engine,
		identities: identities,
		searchLog:  searchLog,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(2 * time.Minute))
	r.Use(middleware.CORS())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Package server wires the user service: router, middleware, routes,
// and the HTTP server lifecycle. main.go stays minimal; this package is
// the composition root where the dependency chain is assembled:
//
//	sqlite.DB → UserService → UserHandler → routes
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/shopmesh/identity/internal/auth"
	"github.com/shopmesh/identity/internal/handler"
	"github.com/shopmesh/identity/internal/middleware"
	sqliteRepo "github.com/shopmesh/identity/internal/repository/sqlite"
	"github.com/shopmesh/identity/internal/service"
)

// Config holds user-service configuration.
type Config struct {
	Port   int
	DBPath string
}

// Server owns the router and the database connection. The connection is
// closed during graceful shutdown so the WAL is flushed and the file lock
// released.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and assembles the full dependency chain.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures middleware and the route table.
//
// Middleware order: RequestID and RealIP first so the logger sees them,
// Recoverer before anything that can panic, then request logging.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	users := service.NewUserService(s.db, auth.NewPasswordService(), auth.NewKeyIssuer(), s.logger)
	h := handler.NewUserHandler(users, s.db, s.logger)

	s.router.Get("/health", h.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/user/create", h.HandleCreate)
		r.Post("/user/login", h.HandleLogin)
		// Logout must answer 200 to callers that were never logged in,
		// so the identity is optional here.
		r.With(auth.OptionalIdentity(users)).Post("/user/logout", h.HandleLogout)
		r.Get("/user/{username}/exists", h.HandleExists)
		r.With(auth.RequireIdentity(users)).Get("/user", h.HandleCurrent)
		r.Get("/users", h.HandleList)
	})
}

// Start runs the server until SIGINT/SIGTERM, then drains in-flight
// requests for up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("user service starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

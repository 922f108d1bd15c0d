package facade

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

	"github.com/shopmesh/identity/internal/middleware"
)

// Config holds frontend configuration.
type Config struct {
	Port           int
	UserServiceURL string
	SessionSecret  string
	// RedisURL selects the Redis session store when set; empty means the
	// in-process store, which is fine for a single replica.
	RedisURL string
}

// Server is the frontend gateway.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	store  SessionStore
}

// NewServer assembles the gateway: user-service client, session store,
// cookie codec, handler, routes.
func NewServer(cfg Config, logger *slog.Logger) (*Server, error) {
	var store SessionStore
	if cfg.RedisURL != "" {
		redisCfg := DefaultRedisConfig()
		redisCfg.URL = cfg.RedisURL
		rs, err := NewRedisStore(redisCfg)
		if err != nil {
			return nil, fmt.Errorf("creating redis session store: %w", err)
		}
		store = rs
	} else {
		store = NewMemoryStore()
	}

	cookies, err := NewCookieCodec(cfg.SessionSecret, defaultSessionTTL)
	if err != nil {
		return nil, err
	}

	client := NewUserClient(cfg.UserServiceURL)
	h := NewHandler(client, store, cookies, logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(logger))

	router.Get("/health", h.HandleHealth)
	router.Post("/register", h.HandleRegister)
	router.Post("/login", h.HandleLogin)
	router.Post("/logout", h.HandleLogout)
	router.Get("/me", h.HandleMe)

	return &Server{
		router: router,
		config: cfg,
		logger: logger,
		store:  store,
	}, nil
}

// Start runs the gateway until SIGINT/SIGTERM, then drains in-flight
// requests and closes the session store if it holds a connection.
func (s *Server) Start() error {
	if closer, ok := s.store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

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
		s.logger.Info("frontend starting",
			slog.Int("port", s.config.Port),
			slog.String("userService", s.config.UserServiceURL),
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

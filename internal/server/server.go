// Package server exposes the insight database API over HTTP. Every /api
// route requires an authenticated caller; database routes additionally
// require the caller's claims to satisfy the database's permission rules.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/StricklySoft/insight-auth/pkg/auth"
	"github.com/StricklySoft/insight-auth/pkg/clients/redis"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr              string        `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s" yaml:"readHeaderTimeout" json:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// HealthChecker reports process readiness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server routes HTTP requests to the database registry.
type Server struct {
	cfg       Config
	providers *auth.Providers
	databases *redis.Registry
	health    HealthChecker
	logger    *slog.Logger
}

// New returns a server. A nil logger falls back to [slog.Default].
func New(cfg Config, providers *auth.Providers, databases *redis.Registry, health HealthChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		providers: providers,
		databases: databases,
		health:    health,
		logger:    logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(auth.HTTPMiddleware(s.providers.Authenticator))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuthentication(s.providers.Guard))

		r.Get("/me", s.handleMe)
		r.Get("/databases", s.handleListDatabases)
		r.Route("/databases/{dbInstance}", func(r chi.Router) {
			r.Get("/ping", s.handlePing)
			r.Get("/keys/{key}", s.handleGetKey)
			r.Put("/keys/{key}", s.handlePutKey)
			r.Delete("/keys/{key}", s.handleDeleteKey)
			r.Head("/keys/{key}", s.handleKeyExists)
		})
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
// within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "server: listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.InfoContext(ctx, "server: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

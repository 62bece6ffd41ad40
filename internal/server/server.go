package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/marcogenualdo/session-coordinator/internal/config"
	"github.com/marcogenualdo/session-coordinator/internal/handlers"
	"github.com/marcogenualdo/session-coordinator/internal/middleware"
	"github.com/marcogenualdo/session-coordinator/internal/navigation"
	"github.com/marcogenualdo/session-coordinator/internal/notify"
	"github.com/marcogenualdo/session-coordinator/internal/pending"
	"github.com/marcogenualdo/session-coordinator/internal/session"
	"github.com/marcogenualdo/session-coordinator/internal/storage"
)

// Provider is what the HTTP layer needs from the identity provider client
// beyond the session store.
type Provider interface {
	handlers.RedirectFlow
	handlers.HealthChecker
}

type Deps struct {
	Sessions *session.Store
	Storage  storage.Store
	Provider Provider
	Pending  *pending.Gate
	Tracker  *navigation.Tracker
	Feed     *notify.Feed
}

type Server struct {
	cfg        config.Config
	deps       Deps
	logger     *slog.Logger
	limiter    *middleware.RateLimiter
	httpServer *http.Server
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		limiter: middleware.NewRateLimiter(cfg.Server.RateLimit.Every, cfg.Server.RateLimit.Burst, logger),
	}
}

// Start serves until the listener fails or the process is signalled, then
// shuts down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"host", s.cfg.Server.Host,
			"port", s.cfg.Server.Port,
			"base_url", s.cfg.Server.BaseURL,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		s.release()
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig)
		return s.Shutdown()
	}
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		s.release()
		return err
	}

	s.release()

	s.logger.Info("server shutdown complete")
	return nil
}

// release stops the session store before the storage it writes to.
func (s *Server) release() {
	s.limiter.Close()
	s.deps.Sessions.Close()

	if err := s.deps.Storage.Close(); err != nil {
		s.logger.Error("error closing storage", "error", err)
	}
}

// ABOUTME: Gateway orchestrator wiring store, directory, and session service.
// ABOUTME: Owns the HTTP server lifecycle including graceful shutdown.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/awalbot/relay/internal/config"
	"github.com/awalbot/relay/internal/directory"
	"github.com/awalbot/relay/internal/session"
	"github.com/awalbot/relay/internal/store"
)

// Gateway orchestrates the relay's components: the SQLite-backed transcript
// store, the agent directory, the session service, and the HTTP server that
// exposes the user API and the agent websocket endpoint.
type Gateway struct {
	config     *config.Config
	store      store.Store
	directory  *directory.Directory
	session    *session.Service
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway from configuration. The store is opened here; Shutdown
// closes it.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	dir := directory.New(logger)
	svc := session.New(s, dir, cfg.Chat.ReplyTimeout, logger)

	g := &Gateway{
		config:    cfg,
		store:     s,
		directory: dir,
		session:   svc,
		logger:    logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// routes builds the HTTP router: user-facing REST API, health endpoints, and
// the agent websocket endpoint.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	r.Route("/agents", func(r chi.Router) {
		r.Post("/", g.handleRegisterAgent)
		r.Get("/", g.handleListAgents)
		r.Delete("/{id}", g.handleDeleteAgent)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", g.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/messages", g.handlePostMessage)
			r.Get("/messages", g.handleListMessages)
		})
	})

	r.Get("/ws/agent", g.handleAgentSocket)

	return r
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the run context is already
// canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

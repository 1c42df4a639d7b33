// ABOUTME: HTTP server wiring the bus, transport, directory, and auth together
// ABOUTME: Owns the listener lifecycle and graceful shutdown

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/swarmlink/agentbus/internal/auth"
	"github.com/swarmlink/agentbus/internal/bus"
	"github.com/swarmlink/agentbus/internal/config"
	"github.com/swarmlink/agentbus/internal/directory"
	"github.com/swarmlink/agentbus/internal/transport"
)

// Registry is the directory surface the HTTP API needs: the bus-facing
// read side plus registration management.
type Registry interface {
	directory.Directory
	UpsertRegistration(ctx context.Context, reg *directory.Registration) error
	ListRegistrations(ctx context.Context) ([]*directory.Registration, error)
	TouchActivity(ctx context.Context, agentID string) error
}

// Server hosts the WebSocket bus endpoint and the HTTP API on a single
// listener.
type Server struct {
	config     *config.Config
	registry   Registry
	bus        *bus.Service
	transport  *transport.Handler
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.Mutex
	boundAddr string
}

// New creates a fully wired server from configuration. The registry is
// owned by the caller and closed by the caller after Run returns.
func New(cfg *config.Config, registry Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	svc := bus.NewService(bus.NewRooms(logger), registry, logger)
	handler := transport.NewHandler(svc, cfg.Server.OriginPatterns, logger)

	s := &Server{
		config:    cfg,
		registry:  registry,
		bus:       svc,
		transport: handler,
		logger:    logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// registerRoutes mounts the health, bus, and API endpoints. When a JWT
// secret is configured every endpoint except health checks requires a
// valid token.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)

	protected := func(h http.HandlerFunc) http.Handler {
		if s.config.Auth.JWTSecret == "" {
			return h
		}
		verifier := auth.NewJWTVerifier([]byte(s.config.Auth.JWTSecret))
		return auth.Middleware(verifier)(h)
	}

	mux.Handle("/ws", protected(s.transport.HandleWebSocket))
	mux.Handle("/api/agents", protected(s.handleAgents))
	mux.Handle("/api/agents/", protected(s.handleAgentByID))
	mux.Handle("/api/broadcast/agent", protected(s.handleBroadcastAgent))
	mux.Handle("/api/broadcast/capability", protected(s.handleBroadcastCapability))
	mux.Handle("/api/broadcast/llm", protected(s.handleBroadcastLLM))
}

// BoundAddr returns the address the server is listening on, or "" if it
// has not started yet. Useful when http_addr uses port 0.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// Bus exposes the broadcast API for in-process producers.
func (s *Server) Bus() *bus.Service {
	return s.bus
}

// Run starts the server and blocks until the context is canceled or the
// listener fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and tears down every live session.
// Session teardown runs each session's leave-all, so room membership is
// empty by the time this returns.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.transport.Close()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the directory is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.registry.ListRegistrations(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("directory unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", s.transport.SessionCount())
}

// Package api provides the HTTP API and WebSocket server.
//
// It exposes the legacy aggregation endpoint (GET /get_all_device_power)
// alongside a versioned API under /api/v1 for per-device queries,
// reading history, backend diagnostics, and a live reading stream.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/tapowatt/internal/aggregate"
	"github.com/nerrad567/tapowatt/internal/backend"
	"github.com/nerrad567/tapowatt/internal/device"
	"github.com/nerrad567/tapowatt/internal/history"
	"github.com/nerrad567/tapowatt/internal/infrastructure/config"
	"github.com/nerrad567/tapowatt/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.ServerConfig
	Auth       config.AuthConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Registry   *device.Registry
	Aggregator *aggregate.Aggregator
	History    *history.Store   // optional: nil disables history routes
	Backend    *backend.Manager // optional: nil disables backend diagnostics
	Version    string
}

// Server is the HTTP API server. It manages the listener, routes,
// middleware, and the WebSocket hub.
type Server struct {
	cfg        config.ServerConfig
	authCfg    config.AuthConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	registry   *device.Registry
	aggregator *aggregate.Aggregator
	history    *history.Store
	backend    *backend.Manager
	version    string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server. The server does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}

	return &Server{
		cfg:        deps.Config,
		authCfg:    deps.Auth,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		registry:   deps.Registry,
		aggregator: deps.Aggregator,
		history:    deps.History,
		backend:    deps.Backend,
		version:    deps.Version,
	}, nil
}

// Hub returns the WebSocket hub. Nil until Start is called. The poller
// uses it as a broadcast sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start builds the router, launches the WebSocket hub, and begins
// listening in a background goroutine. Stop with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr, "auth", s.authCfg.Enabled)
	return nil
}

// Close gracefully shuts down the server, waiting for in-flight
// requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

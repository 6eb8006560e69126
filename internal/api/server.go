// Package api provides the read-only HTTP status API for the Harmony
// microservice.
//
// It exposes per-hub connection health, catalog sizes, and live state so
// dashboards and probes can observe the bridges without touching the MQTT
// bus. Control stays on MQTT; the API never sends commands to a hub.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
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

	"github.com/RoboDomo/harmony-microservice/internal/bridges/harmony"
	"github.com/RoboDomo/harmony-microservice/internal/infrastructure/config"
	"github.com/RoboDomo/harmony-microservice/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HubBridge is the per-hub view the API exposes. Satisfied by
// *harmony.Bridge.
type HubBridge interface {
	HubID() string
	HubName() string
	Metrics() harmony.BridgeMetrics
	State() *harmony.LiveState
}

// BrokerHealth reports the shared MQTT connection's health.
type BrokerHealth interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Bridges []HubBridge
	Broker  BrokerHealth
	Version string
}

// Server is the HTTP status API server.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	bridges []HubBridge
	broker  BrokerHealth
	version string
	server  *http.Server
}

// New creates an API server. The server is inert until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		bridges: deps.Bridges,
		broker:  deps.Broker,
		version: deps.Version,
	}, nil
}

// Start launches the HTTP listener in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
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

// findBridge returns the bridge serving the given hub id, or nil.
func (s *Server) findBridge(hubID string) HubBridge {
	for _, b := range s.bridges {
		if b.HubID() == hubID {
			return b
		}
	}
	return nil
}

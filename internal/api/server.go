// Package api provides the read-only HTTP status API for the bridge.
//
// It exposes a health endpoint and a runtime status snapshot (connection
// state, learned pixel scale, counters) for monitoring. There are no
// mutating endpoints; the bridge is driven entirely by its configuration
// and the guiding server.
//
// The server follows the same lifecycle pattern as other infrastructure
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

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/phd2-mqtt-bridge/internal/bridges/phd2"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatusProvider exposes the bridge's runtime snapshot.
type StatusProvider interface {
	Status() phd2.Status
}

// BrokerStatus reports the MQTT transport state.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Bridge    StatusProvider
	MQTT      BrokerStatus
	SessionID string // empty when session history is disabled
	Version   string
}

// Server is the HTTP status server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    StatusProvider
	mqtt      BrokerStatus
	sessionID string
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		mqtt:      deps.MQTT,
		sessionID: deps.SessionID,
		version:   deps.Version,
	}, nil
}

// Start launches the HTTP listener in a background goroutine. The server
// is stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Info("status API listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status API error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight
// requests up to gracefulShutdownTimeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status API shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status API: %w", err)
	}
	return nil
}

// buildRouter creates the HTTP router with all routes.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
	})

	return r
}

// handleHealth reports overall process health with a per-component
// breakdown. The process is healthy as long as it is serving; a
// disconnected guiding server is normal operation (it reconnects), so it
// degrades the component status without failing the check.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	components := map[string]string{
		"phd2": "down",
		"mqtt": "down",
	}
	if s.bridge.Status().Connected {
		components["phd2"] = "up"
	}
	if s.mqtt != nil && s.mqtt.IsConnected() {
		components["mqtt"] = "up"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"components": components,
	})
}

// statusResponse is the full runtime snapshot.
type statusResponse struct {
	Version       string      `json:"version"`
	SessionID     string      `json:"session_id,omitempty"`
	MQTTConnected bool        `json:"mqtt_connected"`
	PHD2          phd2.Status `json:"phd2"`
}

// handleStatus returns the bridge's runtime snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Version:       s.version,
		SessionID:     s.sessionID,
		MQTTConnected: s.mqtt != nil && s.mqtt.IsConnected(),
		PHD2:          s.bridge.Status(),
	})
}

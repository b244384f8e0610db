// Package api provides the HTTP surface of the bridge: the EMQX
// webhook ingress, credential endpoints for devices, and read/ack
// endpoints for notifications.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/quartzlab/emqx-bridge/internal/credential"
	"github.com/quartzlab/emqx-bridge/internal/device"
	"github.com/quartzlab/emqx-bridge/internal/identity"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/config"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/logging"
	"github.com/quartzlab/emqx-bridge/internal/notify"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	Webhook       config.WebhookConfig
	Logger        *logging.Logger
	Issuer        *credential.Issuer
	Users         identity.Repository
	Sessions      device.Repository
	Reconciler    *device.Reconciler
	Relay         *notify.Relay
	Notifications notify.NotificationRepository
	Version       string
}

// Server is the HTTP API server for the bridge.
type Server struct {
	cfg           config.APIConfig
	webhookSecret string
	logger        *logging.Logger
	issuer        *credential.Issuer
	users         identity.Repository
	sessions      device.Repository
	reconciler    *device.Reconciler
	relay         *notify.Relay
	notifications notify.NotificationRepository
	version       string
	server        *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Issuer == nil {
		return nil, fmt.Errorf("credential issuer is required")
	}
	if deps.Reconciler == nil {
		return nil, fmt.Errorf("device reconciler is required")
	}
	if deps.Webhook.Secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}

	return &Server{
		cfg:           deps.Config,
		webhookSecret: deps.Webhook.Secret,
		logger:        deps.Logger,
		issuer:        deps.Issuer,
		users:         deps.Users,
		sessions:      deps.Sessions,
		reconciler:    deps.Reconciler,
		relay:         deps.Relay,
		notifications: deps.Notifications,
		version:       deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background
// goroutine. The server is stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight
// requests up to the shutdown timeout.
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

// HealthCheck verifies the API server is running.
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

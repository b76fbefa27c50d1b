// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-clearinghouse.
//
// go-clearinghouse is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	"github.com/jeremyhahn/go-clearinghouse/pkg/metrics"
	"github.com/jeremyhahn/go-clearinghouse/pkg/ratelimit"
)

// DefaultAddress is used when Config.Address is empty.
const DefaultAddress = ":8080"

// Server represents the REST API server.
type Server struct {
	server      *http.Server
	handlers    *HandlerContext
	tlsConfig   *tls.Config
	metrics     *metrics.PrometheusAdapter
	metricsPath string
	healthPath  string
	limiter     *ratelimit.Limiter
	logger      logger.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Address is the listen address (default: ":8080")
	Address string

	// Version is reported by GET /health
	Version string

	// Resolver fetches and verifies passports, usually a *clearinghouse.Clearinghouse
	Resolver Resolver

	// OpenIDConfigurationURL is the broker discovery document used for JWT access tokens
	OpenIDConfigurationURL string

	// UserInfoURL, when set, makes the server treat access tokens as opaque
	UserInfoURL string

	// HealthChecker backs the health endpoints (optional)
	HealthChecker HealthChecker

	// HealthPath is the root of the health endpoints (default: "/health")
	HealthPath string

	// Metrics enables Prometheus request metrics and the metrics endpoint (optional)
	Metrics *metrics.PrometheusAdapter

	// MetricsPath is where Metrics is exposed (default: "/metrics")
	MetricsPath string

	// RateLimiter limits inbound requests per client IP (optional)
	RateLimiter *ratelimit.Limiter

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// Logger is the logging adapter (optional)
	Logger logger.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.OpenIDConfigurationURL == "" && cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("an OpenID configuration URL or userinfo URL is required")
	}

	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{
			Level: logger.LevelInfo,
		})
	}

	handlers := NewHandlerContext(cfg.Resolver, log)
	handlers.OpenIDConfigurationURL = cfg.OpenIDConfigurationURL
	handlers.UserInfoURL = cfg.UserInfoURL
	handlers.Version = cfg.Version
	handlers.SetHealthChecker(cfg.HealthChecker)

	server := &Server{
		handlers:    handlers,
		tlsConfig:   cfg.TLSConfig,
		metrics:     cfg.Metrics,
		metricsPath: cfg.MetricsPath,
		healthPath:  cfg.HealthPath,
		limiter:     cfg.RateLimiter,
		logger:      log,
	}

	server.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           server.setupRouter(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		TLSConfig:         cfg.TLSConfig,
	}

	return server, nil
}

// setupRouter configures the HTTP router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())
	if s.metrics != nil {
		r.Use(s.metrics.HTTPMiddleware)
	}
	r.Use(CORSMiddleware)

	r.Get(s.healthPath, s.handlers.HealthHandler)
	r.Get(s.healthPath+"/live", s.handlers.LivenessHandler)
	r.Get(s.healthPath+"/ready", s.handlers.ReadinessHandler)
	r.Get(s.healthPath+"/startup", s.handlers.StartupHandler)

	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if s.limiter != nil && s.limiter.IsEnabled() {
			r.Use(ratelimit.Middleware(s.limiter))
		}
		r.Get("/visas", s.handlers.VisasHandler)
		r.Get("/tokens", s.handlers.TokensHandler)
		r.Post("/visa", s.handlers.VisaHandler)
	})

	return r
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln, wrapping it in TLS when configured.
func (s *Server) Serve(ln net.Listener) error {
	scheme := "HTTP"
	if s.tlsConfig != nil {
		scheme = "HTTPS"
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.logger.Info("Starting "+scheme+" server",
		logger.String("address", ln.Addr().String()),
		logger.String("openid_configuration_url", s.handlers.OpenIDConfigurationURL),
		logger.String("userinfo_url", s.handlers.UserInfoURL))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start %s server: %w", scheme, err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// SetHealthChecker sets the health checker for the server.
func (s *Server) SetHealthChecker(checker HealthChecker) {
	s.handlers.SetHealthChecker(checker)
}

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

package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jeremyhahn/go-clearinghouse/internal/config"
	"github.com/jeremyhahn/go-clearinghouse/internal/rest"
	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	"github.com/jeremyhahn/go-clearinghouse/pkg/clearinghouse"
	"github.com/jeremyhahn/go-clearinghouse/pkg/health"
	"github.com/jeremyhahn/go-clearinghouse/pkg/metrics"
	"github.com/jeremyhahn/go-clearinghouse/pkg/ratelimit"
	"github.com/spf13/cobra"
)

func newServeCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP front-end",
		Long: `Serve GET /v1/visas, GET /v1/tokens and POST /v1/visa along with
health and metrics endpoints until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), c, cmd.ErrOrStderr(), nil)
		},
	}
	cmd.Flags().String("address", "", "listen address (default \":8080\")")
	cfg.bind(keyAddress, cmd.Flags(), "address")
	return cmd
}

// serve runs the REST server until ctx is canceled. When ready is non-nil it
// receives the bound address once the listener is open.
func serve(ctx context.Context, cfg *config.Config, logOut io.Writer, ready func(addr string)) error {
	if cfg.Server.OpenIDConfigurationURL == "" && cfg.Server.UserInfoURL == "" {
		return errors.New("serve requires --openid-config-url or --userinfo-url")
	}

	var prom *metrics.PrometheusAdapter
	var opts []clearinghouse.Option
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusAdapter(cfg.Metrics.Runtime)
		opts = append(opts, clearinghouse.WithMetrics(prom))
	}

	s, err := newSession(cfg, logOut, opts...)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(&cfg.RateLimit)
	defer limiter.Stop()

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		if tlsConfig, err = cfg.TLS.LoadTLSConfig(); err != nil {
			return err
		}
	}

	restCfg := &rest.Config{
		Address:                cfg.Server.Address,
		Version:                Version,
		Resolver:               s.ch,
		OpenIDConfigurationURL: cfg.Server.OpenIDConfigurationURL,
		UserInfoURL:            cfg.Server.UserInfoURL,
		HealthPath:             cfg.Health.Path,
		Metrics:                prom,
		MetricsPath:            cfg.Metrics.Path,
		RateLimiter:            limiter,
		TLSConfig:              tlsConfig,
		Logger:                 s.logger,
		ReadTimeout:            cfg.Server.ReadTimeout,
		WriteTimeout:           cfg.Server.WriteTimeout,
	}
	var checker *health.Checker
	if cfg.Health.Enabled {
		checker = health.NewChecker()
		checker.SetTimeout(cfg.HTTP.Timeout)
		checker.RegisterCheck("key_cache", health.KeyCacheCheck(s.ch.KeyCache()))
		if u := cfg.Server.OpenIDConfigurationURL; u != "" {
			checker.RegisterCheck("openid_configuration", health.DiscoveryCheck(s.ch.Remote(), u))
		}
		restCfg.HealthChecker = checker
	}

	srv, err := rest.NewServer(restCfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr(), err)
	}
	if ready != nil {
		ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	if checker != nil {
		checker.MarkStarted()
	}

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	if checker != nil {
		checker.MarkNotStarted()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		s.logger.Error("Error during server shutdown", logger.Error(err))
		return err
	}
	return <-errCh
}

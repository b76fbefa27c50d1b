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

package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	"github.com/jeremyhahn/go-clearinghouse/pkg/jwks"
	"github.com/jeremyhahn/go-clearinghouse/pkg/ratelimit"
	"github.com/jeremyhahn/go-clearinghouse/pkg/remote"
	"github.com/jeremyhahn/go-clearinghouse/pkg/validation"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLEARINGHOUSE_"

// Config represents the complete clearinghouse configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Cache     CacheConfig      `yaml:"cache"`
	HTTP      HTTPConfig       `yaml:"http"`
	Verify    VerifyConfig     `yaml:"verify"`
	RateLimit ratelimit.Config `yaml:"ratelimit"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Health    HealthConfig     `yaml:"health"`
	TLS       TLSConfig        `yaml:"tls"`
}

// ServerConfig contains settings for the HTTP front-end and the default
// passport broker used by the CLI.
type ServerConfig struct {
	Address                string        `yaml:"address"`
	OpenIDConfigurationURL string        `yaml:"openid_configuration_url"`
	UserInfoURL            string        `yaml:"userinfo_url"`
	ReadTimeout            time.Duration `yaml:"read_timeout"`
	WriteTimeout           time.Duration `yaml:"write_timeout"`
	ShutdownTimeout        time.Duration `yaml:"shutdown_timeout"`
}

// CacheConfig sizes the verification key cache
type CacheConfig struct {
	Size int `yaml:"size"`
}

// HTTPConfig controls outbound discovery, key set and userinfo requests
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	CAFile       string        `yaml:"ca_file"`
}

// VerifyConfig controls token verification
type VerifyConfig struct {
	Leeway time.Duration `yaml:"leeway"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Backend string `yaml:"backend"` // slog, zap
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Runtime bool   `yaml:"runtime"` // Go runtime and process collectors
}

// HealthConfig controls the health check endpoint
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{Size: jwks.DefaultCacheSize},
		HTTP: HTTPConfig{
			Timeout:      remote.DefaultTimeout,
			UserAgent:    "go-clearinghouse",
			MaxBodyBytes: remote.DefaultMaxBodyBytes,
		},
		RateLimit: ratelimit.Config{
			Enabled:           false,
			RequestsPerMinute: 600,
			Burst:             20,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "json",
			Backend: "slog",
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics", Runtime: true},
		Health:  HealthConfig{Enabled: true, Path: "/health"},
	}
}

// Load reads configuration from a YAML file over Default and applies
// environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Parse YAML
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Server settings
	if addr := os.Getenv(EnvPrefix + "ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}
	if u := os.Getenv(EnvPrefix + "OPENID_CONFIGURATION_URL"); u != "" {
		cfg.Server.OpenIDConfigurationURL = u
	}
	if u := os.Getenv(EnvPrefix + "USERINFO_URL"); u != "" {
		cfg.Server.UserInfoURL = u
	}

	// Cache
	if size := os.Getenv(EnvPrefix + "CACHE_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n < 1 {
			log.Printf("Warning: invalid %sCACHE_SIZE value %q, using %d", EnvPrefix, size, cfg.Cache.Size)
		} else {
			cfg.Cache.Size = n
		}
	}

	// HTTP
	envDuration(EnvPrefix+"HTTP_TIMEOUT", &cfg.HTTP.Timeout)
	if caFile := os.Getenv(EnvPrefix + "HTTP_CA_FILE"); caFile != "" {
		cfg.HTTP.CAFile = caFile
	}
	envDuration(EnvPrefix+"VERIFY_LEEWAY", &cfg.Verify.Leeway)

	// Rate limiting
	envBool(EnvPrefix+"RATELIMIT_ENABLED", &cfg.RateLimit.Enabled)
	if proxies := os.Getenv(EnvPrefix + "RATELIMIT_TRUSTED_PROXIES"); proxies != "" {
		cfg.RateLimit.TrustedProxies = strings.Split(proxies, ",")
	}

	// Logging
	if level := os.Getenv(EnvPrefix + "LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv(EnvPrefix + "LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if backend := os.Getenv(EnvPrefix + "LOG_BACKEND"); backend != "" {
		cfg.Logging.Backend = backend
	}

	// Metrics
	envBool(EnvPrefix+"METRICS_ENABLED", &cfg.Metrics.Enabled)
}

func envDuration(name string, dst *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, using %s: %v", name, v, *dst, err)
		return
	}
	*dst = d
}

func envBool(name string, dst *bool) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, using %t: %v", name, v, *dst, err)
		return
	}
	*dst = b
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address must be specified")
	}
	if u := c.Server.OpenIDConfigurationURL; u != "" {
		if err := validation.ValidateURL(u); err != nil {
			return fmt.Errorf("invalid openid_configuration_url: %w", err)
		}
	}
	if u := c.Server.UserInfoURL; u != "" {
		if err := validation.ValidateURL(u); err != nil {
			return fmt.Errorf("invalid userinfo_url: %w", err)
		}
	}

	if c.Cache.Size < 1 {
		return fmt.Errorf("invalid cache size: %d (must be at least 1)", c.Cache.Size)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("invalid http timeout: %s", c.HTTP.Timeout)
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid http max_body_bytes: %d", c.HTTP.MaxBodyBytes)
	}
	if c.Verify.Leeway < 0 {
		return fmt.Errorf("invalid verify leeway: %s", c.Verify.Leeway)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("invalid ratelimit requests_per_min: %d", c.RateLimit.RequestsPerMinute)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}

	// Validate logging level
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, error, or fatal)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	validBackends := map[string]bool{"slog": true, "zap": true}
	if !validBackends[strings.ToLower(c.Logging.Backend)] {
		return fmt.Errorf("invalid log backend: %s (must be slog or zap)", c.Logging.Backend)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %q", c.Metrics.Path)
	}
	if c.Health.Enabled && !strings.HasPrefix(c.Health.Path, "/") {
		return fmt.Errorf("health path must start with /: %q", c.Health.Path)
	}

	// Validate TLS settings
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	return nil
}

// NewLogger builds the configured logging backend writing to out.
func (c *LoggingConfig) NewLogger(out io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(c.Backend) {
	case "zap":
		return logger.NewZapAdapter(&logger.ZapConfig{Level: level, Output: out}), nil
	case "slog", "":
		return logger.NewSlogAdapter(&logger.SlogConfig{
			Level:  level,
			Format: strings.ToLower(c.Format),
			Output: out,
		}), nil
	default:
		return nil, fmt.Errorf("unknown log backend: %s", c.Backend)
	}
}

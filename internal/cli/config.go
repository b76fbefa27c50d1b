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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeremyhahn/go-clearinghouse/internal/config"
	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	"github.com/jeremyhahn/go-clearinghouse/pkg/clearinghouse"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Setting keys shared by flags, environment variables and the config file.
const (
	keyConfig          = "config"
	keyOutput          = "output"
	keyVerbose         = "verbose"
	keyOpenIDConfigURL = "openid_configuration_url"
	keyUserInfoURL     = "userinfo_url"
	keyCacheSize       = "cache_size"
	keyTimeout         = "http_timeout"
	keyLeeway          = "verify_leeway"
	keyLogLevel        = "log_level"
	keyAccessToken     = "access_token"
	keyAddress         = "address"
)

// Config holds global CLI configuration. Values resolve in order of
// precedence: flags, CLEARINGHOUSE_* environment variables, the config
// file, then defaults.
type Config struct {
	v *viper.Viper
}

// NewConfig creates a Config backed by a fresh viper instance.
func NewConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(keyOutput, string(OutputFormatText))
	return &Config{v: v}
}

// bind attaches a flag to a setting key.
func (c *Config) bind(key string, flags *pflag.FlagSet, name string) {
	if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("cli: bind %s: %v", name, err))
	}
}

// OutputFormat returns the selected output format.
func (c *Config) OutputFormat() string {
	return c.v.GetString(keyOutput)
}

// Verbose reports whether debug logging was requested.
func (c *Config) Verbose() bool {
	return c.v.GetBool(keyVerbose)
}

// AccessToken returns the access token from --access-token or
// CLEARINGHOUSE_ACCESS_TOKEN.
func (c *Config) AccessToken() string {
	return c.v.GetString(keyAccessToken)
}

// Load reads the config file named by --config and applies flag overrides.
func (c *Config) Load() (*config.Config, error) {
	cfg, err := config.Load(c.v.GetString(keyConfig))
	if err != nil {
		return nil, err
	}

	if c.v.IsSet(keyOpenIDConfigURL) {
		cfg.Server.OpenIDConfigurationURL = c.v.GetString(keyOpenIDConfigURL)
	}
	if c.v.IsSet(keyUserInfoURL) {
		cfg.Server.UserInfoURL = c.v.GetString(keyUserInfoURL)
	}
	if c.v.IsSet(keyAddress) {
		cfg.Server.Address = c.v.GetString(keyAddress)
	}
	if c.v.IsSet(keyCacheSize) {
		cfg.Cache.Size = c.v.GetInt(keyCacheSize)
	}
	if c.v.IsSet(keyTimeout) {
		cfg.HTTP.Timeout = c.v.GetDuration(keyTimeout)
	}
	if c.v.IsSet(keyLeeway) {
		cfg.Verify.Leeway = c.v.GetDuration(keyLeeway)
	}
	if c.v.IsSet(keyLogLevel) {
		cfg.Logging.Level = c.v.GetString(keyLogLevel)
	}
	if c.Verbose() {
		cfg.Logging.Level = logger.LevelDebug.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session is what a command needs to resolve passports.
type session struct {
	cfg    *config.Config
	logger logger.Logger
	ch     *clearinghouse.Clearinghouse
}

// newSession builds a clearinghouse from cfg. Logs go to logOut.
func newSession(cfg *config.Config, logOut io.Writer, extra ...clearinghouse.Option) (*session, error) {
	if logOut == nil {
		logOut = os.Stderr
	}
	log, err := cfg.Logging.NewLogger(logOut)
	if err != nil {
		return nil, err
	}

	hc, err := cfg.HTTP.NewHTTPClient()
	if err != nil {
		return nil, err
	}

	rt := &session{cfg: cfg, logger: log}
	opts := []clearinghouse.Option{
		clearinghouse.WithHTTPClient(hc),
		clearinghouse.WithLogger(log),
		clearinghouse.WithCacheSize(cfg.Cache.Size),
		clearinghouse.WithLeeway(cfg.Verify.Leeway),
		clearinghouse.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		clearinghouse.WithUserAgent(cfg.HTTP.UserAgent),
	}
	opts = append(opts, extra...)

	rt.ch, err = clearinghouse.New(opts...)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

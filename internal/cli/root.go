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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the clearinghouse command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *Config) {
	cfg := NewConfig()

	root := &cobra.Command{
		Use:   "clearinghouse",
		Short: "go-clearinghouse CLI - GA4GH passport and visa validation",
		Long: `clearinghouse retrieves GA4GH passports from a broker's userinfo
endpoint and verifies the visa tokens they carry.

Access tokens can be verified through OpenID discovery, with a fixed PEM
public key, or passed to the userinfo endpoint as opaque bearer tokens.
Every setting can also be provided as a CLEARINGHOUSE_* environment
variable or in the YAML file named by --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (YAML)")
	pf.StringP("output", "o", string(OutputFormatText), "output format (text, json, table)")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.String("openid-config-url", "", "broker OpenID configuration URL")
	pf.String("userinfo-url", "", "broker userinfo URL for opaque access tokens")
	pf.Int("cache-size", 0, "number of verification keys to cache")
	pf.Duration("timeout", 0, "timeout for each broker request")
	pf.Duration("leeway", 0, "allowed clock skew for exp, nbf and iat")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	cfg.bind(keyConfig, pf, "config")
	cfg.bind(keyOutput, pf, "output")
	cfg.bind(keyVerbose, pf, "verbose")
	cfg.bind(keyOpenIDConfigURL, pf, "openid-config-url")
	cfg.bind(keyUserInfoURL, pf, "userinfo-url")
	cfg.bind(keyCacheSize, pf, "cache-size")
	cfg.bind(keyTimeout, pf, "timeout")
	cfg.bind(keyLeeway, pf, "leeway")
	cfg.bind(keyLogLevel, pf, "log-level")

	root.AddCommand(newVersionCmd(cfg))
	root.AddCommand(newVisasCmd(cfg))
	root.AddCommand(newTokensCmd(cfg))
	root.AddCommand(newVisaCmd(cfg))
	root.AddCommand(newServeCmd(cfg))

	return root, cfg
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cfg := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		printer := NewPrinter(cfg.OutputFormat(), os.Stderr)
		if printErr := printer.PrintError(err); printErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return err
	}
	return nil
}

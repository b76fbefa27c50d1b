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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeremyhahn/go-clearinghouse/pkg/clearinghouse"
	"github.com/jeremyhahn/go-clearinghouse/pkg/visa"
	"github.com/spf13/cobra"
)

// passportFlags selects how the access token is verified.
type passportFlags struct {
	publicKeyFile string
	opaque        bool
}

func (f *passportFlags) register(cmd *cobra.Command) {
	cmd.Flags().String("access-token", "", "access token (or CLEARINGHOUSE_ACCESS_TOKEN)")
	cmd.Flags().StringVar(&f.publicKeyFile, "public-key-file", "", "verify the access token with this PEM public key")
	cmd.Flags().BoolVar(&f.opaque, "opaque", false, "send the access token to --userinfo-url without verifying it")
	cmd.MarkFlagsMutuallyExclusive("public-key-file", "opaque")
}

// prepare loads configuration, builds a session and returns the access token.
func (f *passportFlags) prepare(cmd *cobra.Command, cfg *Config) (*session, string, error) {
	cfg.bind(keyAccessToken, cmd.Flags(), "access-token")
	token := strings.TrimSpace(cfg.AccessToken())
	if token == "" {
		return nil, "", errors.New("an access token is required (--access-token or CLEARINGHOUSE_ACCESS_TOKEN)")
	}

	c, err := cfg.Load()
	if err != nil {
		return nil, "", err
	}
	s, err := newSession(c, cmd.ErrOrStderr())
	if err != nil {
		return nil, "", err
	}
	return s, token, nil
}

func (f *passportFlags) pem() (string, error) {
	data, err := os.ReadFile(f.publicKeyFile)
	if err != nil {
		return "", fmt.Errorf("failed to read public key: %w", err)
	}
	return string(data), nil
}

func (f *passportFlags) tokens(ctx context.Context, s *session, accessToken string) ([]string, error) {
	switch {
	case f.publicKeyFile != "":
		pemText, err := f.pem()
		if err != nil {
			return nil, err
		}
		return s.ch.GetVisaTokensWithPEMPublicKey(ctx, accessToken, pemText)
	case f.opaque:
		if s.cfg.Server.UserInfoURL == "" {
			return nil, errors.New("--opaque requires --userinfo-url")
		}
		return s.ch.GetVisaTokensFromOpaqueToken(ctx, accessToken, s.cfg.Server.UserInfoURL)
	default:
		if s.cfg.Server.OpenIDConfigurationURL == "" {
			return nil, errors.New("--openid-config-url is required")
		}
		return s.ch.GetVisaTokens(ctx, accessToken, s.cfg.Server.OpenIDConfigurationURL)
	}
}

func (f *passportFlags) visas(ctx context.Context, s *session, accessToken string) ([]*visa.Visa, error) {
	switch {
	case f.publicKeyFile != "":
		pemText, err := f.pem()
		if err != nil {
			return nil, err
		}
		return s.ch.GetVisasWithPEMPublicKey(ctx, accessToken, pemText)
	case f.opaque:
		if s.cfg.Server.UserInfoURL == "" {
			return nil, errors.New("--opaque requires --userinfo-url")
		}
		return s.ch.GetVisasFromOpaqueToken(ctx, accessToken, s.cfg.Server.UserInfoURL)
	default:
		if s.cfg.Server.OpenIDConfigurationURL == "" {
			return nil, errors.New("--openid-config-url is required")
		}
		return s.ch.GetVisas(ctx, accessToken, s.cfg.Server.OpenIDConfigurationURL)
	}
}

func newVisasCmd(cfg *Config) *cobra.Command {
	flags := &passportFlags{}
	cmd := &cobra.Command{
		Use:   "visas",
		Short: "Fetch a passport and print its verified visas",
		Long: `Fetch the passport for an access token and print every visa that
verifies. Visas that fail verification are skipped and logged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, token, err := flags.prepare(cmd, cfg)
			if err != nil {
				return err
			}
			visas, err := flags.visas(cmd.Context(), s, token)
			if err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat(), cmd.OutOrStdout()).PrintVisas(visas)
		},
	}
	flags.register(cmd)
	return cmd
}

func newTokensCmd(cfg *Config) *cobra.Command {
	flags := &passportFlags{}
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Fetch a passport and print its raw visa tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, token, err := flags.prepare(cmd, cfg)
			if err != nil {
				return err
			}
			tokens, err := flags.tokens(cmd.Context(), s, token)
			if err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat(), cmd.OutOrStdout()).PrintTokens(tokens)
		},
	}
	flags.register(cmd)
	return cmd
}

func newVisaCmd(cfg *Config) *cobra.Command {
	var publicKeyFile string
	cmd := &cobra.Command{
		Use:   "visa TOKEN",
		Short: "Verify a single visa token",
		Long: `Verify a single visa token and print it. Use "-" to read the token
from standard input. Without --public-key-file the key is fetched from the
token's jku header.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			c, err := cfg.Load()
			if err != nil {
				return err
			}
			s, err := newSession(c, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var v *visa.Visa
			if publicKeyFile != "" {
				pemText, err := (&passportFlags{publicKeyFile: publicKeyFile}).pem()
				if err != nil {
					return err
				}
				var ok bool
				if v, ok = s.ch.GetVisaWithPEMPublicKey(cmd.Context(), token, pemText); !ok {
					return errors.New("visa rejected")
				}
			} else {
				result := s.ch.ResolveVisas(cmd.Context(), []string{token})[0]
				if result.Err != nil {
					return fmt.Errorf("visa rejected (%s): %w", clearinghouse.Reason(result.Err), result.Err)
				}
				v = result.Visa
			}
			return NewPrinter(cfg.OutputFormat(), cmd.OutOrStdout()).PrintVisa(v)
		},
	}
	cmd.Flags().StringVar(&publicKeyFile, "public-key-file", "", "verify the visa with this PEM public key")
	return cmd
}

// readToken returns arg, or the first line of in when arg is "-".
func readToken(arg string, in io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(io.LimitReader(in, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	if token == "" {
		return "", errors.New("no token on standard input")
	}
	return strings.TrimSpace(token), nil
}

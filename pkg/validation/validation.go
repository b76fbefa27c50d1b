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

// Package validation provides input validation shared by the REST front-end,
// the CLI and the resolver. Every externally supplied URL and credential
// passes through here before it reaches the network or a log line.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// MaxURLLength bounds accepted URLs
	MaxURLLength = 2048

	// MaxTokenLength bounds accepted bearer and visa tokens
	MaxTokenLength = 64 * 1024
)

var (
	// compactPattern matches the three base64url segments of a compact JWS
	compactPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]*$`)
)

// ValidateURL validates an absolute http or https URL.
// Rejects empty strings, control characters, relative references and
// URLs carrying user info.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	// Check length before parsing
	if len(raw) > MaxURLLength {
		return fmt.Errorf("URL too long (max %d characters)", MaxURLLength)
	}

	if hasControl(raw) {
		return fmt.Errorf("URL contains control characters")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	if u.User != nil {
		return fmt.Errorf("URL must not contain user info")
	}

	return nil
}

// ValidateBearer validates an opaque bearer credential. Only properties that
// would corrupt the Authorization header are checked; the token itself is
// never parsed.
func ValidateBearer(token string) error {
	if token == "" {
		return fmt.Errorf("bearer token cannot be empty")
	}

	if len(token) > MaxTokenLength {
		return fmt.Errorf("bearer token too long (max %d bytes)", MaxTokenLength)
	}

	if hasControl(token) || strings.ContainsAny(token, " ") {
		return fmt.Errorf("bearer token contains whitespace or control characters")
	}

	return nil
}

// ValidateCompactToken checks that token has the shape of a compact
// serialized JWS. It does not decode the segments.
func ValidateCompactToken(token string) error {
	if err := ValidateBearer(token); err != nil {
		return err
	}

	if !compactPattern.MatchString(token) {
		return fmt.Errorf("token is not in compact serialization")
	}

	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	// Remove control characters and null bytes
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	// Limit length to prevent log flooding
	if len(s) > 1000 {
		s = s[:1000] + "...[truncated]"
	}

	return s
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 32 || r == 127 {
			return true
		}
	}
	return false
}

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

package jwt

import (
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm represents a JWT signing algorithm
type Algorithm string

// RS256 is the only algorithm accepted for passports and visas.
const RS256 Algorithm = "RS256"

// Header parameter names
const (
	HeaderKeyID     = "kid"
	HeaderJWKSURL   = "jku"
	HeaderType      = "typ"
	HeaderAlgorithm = "alg"
)

// Signer creates RS256-signed tokens.
type Signer struct{}

// NewSigner creates a new JWT signer
func NewSigner() *Signer {
	return &Signer{}
}

// Sign signs claims with key using RS256.
//
// Example:
//
//	signer := jwt.NewSigner()
//	token, err := signer.Sign(privateKey, jwt.MapClaims{"sub": "user123"})
func (s *Signer) Sign(key *rsa.PrivateKey, claims jwt.Claims) (string, error) {
	return s.SignWithHeaders(key, claims, "", "")
}

// SignWithHeaders signs claims and sets the kid and jku headers when non-empty.
// Visa issuers publish jku so relying parties can locate the key set.
func (s *Signer) SignWithHeaders(key *rsa.PrivateKey, claims jwt.Claims, kid, jku string) (string, error) {
	if key == nil {
		return "", fmt.Errorf("jwt: nil signing key")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header[HeaderKeyID] = kid
	}
	if jku != "" {
		token.Header[HeaderJWKSURL] = jku
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

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

package jwk

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/jeremyhahn/go-clearinghouse/pkg/encoding"
)

// JWK represents a JSON Web Key as defined in RFC 7517.
// Only the members needed to carry an RSA verification key are modelled;
// unknown members are ignored when decoding.
type JWK struct {
	Kty string `json:"kty"`           // Key Type (required)
	Use string `json:"use,omitempty"` // Public Key Use (sig, enc)
	Alg string `json:"alg,omitempty"` // Algorithm
	Kid string `json:"kid,omitempty"` // Key ID

	// RSA public key fields (RFC 7518 Section 6.3.1)
	N string `json:"n,omitempty"` // Modulus (base64url)
	E string `json:"e,omitempty"` // Exponent (base64url)

	// X.509 certificate chain, carried through but not interpreted
	X5c []string `json:"x5c,omitempty"`
}

// KeyType represents the key type (kty) parameter values
type KeyType string

const (
	KeyTypeRSA KeyType = "RSA"
	KeyTypeEC  KeyType = "EC"
	KeyTypeOKP KeyType = "OKP"
	KeyTypeOct KeyType = "oct"
)

// FromPublicKey creates a signature JWK from an RSA public key. Any other key
// type yields encoding.ErrInvalidKey.
func FromPublicKey(pub crypto.PublicKey, kid string) (*JWK, error) {
	key, err := encoding.RSAPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &JWK{
		Kty: string(KeyTypeRSA),
		Use: "sig",
		Alg: "RS256",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}, nil
}

// RSAPublicKey converts the JWK to an *rsa.PublicKey. Entries whose kty is
// not RSA, or whose modulus or exponent are missing or malformed, yield
// encoding.ErrInvalidKey.
func (jwk *JWK) RSAPublicKey() (*rsa.PublicKey, error) {
	if jwk.Kty != string(KeyTypeRSA) {
		return nil, fmt.Errorf("%w: unsupported key type %q", encoding.ErrInvalidKey, jwk.Kty)
	}
	if jwk.N == "" {
		return nil, fmt.Errorf("%w: RSA JWK missing required field: n", encoding.ErrInvalidKey)
	}
	if jwk.E == "" {
		return nil, fmt.Errorf("%w: RSA JWK missing required field: e", encoding.ErrInvalidKey)
	}

	nBytes, err := decodeBase64URL(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode RSA modulus: %v", encoding.ErrInvalidKey, err)
	}
	eBytes, err := decodeBase64URL(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode RSA exponent: %v", encoding.ErrInvalidKey, err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() == 0 {
		return nil, fmt.Errorf("%w: RSA modulus is zero", encoding.ErrInvalidKey)
	}
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("%w: RSA exponent out of range", encoding.ErrInvalidKey)
	}

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}

// ThumbprintSHA256 computes the RFC 7638 SHA-256 thumbprint of an RSA JWK:
// base64url(SHA-256({"e":...,"kty":"RSA","n":...})).
func (jwk *JWK) ThumbprintSHA256() (string, error) {
	if jwk.Kty != string(KeyTypeRSA) || jwk.E == "" || jwk.N == "" {
		return "", fmt.Errorf("%w: RSA JWK missing required fields for thumbprint", encoding.ErrInvalidKey)
	}
	// Members in lexicographic order, no whitespace.
	canonical, err := json.Marshal(struct {
		E   string `json:"e"`
		Kty string `json:"kty"`
		N   string `json:"n"`
	}{jwk.E, jwk.Kty, jwk.N})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// Some issuers pad their base64url values.
func decodeBase64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

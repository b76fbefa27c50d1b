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
	"context"
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeremyhahn/go-clearinghouse/pkg/encoding"
)

// KeyResolver looks up a verification key published at a JWKS URL.
// *jwks.Cache implements it.
type KeyResolver interface {
	Resolve(ctx context.Context, jwksURL, kid string) (*rsa.PublicKey, error)
}

type refKind int

const (
	refPublicKey refKind = iota + 1
	refPEM
	refResolver
)

// KeyRef tells Verify where the verification key comes from. Build one with
// PublicKeyRef, PEMRef, HeaderRef or JWKSRef.
type KeyRef struct {
	kind     refKind
	key      crypto.PublicKey
	pem      string
	resolver KeyResolver
	jwksURL  string
}

// PublicKeyRef verifies with key, which must be an RSA public key.
func PublicKeyRef(key crypto.PublicKey) KeyRef {
	return KeyRef{kind: refPublicKey, key: key}
}

// PEMRef verifies with the RSA public key encoded in text.
func PEMRef(text string) KeyRef {
	return KeyRef{kind: refPEM, pem: text}
}

// HeaderRef verifies with the key the token names in its jku and kid headers.
func HeaderRef(resolver KeyResolver) KeyRef {
	return KeyRef{kind: refResolver, resolver: resolver}
}

// JWKSRef verifies with the key named by the token's kid header in the key
// set at jwksURL, ignoring any jku header.
func JWKSRef(resolver KeyResolver, jwksURL string) KeyRef {
	return KeyRef{kind: refResolver, resolver: resolver, jwksURL: jwksURL}
}

// Header is the subset of the JOSE header the clearinghouse inspects.
type Header struct {
	Algorithm string
	KeyID     string
	JWKSURL   string
	Type      string
}

// Claims is the verified claim set of a token. Numeric values are json.Number.
type Claims map[string]any

// String returns claim name when it is a string.
func (c Claims) String(name string) (string, bool) {
	s, ok := c[name].(string)
	return s, ok
}

// Issuer returns the iss claim or "".
func (c Claims) Issuer() string {
	s, _ := c.String("iss")
	return s
}

// Subject returns the sub claim or "".
func (c Claims) Subject() string {
	s, _ := c.String("sub")
	return s
}

// Verifier checks RS256 signatures and standard time claims.
type Verifier struct {
	leeway time.Duration
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithLeeway allows clock skew when checking exp, nbf and iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

// WithClock overrides the time source used for time claim checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier creates a new JWT verifier
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify decodes token, resolves its verification key from ref and checks
// the RS256 signature and time claims. Claims are returned only when every
// step succeeds. A token whose alg is not RS256 fails before any key lookup.
func (v *Verifier) Verify(ctx context.Context, token string, ref KeyRef) (Claims, error) {
	header, err := DecodeHeader(token)
	if err != nil {
		return nil, err
	}
	if header.Algorithm != string(RS256) {
		return nil, fmt.Errorf("%w: unsupported alg %q", ErrSignatureInvalid, header.Algorithm)
	}

	key, err := v.resolve(ctx, header, ref)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{string(RS256)}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithIssuedAt(),
		jwt.WithJSONNumber(),
	)
	parsed, err := parser.ParseWithClaims(token, jwt.MapClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrSignatureInvalid
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type %T", ErrSignatureInvalid, parsed.Claims)
	}
	return Claims(mc), nil
}

func (v *Verifier) resolve(ctx context.Context, header Header, ref KeyRef) (*rsa.PublicKey, error) {
	switch ref.kind {
	case refPublicKey:
		key, err := encoding.RSAPublicKey(ref.key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyResolutionFailed, err)
		}
		return key, nil

	case refPEM:
		key, err := encoding.ParseRSAPublicKeyPEM(ref.pem)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyResolutionFailed, err)
		}
		return key, nil

	case refResolver:
		if ref.resolver == nil {
			return nil, fmt.Errorf("%w: no key resolver", ErrKeyResolutionFailed)
		}
		jwksURL := ref.jwksURL
		if jwksURL == "" {
			jwksURL = header.JWKSURL
		}
		if jwksURL == "" {
			return nil, fmt.Errorf("%w: token has no %s header", ErrKeyResolutionFailed, HeaderJWKSURL)
		}
		if header.KeyID == "" {
			return nil, fmt.Errorf("%w: token has no %s header", ErrKeyResolutionFailed, HeaderKeyID)
		}
		key, err := ref.resolver.Resolve(ctx, jwksURL, header.KeyID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyResolutionFailed, err)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("%w: empty key reference", ErrKeyResolutionFailed)
	}
}

// DecodeHeader decodes token without verifying it and returns its header.
// Tokens that are not three base64url segments holding JSON objects yield
// ErrMalformedToken.
func DecodeHeader(token string) (Header, error) {
	parser := jwt.NewParser(jwt.WithJSONNumber())
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	// An unknown or missing alg still decodes; Verify rejects it later as an
	// invalid signature.
	if err != nil && !(errors.Is(err, jwt.ErrTokenUnverifiable) && parsed != nil) {
		return Header{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	h := Header{}
	for name, dst := range map[string]*string{
		HeaderAlgorithm: &h.Algorithm,
		HeaderKeyID:     &h.KeyID,
		HeaderJWKSURL:   &h.JWKSURL,
		HeaderType:      &h.Type,
	} {
		raw, present := parsed.Header[name]
		if !present {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return Header{}, fmt.Errorf("%w: header %q is not a string", ErrMalformedToken, name)
		}
		*dst = s
	}
	return h, nil
}

// ExtractKID returns the kid header of token without verifying it.
// Returns an empty string if no kid is present.
func ExtractKID(token string) (string, error) {
	h, err := DecodeHeader(token)
	if err != nil {
		return "", err
	}
	return h.KeyID, nil
}

// UnverifiedClaims decodes the claim set of token without verifying it.
// Used only for diagnostics; never trust the result.
func UnverifiedClaims(token string) (Claims, error) {
	parser := jwt.NewParser(jwt.WithJSONNumber())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return Claims(claims), nil
}

// IsExpired reports whether err is a verification failure caused by exp.
func IsExpired(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) && errors.Is(err, jwt.ErrTokenExpired)
}

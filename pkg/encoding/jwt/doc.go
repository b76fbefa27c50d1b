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

// Package jwt verifies RS256-signed JSON Web Tokens against keys resolved
// from a caller-supplied key, PEM text, or a remote JWKS endpoint.
//
// Verification is fail-closed: claims are only returned after the token has
// decoded, a key has been resolved and the RS256 signature and time claims
// have checked out. Every failure maps to one of three sentinels:
//
//   - ErrMalformedToken: the compact serialisation could not be decoded
//   - ErrKeyResolutionFailed: no verification key could be obtained
//   - ErrSignatureInvalid: signature, algorithm or time claims rejected
//
// # Basic Usage
//
// Verifying with an explicit key:
//
//	v := jwt.NewVerifier()
//	claims, err := v.Verify(ctx, token, jwt.PublicKeyRef(pub))
//
// Verifying with the key named by the token's own jku and kid headers:
//
//	cache, _ := jwks.NewCache(jwks.NewHTTPSource(nil))
//	claims, err := v.Verify(ctx, token, jwt.HeaderRef(cache))
//
// Signing is provided for issuers and tests:
//
//	token, err := jwt.NewSigner().SignWithHeaders(priv, claims, "rsa1", jkuURL)
package jwt

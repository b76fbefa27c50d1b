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

package clearinghouse

import (
	"github.com/jeremyhahn/go-clearinghouse/pkg/encoding"
	chjwt "github.com/jeremyhahn/go-clearinghouse/pkg/encoding/jwt"
	"github.com/jeremyhahn/go-clearinghouse/pkg/jwks"
	"github.com/jeremyhahn/go-clearinghouse/pkg/remote"
	"github.com/jeremyhahn/go-clearinghouse/pkg/visa"
)

// Errors surfaced by the resolver. Each is the sentinel of the package that
// produces it, so errors.Is works against either name.
var (
	// ErrMalformedToken indicates a token is not a decodable compact JWS.
	ErrMalformedToken = chjwt.ErrMalformedToken

	// ErrSignatureInvalid indicates a signature or time claim check failed.
	ErrSignatureInvalid = chjwt.ErrSignatureInvalid

	// ErrKeyResolutionFailed indicates no verification key could be obtained.
	ErrKeyResolutionFailed = chjwt.ErrKeyResolutionFailed

	// ErrKeyNotFound indicates the key set has no RSA entry for the kid.
	ErrKeyNotFound = jwks.ErrKeyNotFound

	// ErrFetch indicates a discovery, key set or userinfo request failed.
	ErrFetch = remote.ErrFetch

	// ErrInvalidKey indicates a public key or PEM text could not be used.
	ErrInvalidKey = encoding.ErrInvalidKey

	// ErrMissingClaim indicates a verified token had no visa claim.
	ErrMissingClaim = visa.ErrMissingClaim

	// ErrSchemaInvalid indicates the visa claim failed schema validation.
	ErrSchemaInvalid = visa.ErrSchemaInvalid
)

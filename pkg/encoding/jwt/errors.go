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

import "errors"

var (
	// ErrMalformedToken is returned when a token is not a decodable compact JWS
	ErrMalformedToken = errors.New("jwt: malformed token")

	// ErrKeyResolutionFailed is returned when no verification key could be
	// obtained; the cause is wrapped alongside it
	ErrKeyResolutionFailed = errors.New("jwt: key resolution failed")

	// ErrSignatureInvalid is returned when the signature, algorithm or time
	// claims do not verify
	ErrSignatureInvalid = errors.New("jwt: signature invalid")
)

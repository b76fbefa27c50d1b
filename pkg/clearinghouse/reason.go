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
	"context"
	"errors"

	chjwt "github.com/jeremyhahn/go-clearinghouse/pkg/encoding/jwt"
)

// Reason values recorded when a visa is rejected.
const (
	ReasonMalformed     = "malformed"
	ReasonKeyNotFound   = "key_not_found"
	ReasonKeyFetch      = "key_fetch"
	ReasonKeyResolution = "key_resolution"
	ReasonExpired       = "expired"
	ReasonSignature     = "signature"
	ReasonMissingClaim  = "missing_claim"
	ReasonSchema        = "schema"
	ReasonCanceled      = "canceled"
	ReasonUnknown       = "unknown"
)

// Reason classifies a visa rejection for logs and metrics. Key resolution
// failures are split by their cause.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	case errors.Is(err, ErrMalformedToken):
		return ReasonMalformed
	case errors.Is(err, ErrKeyNotFound):
		return ReasonKeyNotFound
	case errors.Is(err, ErrKeyResolutionFailed) && errors.Is(err, ErrFetch):
		return ReasonKeyFetch
	case errors.Is(err, ErrKeyResolutionFailed):
		return ReasonKeyResolution
	case errors.Is(err, ErrSignatureInvalid) && chjwt.IsExpired(err):
		return ReasonExpired
	case errors.Is(err, ErrSignatureInvalid):
		return ReasonSignature
	case errors.Is(err, ErrMissingClaim):
		return ReasonMissingClaim
	case errors.Is(err, ErrSchemaInvalid):
		return ReasonSchema
	default:
		return ReasonUnknown
	}
}

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

package visa

import "errors"

var (
	// ErrMissingClaim is returned when verified claims carry no ga4gh_visa_v1 claim
	ErrMissingClaim = errors.New("visa: missing ga4gh_visa_v1 claim")

	// ErrSchemaInvalid is returned when the visa claim is ill-typed or lacks a
	// required field
	ErrSchemaInvalid = errors.New("visa: schema invalid")
)

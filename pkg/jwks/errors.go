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

package jwks

import (
	"errors"

	"github.com/jeremyhahn/go-clearinghouse/pkg/remote"
)

var (
	// ErrKeyNotFound is returned when a fetched key set has no usable entry
	// for the requested key ID.
	ErrKeyNotFound = errors.New("jwks: key not found")

	// ErrFetch is returned when the key set cannot be retrieved or parsed.
	ErrFetch = remote.ErrFetch
)

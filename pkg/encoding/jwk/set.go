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
	"encoding/json"
	"fmt"

	"github.com/jeremyhahn/go-clearinghouse/pkg/encoding"
)

// Set is a JSON Web Key Set (RFC 7517 Section 5).
type Set struct {
	Keys []JWK `json:"keys"`
}

// ParseSet decodes a JWKS document. A document without a "keys" array is
// rejected with encoding.ErrInvalidData.
func ParseSet(data []byte) (*Set, error) {
	var raw struct {
		Keys *[]JWK `json:"keys"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: jwks: %v", encoding.ErrInvalidData, err)
	}
	if raw.Keys == nil {
		return nil, fmt.Errorf("%w: jwks: missing keys array", encoding.ErrInvalidData)
	}
	return &Set{Keys: *raw.Keys}, nil
}

// Lookup returns the first entry whose kid equals kid.
func (s *Set) Lookup(kid string) (*JWK, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Keys {
		if s.Keys[i].Kid == kid {
			return &s.Keys[i], true
		}
	}
	return nil, false
}

// KeyIDs lists the kid of every entry in document order.
func (s *Set) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		ids = append(ids, k.Kid)
	}
	return ids
}

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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

type rawVisa struct {
	Subject    *string          `json:"sub"`
	Type       *string          `json:"type"`
	Asserted   *json.RawMessage `json:"asserted"`
	Value      *string          `json:"value"`
	Source     *string          `json:"source"`
	Conditions *Conditions      `json:"conditions"`
	By         *string          `json:"by"`
}

// Decode extracts the ga4gh_visa_v1 claim from verified token claims and
// validates it. tokenSubject is used when the claim has no sub of its own.
func Decode(claims map[string]any, tokenSubject string) (*Visa, error) {
	claim, ok := claims[ClaimName]
	if !ok || claim == nil {
		return nil, ErrMissingClaim
	}

	data, err := json.Marshal(claim)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaInvalid, err)
	}
	return DecodeJSON(data, tokenSubject)
}

// DecodeJSON validates a serialized visa object.
func DecodeJSON(data []byte, tokenSubject string) (*Visa, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, ErrMissingClaim
	}

	var raw rawVisa
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaInvalid, err)
	}

	switch {
	case raw.Type == nil:
		return nil, fmt.Errorf("%w: type is required", ErrSchemaInvalid)
	case raw.Asserted == nil:
		return nil, fmt.Errorf("%w: asserted is required", ErrSchemaInvalid)
	case raw.Value == nil:
		return nil, fmt.Errorf("%w: value is required", ErrSchemaInvalid)
	case raw.Source == nil:
		return nil, fmt.Errorf("%w: source is required", ErrSchemaInvalid)
	}

	asserted, err := parseInteger(*raw.Asserted)
	if err != nil {
		return nil, fmt.Errorf("%w: asserted: %w", ErrSchemaInvalid, err)
	}

	f := Fields{
		Subject:  tokenSubject,
		Type:     *raw.Type,
		Asserted: asserted,
		Value:    *raw.Value,
		Source:   *raw.Source,
	}
	if raw.Subject != nil {
		f.Subject = *raw.Subject
	}
	if raw.Conditions != nil {
		f.Conditions = *raw.Conditions
	}
	if raw.By != nil {
		f.By = *raw.By
	}
	return build(f), nil
}

// parseInteger accepts a JSON number literal with no fractional part that
// fits in an int64.
func parseInteger(lit json.RawMessage) (int64, error) {
	s := string(bytes.TrimSpace(lit))
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return 0, fmt.Errorf("expected integer, got %s", s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	f, _, err := big.ParseFloat(s, 10, 128, big.ToNearestEven)
	if err != nil {
		return 0, fmt.Errorf("invalid number %s", s)
	}
	if !f.IsInt() {
		return 0, fmt.Errorf("expected integer, got %s", s)
	}
	n, acc := f.Int64()
	if acc != big.Exact {
		return 0, fmt.Errorf("%s out of range", s)
	}
	return n, nil
}

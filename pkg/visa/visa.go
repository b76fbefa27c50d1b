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

// Package visa models the GA4GH visa carried in the ga4gh_visa_v1 claim of
// a verified visa token.
package visa

import (
	"encoding/json"
	"fmt"
)

// ClaimName is the JWT claim holding the visa object.
const ClaimName = "ga4gh_visa_v1"

// Condition is a single clause of a visa condition. Its contents are passed
// through uninterpreted.
type Condition map[string]any

// Conditions is an OR of AND clauses.
type Conditions [][]Condition

// Fields carries the attributes used to construct a Visa with New.
type Fields struct {
	Subject    string
	Type       string
	Asserted   int64
	Value      string
	Source     string
	Conditions Conditions
	By         string
}

// Visa is an immutable, schema-validated GA4GH visa.
type Visa struct {
	subject    string
	typ        Type
	typeName   string
	asserted   int64
	value      string
	source     string
	conditions Conditions
	by         By
	byName     string
}

// New builds a Visa from fields. Type, Value and Source must be set.
func New(f Fields) (*Visa, error) {
	switch {
	case f.Type == "":
		return nil, fmt.Errorf("%w: type is required", ErrSchemaInvalid)
	case f.Value == "":
		return nil, fmt.Errorf("%w: value is required", ErrSchemaInvalid)
	case f.Source == "":
		return nil, fmt.Errorf("%w: source is required", ErrSchemaInvalid)
	}
	return build(f), nil
}

func build(f Fields) *Visa {
	return &Visa{
		subject:    f.Subject,
		typ:        ParseType(f.Type),
		typeName:   f.Type,
		asserted:   f.Asserted,
		value:      f.Value,
		source:     f.Source,
		conditions: f.Conditions.clone(),
		by:         ParseBy(f.By),
		byName:     f.By,
	}
}

func (v *Visa) Subject() string { return v.subject }
func (v *Visa) Type() Type      { return v.typ }

// TypeName returns the type exactly as it appeared on the wire.
func (v *Visa) TypeName() string { return v.typeName }
func (v *Visa) Asserted() int64  { return v.asserted }
func (v *Visa) Value() string    { return v.value }
func (v *Visa) Source() string   { return v.source }
func (v *Visa) By() By           { return v.by }
func (v *Visa) ByName() string   { return v.byName }

// Conditions returns a deep copy of the visa conditions, or nil when the
// visa has none.
func (v *Visa) Conditions() Conditions {
	return v.conditions.clone()
}

// Fields returns the visa attributes. The result can be passed back to New.
func (v *Visa) Fields() Fields {
	return Fields{
		Subject:    v.subject,
		Type:       v.typeName,
		Asserted:   v.asserted,
		Value:      v.value,
		Source:     v.source,
		Conditions: v.conditions.clone(),
		By:         v.byName,
	}
}

type wireVisa struct {
	Subject    string     `json:"sub,omitempty"`
	Type       string     `json:"type"`
	Asserted   int64      `json:"asserted"`
	Value      string     `json:"value"`
	Source     string     `json:"source"`
	Conditions Conditions `json:"conditions,omitempty"`
	By         string     `json:"by,omitempty"`
}

// MarshalJSON renders the visa with its GA4GH wire names.
func (v *Visa) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireVisa{
		Subject:    v.subject,
		Type:       v.typeName,
		Asserted:   v.asserted,
		Value:      v.value,
		Source:     v.source,
		Conditions: v.conditions,
		By:         v.byName,
	})
}

// Claim returns the visa as a ga4gh_visa_v1 claim value suitable for
// signing into a visa token.
func (v *Visa) Claim() map[string]any {
	claim := map[string]any{
		"type":     v.typeName,
		"asserted": v.asserted,
		"value":    v.value,
		"source":   v.source,
	}
	if v.subject != "" {
		claim["sub"] = v.subject
	}
	if v.byName != "" {
		claim["by"] = v.byName
	}
	if v.conditions != nil {
		claim["conditions"] = v.conditions.clone()
	}
	return claim
}

func (c Conditions) clone() Conditions {
	if c == nil {
		return nil
	}
	out := make(Conditions, len(c))
	for i, clause := range c {
		if clause == nil {
			continue
		}
		out[i] = make([]Condition, len(clause))
		for j, cond := range clause {
			if cond == nil {
				continue
			}
			out[i][j] = cloneValue(map[string]any(cond)).(map[string]any)
		}
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

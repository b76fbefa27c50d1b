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

// Type is the GA4GH visa type. Names outside the published set decode to
// TypeOther and keep their raw name on the Visa.
type Type int

const (
	TypeOther Type = iota
	TypeAffiliationAndRole
	TypeAcceptedTermsAndPolicies
	TypeResearcherStatus
	TypeControlledAccessGrants
	TypeLinkedIdentities
)

var typeNames = map[Type]string{
	TypeAffiliationAndRole:       "AffiliationAndRole",
	TypeAcceptedTermsAndPolicies: "AcceptedTermsAndPolicies",
	TypeResearcherStatus:         "ResearcherStatus",
	TypeControlledAccessGrants:   "ControlledAccessGrants",
	TypeLinkedIdentities:         "LinkedIdentities",
}

// ParseType maps a wire name to a Type. Matching is case-sensitive.
func ParseType(name string) Type {
	for t, n := range typeNames {
		if n == name {
			return t
		}
	}
	return TypeOther
}

// String returns the wire name, or "Other" for TypeOther.
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "Other"
}

// By names who asserted a visa. ByNone means the claim had no "by" field.
type By int

const (
	ByNone By = iota
	BySelf
	ByPeer
	BySystem
	BySO
	ByDAC
	ByOther
)

var byNames = map[By]string{
	BySelf:   "self",
	ByPeer:   "peer",
	BySystem: "system",
	BySO:     "so",
	ByDAC:    "dac",
}

// ParseBy maps a wire name to a By. The empty string is ByNone.
func ParseBy(name string) By {
	if name == "" {
		return ByNone
	}
	for b, n := range byNames {
		if n == name {
			return b
		}
	}
	return ByOther
}

// String returns the wire name, "" for ByNone or "other" for ByOther.
func (b By) String() string {
	if n, ok := byNames[b]; ok {
		return n
	}
	if b == ByOther {
		return "other"
	}
	return ""
}

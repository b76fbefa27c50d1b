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

package rest

import (
	"github.com/jeremyhahn/go-clearinghouse/pkg/health"
	"github.com/jeremyhahn/go-clearinghouse/pkg/visa"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthCheckResponse represents the response for health check endpoints.
type HealthCheckResponse struct {
	Status  health.Status        `json:"status"`
	Message string               `json:"message,omitempty"`
	Version string               `json:"version,omitempty"`
	Checks  []health.CheckResult `json:"checks,omitempty"`
}

// VisasResponse lists the visas carried by a passport.
type VisasResponse struct {
	Visas []*visa.Visa `json:"visas"`
	Count int          `json:"count"`
}

// TokensResponse lists the raw visa tokens carried by a passport.
type TokensResponse struct {
	Tokens []string `json:"tokens"`
	Count  int      `json:"count"`
}

// VisaRequest submits a single visa token for verification.
type VisaRequest struct {
	VisaToken string `json:"visa_token"`
}

// VisaResponse wraps a verified visa.
type VisaResponse struct {
	Visa *visa.Visa `json:"visa"`
}

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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	"github.com/jeremyhahn/go-clearinghouse/pkg/validation"
	"github.com/jeremyhahn/go-clearinghouse/pkg/visa"
)

// maxVisaRequestBytes bounds a POST /v1/visa body.
const maxVisaRequestBytes = validation.MaxTokenLength + 1024

// Resolver is the subset of the clearinghouse used by the handlers.
type Resolver interface {
	GetVisaTokens(ctx context.Context, accessToken, openIDConfigURL string) ([]string, error)
	GetVisaTokensFromOpaqueToken(ctx context.Context, token, userInfoURL string) ([]string, error)
	GetVisas(ctx context.Context, accessToken, openIDConfigURL string) ([]*visa.Visa, error)
	GetVisasFromOpaqueToken(ctx context.Context, token, userInfoURL string) ([]*visa.Visa, error)
	GetVisa(ctx context.Context, visaToken string) (*visa.Visa, bool)
}

// HandlerContext holds the dependencies shared by all handlers.
//
// When UserInfoURL is set, bearer tokens are treated as opaque and sent
// to that endpoint. Otherwise they are verified as JWTs against the broker
// described by OpenIDConfigurationURL.
type HandlerContext struct {
	Resolver               Resolver
	OpenIDConfigurationURL string
	UserInfoURL            string
	HealthChecker          HealthChecker
	Version                string
	logger                 logger.Logger
}

// NewHandlerContext creates a new handler context.
func NewHandlerContext(resolver Resolver, log logger.Logger) *HandlerContext {
	if log == nil {
		log = logger.NewNop()
	}
	return &HandlerContext{
		Resolver: resolver,
		logger:   log,
	}
}

// SetHealthChecker sets the health checker used by the probe handlers.
func (h *HandlerContext) SetHealthChecker(checker HealthChecker) {
	h.HealthChecker = checker
}

// VisasHandler handles GET /v1/visas requests.
func (h *HandlerContext) VisasHandler(w http.ResponseWriter, r *http.Request) {
	bearer, err := bearerToken(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var visas []*visa.Visa
	switch {
	case h.UserInfoURL != "":
		visas, err = h.Resolver.GetVisasFromOpaqueToken(r.Context(), bearer, h.UserInfoURL)
	case h.OpenIDConfigurationURL != "":
		visas, err = h.Resolver.GetVisas(r.Context(), bearer, h.OpenIDConfigurationURL)
	default:
		err = ErrNotConfigured
	}
	if err != nil {
		h.failed(r, "visas", err)
		handleError(w, err)
		return
	}

	writeJSON(w, VisasResponse{Visas: visas, Count: len(visas)}, http.StatusOK)
}

// TokensHandler handles GET /v1/tokens requests.
func (h *HandlerContext) TokensHandler(w http.ResponseWriter, r *http.Request) {
	bearer, err := bearerToken(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var tokens []string
	switch {
	case h.UserInfoURL != "":
		tokens, err = h.Resolver.GetVisaTokensFromOpaqueToken(r.Context(), bearer, h.UserInfoURL)
	case h.OpenIDConfigurationURL != "":
		tokens, err = h.Resolver.GetVisaTokens(r.Context(), bearer, h.OpenIDConfigurationURL)
	default:
		err = ErrNotConfigured
	}
	if err != nil {
		h.failed(r, "tokens", err)
		handleError(w, err)
		return
	}

	writeJSON(w, TokensResponse{Tokens: tokens, Count: len(tokens)}, http.StatusOK)
}

// VisaHandler handles POST /v1/visa requests.
func (h *HandlerContext) VisaHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVisaRequestBytes)

	var req VisaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.VisaToken == "" {
		writeErrorWithMessage(w, ErrInvalidRequest, "visa_token is required", http.StatusBadRequest)
		return
	}

	v, ok := h.Resolver.GetVisa(r.Context(), req.VisaToken)
	if !ok {
		handleError(w, ErrVisaNotFound)
		return
	}

	writeJSON(w, VisaResponse{Visa: v}, http.StatusOK)
}

func (h *HandlerContext) failed(r *http.Request, op string, err error) {
	logger.WarnContext(r.Context(), h.logger, "passport request failed",
		logger.String("operation", op),
		logger.Int("status", mapErrorToStatusCode(err)),
		logger.Error(err))
}

// bearerToken extracts the credential from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingBearer
	}
	if err := validation.ValidateBearer(token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBearer, err)
	}
	return token, nil
}

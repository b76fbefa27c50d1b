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

// Package clearinghouse retrieves and validates GA4GH passports and visas.
//
// A Clearinghouse verifies an access token, calls the issuer's userinfo
// endpoint for the ga4gh_passport_v1 array and verifies each visa token
// against the key set named by its own jku and kid headers. Verification
// keys are held in a bounded jwks.Cache shared by every call.
//
// Failures are reported in two ways. Operations returning a passport or a
// list of visas propagate discovery, transport and access token failures.
// Individual visas that fail verification or schema validation are dropped
// from lists, and single visa operations report them as absent. Dropped
// visas are logged at Warn and recorded with the configured audit adapter;
// ResolveVisas exposes the per token error.
package clearinghouse

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/audit"
	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	adapter "github.com/jeremyhahn/go-clearinghouse/pkg/adapters/metrics"
	chjwt "github.com/jeremyhahn/go-clearinghouse/pkg/encoding/jwt"
	"github.com/jeremyhahn/go-clearinghouse/pkg/jwks"
	"github.com/jeremyhahn/go-clearinghouse/pkg/remote"
	"github.com/jeremyhahn/go-clearinghouse/pkg/validation"
	"github.com/jeremyhahn/go-clearinghouse/pkg/visa"
)

const (
	// PassportClaim is the userinfo field holding visa tokens.
	PassportClaim = "ga4gh_passport_v1"

	userInfoPath = "userinfo"
)

// Flow tag values recorded with visa metrics.
const (
	FlowDiscovery = "discovery"
	FlowPublicKey = "public_key"
	FlowPEM       = "pem"
	FlowOpaque    = "opaque"
	FlowSingle    = "single"
)

// Clearinghouse resolves passports and visas. It is safe for concurrent use.
type Clearinghouse struct {
	remote   *remote.Client
	cache    *jwks.Cache
	verifier *chjwt.Verifier
	logger   logger.Logger
	metrics  adapter.MetricsAdapter
	auditor  audit.AuditAdapter
}

// VisaResult is the outcome of verifying one visa token.
type VisaResult struct {
	Token string
	Visa  *visa.Visa
	Err   error
}

type openIDConfiguration struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// New creates a Clearinghouse. Without WithKeyCache a cache of
// jwks.DefaultCacheSize entries is created and owned by the instance.
func New(opts ...Option) (*Clearinghouse, error) {
	o := &options{
		logger:    logger.NewNop(),
		metrics:   adapter.NewNoOpMetrics(),
		auditor:   audit.NewNoOpAuditAdapter(),
		cacheSize: jwks.DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	remoteOpts := []remote.Option{
		remote.WithHTTPClient(o.httpClient),
		remote.WithRateLimiter(o.limiter),
		remote.WithMetrics(o.metrics),
	}
	if o.userAgent != "" {
		remoteOpts = append(remoteOpts, remote.WithUserAgent(o.userAgent))
	}
	if o.maxBody > 0 {
		remoteOpts = append(remoteOpts, remote.WithMaxBodyBytes(o.maxBody))
	}
	rc := remote.New(remoteOpts...)

	cache := o.cache
	if cache == nil {
		var err error
		cache, err = jwks.NewCache(jwks.NewHTTPSource(rc),
			jwks.WithSize(o.cacheSize),
			jwks.WithLogger(o.logger),
			jwks.WithMetrics(o.metrics))
		if err != nil {
			return nil, fmt.Errorf("clearinghouse: %w", err)
		}
	}

	verifierOpts := []chjwt.VerifierOption{chjwt.WithLeeway(o.leeway)}
	if o.clock != nil {
		verifierOpts = append(verifierOpts, chjwt.WithClock(o.clock))
	}

	return &Clearinghouse{
		remote:   rc,
		cache:    cache,
		verifier: chjwt.NewVerifier(verifierOpts...),
		logger:   o.logger,
		metrics:  o.metrics,
		auditor:  o.auditor,
	}, nil
}

// KeyCache returns the key cache used for visa and discovery keys.
func (c *Clearinghouse) KeyCache() *jwks.Cache {
	return c.cache
}

// Remote returns the HTTP client used for broker requests.
func (c *Clearinghouse) Remote() *remote.Client {
	return c.remote
}

// UserInfoURL derives the userinfo endpoint from an issuer. The path segment
// is appended directly when iss ends in "/" and after a "/" otherwise.
func UserInfoURL(iss string) string {
	if strings.HasSuffix(iss, "/") {
		return iss + userInfoPath
	}
	return iss + "/" + userInfoPath
}

// GetVisaTokens verifies accessToken against the key set advertised by the
// OpenID configuration at openIDConfigURL and returns the raw visa tokens
// from the issuer's userinfo endpoint.
func (c *Clearinghouse) GetVisaTokens(ctx context.Context, accessToken, openIDConfigURL string) ([]string, error) {
	if err := validation.ValidateURL(openIDConfigURL); err != nil {
		return nil, fmt.Errorf("%w: openid configuration: %w", ErrFetch, err)
	}

	var doc openIDConfiguration
	if err := c.remote.GetJSON(ctx, remote.KindOpenIDConfiguration, openIDConfigURL, "", &doc); err != nil {
		return nil, err
	}
	if doc.JWKSURI == "" {
		return nil, fmt.Errorf("%w: %s: no jwks_uri", ErrFetch, openIDConfigURL)
	}

	return c.passportFor(ctx, accessToken, chjwt.JWKSRef(c.cache, doc.JWKSURI))
}

// GetVisaTokensWithPublicKey verifies accessToken with key and returns the
// raw visa tokens from the issuer's userinfo endpoint.
func (c *Clearinghouse) GetVisaTokensWithPublicKey(ctx context.Context, accessToken string, key crypto.PublicKey) ([]string, error) {
	return c.passportFor(ctx, accessToken, chjwt.PublicKeyRef(key))
}

// GetVisaTokensWithPEMPublicKey is GetVisaTokensWithPublicKey with the key
// given as PEM or bare base64 SubjectPublicKeyInfo text.
func (c *Clearinghouse) GetVisaTokensWithPEMPublicKey(ctx context.Context, accessToken, pemText string) ([]string, error) {
	return c.passportFor(ctx, accessToken, chjwt.PEMRef(pemText))
}

// GetVisaTokensFromOpaqueToken calls userInfoURL with token as the bearer
// credential. The token is never decoded or verified.
func (c *Clearinghouse) GetVisaTokensFromOpaqueToken(ctx context.Context, token, userInfoURL string) ([]string, error) {
	if err := validation.ValidateBearer(token); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if err := validation.ValidateURL(userInfoURL); err != nil {
		return nil, fmt.Errorf("%w: userinfo: %w", ErrFetch, err)
	}
	return c.passport(ctx, userInfoURL, token)
}

// GetVisas is GetVisaTokens followed by visa verification. Visas that fail
// are dropped.
func (c *Clearinghouse) GetVisas(ctx context.Context, accessToken, openIDConfigURL string) ([]*visa.Visa, error) {
	tokens, err := c.GetVisaTokens(ctx, accessToken, openIDConfigURL)
	if err != nil {
		return nil, err
	}
	return c.visas(ctx, tokens, FlowDiscovery), nil
}

// GetVisasWithPublicKey is GetVisaTokensWithPublicKey followed by visa
// verification. Each visa is verified with the key named by its own
// headers, not with key.
func (c *Clearinghouse) GetVisasWithPublicKey(ctx context.Context, accessToken string, key crypto.PublicKey) ([]*visa.Visa, error) {
	tokens, err := c.GetVisaTokensWithPublicKey(ctx, accessToken, key)
	if err != nil {
		return nil, err
	}
	return c.visas(ctx, tokens, FlowPublicKey), nil
}

// GetVisasWithPEMPublicKey is GetVisasWithPublicKey with a PEM key.
func (c *Clearinghouse) GetVisasWithPEMPublicKey(ctx context.Context, accessToken, pemText string) ([]*visa.Visa, error) {
	tokens, err := c.GetVisaTokensWithPEMPublicKey(ctx, accessToken, pemText)
	if err != nil {
		return nil, err
	}
	return c.visas(ctx, tokens, FlowPEM), nil
}

// GetVisasFromOpaqueToken is GetVisaTokensFromOpaqueToken followed by visa
// verification.
func (c *Clearinghouse) GetVisasFromOpaqueToken(ctx context.Context, token, userInfoURL string) ([]*visa.Visa, error) {
	tokens, err := c.GetVisaTokensFromOpaqueToken(ctx, token, userInfoURL)
	if err != nil {
		return nil, err
	}
	return c.visas(ctx, tokens, FlowOpaque), nil
}

// GetVisa verifies visaToken with the key named by its jku and kid headers.
// It reports false when the token cannot be validated for any reason.
func (c *Clearinghouse) GetVisa(ctx context.Context, visaToken string) (*visa.Visa, bool) {
	return c.single(ctx, visaToken, chjwt.HeaderRef(c.cache))
}

// GetVisaWithPublicKey verifies visaToken with key.
func (c *Clearinghouse) GetVisaWithPublicKey(ctx context.Context, visaToken string, key crypto.PublicKey) (*visa.Visa, bool) {
	return c.single(ctx, visaToken, chjwt.PublicKeyRef(key))
}

// GetVisaWithPEMPublicKey verifies visaToken with a PEM encoded key.
func (c *Clearinghouse) GetVisaWithPEMPublicKey(ctx context.Context, visaToken, pemText string) (*visa.Visa, bool) {
	return c.single(ctx, visaToken, chjwt.PEMRef(pemText))
}

// ResolveVisas verifies each token with the key named by its own headers
// and returns one result per token, in order.
func (c *Clearinghouse) ResolveVisas(ctx context.Context, visaTokens []string) []VisaResult {
	results := make([]VisaResult, len(visaTokens))
	for i, token := range visaTokens {
		v, err := c.verifyVisa(ctx, token, chjwt.HeaderRef(c.cache))
		results[i] = VisaResult{Token: token, Visa: v, Err: err}
	}
	return results
}

func (c *Clearinghouse) passportFor(ctx context.Context, accessToken string, ref chjwt.KeyRef) ([]string, error) {
	claims, err := c.verify(ctx, accessToken, ref, "access")
	if err != nil {
		return nil, err
	}

	iss := claims.Issuer()
	if iss == "" {
		return nil, fmt.Errorf("%w: access token has no iss claim", ErrMalformedToken)
	}
	return c.passport(ctx, UserInfoURL(iss), accessToken)
}

func (c *Clearinghouse) passport(ctx context.Context, userInfoURL, bearer string) ([]string, error) {
	var doc map[string]json.RawMessage
	if err := c.remote.GetJSON(ctx, remote.KindUserInfo, userInfoURL, bearer, &doc); err != nil {
		return nil, err
	}

	raw, ok := doc[PassportClaim]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return []string{}, nil
	}

	var entries []*string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %s is not an array of strings", ErrFetch, userInfoURL, PassportClaim)
	}

	tokens := make([]string, 0, len(entries))
	for i, e := range entries {
		if e == nil {
			return nil, fmt.Errorf("%w: %s: %s[%d] is null", ErrFetch, userInfoURL, PassportClaim, i)
		}
		tokens = append(tokens, *e)
	}
	return tokens, nil
}

func (c *Clearinghouse) visas(ctx context.Context, tokens []string, flow string) []*visa.Visa {
	out := make([]*visa.Visa, 0, len(tokens))
	for _, token := range tokens {
		v, err := c.verifyVisa(ctx, token, chjwt.HeaderRef(c.cache))
		if err != nil {
			c.drop(ctx, token, flow, err)
			continue
		}
		c.accept(ctx, flow, v)
		out = append(out, v)
	}
	return out
}

func (c *Clearinghouse) single(ctx context.Context, token string, ref chjwt.KeyRef) (*visa.Visa, bool) {
	v, err := c.verifyVisa(ctx, token, ref)
	if err != nil {
		c.drop(ctx, token, FlowSingle, err)
		return nil, false
	}
	c.accept(ctx, FlowSingle, v)
	return v, true
}

func (c *Clearinghouse) verifyVisa(ctx context.Context, token string, ref chjwt.KeyRef) (*visa.Visa, error) {
	claims, err := c.verify(ctx, token, ref, "visa")
	if err != nil {
		return nil, err
	}
	return visa.Decode(claims, claims.Subject())
}

func (c *Clearinghouse) verify(ctx context.Context, token string, ref chjwt.KeyRef, kind string) (chjwt.Claims, error) {
	var claims chjwt.Claims
	err := adapter.Timed(ctx, c.metrics, adapter.MetricVerifyLatency, map[string]string{adapter.TagKind: kind}, func() error {
		var err error
		claims, err = c.verifier.Verify(ctx, token, ref)
		return err
	})

	status := adapter.StatusSuccess
	if err != nil {
		status = adapter.StatusError
	}
	_ = c.metrics.RecordCounter(ctx, adapter.MetricVerifyTotal, map[string]string{
		adapter.TagKind:   kind,
		adapter.TagStatus: status,
	})
	return claims, err
}

func (c *Clearinghouse) accept(ctx context.Context, flow string, v *visa.Visa) {
	_ = c.metrics.RecordCounter(ctx, adapter.MetricVisasAccepted, map[string]string{adapter.TagFlow: flow})
	c.record(ctx, &audit.Event{
		EventType: audit.EventVisaAccepted,
		Outcome:   audit.OutcomeAccepted,
		Flow:      flow,
		Subject:   v.Subject(),
		VisaType:  v.TypeName(),
		Value:     v.Value(),
		Source:    v.Source(),
	})
}

func (c *Clearinghouse) drop(ctx context.Context, token, flow string, err error) {
	reason := Reason(err)
	_ = c.metrics.RecordCounter(ctx, adapter.MetricVisasDropped, map[string]string{
		adapter.TagFlow:   flow,
		adapter.TagReason: reason,
	})

	event := &audit.Event{
		EventType: audit.EventVisaRejected,
		Outcome:   audit.OutcomeRejected,
		Flow:      flow,
		Reason:    reason,
		Error:     err.Error(),
	}
	fields := []logger.Field{
		logger.String("flow", flow),
		logger.String("reason", reason),
		logger.Error(err),
	}
	if h, herr := chjwt.DecodeHeader(token); herr == nil {
		event.KeyID = validation.SanitizeForLog(h.KeyID)
		event.JWKSURL = validation.SanitizeForLog(h.JWKSURL)
		fields = append(fields,
			logger.String("kid", event.KeyID),
			logger.String("jku", event.JWKSURL))
	}
	c.record(ctx, event)
	logger.WarnContext(ctx, c.logger, "clearinghouse: visa rejected", fields...)
}

func (c *Clearinghouse) record(ctx context.Context, event *audit.Event) {
	if err := c.auditor.Record(ctx, event); err != nil {
		logger.WarnContext(ctx, c.logger, "clearinghouse: audit record failed", logger.Error(err))
	}
}

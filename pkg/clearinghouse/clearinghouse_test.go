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

package clearinghouse_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/audit"
	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	adapter "github.com/jeremyhahn/go-clearinghouse/pkg/adapters/metrics"
	"github.com/jeremyhahn/go-clearinghouse/pkg/clearinghouse"
	"github.com/jeremyhahn/go-clearinghouse/pkg/correlation"
	"github.com/jeremyhahn/go-clearinghouse/pkg/encoding"
	chjwt "github.com/jeremyhahn/go-clearinghouse/pkg/encoding/jwt"
	"github.com/jeremyhahn/go-clearinghouse/pkg/encoding/jwk"
	"github.com/jeremyhahn/go-clearinghouse/pkg/jwks"
	"github.com/jeremyhahn/go-clearinghouse/pkg/visa"
)

const (
	testKID     = "rsa1"
	testSubject = "test@elixir-europe.org"
)

var (
	keysOnce  sync.Once
	issuerKey *rsa.PrivateKey
	rogueKey  *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if issuerKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
		if rogueKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return issuerKey, rogueKey
}

// broker is an httptest OIDC provider publishing one RSA key under rsa1 and
// serving a configurable passport from its userinfo endpoint.
type broker struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	// issuerSuffix is appended to the server URL to form iss
	issuerSuffix string

	mu          sync.Mutex
	passport    any
	lastBearer  string
	configFail  int
	jwksBody    string
	userInfoErr int

	configHits   atomic.Int32
	jwksHits     atomic.Int32
	userInfoHits atomic.Int32
}

func newBroker(t *testing.T) *broker {
	t.Helper()
	key, _ := testKeys(t)
	b := &broker{key: key, issuerSuffix: "/oidc/"}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		b.configHits.Add(1)
		b.mu.Lock()
		fail := b.configFail
		b.mu.Unlock()
		if fail != 0 {
			w.WriteHeader(fail)
			return
		}
		writeJSON(w, map[string]string{
			"issuer":   b.issuer(),
			"jwks_uri": b.jwksURL(),
		})
	})
	mux.HandleFunc("/oidc/jwk", func(w http.ResponseWriter, r *http.Request) {
		b.jwksHits.Add(1)
		b.mu.Lock()
		body := b.jwksBody
		b.mu.Unlock()
		if body != "" {
			_, _ = w.Write([]byte(body))
			return
		}
		entry, err := jwk.FromPublicKey(&b.key.PublicKey, testKID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, jwk.Set{Keys: []jwk.JWK{*entry}})
	})
	mux.HandleFunc("/oidc/userinfo", func(w http.ResponseWriter, r *http.Request) {
		b.userInfoHits.Add(1)
		b.mu.Lock()
		b.lastBearer = r.Header.Get("Authorization")
		status := b.userInfoErr
		passport := b.passport
		b.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if passport == nil {
			writeJSON(w, map[string]any{"sub": testSubject})
			return
		}
		writeJSON(w, map[string]any{"sub": testSubject, clearinghouse.PassportClaim: passport})
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (b *broker) jwksURL() string     { return b.srv.URL + "/oidc/jwk" }
func (b *broker) configURL() string   { return b.srv.URL + "/.well-known/openid-configuration" }
func (b *broker) userInfoURL() string { return b.srv.URL + "/oidc/userinfo" }

func (b *broker) issuer() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.srv.URL + b.issuerSuffix
}

// set mutates broker behaviour under its lock.
func (b *broker) set(fn func(*broker)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *broker) setPassport(p any) {
	b.set(func(b *broker) { b.passport = p })
}

func (b *broker) bearer() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastBearer
}

func (b *broker) accessToken(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	now := time.Now()
	token, err := chjwt.NewSigner().SignWithHeaders(key, jwt.MapClaims{
		"iss": b.issuer(),
		"sub": testSubject,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}, testKID, "")
	require.NoError(t, err)
	return token
}

func (b *broker) visaToken(t *testing.T, key *rsa.PrivateKey, kid string, v *visa.Visa) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": b.issuer(),
		"sub": testSubject,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if v != nil {
		claims[visa.ClaimName] = v.Claim()
	}
	token, err := chjwt.NewSigner().SignWithHeaders(key, claims, kid, b.jwksURL())
	require.NoError(t, err)
	return token
}

func elixirVisa(t *testing.T) *visa.Visa {
	t.Helper()
	v, err := visa.New(visa.Fields{
		Subject:  testSubject,
		Type:     "AffiliationAndRole",
		Asserted: 1583757401,
		Value:    "affiliate@google.com",
		Source:   "https://login.elixir-czech.org/google-idp/",
		By:       "system",
	})
	require.NoError(t, err)
	return v
}

func newClearinghouse(t *testing.T, opts ...clearinghouse.Option) *clearinghouse.Clearinghouse {
	t.Helper()
	ch, err := clearinghouse.New(opts...)
	require.NoError(t, err)
	return ch
}

func TestGetVisas_Discovery(t *testing.T) {
	b := newBroker(t)
	key, _ := testKeys(t)
	b.setPassport([]string{b.visaToken(t, key, testKID, elixirVisa(t))})

	access := b.accessToken(t, key)
	ch := newClearinghouse(t)

	visas, err := ch.GetVisas(context.Background(), access, b.configURL())
	require.NoError(t, err)
	require.Len(t, visas, 1)
	assert.Equal(t, testSubject, visas[0].Subject())
	assert.Equal(t, elixirVisa(t), visas[0])
	assert.Equal(t, "Bearer "+access, b.bearer())
	assert.Equal(t, int32(1), b.configHits.Load())
}

func TestGetVisa_RoundTrip(t *testing.T) {
	b := newBroker(t)
	key, _ := testKeys(t)
	original := elixirVisa(t)

	ch := newClearinghouse(t)
	got, ok := ch.GetVisa(context.Background(), b.visaToken(t, key, testKID, original))
	require.True(t, ok)
	assert.Equal(t, original, got)
	assert.Nil(t, got.Conditions())
	assert.Equal(t, visa.TypeAffiliationAndRole, got.Type())
	assert.Equal(t, visa.BySystem, got.By())
}

func TestGetVisa_SubjectFromToken(t *testing.T) {
	b := newBroker(t)
	key, _ := testKeys(t)
	v, err := visa.New(visa.Fields{Type: "ResearcherStatus", Asserted: 1, Value: "v", Source: "s"})
	require.NoError(t, err)

	got, ok := newClearinghouse(t).GetVisa(context.Background(), b.visaToken(t, key, testKID, v))
	require.True(t, ok)
	assert.Equal(t, testSubject, got.Subject())
}

func TestGetVisas_DropsInvalidEntries(t *testing.T) {
	b := newBroker(t)
	key, rogue := testKeys(t)

	second, err := visa.New(visa.Fields{
		Type:     "AcceptedTermsAndPolicies",
		Asserted: 1583757402,
		Value:    "https://doi.org/10.1038/s41431-018-0219-y",
		Source:   "https://login.elixir-czech.org/",
		By:       "self",
	})
	require.NoError(t, err)

	b.setPassport([]string{
		b.visaToken(t, key, testKID, elixirVisa(t)),
		b.visaToken(t, rogue, testKID, elixirVisa(t)),
		"not-a-jwt",
		b.visaToken(t, key, testKID, nil),
		b.visaToken(t, key, "unknown-kid", elixirVisa(t)),
		b.visaToken(t, key, testKID, second),
	})

	core, logs := observer.New(zapcore.WarnLevel)
	mem := adapter.NewMemoryMetrics()
	ch := newClearinghouse(t,
		clearinghouse.WithLogger(logger.NewZapAdapter(&logger.ZapConfig{Logger: zap.New(core)})),
		clearinghouse.WithMetrics(mem))

	visas, err := ch.GetVisas(context.Background(), b.accessToken(t, key), b.configURL())
	require.NoError(t, err)
	require.Len(t, visas, 2)
	assert.Equal(t, "AffiliationAndRole", visas[0].TypeName())
	assert.Equal(t, "AcceptedTermsAndPolicies", visas[1].TypeName())

	assert.Equal(t, int64(2), mem.Counter(adapter.MetricVisasAccepted))
	assert.Equal(t, int64(4), mem.Counter(adapter.MetricVisasDropped))
	for _, reason := range []string{
		clearinghouse.ReasonSignature,
		clearinghouse.ReasonMalformed,
		clearinghouse.ReasonMissingClaim,
		clearinghouse.ReasonKeyNotFound,
	} {
		assert.Equal(t, int64(1), mem.CounterWith(adapter.MetricVisasDropped, map[string]string{
			adapter.TagFlow:   clearinghouse.FlowDiscovery,
			adapter.TagReason: reason,
		}), reason)
	}

	entries := logs.FilterMessage("clearinghouse: visa rejected").All()
	require.Len(t, entries, 4)
	assert.Equal(t, clearinghouse.ReasonSignature, entries[0].ContextMap()["reason"])
	assert.Equal(t, testKID, entries[0].ContextMap()["kid"])
}

func TestGetVisas_AuditTrail(t *testing.T) {
	b := newBroker(t)
	key, rogue := testKeys(t)
	b.setPassport([]string{
		b.visaToken(t, key, testKID, elixirVisa(t)),
		b.visaToken(t, rogue, testKID, elixirVisa(t)),
	})

	trail := audit.NewMemoryAuditAdapter(16)
	ch := newClearinghouse(t, clearinghouse.WithAuditor(trail))

	ctx := correlation.WithCorrelationID(context.Background(), "req-42")
	_, err := ch.GetVisas(ctx, b.accessToken(t, key), b.configURL())
	require.NoError(t, err)

	accepted := trail.Events(&audit.EventQuery{EventTypes: []audit.EventType{audit.EventVisaAccepted}})
	require.Len(t, accepted, 1)
	assert.Equal(t, audit.OutcomeAccepted, accepted[0].Outcome)
	assert.Equal(t, clearinghouse.FlowDiscovery, accepted[0].Flow)
	assert.Equal(t, testSubject, accepted[0].Subject)
	assert.Equal(t, "AffiliationAndRole", accepted[0].VisaType)
	assert.Equal(t, "affiliate@google.com", accepted[0].Value)
	assert.Equal(t, "req-42", accepted[0].CorrelationID)

	rejected := trail.Events(&audit.EventQuery{EventTypes: []audit.EventType{audit.EventVisaRejected}})
	require.Len(t, rejected, 1)
	assert.Equal(t, clearinghouse.ReasonSignature, rejected[0].Reason)
	assert.Equal(t, testKID, rejected[0].KeyID)
	assert.Equal(t, b.jwksURL(), rejected[0].JWKSURL)
	assert.Empty(t, rejected[0].Subject)
	assert.NotEmpty(t, rejected[0].Error)

	_, ok := ch.GetVisa(context.Background(), "not-a-jwt")
	assert.False(t, ok)
	single := trail.Events(&audit.EventQuery{Flow: clearinghouse.FlowSingle})
	require.Len(t, single, 1)
	assert.Equal(t, clearinghouse.ReasonMalformed, single[0].Reason)
	assert.Empty(t, single[0].KeyID)
}

func TestGetVisas_EmptyPassport(t *testing.T) {
	b := newBroker(t)
	key, _ := testKeys(t)
	ch := newClearinghouse(t)

	visas, err := ch.GetVisas(context.Background(), b.accessToken(t, key), b.configURL())
	require.NoError(t, err)
	assert.NotNil(t, visas)
	assert.Empty(t, visas)

	b.setPassport([]string{})
	tokens, err := ch.GetVisaTokens(context.Background(), b.accessToken(t, key), b.configURL())
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestGetVisaTokens_ReusesCachedKeys(t *testing.T) {
	b := newBroker(t)
	key, _ := testKeys(t)
	b.setPassport([]string{
		b.visaToken(t, key, testKID, elixirVisa(t)),
		b.visaToken(t, key, testKID, elixirVisa(t)),
	})
	ch := newClearinghouse(t)

	for i := 0; i < 3; i++ {
		visas, err := ch.GetVisas(context.Background(), b.accessToken(t, key), b.configURL())
		require.NoError(t, err)
		require.Len(t, visas, 2)
	}
	assert.Equal(t, int32(1), b.jwksHits.Load())
	assert.True(t, ch.KeyCache().Contains(b.jwksURL(), testKID))
	assert.Equal(t, 1, ch.KeyCache().Len())
}

func TestGetVisaTokens_SharedCache(t *testing.T) {
	b := newBroker(t)
	key, _ := testKeys(t)
	b.setPassport([]string{b.visaToken(t, key, testKID, elixirVisa(t))})

	cache, err := jwks.NewCache(jwks.SourceFunc(func(ctx context.Context, url string) (*jwk.Set, error) {
		entry, err := jwk.FromPublicKey(&key.PublicKey, testKID)
		if err != nil {
			return nil, err
		}
		return &jwk.Set{Keys: []jwk.JWK{*entry}}, nil
	}), jwks.WithSize(5))
	require.NoError(t, err)

	ch := newClearinghouse(t, clearinghouse.WithKeyCache(cache))
	visas, err := ch.GetVisas(context.Background(), b.accessToken(t, key), b.configURL())
	require.NoError(t, err)
	require.Len(t, visas, 1)

	assert.Same(t, cache, ch.KeyCache())
	assert.Equal(t, int32(0), b.jwksHits.Load())
	assert.Equal(t, 5, cache.Capacity())
}

func TestGetVisaTokens_IssuerWithoutTrailingSlash(t *testing.T) {
	b := newBroker(t)
	b.set(func(b *broker) { b.issuerSuffix = "/oidc" })
	key, _ := testKeys(t)
	token := b.visaToken(t, key, testKID, elixirVisa(t))
	b.setPassport([]string{token})

	tokens, err := newClearinghouse(t).GetVisaTokens(context.Background(), b.accessToken(t, key), b.configURL())
	require.NoError(t, err)
	assert.Equal(t, []string{token}, tokens)
	assert.Equal(t, int32(1), b.userInfoHits.Load())
}

func TestGetVisaTokens_AccessTokenFailures(t *testing.T) {
	b := newBroker(t)
	key, rogue := testKeys(t)
	ch := newClearinghouse(t)
	ctx := context.Background()

	_, err := ch.GetVisaTokens(ctx, b.accessToken(t, rogue), b.configURL())
	assert.ErrorIs(t, err, clearinghouse.ErrSignatureInvalid)

	_, err = ch.GetVisaTokens(ctx, "not-a-jwt", b.configURL())
	assert.ErrorIs(t, err, clearinghouse.ErrMalformedToken)

	noKid, err := chjwt.NewSigner().Sign(key, jwt.MapClaims{"iss": b.issuer(), "exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)
	_, err = ch.GetVisaTokens(ctx, noKid, b.configURL())
	assert.ErrorIs(t, err, clearinghouse.ErrKeyResolutionFailed)

	expired, err := chjwt.NewSigner().SignWithHeaders(key, jwt.MapClaims{
		"iss": b.issuer(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}, testKID, "")
	require.NoError(t, err)
	_, err = ch.GetVisaTokens(ctx, expired, b.configURL())
	assert.ErrorIs(t, err, clearinghouse.ErrSignatureInvalid)
	assert.True(t, chjwt.IsExpired(err))

	noIss, err := chjwt.NewSigner().SignWithHeaders(key, jwt.MapClaims{
		"sub": testSubject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testKID, "")
	require.NoError(t, err)
	_, err = ch.GetVisaTokens(ctx, noIss, b.configURL())
	assert.ErrorIs(t, err, clearinghouse.ErrMalformedToken)

	assert.Equal(t, int32(0), b.userInfoHits.Load())
}

func TestGetVisaTokens_Leeway(t *testing.T) {
	b := newBroker(t)
	key, _ := testKeys(t)
	token, err := chjwt.NewSigner().SignWithHeaders(key, jwt.MapClaims{
		"iss": b.issuer(),
		"exp": time.Now().Add(-30 * time.Second).Unix(),
	}, testKID, "")
	require.NoError(t, err)

	_, err = newClearinghouse(t).GetVisaTokens(context.Background(), token, b.configURL())
	assert.ErrorIs(t, err, clearinghouse.ErrSignatureInvalid)

	_, err = newClearinghouse(t, clearinghouse.WithLeeway(time.Minute)).GetVisaTokens(context.Background(), token, b.configURL())
	assert.NoError(t, err)
}

func TestGetVisaTokens_DiscoveryFailures(t *testing.T) {
	key, _ := testKeys(t)
	ctx := context.Background()

	t.Run("configuration error status", func(t *testing.T) {
		b := newBroker(t)
		b.set(func(b *broker) { b.configFail = http.StatusInternalServerError })
		_, err := newClearinghouse(t).GetVisas(ctx, b.accessToken(t, key), b.configURL())
		assert.ErrorIs(t, err, clearinghouse.ErrFetch)
	})

	t.Run("invalid configuration URL", func(t *testing.T) {
		b := newBroker(t)
		_, err := newClearinghouse(t).GetVisaTokens(ctx, b.accessToken(t, key), "not a url")
		assert.ErrorIs(t, err, clearinghouse.ErrFetch)
	})

	t.Run("malformed key set", func(t *testing.T) {
		b := newBroker(t)
		b.set(func(b *broker) { b.jwksBody = "{not json" })
		_, err := newClearinghouse(t).GetVisaTokens(ctx, b.accessToken(t, key), b.configURL())
		assert.ErrorIs(t, err, clearinghouse.ErrKeyResolutionFailed)
		assert.ErrorIs(t, err, clearinghouse.ErrFetch)
	})

	t.Run("key not published", func(t *testing.T) {
		b := newBroker(t)
		b.set(func(b *broker) { b.jwksBody = `{"keys":[]}` })
		_, err := newClearinghouse(t).GetVisaTokens(ctx, b.accessToken(t, key), b.configURL())
		assert.ErrorIs(t, err, clearinghouse.ErrKeyNotFound)
	})

	t.Run("userinfo error status", func(t *testing.T) {
		b := newBroker(t)
		b.set(func(b *broker) { b.userInfoErr = http.StatusUnauthorized })
		_, err := newClearinghouse(t).GetVisas(ctx, b.accessToken(t, key), b.configURL())
		assert.ErrorIs(t, err, clearinghouse.ErrFetch)
	})
}

func TestGetVisaTokens_PassportShape(t *testing.T) {
	key, _ := testKeys(t)

	tests := []struct {
		name     string
		passport any
		wantErr  bool
	}{
		{"string instead of array", "eyJ.eyJ.sig", true},
		{"numeric entry", []any{"a.b.c", 5}, true},
		{"null entry", []any{"a.b.c", nil}, true},
		{"object", map[string]any{"a": "b"}, true},
		{"strings", []any{"a.b.c", "d.e.f"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBroker(t)
			b.setPassport(tt.passport)
			tokens, err := newClearinghouse(t).GetVisaTokensWithPublicKey(context.Background(), b.accessToken(t, key), &key.PublicKey)
			if tt.wantErr {
				assert.ErrorIs(t, err, clearinghouse.ErrFetch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"a.b.c", "d.e.f"}, tokens)
		})
	}
}

func TestGetVisasWithPublicKey(t *testing.T) {
	b := newBroker(t)
	key, rogue := testKeys(t)
	b.setPassport([]string{b.visaToken(t, key, testKID, elixirVisa(t))})
	ch := newClearinghouse(t)
	ctx := context.Background()

	visas, err := ch.GetVisasWithPublicKey(ctx, b.accessToken(t, key), &key.PublicKey)
	require.NoError(t, err)
	require.Len(t, visas, 1)
	assert.Equal(t, int32(0), b.configHits.Load())

	// Visas are verified with their own jku, not the access token key.
	visas, err = ch.GetVisasWithPublicKey(ctx, b.accessToken(t, rogue), &rogue.PublicKey)
	require.NoError(t, err)
	assert.Len(t, visas, 1)

	_, err = ch.GetVisasWithPublicKey(ctx, b.accessToken(t, key), &rogue.PublicKey)
	assert.ErrorIs(t, err, clearinghouse.ErrSignatureInvalid)

	_, err = ch.GetVisasWithPublicKey(ctx, b.accessToken(t, key), "not a key")
	assert.ErrorIs(t, err, clearinghouse.ErrKeyResolutionFailed)
	assert.ErrorIs(t, err, clearinghouse.ErrInvalidKey)
}

func TestGetVisasWithPEMPublicKey(t *testing.T) {
	b := newBroker(t)
	key, _ := testKeys(t)
	b.setPassport([]string{b.visaToken(t, key, testKID, elixirVisa(t))})

	pemBytes, err := encoding.EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)

	ch := newClearinghouse(t)
	visas, err := ch.GetVisasWithPEMPublicKey(context.Background(), b.accessToken(t, key), string(pemBytes))
	require.NoError(t, err)
	require.Len(t, visas, 1)

	tokens, err := ch.GetVisaTokensWithPEMPublicKey(context.Background(), b.accessToken(t, key), string(pemBytes))
	require.NoError(t, err)
	assert.Len(t, tokens, 1)

	_, err = ch.GetVisasWithPEMPublicKey(context.Background(), b.accessToken(t, key), "-----BEGIN PUBLIC KEY-----\nnope\n-----END PUBLIC KEY-----")
	assert.ErrorIs(t, err, clearinghouse.ErrInvalidKey)
}

func TestGetVisaTokensFromOpaqueToken(t *testing.T) {
	b := newBroker(t)
	b.setPassport([]string{"eyJhbGciOiJSUzI1NiJ9.e30.c2ln"})

	ch := newClearinghouse(t)
	tokens, err := ch.GetVisaTokensFromOpaqueToken(context.Background(), "this-is-not-a-jwt", b.userInfoURL())
	require.NoError(t, err)
	assert.Equal(t, []string{"eyJhbGciOiJSUzI1NiJ9.e30.c2ln"}, tokens)
	assert.Equal(t, "Bearer this-is-not-a-jwt", b.bearer())
	assert.Equal(t, int32(0), b.jwksHits.Load())
	assert.Equal(t, int32(0), b.configHits.Load())

	hits := b.userInfoHits.Load()
	for _, bad := range []string{"", "two words", "line\r\nX-Injected: 1"} {
		_, err = ch.GetVisaTokensFromOpaqueToken(context.Background(), bad, b.userInfoURL())
		assert.ErrorIs(t, err, clearinghouse.ErrMalformedToken, "%q", bad)
	}
	assert.Equal(t, hits, b.userInfoHits.Load(), "unsendable bearer must not reach userinfo")

	_, err = ch.GetVisaTokensFromOpaqueToken(context.Background(), "token", "ftp://example.org/userinfo")
	assert.ErrorIs(t, err, clearinghouse.ErrFetch)
}

func TestGetVisasFromOpaqueToken(t *testing.T) {
	b := newBroker(t)
	key, _ := testKeys(t)
	b.setPassport([]string{
		b.visaToken(t, key, testKID, elixirVisa(t)),
		"garbage",
	})

	visas, err := newClearinghouse(t).GetVisasFromOpaqueToken(context.Background(), "opaque", b.userInfoURL())
	require.NoError(t, err)
	require.Len(t, visas, 1)
	assert.Equal(t, elixirVisa(t), visas[0])
}

func TestGetVisaWithKey(t *testing.T) {
	b := newBroker(t)
	key, rogue := testKeys(t)
	token := b.visaToken(t, key, testKID, elixirVisa(t))
	ch := newClearinghouse(t)
	ctx := context.Background()

	v, ok := ch.GetVisaWithPublicKey(ctx, token, &key.PublicKey)
	require.True(t, ok)
	assert.Equal(t, elixirVisa(t), v)

	v, ok = ch.GetVisaWithPublicKey(ctx, token, &rogue.PublicKey)
	assert.False(t, ok)
	assert.Nil(t, v)

	pemBytes, err := encoding.EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	_, ok = ch.GetVisaWithPEMPublicKey(ctx, token, string(pemBytes))
	assert.True(t, ok)

	_, ok = ch.GetVisaWithPEMPublicKey(ctx, token, "garbage")
	assert.False(t, ok)

	// Explicit keys never touch the network.
	assert.Equal(t, int32(0), b.jwksHits.Load())
}

func TestGetVisa_Absent(t *testing.T) {
	b := newBroker(t)
	key, rogue := testKeys(t)
	ch := newClearinghouse(t)
	ctx := context.Background()

	for name, token := range map[string]string{
		"malformed":     "a.b",
		"bad signature": b.visaToken(t, rogue, testKID, elixirVisa(t)),
		"no visa claim": b.visaToken(t, key, testKID, nil),
		"unknown kid":   b.visaToken(t, key, "nope", elixirVisa(t)),
	} {
		v, ok := ch.GetVisa(ctx, token)
		assert.False(t, ok, name)
		assert.Nil(t, v, name)
	}
}

func TestResolveVisas(t *testing.T) {
	b := newBroker(t)
	key, rogue := testKeys(t)
	good := b.visaToken(t, key, testKID, elixirVisa(t))
	bad := b.visaToken(t, rogue, testKID, elixirVisa(t))

	results := newClearinghouse(t).ResolveVisas(context.Background(), []string{bad, good, "x"})
	require.Len(t, results, 3)

	assert.Equal(t, bad, results[0].Token)
	assert.Nil(t, results[0].Visa)
	assert.ErrorIs(t, results[0].Err, clearinghouse.ErrSignatureInvalid)

	assert.NoError(t, results[1].Err)
	assert.Equal(t, elixirVisa(t), results[1].Visa)

	assert.ErrorIs(t, results[2].Err, clearinghouse.ErrMalformedToken)
	assert.Equal(t, clearinghouse.ReasonMalformed, clearinghouse.Reason(results[2].Err))
}

func TestNew_InvalidCacheSize(t *testing.T) {
	_, err := clearinghouse.New(clearinghouse.WithCacheSize(0))
	assert.Error(t, err)
}

func TestUserInfoURL(t *testing.T) {
	tests := []struct {
		iss  string
		want string
	}{
		{"https://login.elixir-czech.org/oidc/", "https://login.elixir-czech.org/oidc/userinfo"},
		{"https://login.elixir-czech.org/oidc", "https://login.elixir-czech.org/oidc/userinfo"},
		{"https://example.org", "https://example.org/userinfo"},
		{"https://example.org/", "https://example.org/userinfo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clearinghouse.UserInfoURL(tt.iss), tt.iss)
	}
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", clearinghouse.Reason(nil))
	assert.Equal(t, clearinghouse.ReasonSchema, clearinghouse.Reason(visa.ErrSchemaInvalid))
	assert.Equal(t, clearinghouse.ReasonCanceled, clearinghouse.Reason(context.Canceled))
	assert.Equal(t, clearinghouse.ReasonUnknown, clearinghouse.Reason(assert.AnError))
	assert.Equal(t, clearinghouse.ReasonKeyFetch, clearinghouse.Reason(
		fmt.Errorf("%w: %w", clearinghouse.ErrKeyResolutionFailed, clearinghouse.ErrFetch)))
}

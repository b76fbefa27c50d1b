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

package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	chjwt "github.com/jeremyhahn/go-clearinghouse/pkg/encoding/jwt"
	"github.com/jeremyhahn/go-clearinghouse/pkg/encoding/jwk"
)

// BrokerKeyID is the kid under which a Broker publishes its signing key.
const BrokerKeyID = "rsa1"

// Broker is an in-process passport broker. It serves an OpenID
// configuration, a JWKS with one RSA key and a userinfo endpoint returning
// the configured passport.
type Broker struct {
	Server *httptest.Server
	Key    *rsa.PrivateKey

	mu       sync.Mutex
	passport []string
	bearer   string

	JWKSHits     atomic.Int32
	UserInfoHits atomic.Int32
}

// NewBroker starts a Broker. Callers must Close it.
func NewBroker() (*Broker, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate broker key: %w", err)
	}
	b := &Broker{Key: key}

	entry, err := jwk.FromPublicKey(&key.PublicKey, BrokerKeyID)
	if err != nil {
		return nil, err
	}
	keySet, err := json.Marshal(jwk.Set{Keys: []jwk.JWK{*entry}})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"issuer":            b.Issuer(),
			"jwks_uri":          b.JWKSURL(),
			"userinfo_endpoint": b.UserInfoURL(),
		})
	})
	mux.HandleFunc("/oidc/jwk", func(w http.ResponseWriter, r *http.Request) {
		b.JWKSHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keySet)
	})
	mux.HandleFunc("/oidc/userinfo", func(w http.ResponseWriter, r *http.Request) {
		b.UserInfoHits.Add(1)
		b.mu.Lock()
		b.bearer = r.Header.Get("Authorization")
		passport := append([]string{}, b.passport...)
		b.mu.Unlock()
		writeJSON(w, map[string]any{"ga4gh_passport_v1": passport})
	})

	b.Server = httptest.NewServer(mux)
	return b, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Close shuts the broker down.
func (b *Broker) Close() { b.Server.Close() }

func (b *Broker) Issuer() string      { return b.Server.URL + "/oidc/" }
func (b *Broker) JWKSURL() string     { return b.Server.URL + "/oidc/jwk" }
func (b *Broker) UserInfoURL() string { return b.Server.URL + "/oidc/userinfo" }
func (b *Broker) ConfigURL() string {
	return b.Server.URL + "/.well-known/openid-configuration"
}

// SetPassport replaces the visa tokens served from userinfo.
func (b *Broker) SetPassport(tokens ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.passport = tokens
}

// LastBearer returns the Authorization header of the last userinfo call.
func (b *Broker) LastBearer() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bearer
}

// AccessToken signs an access token for subject valid for one hour.
func (b *Broker) AccessToken(subject string) (string, error) {
	return chjwt.NewSigner().SignWithHeaders(b.Key, b.claims(subject), BrokerKeyID, "")
}

// VisaToken signs a visa token carrying claim as ga4gh_visa_v1, with jku
// pointing at the broker's key set.
func (b *Broker) VisaToken(subject string, claim map[string]any) (string, error) {
	claims := b.claims(subject)
	claims["ga4gh_visa_v1"] = claim
	return chjwt.NewSigner().SignWithHeaders(b.Key, claims, BrokerKeyID, b.JWKSURL())
}

func (b *Broker) claims(subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": b.Issuer(),
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

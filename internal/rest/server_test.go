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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/go-clearinghouse/internal/testutil"
	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	"github.com/jeremyhahn/go-clearinghouse/pkg/clearinghouse"
	"github.com/jeremyhahn/go-clearinghouse/pkg/correlation"
	"github.com/jeremyhahn/go-clearinghouse/pkg/health"
	"github.com/jeremyhahn/go-clearinghouse/pkg/metrics"
	"github.com/jeremyhahn/go-clearinghouse/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSubject = "test@elixir-europe.org"

func affiliationClaim() map[string]any {
	return map[string]any{
		"type":     "AffiliationAndRole",
		"asserted": 1583757401,
		"value":    "faculty@elixir-europe.org",
		"source":   "https://login.elixir-czech.org/google-idp/",
		"by":       "system",
	}
}

type fixture struct {
	broker *testutil.Broker
	ch     *clearinghouse.Clearinghouse
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T, mutate func(*Config, *testutil.Broker)) *fixture {
	t.Helper()

	broker, err := testutil.NewBroker()
	require.NoError(t, err)
	t.Cleanup(broker.Close)

	ch, err := clearinghouse.New()
	require.NoError(t, err)

	cfg := &Config{
		Resolver:               ch,
		OpenIDConfigurationURL: broker.ConfigURL(),
		Version:                "1.2.3",
		Logger:                 logger.NewNop(),
	}
	if mutate != nil {
		mutate(cfg, broker)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{broker: broker, ch: ch, server: srv, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestNewServer_Validation(t *testing.T) {
	ch, err := clearinghouse.New()
	require.NoError(t, err)

	_, err = NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer(&Config{OpenIDConfigurationURL: "https://broker.example/.well-known/openid-configuration"})
	assert.ErrorContains(t, err, "resolver")

	_, err = NewServer(&Config{Resolver: ch})
	assert.ErrorContains(t, err, "userinfo URL")
}

func TestNewServer_Defaults(t *testing.T) {
	ch, err := clearinghouse.New()
	require.NoError(t, err)

	cfg := &Config{Resolver: ch, UserInfoURL: "https://broker.example/oidc/userinfo"}
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	assert.Equal(t, DefaultAddress, srv.Addr())
	assert.Equal(t, "dev", cfg.Version)
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
}

func TestVisasEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	good, err := f.broker.VisaToken(testSubject, affiliationClaim())
	require.NoError(t, err)
	f.broker.SetPassport(good, "not-a-jwt")

	access, err := f.broker.AccessToken(testSubject)
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/v1/visas", access, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Visas []map[string]any `json:"visas"`
		Count int              `json:"count"`
	}
	decode(t, resp, &body)

	require.Equal(t, 1, body.Count, "the malformed entry is dropped")
	require.Len(t, body.Visas, 1)
	assert.Equal(t, "AffiliationAndRole", body.Visas[0]["type"])
	assert.Equal(t, "faculty@elixir-europe.org", body.Visas[0]["value"])
	assert.Equal(t, "system", body.Visas[0]["by"])
	assert.Equal(t, testSubject, body.Visas[0]["sub"])
	assert.Equal(t, "Bearer "+access, f.broker.LastBearer())
}

func TestVisasEndpoint_EmptyPassport(t *testing.T) {
	f := newFixture(t, nil)

	access, err := f.broker.AccessToken(testSubject)
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/v1/visas", access, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body VisasResponse
	decode(t, resp, &body)
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Visas)
}

func TestVisasEndpoint_Unauthorized(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"malformed token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, f.http.URL+"/v1/visas", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
		})
	}

	assert.Zero(t, f.broker.UserInfoHits.Load(), "rejected access tokens never reach userinfo")
}

func TestVisasEndpoint_BrokerUnavailable(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL + "/.well-known/openid-configuration"
	down.Close()

	f := newFixture(t, func(cfg *Config, _ *testutil.Broker) {
		cfg.OpenIDConfigurationURL = downURL
	})

	resp := f.do(t, http.MethodGet, "/v1/visas", "header.payload.signature", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestVisasEndpoint_OpaqueFlow(t *testing.T) {
	f := newFixture(t, func(cfg *Config, broker *testutil.Broker) {
		cfg.OpenIDConfigurationURL = ""
		cfg.UserInfoURL = broker.UserInfoURL()
	})

	good, err := f.broker.VisaToken(testSubject, affiliationClaim())
	require.NoError(t, err)
	f.broker.SetPassport(good)

	resp := f.do(t, http.MethodGet, "/v1/visas", "opaque-access-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body VisasResponse
	decode(t, resp, &body)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Bearer opaque-access-token", f.broker.LastBearer())
}

func TestTokensEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	good, err := f.broker.VisaToken(testSubject, affiliationClaim())
	require.NoError(t, err)
	f.broker.SetPassport(good, "not-a-jwt")

	access, err := f.broker.AccessToken(testSubject)
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/v1/tokens", access, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body TokensResponse
	decode(t, resp, &body)
	assert.Equal(t, []string{good, "not-a-jwt"}, body.Tokens, "tokens are returned unverified and in order")
	assert.Equal(t, 2, body.Count)
}

func TestVisaEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	good, err := f.broker.VisaToken(testSubject, affiliationClaim())
	require.NoError(t, err)

	t.Run("verified", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/visa", "", `{"visa_token":"`+good+`"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Visa map[string]any `json:"visa"`
		}
		decode(t, resp, &body)
		assert.Equal(t, "AffiliationAndRole", body.Visa["type"])
		assert.EqualValues(t, 1583757401, body.Visa["asserted"])
	})

	t.Run("not verified", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/visa", "", `{"visa_token":"a.b.c"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/visa", "", `{}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid json", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/visa", "", `{"visa_token":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("oversized body", func(t *testing.T) {
		huge := `{"visa_token":"` + strings.Repeat("a", maxVisaRequestBytes) + `"}`
		resp := f.do(t, http.MethodPost, "/v1/visa", "", huge)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHealthEndpoints(t *testing.T) {
	checker := health.NewChecker()
	f := newFixture(t, func(cfg *Config, _ *testutil.Broker) {
		cfg.HealthChecker = checker
	})
	checker.RegisterCheck("openid_configuration", health.DiscoveryCheck(f.ch.Remote(), f.broker.ConfigURL()))

	resp := f.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body HealthCheckResponse
	decode(t, resp, &body)
	assert.Equal(t, health.StatusHealthy, body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "openid_configuration", body.Checks[0].Name)

	resp = f.do(t, http.MethodGet, "/health/startup", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	checker.MarkStarted()
	resp = f.do(t, http.MethodGet, "/health/startup", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	checker.RegisterCheck("broken", func(ctx context.Context) health.CheckResult {
		return health.CheckResult{Status: health.StatusUnhealthy, Message: "down"}
	})
	resp = f.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "liveness ignores readiness checks")
}

func TestHealthEndpoints_NoChecker(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/health/startup"} {
		resp := f.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	prom := metrics.NewPrometheusAdapter(false)
	f := newFixture(t, func(cfg *Config, _ *testutil.Broker) {
		cfg.Metrics = prom
	})

	f.do(t, http.MethodGet, "/health", "", "")

	resp := f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sb bytes.Buffer
	_, err := sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "clearinghouse_http_requests_total")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: 1,
		Burst:             1,
	})
	t.Cleanup(limiter.Stop)

	f := newFixture(t, func(cfg *Config, _ *testutil.Broker) {
		cfg.RateLimiter = limiter
	})

	resp := f.do(t, http.MethodPost, "/v1/visa", "", `{"visa_token":"a.b.c"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/visa", "", `{"visa_token":"a.b.c"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "probes are not rate limited")
}

func TestRateLimit_ForwardedHeadersFromUntrustedPeer(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: 1,
		Burst:             1,
	})
	t.Cleanup(limiter.Stop)

	f := newFixture(t, func(cfg *Config, _ *testutil.Broker) {
		cfg.RateLimiter = limiter
	})

	statuses := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req, err := http.NewRequest(http.MethodPost, f.http.URL+"/v1/visa", strings.NewReader(`{"visa_token":"a.b.c"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, []int{
		http.StatusNotFound,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
	}, statuses)
}

func TestCorrelationHeader(t *testing.T) {
	f := newFixture(t, nil)

	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(correlation.CorrelationIDHeader, "trace-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "trace-123", resp.Header.Get(correlation.CorrelationIDHeader))
}

func TestServeAndStop(t *testing.T) {
	ch, err := clearinghouse.New()
	require.NoError(t, err)

	srv, err := NewServer(&Config{
		Resolver:    ch,
		UserInfoURL: "https://broker.example/oidc/userinfo",
		Logger:      logger.NewNop(),
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health/live")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, <-done)
}

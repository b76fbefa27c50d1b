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

package health

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-clearinghouse/internal/testutil"
	"github.com/jeremyhahn/go-clearinghouse/pkg/jwks"
	"github.com/jeremyhahn/go-clearinghouse/pkg/remote"
)

type fakeCache struct {
	capacity int
	stats    jwks.Stats
}

func (f fakeCache) Capacity() int     { return f.capacity }
func (f fakeCache) Stats() jwks.Stats { return f.stats }

func TestKeyCacheCheck(t *testing.T) {
	tests := []struct {
		name  string
		cache fakeCache
		want  Status
	}{
		{"empty", fakeCache{capacity: 10}, StatusHealthy},
		{"full without evictions", fakeCache{capacity: 2, stats: jwks.Stats{Size: 2}}, StatusHealthy},
		{"full and evicting", fakeCache{capacity: 2, stats: jwks.Stats{Size: 2, Evictions: 3}}, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := KeyCacheCheck(tt.cache)(context.Background())
			if result.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, result.Status)
			}
			if result.Name != "key_cache" {
				t.Errorf("unexpected name %q", result.Name)
			}
		})
	}
}

type fetcherFunc func(ctx context.Context, kind remote.Kind, rawURL, bearer string, out any) error

func (f fetcherFunc) GetJSON(ctx context.Context, kind remote.Kind, rawURL, bearer string, out any) error {
	return f(ctx, kind, rawURL, bearer, out)
}

func TestDiscoveryCheck(t *testing.T) {
	broker, err := testutil.NewBroker()
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	defer broker.Close()

	result := DiscoveryCheck(remote.New(), broker.ConfigURL())(context.Background())
	if result.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s (%s)", result.Status, result.Error)
	}
	if result.Message != broker.JWKSURL() {
		t.Errorf("expected jwks uri %q, got %q", broker.JWKSURL(), result.Message)
	}
}

func TestDiscoveryCheckFailures(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		fetcher := fetcherFunc(func(ctx context.Context, kind remote.Kind, rawURL, bearer string, out any) error {
			return errors.New("connection refused")
		})
		result := DiscoveryCheck(fetcher, "https://broker.example/.well-known/openid-configuration")(context.Background())
		if result.Status != StatusUnhealthy {
			t.Errorf("expected unhealthy, got %s", result.Status)
		}
		if !strings.Contains(result.Error, "connection refused") {
			t.Errorf("unexpected error %q", result.Error)
		}
	})

	t.Run("no jwks_uri", func(t *testing.T) {
		fetcher := fetcherFunc(func(ctx context.Context, kind remote.Kind, rawURL, bearer string, out any) error {
			if kind != remote.KindOpenIDConfiguration {
				t.Errorf("unexpected kind %s", kind)
			}
			return nil
		})
		result := DiscoveryCheck(fetcher, "https://broker.example/.well-known/openid-configuration")(context.Background())
		if result.Status != StatusUnhealthy {
			t.Errorf("expected unhealthy, got %s", result.Status)
		}
	})
}

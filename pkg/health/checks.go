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
	"fmt"

	"github.com/jeremyhahn/go-clearinghouse/pkg/jwks"
	"github.com/jeremyhahn/go-clearinghouse/pkg/remote"
)

// KeyCache is the view of a key cache needed by KeyCacheCheck.
type KeyCache interface {
	Capacity() int
	Stats() jwks.Stats
}

// KeyCacheCheck reports key cache occupancy. A full cache that has started
// evicting entries is reported as degraded.
func KeyCacheCheck(cache KeyCache) CheckFunc {
	return func(_ context.Context) CheckResult {
		stats := cache.Stats()
		result := CheckResult{
			Name:    "key_cache",
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d/%d keys cached, %d hits, %d misses", stats.Size, cache.Capacity(), stats.Hits, stats.Misses),
		}
		if stats.Size >= cache.Capacity() && stats.Evictions > 0 {
			result.Status = StatusDegraded
		}
		return result
	}
}

// Fetcher retrieves a JSON document.
type Fetcher interface {
	GetJSON(ctx context.Context, kind remote.Kind, rawURL, bearer string, out any) error
}

// DiscoveryCheck verifies that the broker's OpenID configuration document is
// reachable and advertises a key set.
func DiscoveryCheck(fetcher Fetcher, configURL string) CheckFunc {
	return func(ctx context.Context) CheckResult {
		result := CheckResult{Name: "openid_configuration"}

		var doc struct {
			JWKSURI string `json:"jwks_uri"`
		}
		if err := fetcher.GetJSON(ctx, remote.KindOpenIDConfiguration, configURL, "", &doc); err != nil {
			result.Status = StatusUnhealthy
			result.Message = "OpenID configuration unreachable"
			result.Error = err.Error()
			return result
		}
		if doc.JWKSURI == "" {
			result.Status = StatusUnhealthy
			result.Message = "OpenID configuration has no jwks_uri"
			return result
		}

		result.Status = StatusHealthy
		result.Message = doc.JWKSURI
		return result
	}
}

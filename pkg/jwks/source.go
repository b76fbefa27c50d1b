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

package jwks

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-clearinghouse/pkg/encoding/jwk"
	"github.com/jeremyhahn/go-clearinghouse/pkg/remote"
)

// Source retrieves the complete key set published at a JWKS URL.
// Implementations are swapped out in tests.
type Source interface {
	Fetch(ctx context.Context, jwksURL string) (*jwk.Set, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, jwksURL string) (*jwk.Set, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, jwksURL string) (*jwk.Set, error) {
	return f(ctx, jwksURL)
}

// HTTPSource fetches key sets over HTTP.
type HTTPSource struct {
	client *remote.Client
}

// NewHTTPSource creates a Source backed by client. A nil client gets the
// remote package defaults.
func NewHTTPSource(client *remote.Client) *HTTPSource {
	if client == nil {
		client = remote.New()
	}
	return &HTTPSource{client: client}
}

// Fetch GETs jwksURL and parses the body as a JWKS document.
func (s *HTTPSource) Fetch(ctx context.Context, jwksURL string) (*jwk.Set, error) {
	body, err := s.client.Get(ctx, remote.KindJWKS, jwksURL, "")
	if err != nil {
		return nil, err
	}
	set, err := jwk.ParseSet(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, jwksURL, err)
	}
	return set, nil
}

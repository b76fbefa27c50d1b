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

// Package rest exposes passport resolution over HTTP.
//
// A relying service that cannot embed the library calls the server with the
// user's access token and receives the verified visas:
//
//	srv, _ := rest.NewServer(&rest.Config{
//	    Address:                ":8080",
//	    Resolver:               ch,
//	    OpenIDConfigurationURL: "https://login.elixir-czech.org/oidc/.well-known/openid-configuration",
//	})
//	go srv.Start()
//	defer srv.Stop(ctx)
//
// # API Endpoints
//
//   - GET /v1/visas - Verified visas for the bearer access token
//   - GET /v1/tokens - Raw visa tokens for the bearer access token
//   - POST /v1/visa - Verify one visa token, 404 when it does not verify
//   - GET /health, /health/live, /health/ready, /health/startup - Probes
//   - GET /metrics - Prometheus metrics, when enabled
//
// Example visa request:
//
//	POST /v1/visa
//	{
//	  "visa_token": "eyJ0eXAiOiJKV1QiLCJqa3UiOi..."
//	}
//
// # Error Handling
//
//   - 400 Bad Request - Malformed request body
//   - 401 Unauthorized - Missing bearer or rejected access token
//   - 404 Not Found - The submitted visa did not verify
//   - 429 Too Many Requests - Rate limit exceeded
//   - 502 Bad Gateway - The broker could not be reached
//   - 504 Gateway Timeout - The broker did not answer in time
//
// Error responses include a JSON body:
//
//	{
//	  "error": "visa not found",
//	  "code": 404
//	}
package rest

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
	"net/http"

	"github.com/jeremyhahn/go-clearinghouse/pkg/health"
)

// HealthChecker is implemented by *health.Checker.
type HealthChecker interface {
	Live(ctx context.Context) health.CheckResult
	Ready(ctx context.Context) []health.CheckResult
	Startup(ctx context.Context) health.CheckResult
}

// HealthHandler handles GET /health requests. It reports readiness along
// with the server version.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := h.readiness(r.Context())
	resp.Version = h.Version
	writeJSON(w, resp, statusFor(resp.Status))
}

// LivenessHandler handles GET /health/live requests. It only fails when the
// process should be restarted.
func (h *HandlerContext) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if h.HealthChecker == nil {
		writeJSON(w, HealthCheckResponse{Status: health.StatusHealthy, Message: "Service is alive"}, http.StatusOK)
		return
	}

	result := h.HealthChecker.Live(r.Context())
	writeJSON(w, HealthCheckResponse{Status: result.Status, Message: result.Message}, statusFor(result.Status))
}

// ReadinessHandler handles GET /health/ready requests.
func (h *HandlerContext) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	resp := h.readiness(r.Context())
	writeJSON(w, resp, statusFor(resp.Status))
}

// StartupHandler handles GET /health/startup requests.
func (h *HandlerContext) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if h.HealthChecker == nil {
		writeJSON(w, HealthCheckResponse{Status: health.StatusHealthy, Message: "Service has started"}, http.StatusOK)
		return
	}

	result := h.HealthChecker.Startup(r.Context())
	writeJSON(w, HealthCheckResponse{Status: result.Status, Message: result.Message}, statusFor(result.Status))
}

func (h *HandlerContext) readiness(ctx context.Context) HealthCheckResponse {
	if h.HealthChecker == nil {
		return HealthCheckResponse{Status: health.StatusHealthy, Message: "Service is ready"}
	}

	results := h.HealthChecker.Ready(ctx)
	resp := HealthCheckResponse{
		Status: health.AggregateStatus(results),
		Checks: results,
	}
	switch resp.Status {
	case health.StatusHealthy:
		resp.Message = "All checks passed"
	case health.StatusDegraded:
		resp.Message = "Service is degraded"
	case health.StatusUnhealthy:
		resp.Message = "One or more checks failed"
	}
	return resp
}

// statusFor maps a health status to an HTTP status. Degraded services still
// receive traffic.
func statusFor(status health.Status) int {
	if status == health.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

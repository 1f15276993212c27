// Package server assembles the HTTP API and the gRPC health server.
package server

import (
	"net/http"

	"ihire-proctoring/backend/internal/audit"
	healthhandler "ihire-proctoring/backend/internal/health/handler"
	"ihire-proctoring/backend/internal/live"
	proctoringhandler "ihire-proctoring/backend/internal/proctoring/handler"
	"ihire-proctoring/backend/internal/proctoring/service"
	"ihire-proctoring/backend/internal/server/middleware"
	"ihire-proctoring/backend/internal/telemetry"
)

// HealthPath serves the readiness report without authentication.
const HealthPath = "/health"

// spanOperation names the otelhttp server span.
const spanOperation = "ihire-proctoring"

// Deps holds the collaborators of the HTTP API.
type Deps struct {
	// Service is the session lifecycle controller. Required.
	Service *service.Service
	// Hub feeds the live WebSocket route. If nil, the live route returns 503.
	Hub *live.Hub
	// Verifier validates identity provider tokens. If nil, requests are not authenticated and
	// role checks are skipped.
	Verifier middleware.TokenVerifier
	// AuditLogger records state-changing requests. If nil, nothing is audited.
	AuditLogger audit.AuditLogger
	// Emitter receives one http_request event per API call. If nil, no events are emitted.
	Emitter telemetry.EventEmitter
	// Health backs /health. If nil, /health is not served.
	Health *healthhandler.Checker
}

// NewHTTPHandler returns the instrumented API handler.
//
// Middleware order, outermost first: tracing, client IP, bearer auth, request events, audit.
func NewHTTPHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	proctoringhandler.NewHandler(deps.Service, deps.Hub, deps.Verifier != nil).Register(mux)
	if deps.Health != nil {
		mux.Handle(HealthPath, healthhandler.NewHTTPHandler(deps.Health))
	}

	public := map[string]bool{HealthPath: true}
	return middleware.Chain(mux,
		middleware.Tracing(spanOperation, public),
		middleware.ClientIPMiddleware,
		middleware.Auth(deps.Verifier, public),
		middleware.RequestEvents(deps.Emitter, public),
		middleware.Audit(deps.AuditLogger, public),
	)
}

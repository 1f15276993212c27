package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ihire-proctoring/backend/internal/telemetry"
)

// requestEventSource is the source field of request telemetry events.
const requestEventSource = "http_middleware"

// Tracing wraps next with otelhttp so each request gets a server span and HTTP metrics from the
// global providers. skipPaths are not traced.
func Tracing(operation string, skipPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation,
			otelhttp.WithFilter(func(r *http.Request) bool { return !skipPaths[r.URL.Path] }),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}

// RequestEvents returns middleware that emits an http_request event after each request.
// Best-effort: failures are logged by telemetry.EmitAsync and do not fail the request.
// If emitter is nil the middleware no-ops. skipPaths are not emitted.
func RequestEvents(emitter telemetry.EventEmitter, skipPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if emitter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			if skipPaths[r.URL.Path] {
				return
			}
			meta, _ := json.Marshal(requestMetadata{
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: rec.status,
				DurationMs: time.Since(start).Milliseconds(),
				ClientIP:   ClientIP(r),
			})
			email, _ := GetEmail(r.Context())
			telemetry.EmitAsync(emitter, r.Context(), &telemetry.Event{
				EventType: telemetry.EventHTTPRequest,
				Source:    requestEventSource,
				SessionID: r.URL.Query().Get("sessionId"),
				UserEmail: email,
				Metadata:  meta,
				CreatedAt: time.Now().UTC(),
			})
		})
	}
}

// Chain applies mws to h so that mws[0] is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

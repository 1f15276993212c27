package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"ihire-proctoring/backend/internal/audit"
)

// requestMetadata is the JSON shape stored in audit and telemetry metadata for API requests.
type requestMetadata struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// ClientIPMiddleware stores the client IP in the request context for the audit logger.
func ClientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ClientIP(r))))
	})
}

// Audit returns middleware that records an audit log entry after each state-changing request and
// each report export. Handlers name the session they acted on with audit.SetTarget. skipPaths are never audited (e.g. /health). Logging is best-effort and never
// fails the request. If logger is nil the middleware no-ops.
func Audit(logger audit.AuditLogger, skipPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, target := audit.WithTarget(r.Context())
			r = r.WithContext(ctx)
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			if skipPaths[r.URL.Path] {
				return
			}
			ar := audit.ParseRoute(r.Method, r.URL.Path)
			if !audit.IsMutating(r.Method) && ar.Resource != audit.ResourceReport {
				return
			}
			userID, _ := GetUserID(r.Context())
			meta, _ := json.Marshal(requestMetadata{
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: rec.status,
				DurationMs: time.Since(start).Milliseconds(),
				ClientIP:   ClientIP(r),
			})
			logger.LogEvent(ctx, audit.Event{
				UserID:   userID,
				Action:   ar.Action,
				Resource: ar.Resource,
				Target:   *target,
				Metadata: string(meta),
			})
		})
	}
}

// ClientIP returns the client IP from X-Forwarded-For, X-Real-IP, or the remote address, or "unknown".
func ClientIP(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		if i := strings.Index(v, ","); i > 0 {
			v = strings.TrimSpace(v[:i])
		}
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}

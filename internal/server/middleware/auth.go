package middleware

import (
	"net/http"
	"strings"

	"ihire-proctoring/backend/internal/security"
)

const bearerPrefix = "bearer "

// accessTokenParam carries the token on WebSocket upgrades, where browsers cannot set headers.
const accessTokenParam = "access_token"

// TokenVerifier validates an identity provider token.
type TokenVerifier interface {
	Verify(token string) (*security.Identity, error)
}

// Auth returns middleware that validates the Bearer token and sets user_id, email, and role in the
// request context. publicPaths are served without a token (e.g. /health); a valid token on a public
// path still populates the context. If verifier is nil every request passes through unauthenticated.
func Auth(verifier TokenVerifier, publicPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			public := publicPaths[r.URL.Path]
			token := extractBearer(r)
			if token == "" {
				if public {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			id, err := verifier.Verify(token)
			if err != nil {
				if public {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			ctx := WithIdentity(r.Context(), id.UserID, id.Email, id.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or the access_token query
// parameter on WebSocket upgrades. Returns "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if v == "" {
		if isWebSocketUpgrade(r) {
			return strings.TrimSpace(r.URL.Query().Get(accessTokenParam))
		}
		return ""
	}
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ihire-proctoring/backend/internal/security"
)

// mockVerifier accepts the single token it was built with.
type mockVerifier struct {
	token string
	id    security.Identity
}

func (m *mockVerifier) Verify(token string) (*security.Identity, error) {
	if token != m.token {
		return nil, security.ErrInvalidToken
	}
	id := m.id
	return &id, nil
}

// identityEcho writes the identity found in the request context.
func identityEcho(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	role, _ := GetRole(r.Context())
	_ = json.NewEncoder(w).Encode(map[string]string{"user": userID, "role": role})
}

func TestAuth(t *testing.T) {
	verifier := &mockVerifier{token: "good", id: security.Identity{UserID: "user-1", Role: "candidate"}}
	h := Auth(verifier, map[string]bool{"/health": true})(http.HandlerFunc(identityEcho))

	testCases := []struct {
		name       string
		path       string
		header     string
		upgrade    bool
		wantStatus int
		wantUser   string
	}{
		{"valid bearer", "/api/x", "Bearer good", false, http.StatusOK, "user-1"},
		{"case insensitive scheme", "/api/x", "bearer   good ", false, http.StatusOK, "user-1"},
		{"missing header", "/api/x", "", false, http.StatusUnauthorized, ""},
		{"wrong scheme", "/api/x", "Basic good", false, http.StatusUnauthorized, ""},
		{"too short", "/api/x", "Bear", false, http.StatusUnauthorized, ""},
		{"invalid token", "/api/x", "Bearer bad", false, http.StatusUnauthorized, ""},
		{"public without token", "/health", "", false, http.StatusOK, ""},
		{"public with bad token", "/health", "Bearer bad", false, http.StatusOK, ""},
		{"public with good token", "/health", "Bearer good", false, http.StatusOK, "user-1"},
		{"websocket query token", "/api/live?access_token=good", "", true, http.StatusOK, "user-1"},
		{"query token ignored without upgrade", "/api/live?access_token=good", "", false, http.StatusUnauthorized, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if tc.wantStatus == http.StatusUnauthorized {
				if body["success"] != false || body["error"] != "missing or invalid authorization" {
					t.Errorf("error body = %v", body)
				}
				return
			}
			if body["user"] != tc.wantUser {
				t.Errorf("user = %v, want %q", body["user"], tc.wantUser)
			}
		})
	}
}

func TestAuth_NilVerifierPassesThrough(t *testing.T) {
	h := Auth(nil, nil)(http.HandlerFunc(identityEcho))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/session-cheating-detection/start", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

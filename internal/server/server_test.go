package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"ihire-proctoring/backend/internal/audit"
	healthhandler "ihire-proctoring/backend/internal/health/handler"
	"ihire-proctoring/backend/internal/live"
	"ihire-proctoring/backend/internal/platform/rbac"
	"ihire-proctoring/backend/internal/proctoring/repository"
	"ihire-proctoring/backend/internal/proctoring/service"
	"ihire-proctoring/backend/internal/security"
	"ihire-proctoring/backend/internal/telemetry"
)

type auditCall struct {
	userID, action, resource string
	target                   audit.Target
}

type recordingAuditLogger struct {
	mu    sync.Mutex
	calls []auditCall
}

func (l *recordingAuditLogger) LogEvent(ctx context.Context, ev audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, auditCall{ev.UserID, ev.Action, ev.Resource, ev.Target})
}

func (l *recordingAuditLogger) snapshot() []auditCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]auditCall(nil), l.calls...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
}

func (e *recordingEmitter) Emit(ctx context.Context, ev *telemetry.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) requestEvents() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.EventType == telemetry.EventHTTPRequest {
			n++
		}
	}
	return n
}

var (
	keysOnce sync.Once
	keys     *security.TestKeys
	keysErr  error
)

// testKeys returns one key pair shared by the tests so tokens from bearer verify in newAPI.
func testKeys(t *testing.T) *security.TestKeys {
	t.Helper()
	keysOnce.Do(func() { keys, keysErr = security.NewTestKeys() })
	if keysErr != nil {
		t.Fatalf("NewTestKeys: %v", keysErr)
	}
	return keys
}

func newAPI(t *testing.T, verifier bool) (http.Handler, *recordingAuditLogger, *recordingEmitter) {
	t.Helper()
	auditLog := &recordingAuditLogger{}
	emitter := &recordingEmitter{}
	hub := live.NewHub()
	t.Cleanup(hub.Close)
	deps := Deps{
		Service:     service.New(repository.NewMemoryRepository(), service.Options{Publisher: hub}),
		Hub:         hub,
		AuditLogger: auditLog,
		Emitter:     emitter,
		Health:      healthhandler.NewChecker(nil, nil),
	}
	if verifier {
		v, err := testKeys(t).Verifier()
		if err != nil {
			t.Fatalf("Verifier: %v", err)
		}
		deps.Verifier = v
	}
	return NewHTTPHandler(deps), auditLog, emitter
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	signer, err := testKeys(t).Signer(15 * time.Minute)
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	token, _, err := signer.Issue(security.Identity{UserID: "user-1", Email: "cand@example.com", Role: role})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return "Bearer " + token
}

func serve(h http.Handler, method, path, body, authorization string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestNewHTTPHandler_NoAuth(t *testing.T) {
	h, auditLog, emitter := newAPI(t, false)

	w := serve(h, http.MethodGet, HealthPath, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var report healthhandler.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if report.Status != healthhandler.StatusOK {
		t.Errorf("health status = %q", report.Status)
	}

	w = serve(h, http.MethodPost, "/api/session-cheating-detection/start", `{"sessionId":"s1","mockId":"m1"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	w = serve(h, http.MethodGet, "/api/cheating-detection/statistics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("statistics status = %d: %s", w.Code, w.Body.String())
	}

	calls := auditLog.snapshot()
	if len(calls) != 1 {
		t.Fatalf("audit calls = %+v, want only the start", calls)
	}
	want := auditCall{"", "start", audit.ResourceSession, audit.Target{SessionID: "s1", MockID: "m1"}}
	if calls[0] != want {
		t.Errorf("audit = %+v, want %+v", calls[0], want)
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := telemetry.Drain(drainCtx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n := emitter.requestEvents(); n != 2 {
		t.Errorf("http_request events = %d, want 2 (health skipped)", n)
	}
}

func TestNewHTTPHandler_Auth(t *testing.T) {
	h, auditLog, _ := newAPI(t, true)

	if w := serve(h, http.MethodGet, HealthPath, "", ""); w.Code != http.StatusOK {
		t.Errorf("health without token = %d, want 200", w.Code)
	}
	if w := serve(h, http.MethodPost, "/api/session-cheating-detection/start", `{"sessionId":"s1","mockId":"m1"}`, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("start without token = %d, want 401", w.Code)
	}
	if w := serve(h, http.MethodPost, "/api/session-cheating-detection/start", `{"sessionId":"s1","mockId":"m1"}`, "Bearer junk"); w.Code != http.StatusUnauthorized {
		t.Errorf("start with bad token = %d, want 401", w.Code)
	}

	candidate := bearer(t, rbac.RoleCandidate)
	w := serve(h, http.MethodPost, "/api/session-cheating-detection/start", `{"sessionId":"s1","mockId":"m1"}`, candidate)
	if w.Code != http.StatusOK {
		t.Fatalf("start with token = %d: %s", w.Code, w.Body.String())
	}
	if w := serve(h, http.MethodGet, "/api/session-cheating-detection/m1", "", candidate); w.Code != http.StatusForbidden {
		t.Errorf("candidate list = %d, want 403", w.Code)
	}

	recruiter := bearer(t, rbac.RoleRecruiter)
	w = serve(h, http.MethodGet, "/api/session-cheating-detection/m1", "", recruiter)
	if w.Code != http.StatusOK {
		t.Fatalf("recruiter list = %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Sessions []struct {
			UserEmail string `json:"userEmail"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 1 || body.Sessions[0].UserEmail != "cand@example.com" {
		t.Errorf("sessions = %+v, want the token email recorded", body.Sessions)
	}

	calls := auditLog.snapshot()
	if len(calls) != 1 || calls[0].userID != "user-1" {
		t.Errorf("audit calls = %+v, want one start by user-1", calls)
	}
}

func TestGRPCHealth(t *testing.T) {
	hs := healthhandler.NewServer()
	healthhandler.Refresh(context.Background(), hs, healthhandler.NewChecker(nil, nil))
	s := NewGRPCServer(hs)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: healthhandler.ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

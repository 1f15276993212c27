package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xuri/excelize/v2"

	"ihire-proctoring/backend/internal/live"
	"ihire-proctoring/backend/internal/platform/rbac"
	"ihire-proctoring/backend/internal/proctoring/domain"
	"ihire-proctoring/backend/internal/proctoring/report"
	"ihire-proctoring/backend/internal/proctoring/repository"
	"ihire-proctoring/backend/internal/proctoring/service"
	"ihire-proctoring/backend/internal/server/middleware"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	mux   *http.ServeMux
	svc   *service.Service
	clock *testClock
	hub   *live.Hub
}

func newTestEnv(t *testing.T, authorize bool) *testEnv {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	hub := live.NewHub()
	t.Cleanup(hub.Close)
	n := 0
	var idMu sync.Mutex
	svc := service.New(repository.NewMemoryRepository(), service.Options{
		MaxRetries: 3,
		DefaultSettings: domain.DetectionSettings{
			DetectionIntervalMS: 2000,
			ConfidenceThreshold: 0.7,
			MaxViolations:       5,
			AlertCooldownMS:     10000,
		},
		Now:  clock.Now,
		Rand: fixedRand(0.5),
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		},
		Publisher: hub,
	})
	h := NewHandler(svc, hub, authorize)
	h.now = clock.Now
	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{mux: mux, svc: svc, clock: clock, hub: hub}
}

func (e *testEnv) do(t *testing.T, ctx context.Context, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if ctx != nil {
		r = r.WithContext(ctx)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHandler_Lifecycle(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, nil, http.MethodPost, "/api/session-cheating-detection/start",
		`{"sessionId":"s1","mockId":"m1","userEmail":"c@example.com","detectionSettings":{"detectionInterval":1000}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["message"] != "Session started successfully" {
		t.Errorf("start body = %v", body)
	}
	record, ok := body["sessionRecord"].(map[string]any)
	if !ok {
		t.Fatalf("sessionRecord missing: %v", body)
	}
	settings := record["detectionSettings"].(map[string]any)
	if settings["detectionInterval"] != float64(1000) || settings["maxViolations"] != float64(5) {
		t.Errorf("detectionSettings = %v", settings)
	}

	w = env.do(t, nil, http.MethodPost, "/api/session-cheating-detection/start", `{"sessionId":"s1","mockId":"m1"}`)
	body = decodeBody(t, w)
	if body["message"] != "Session restarted successfully" {
		t.Errorf("second start message = %v", body["message"])
	}
	if _, ok := body["sessionRecord"]; ok {
		t.Error("restart should not include sessionRecord")
	}

	env.clock.Advance(30 * time.Second)
	w = env.do(t, nil, http.MethodPost, "/api/session-cheating-detection/update", `{
		"sessionId":"s1","mockId":"m1","riskScore":45,
		"detectionData":{"faceDetection":{"detected":false}},
		"alerts":[{"id":1717236000000,"type":"faceDetection","severity":"high","timestamp":1717236000000}],
		"violations":{"tabSwitching":2},
		"detectionHistory":[{"riskScore":99}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	want := map[string]any{
		"message":              "Session updated successfully",
		"sessionRiskScore":     float64(45),
		"sessionSeverityLevel": "medium",
		"sessionDuration":      float64(30),
		"alertCount":           float64(1),
		"detectionCount":       float64(1),
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("update %s = %v, want %v", k, body[k], v)
		}
	}

	sess, err := env.svc.Get(context.Background(), "s1", "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Alerts[0].ID != "1717236000000" {
		t.Errorf("alert id = %q, want numeric id as string", sess.Alerts[0].ID)
	}
	if !sess.Alerts[0].Timestamp.Equal(time.UnixMilli(1717236000000)) {
		t.Errorf("alert timestamp = %v", sess.Alerts[0].Timestamp)
	}
	if sess.Violations.Get("tabSwitching") != 2 || sess.Violations.Get("faceDetection") != 1 {
		t.Errorf("violations = %v", sess.Violations.Entries())
	}

	env.clock.Advance(30 * time.Second)
	w = env.do(t, nil, http.MethodPost, "/api/session-cheating-detection/end", `{"sessionId":"s1","mockId":"m1","finalDetectionData":{"done":true}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("end status = %d, body %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	if body["message"] != "Session ended successfully" {
		t.Errorf("end message = %v", body["message"])
	}
	summary := body["sessionSummary"].(map[string]any)
	if summary["finalRiskScore"] != float64(45) || summary["sessionDuration"] != float64(60) {
		t.Errorf("sessionSummary = %v", summary)
	}
	analytics := body["analytics"].(map[string]any)
	if analytics["mostCommonViolation"] != "tabSwitching" || analytics["totalViolations"] != float64(3) {
		t.Errorf("analytics = %v", analytics)
	}
}

func TestHandler_Errors(t *testing.T) {
	env := newTestEnv(t, false)
	if w := env.do(t, nil, http.MethodPost, "/api/session-cheating-detection/start", `{"sessionId":"ended","mockId":"m1"}`); w.Code != http.StatusOK {
		t.Fatalf("start: %d", w.Code)
	}
	if w := env.do(t, nil, http.MethodPost, "/api/session-cheating-detection/end", `{"sessionId":"ended","mockId":"m1"}`); w.Code != http.StatusOK {
		t.Fatalf("end: %d", w.Code)
	}

	testCases := []struct {
		name    string
		path    string
		body    string
		status  int
		message string
	}{
		{"start missing ids", "/start", `{"mockId":"m1"}`, http.StatusBadRequest, "Session ID and Mock ID are required"},
		{"update missing ids", "/update", `{"sessionId":"s1"}`, http.StatusBadRequest, "Session ID and Mock ID are required"},
		{"malformed body", "/start", `{"sessionId":`, http.StatusBadRequest, "invalid request body"},
		{"empty body", "/update", ``, http.StatusBadRequest, "invalid request body"},
		{"bad alert timestamp", "/update", `{"sessionId":"s1","mockId":"m1","alerts":[{"timestamp":"yesterday"}]}`, http.StatusBadRequest, "invalid request body"},
		{"update unknown session", "/update", `{"sessionId":"nope","mockId":"m1","riskScore":10}`, http.StatusNotFound, "Session not found"},
		{"end unknown session", "/end", `{"sessionId":"nope","mockId":"m1"}`, http.StatusNotFound, "Session not found"},
		{"update ended session", "/update", `{"sessionId":"ended","mockId":"m1"}`, http.StatusConflict, domain.ErrSessionEnded.Error()},
		{"end ended session", "/end", `{"sessionId":"ended","mockId":"m1"}`, http.StatusConflict, domain.ErrSessionEnded.Error()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, nil, http.MethodPost, SessionRoutePrefix+tc.path, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.status, w.Body.String())
			}
			body := decodeBody(t, w)
			if body["success"] != false || body["error"] != tc.message {
				t.Errorf("body = %v, want error %q", body, tc.message)
			}
		})
	}

	if _, err := env.svc.Get(context.Background(), "nope", "m1"); err == nil {
		t.Error("update on a missing session must not create it")
	}
}

func TestHandler_ListAndStatistics(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, nil, http.MethodGet, "/api/session-cheating-detection/m1", "")
	body := decodeBody(t, w)
	if w.Code != http.StatusOK || body["message"] != "No sessions found for this mock interview" {
		t.Errorf("empty list = %d %v", w.Code, body)
	}
	if sessions, ok := body["sessions"].([]any); !ok || len(sessions) != 0 {
		t.Errorf("sessions = %v, want empty list", body["sessions"])
	}

	for _, req := range []string{
		`{"sessionId":"s1","mockId":"m1","userEmail":"a@example.com"}`,
		`{"sessionId":"s2","mockId":"m1","userEmail":"b@example.com"}`,
		`{"sessionId":"s3","mockId":"m2","userEmail":"a@example.com"}`,
	} {
		if w := env.do(t, nil, http.MethodPost, "/api/session-cheating-detection/start", req); w.Code != http.StatusOK {
			t.Fatalf("start %s: %d", req, w.Code)
		}
	}
	env.do(t, nil, http.MethodPost, "/api/session-cheating-detection/update",
		`{"sessionId":"s1","mockId":"m1","riskScore":80,"alerts":[{"type":"phoneDetection"}]}`)

	w = env.do(t, nil, http.MethodGet, "/api/session-cheating-detection/m1", "")
	body = decodeBody(t, w)
	if body["totalCount"] != float64(2) {
		t.Errorf("totalCount = %v, want 2", body["totalCount"])
	}
	if _, ok := body["message"]; ok {
		t.Errorf("non-empty list should not carry a message: %v", body["message"])
	}
	stats := body["summaryStats"].(map[string]any)
	if stats["activeSessions"] != float64(2) || stats["totalAlerts"] != float64(1) {
		t.Errorf("summaryStats = %v", stats)
	}

	w = env.do(t, nil, http.MethodGet, "/api/session-cheating-detection/m1?sessionId=s2", "")
	if got := decodeBody(t, w)["totalCount"]; got != float64(1) {
		t.Errorf("filtered totalCount = %v, want 1", got)
	}

	w = env.do(t, nil, http.MethodGet, "/api/cheating-detection/statistics?userId=a@example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("statistics status = %d: %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	statistics := body["statistics"].(map[string]any)
	if statistics["totalSessions"] != float64(2) || statistics["peakRiskScore"] != float64(80) {
		t.Errorf("statistics = %v", statistics)
	}
	breakdown := body["sessionBreakdown"].([]any)
	if len(breakdown) != 2 {
		t.Fatalf("sessionBreakdown = %v", breakdown)
	}
	first := breakdown[0].(map[string]any)
	if first["sessionId"] != "s1" || fmt.Sprint(first["violations"]) != "[phoneDetection]" {
		t.Errorf("breakdown[0] = %v", first)
	}

	w = env.do(t, nil, http.MethodGet, "/api/cheating-detection/statistics?startDate=2025-06-02", "")
	if got := decodeBody(t, w)["statistics"].(map[string]any)["totalSessions"]; got != float64(0) {
		t.Errorf("sessions after 2025-06-02 = %v, want 0", got)
	}
	w = env.do(t, nil, http.MethodGet, "/api/cheating-detection/statistics?endDate=2025-06-01", "")
	if got := decodeBody(t, w)["statistics"].(map[string]any)["totalSessions"]; got != float64(3) {
		t.Errorf("sessions through 2025-06-01 = %v, want 3", got)
	}

	for _, q := range []string{"startDate=soon", "endDate=2025-13-01", "startDate=2025-06-02&endDate=2025-06-01"} {
		w := env.do(t, nil, http.MethodGet, "/api/cheating-detection/statistics?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("statistics?%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestHandler_Export(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(t, nil, http.MethodPost, "/api/session-cheating-detection/start", `{"sessionId":"s1","mockId":"mock.1","userEmail":"a@example.com"}`)

	w := env.do(t, nil, http.MethodGet, "/api/session-cheating-detection/mock.1/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="proctoring-mock1.xlsx"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	if got, _ := f.GetCellValue(report.SessionsSheet, "B2"); got != "a@example.com" {
		t.Errorf("Sessions!B2 = %q", got)
	}
}

func TestHandler_Authorization(t *testing.T) {
	env := newTestEnv(t, true)
	candidate := middleware.WithIdentity(context.Background(), "u1", "cand@example.com", rbac.RoleCandidate)
	recruiter := middleware.WithIdentity(context.Background(), "u2", "rec@example.com", rbac.RoleRecruiter)

	w := env.do(t, context.Background(), http.MethodPost, "/api/session-cheating-detection/start", `{"sessionId":"s1","mockId":"m1"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous start = %d, want 401", w.Code)
	}

	w = env.do(t, candidate, http.MethodPost, "/api/session-cheating-detection/start", `{"sessionId":"s1","mockId":"m1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("candidate start = %d: %s", w.Code, w.Body.String())
	}
	sess, _ := env.svc.Get(context.Background(), "s1", "m1")
	if sess.UserEmail != "cand@example.com" {
		t.Errorf("UserEmail = %q, want token email", sess.UserEmail)
	}

	testCases := []struct {
		name   string
		ctx    context.Context
		path   string
		status int
	}{
		{"candidate list", candidate, "/api/session-cheating-detection/m1", http.StatusForbidden},
		{"candidate statistics", candidate, "/api/cheating-detection/statistics", http.StatusForbidden},
		{"candidate export", candidate, "/api/session-cheating-detection/m1/export", http.StatusForbidden},
		{"anonymous list", context.Background(), "/api/session-cheating-detection/m1", http.StatusUnauthorized},
		{"recruiter list", recruiter, "/api/session-cheating-detection/m1", http.StatusOK},
		{"recruiter statistics", recruiter, "/api/cheating-detection/statistics", http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, tc.ctx, http.MethodGet, tc.path, "")
			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
		})
	}
}

func TestHandler_LiveFeed(t *testing.T) {
	env := newTestEnv(t, false)
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/session-cheating-detection/m1/live?sessionId=s1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers("m1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := env.svc.Start(context.Background(), service.StartRequest{SessionID: "s1", MockID: "m1"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap live.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if snap.Event != "started" || snap.SessionID != "s1" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestHandler_LiveFeedDisabled(t *testing.T) {
	svc := service.New(repository.NewMemoryRepository(), service.Options{})
	mux := http.NewServeMux()
	NewHandler(svc, nil, false).Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session-cheating-detection/m1/live", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

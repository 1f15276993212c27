// Package handler exposes the proctoring session lifecycle and read-side queries over HTTP JSON.
package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ihire-proctoring/backend/internal/audit"
	"ihire-proctoring/backend/internal/live"
	"ihire-proctoring/backend/internal/platform/rbac"
	"ihire-proctoring/backend/internal/proctoring/report"
	"ihire-proctoring/backend/internal/proctoring/service"
	"ihire-proctoring/backend/internal/server/middleware"
)

// Route prefixes served by Handler.
const (
	SessionRoutePrefix = "/api/session-cheating-detection"
	StatisticsRoute    = "/api/cheating-detection/statistics"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves the session routes.
type Handler struct {
	svc       *service.Service
	hub       *live.Hub
	authorize bool
	now       func() time.Time
}

// NewHandler returns a Handler over svc. hub may be nil, which disables the live feed.
// When authorize is set, lifecycle routes require a verified identity and read routes
// require a recruiter or admin role.
func NewHandler(svc *service.Service, hub *live.Hub, authorize bool) *Handler {
	return &Handler{
		svc:       svc,
		hub:       hub,
		authorize: authorize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+SessionRoutePrefix+"/start", h.start)
	mux.HandleFunc("POST "+SessionRoutePrefix+"/update", h.update)
	mux.HandleFunc("POST "+SessionRoutePrefix+"/end", h.end)
	mux.HandleFunc("GET "+SessionRoutePrefix+"/{mockId}", h.list)
	mux.HandleFunc("GET "+SessionRoutePrefix+"/{mockId}/export", h.export)
	mux.HandleFunc("GET "+SessionRoutePrefix+"/{mockId}/live", h.live)
	mux.HandleFunc("GET "+StatisticsRoute, h.statistics)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, rbac.RequireAuthenticated) {
		return
	}
	var req startRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	audit.SetTarget(r.Context(), req.SessionID, req.MockID)
	email := strings.TrimSpace(req.UserEmail)
	if email == "" && h.authorize {
		email, _ = middleware.GetEmail(r.Context())
	}
	res, err := h.svc.Start(r.Context(), service.StartRequest{
		SessionID: req.SessionID,
		MockID:    req.MockID,
		UserEmail: email,
		Settings:  req.DetectionSettings,
	})
	if err != nil {
		fail(w, "start session", err)
		return
	}
	resp := startResponse{
		Success:          true,
		Message:          "Session restarted successfully",
		SessionID:        res.Session.SessionID,
		MockID:           res.Session.MockID,
		SessionStartTime: res.Session.StartedAt,
	}
	if res.Created {
		resp.Message = "Session started successfully"
		resp.SessionRecord = res.Session
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, rbac.RequireAuthenticated) {
		return
	}
	var req updateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	audit.SetTarget(r.Context(), req.SessionID, req.MockID)
	sess, err := h.svc.Update(r.Context(), req.toService())
	if err != nil {
		fail(w, "update session", err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{
		Success:              true,
		Message:              "Session updated successfully",
		SessionID:            sess.SessionID,
		MockID:               sess.MockID,
		SessionRiskScore:     sess.RiskScore,
		SessionSeverityLevel: sess.Severity,
		SessionDuration:      sess.DurationSeconds,
		AlertCount:           len(sess.Alerts),
		DetectionCount:       len(sess.DetectionHistory),
	})
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, rbac.RequireAuthenticated) {
		return
	}
	var req endRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	audit.SetTarget(r.Context(), req.SessionID, req.MockID)
	res, err := h.svc.End(r.Context(), service.EndRequest{
		SessionID:          req.SessionID,
		MockID:             req.MockID,
		FinalDetectionData: req.FinalDetectionData,
	})
	if err != nil {
		fail(w, "end session", err)
		return
	}
	writeJSON(w, http.StatusOK, endResponse{
		Success:        true,
		Message:        "Session ended successfully",
		SessionSummary: res.Summary,
		Analytics:      res.Analytics,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, rbac.RequireStaff) {
		return
	}
	res, err := h.svc.ListByMock(r.Context(), r.PathValue("mockId"), r.URL.Query().Get("sessionId"))
	if err != nil {
		fail(w, "list sessions", err)
		return
	}
	resp := listResponse{
		Success:      true,
		Sessions:     res.Sessions,
		SummaryStats: res.Summary,
		TotalCount:   len(res.Sessions),
	}
	if len(res.Sessions) == 0 {
		resp.Message = "No sessions found for this mock interview"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, rbac.RequireStaff) {
		return
	}
	mockID := r.PathValue("mockId")
	audit.SetTarget(r.Context(), "", mockID)
	res, err := h.svc.ListByMock(r.Context(), mockID, "")
	if err != nil {
		fail(w, "export sessions", err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, mockID, res.Sessions, res.Summary, h.now()); err != nil {
		fail(w, "export sessions", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="proctoring-%s.xlsx"`, safeFilename(mockID)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) live(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, rbac.RequireStaff) {
		return
	}
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed is not enabled")
		return
	}
	live.ServeWS(h.hub, w, r, r.PathValue("mockId"), r.URL.Query().Get("sessionId"))
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, rbac.RequireStaff) {
		return
	}
	filter, err := parseStatisticsFilter(r.URL.Query())
	if err != nil {
		fail(w, "statistics", err)
		return
	}
	res, err := h.svc.Statistics(r.Context(), filter)
	if err != nil {
		fail(w, "statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, statisticsResponse{
		Success:          true,
		Statistics:       res.Statistics,
		SessionBreakdown: res.Breakdown,
	})
}

// allow runs check when authorization is enabled and writes the error response on failure.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, check func(context.Context) (string, error)) bool {
	if !h.authorize {
		return true
	}
	if _, err := check(r.Context()); err != nil {
		fail(w, r.Method+" "+r.URL.Path, err)
		return false
	}
	return true
}

// safeFilename keeps letters, digits, dash and underscore.
func safeFilename(s string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, s)
	if out == "" {
		return "report"
	}
	return out
}

package service

import (
	"encoding/json"
	"strings"
	"time"

	"ihire-proctoring/backend/internal/proctoring/analytics"
	"ihire-proctoring/backend/internal/proctoring/domain"
)

// applyUpdate appends one sample to s and recomputes its running aggregates.
func applyUpdate(s *domain.Session, req UpdateRequest, now time.Time, historyLimit int, newID func() string) {
	if s.Violations == nil {
		s.Violations = domain.NewCounter()
	}
	if s.Devices == nil {
		s.Devices = domain.NewCounter()
	}
	if s.MovementPatterns == nil {
		s.MovementPatterns = domain.NewCounter()
	}

	event := domain.DetectionEvent{
		Timestamp: now,
		RiskScore: req.RiskScore,
	}
	if len(req.DetectionData) > 0 {
		event.DetectionData = append(json.RawMessage(nil), req.DetectionData...)
		s.LatestDetection = event.DetectionData
	}
	if req.EnhancedMetrics != nil {
		m := *req.EnhancedMetrics
		event.EnhancedMetrics = &m
		s.EnhancedMetrics = &m
		if d := strings.TrimSpace(m.DeviceType); d != "" {
			s.Devices.Inc(d, 1)
		}
		if p := strings.TrimSpace(m.MovementPattern); p != "" {
			s.MovementPatterns.Inc(p, 1)
		}
	}
	s.DetectionHistory = append(s.DetectionHistory, event)
	if historyLimit > 0 && len(s.DetectionHistory) > historyLimit {
		s.DetectionHistory = append([]domain.DetectionEvent(nil), s.DetectionHistory[len(s.DetectionHistory)-historyLimit:]...)
	}

	for _, a := range req.Alerts {
		a.Type = strings.TrimSpace(a.Type)
		if a.Type == "" {
			a.Type = domain.ViolationUnknown
		}
		if a.ID == "" {
			a.ID = newID()
		}
		if a.Timestamp.IsZero() {
			a.Timestamp = now
		}
		s.Alerts = append(s.Alerts, a)
		s.Violations.Inc(a.Type, 1)
	}
	for _, e := range req.Violations.Entries() {
		if e.Count > 0 {
			s.Violations.Inc(e.Type, e.Count)
		}
	}

	s.RiskScore = analytics.AverageRisk(s.DetectionHistory)
	s.Severity = analytics.ClassifySeverity(s.RiskScore, len(s.Alerts), s.Violations.Total())
	s.DurationSeconds = analytics.DurationSeconds(s.StartedAt, now)
	s.UpdatedAt = now
}

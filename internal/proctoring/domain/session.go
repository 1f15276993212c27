package domain

import (
	"encoding/json"
	"time"
)

// Severity is the coarse risk bucket of a session.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert types emitted by the browser detector. Any other client-supplied string is accepted as-is.
const (
	ViolationFaceDetection   = "faceDetection"
	ViolationEyeTracking     = "eyeTracking"
	ViolationMultipleFaces   = "multipleFaces"
	ViolationPhoneDetection  = "phoneDetection"
	ViolationHeadMovement    = "headMovement"
	ViolationAudioAnalysis   = "audioAnalysis"
	ViolationTabSwitching    = "tabSwitching"
	ViolationTypingDetection = "typingDetection"

	// ViolationUnknown is recorded for alerts that carry no type.
	ViolationUnknown = "unknown"
	// ViolationNone is the most common violation of a session without violations.
	ViolationNone = "none"
)

// DetectionSettings are the client's detector parameters, stored verbatim on start.
type DetectionSettings struct {
	DetectionIntervalMS int     `json:"detectionInterval"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	MaxViolations       int     `json:"maxViolations"`
	AlertCooldownMS     int     `json:"alertCooldown"`
}

// EnhancedMetrics are auxiliary signals reported with a detection sample.
type EnhancedMetrics struct {
	DeviceType      string  `json:"deviceType,omitempty"`
	MovementPattern string  `json:"movementPattern,omitempty"`
	FaceQuality     float64 `json:"faceQuality"`
	NoiseLevel      float64 `json:"noiseLevel"`
	AudioAvailable  bool    `json:"audioAvailable"`
}

// DetectionEvent is one periodic sample appended to a session's history.
type DetectionEvent struct {
	Timestamp       time.Time        `json:"timestamp"`
	RiskScore       float64          `json:"riskScore"`
	DetectionData   json.RawMessage  `json:"detectionData,omitempty"`
	EnhancedMetrics *EnhancedMetrics `json:"enhancedMetrics,omitempty"`
}

// Alert is a discrete suspicious-behavior signal raised by the client.
type Alert struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity,omitempty"`
	Message        string    `json:"message,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	ViolationCount int       `json:"violationCount,omitempty"`
	RiskScore      float64   `json:"riskScore,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Session is the persisted proctoring record for one (SessionID, MockID) pair.
type Session struct {
	ID               string            `json:"id"`
	SessionID        string            `json:"sessionId"`
	MockID           string            `json:"mockId"`
	UserEmail        string            `json:"userEmail"`
	StartedAt        time.Time         `json:"sessionStartTime"`
	EndedAt          *time.Time        `json:"sessionEndTime"` // nil while live
	DurationSeconds  int64             `json:"sessionDuration"`
	DetectionHistory []DetectionEvent  `json:"detectionHistory"`
	Alerts           []Alert           `json:"alerts"`
	Violations       *Counter          `json:"violations"`
	Devices          *Counter          `json:"devices"`
	MovementPatterns *Counter          `json:"movementPatterns"`
	LatestDetection  json.RawMessage   `json:"latestDetection,omitempty"`
	EnhancedMetrics  *EnhancedMetrics  `json:"enhancedMetrics,omitempty"`
	RiskScore        int               `json:"riskScore"`
	Severity         Severity          `json:"severityLevel"`
	Settings         DetectionSettings `json:"detectionSettings"`
	Summary          *SessionSummary   `json:"summary,omitempty"` // set on end
	Version          int64             `json:"version"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Ended reports whether the session has been finalized.
func (s *Session) Ended() bool {
	return s != nil && s.EndedAt != nil
}

// Clone returns a deep copy so callers can mutate it without touching stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.DetectionHistory != nil {
		c.DetectionHistory = make([]DetectionEvent, len(s.DetectionHistory))
		for i, ev := range s.DetectionHistory {
			c.DetectionHistory[i] = ev.clone()
		}
	}
	c.Alerts = append([]Alert(nil), s.Alerts...)
	c.Violations = s.Violations.Clone()
	c.Devices = s.Devices.Clone()
	c.MovementPatterns = s.MovementPatterns.Clone()
	c.LatestDetection = append(json.RawMessage(nil), s.LatestDetection...)
	c.EnhancedMetrics = s.EnhancedMetrics.clone()
	c.Summary = s.Summary.clone()
	return &c
}

func (m *EnhancedMetrics) clone() *EnhancedMetrics {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func (e DetectionEvent) clone() DetectionEvent {
	e.DetectionData = append(json.RawMessage(nil), e.DetectionData...)
	e.EnhancedMetrics = e.EnhancedMetrics.clone()
	return e
}

func (s *SessionSummary) clone() *SessionSummary {
	if s == nil {
		return nil
	}
	c := *s
	c.FinalDetectionData = append(json.RawMessage(nil), s.FinalDetectionData...)
	if s.Review != nil {
		r := *s.Review
		r.Reasons = append([]string(nil), s.Review.Reasons...)
		c.Review = &r
	}
	return &c
}

// ResetAt clears all mutable state so the session is live again from now. An empty userEmail
// keeps the stored participant.
func (s *Session) ResetAt(now time.Time, userEmail string, settings DetectionSettings) {
	if userEmail != "" {
		s.UserEmail = userEmail
	}
	s.StartedAt = now
	s.EndedAt = nil
	s.DurationSeconds = 0
	s.DetectionHistory = []DetectionEvent{}
	s.Alerts = []Alert{}
	s.Violations = NewCounter()
	s.Devices = NewCounter()
	s.MovementPatterns = NewCounter()
	s.LatestDetection = nil
	s.EnhancedMetrics = nil
	s.RiskScore = 0
	s.Severity = SeverityLow
	s.Settings = settings
	s.Summary = nil
	s.UpdatedAt = now
}

// Analytics is the reduction of a session's history and alerts.
type Analytics struct {
	AverageRisk         int    `json:"averageRisk"`
	PeakRisk            int    `json:"peakRisk"`
	TotalViolations     int    `json:"totalViolations"`
	MostCommonViolation string `json:"mostCommonViolation"`
	// DetectionAccuracy is a heuristic placeholder, not a measured value.
	DetectionAccuracy int   `json:"detectionAccuracy"`
	SessionDuration   int64 `json:"sessionDuration"`
	TotalDetections   int   `json:"totalDetections"`
	TotalAlerts       int   `json:"totalAlerts"`
}

// ReviewDecision is the outcome of the post-session review policy.
type ReviewDecision struct {
	Required bool     `json:"required"`
	Reasons  []string `json:"reasons"`
}

// SessionSummary is the final record computed when a session ends.
type SessionSummary struct {
	SessionID          string          `json:"sessionId"`
	MockID             string          `json:"mockId"`
	UserEmail          string          `json:"userEmail"`
	SessionStartTime   time.Time       `json:"sessionStartTime"`
	SessionEndTime     time.Time       `json:"sessionEndTime"`
	SessionDuration    int64           `json:"sessionDuration"`
	FinalRiskScore     int             `json:"finalRiskScore"`
	FinalSeverityLevel Severity        `json:"finalSeverityLevel"`
	TotalAlerts        int             `json:"totalAlerts"`
	TotalViolations    int             `json:"totalViolations"`
	TotalDetections    int             `json:"totalDetections"`
	SessionAnalytics   Analytics       `json:"sessionAnalytics"`
	FinalDetectionData json.RawMessage `json:"finalDetectionData,omitempty"`
	Review             *ReviewDecision `json:"review,omitempty"`
	CompletedAt        time.Time       `json:"completedAt"`
}

package analytics

import (
	"sort"
	"strings"
	"time"

	"ihire-proctoring/backend/internal/proctoring/domain"
)

const (
	// Risk distribution buckets used by cross-session statistics.
	lowRiskBelow    = 30
	mediumRiskBelow = 70

	topViolations = 5
	trendSessions = 10
)

// SeverityBreakdown counts sessions per bucket.
type SeverityBreakdown struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

func (b *SeverityBreakdown) add(s domain.Severity) {
	switch s {
	case domain.SeverityHigh:
		b.High++
	case domain.SeverityMedium:
		b.Medium++
	default:
		b.Low++
	}
}

// MockSummary summarizes all sessions recorded for one interview.
type MockSummary struct {
	TotalSessions     int               `json:"totalSessions"`
	CompletedSessions int               `json:"completedSessions"`
	ActiveSessions    int               `json:"activeSessions"`
	AverageRiskScore  int               `json:"averageRiskScore"`
	TotalAlerts       int               `json:"totalAlerts"`
	SeverityBreakdown SeverityBreakdown `json:"severityBreakdown"`
}

// SummarizeMock computes the summary block returned with a per-interview session listing.
func SummarizeMock(sessions []*domain.Session) MockSummary {
	var out MockSummary
	riskSum := 0
	for _, s := range sessions {
		out.TotalSessions++
		if s.Ended() {
			out.CompletedSessions++
		} else {
			out.ActiveSessions++
		}
		riskSum += s.RiskScore
		out.TotalAlerts += len(s.Alerts)
		out.SeverityBreakdown.add(s.Severity)
	}
	if out.TotalSessions > 0 {
		out.AverageRiskScore = round(float64(riskSum) / float64(out.TotalSessions))
	}
	return out
}

// RiskTrend is one point of the recent-sessions risk series.
type RiskTrend struct {
	SessionID     string          `json:"sessionId"`
	MockID        string          `json:"mockId"`
	AverageRisk   int             `json:"averageRisk"`
	AlertCount    int             `json:"alertCount"`
	SeverityLevel domain.Severity `json:"severityLevel"`
	Duration      int64           `json:"duration"`
	Timestamp     *time.Time      `json:"timestamp"`
}

// DeviceStats counts sessions in which each device class was detected.
type DeviceStats struct {
	Phones   int `json:"phones"`
	Tablets  int `json:"tablets"`
	Monitors int `json:"monitors"`
	Unknown  int `json:"unknown"`
}

// MovementStats counts sessions in which each head-movement pattern was observed.
type MovementStats struct {
	Normal     int `json:"normal"`
	Excessive  int `json:"excessive"`
	Sudden     int `json:"sudden"`
	Continuous int `json:"continuous"`
}

// Statistics aggregates many sessions, typically filtered by user or date range.
type Statistics struct {
	TotalSessions          int                   `json:"totalSessions"`
	CompletedSessions      int                   `json:"completedSessions"`
	AverageRiskScore       int                   `json:"averageRiskScore"`
	PeakRiskScore          int                   `json:"peakRiskScore"`
	TotalAlerts            int                   `json:"totalAlerts"`
	ViolationTypes         *domain.Counter       `json:"violationTypes"`
	RiskDistribution       SeverityBreakdown     `json:"riskDistribution"`
	SeverityDistribution   SeverityBreakdown     `json:"severityDistribution"`
	DetectionAccuracy      int                   `json:"detectionAccuracy"`
	AverageSessionDuration int64                 `json:"averageSessionDuration"`
	MostCommonViolations   []domain.CounterEntry `json:"mostCommonViolations"`
	RiskTrends             []RiskTrend           `json:"riskTrends"`
	DeviceDetectionStats   DeviceStats           `json:"deviceDetectionStats"`
	MovementPatternStats   MovementStats         `json:"movementPatternStats"`
}

// Summarize computes cross-session statistics. ViolationTypes counts sessions per violation
// type, not individual violations.
func Summarize(sessions []*domain.Session, src RandSource) Statistics {
	out := Statistics{ViolationTypes: domain.NewCounter()}
	var riskSum int
	var durationSum int64
	for _, s := range sessions {
		out.TotalSessions++
		if s.Ended() {
			out.CompletedSessions++
		}
		riskSum += s.RiskScore
		durationSum += s.DurationSeconds
		out.TotalAlerts += len(s.Alerts)
		if s.RiskScore > out.PeakRiskScore {
			out.PeakRiskScore = s.RiskScore
		}
		switch {
		case s.RiskScore < lowRiskBelow:
			out.RiskDistribution.Low++
		case s.RiskScore < mediumRiskBelow:
			out.RiskDistribution.Medium++
		default:
			out.RiskDistribution.High++
		}
		out.SeverityDistribution.add(s.Severity)
		for _, e := range s.Violations.Entries() {
			if e.Count > 0 {
				out.ViolationTypes.Inc(e.Type, 1)
			}
		}
		for _, device := range s.Devices.Keys() {
			out.DeviceDetectionStats.add(device)
		}
		for _, pattern := range s.MovementPatterns.Keys() {
			out.MovementPatternStats.add(pattern)
		}
	}
	if out.TotalSessions > 0 {
		out.AverageRiskScore = round(float64(riskSum) / float64(out.TotalSessions))
		out.AverageSessionDuration = int64(round(float64(durationSum) / float64(out.TotalSessions)))
	}
	out.DetectionAccuracy = DetectionAccuracy(out.TotalAlerts, src)
	out.MostCommonViolations = TopEntries(out.ViolationTypes, topViolations)
	out.RiskTrends = recentTrends(sessions, trendSessions)
	return out
}

// TopEntries returns up to n entries ordered by count descending; ties keep first-seen order.
func TopEntries(c *domain.Counter, n int) []domain.CounterEntry {
	entries := c.Entries()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	if len(entries) > n {
		entries = entries[:n]
	}
	if entries == nil {
		entries = []domain.CounterEntry{}
	}
	return entries
}

// recentTrends returns the n most recently ended sessions, newest first. Live sessions sort last.
func recentTrends(sessions []*domain.Session, n int) []RiskTrend {
	sorted := make([]*domain.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].EndedAt, sorted[j].EndedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]RiskTrend, 0, len(sorted))
	for _, s := range sorted {
		out = append(out, RiskTrend{
			SessionID:     s.SessionID,
			MockID:        s.MockID,
			AverageRisk:   s.RiskScore,
			AlertCount:    len(s.Alerts),
			SeverityLevel: s.Severity,
			Duration:      s.DurationSeconds,
			Timestamp:     s.EndedAt,
		})
	}
	return out
}

func (d *DeviceStats) add(deviceType string) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(deviceType)), "s") {
	case "phone", "mobile", "smartphone":
		d.Phones++
	case "tablet":
		d.Tablets++
	case "monitor", "screen":
		d.Monitors++
	default:
		d.Unknown++
	}
}

func (m *MovementStats) add(pattern string) {
	switch strings.ToLower(strings.TrimSpace(pattern)) {
	case "normal":
		m.Normal++
	case "excessive":
		m.Excessive++
	case "sudden":
		m.Sudden++
	case "continuous":
		m.Continuous++
	}
}

// SessionBreakdown is the per-session row returned alongside cross-session statistics.
type SessionBreakdown struct {
	SessionID        string          `json:"sessionId"`
	MockID           string          `json:"mockId"`
	UserEmail        string          `json:"userEmail"`
	AverageRisk      int             `json:"averageRisk"`
	AlertCount       int             `json:"alertCount"`
	SeverityLevel    domain.Severity `json:"severityLevel"`
	Violations       []string        `json:"violations"`
	Devices          []string        `json:"devices"`
	MovementPatterns []string        `json:"movementPatterns"`
	StartTime        time.Time       `json:"startTime"`
	EndTime          *time.Time      `json:"endTime"`
	Duration         int64           `json:"duration"`
}

// Breakdown lists the violation types, device classes and movement patterns seen per session.
func Breakdown(sessions []*domain.Session) []SessionBreakdown {
	out := make([]SessionBreakdown, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionBreakdown{
			SessionID:        s.SessionID,
			MockID:           s.MockID,
			UserEmail:        s.UserEmail,
			AverageRisk:      s.RiskScore,
			AlertCount:       len(s.Alerts),
			SeverityLevel:    s.Severity,
			Violations:       s.Violations.Keys(),
			Devices:          s.Devices.Keys(),
			MovementPatterns: s.MovementPatterns.Keys(),
			StartTime:        s.StartedAt,
			EndTime:          s.EndedAt,
			Duration:         s.DurationSeconds,
		})
	}
	return out
}

// Package analytics reduces detection history and alerts into per-session and cross-session statistics.
// All functions are pure; randomness for the accuracy heuristic is injected.
package analytics

import (
	"math"
	"time"

	"ihire-proctoring/backend/internal/proctoring/domain"
)

// Severity thresholds. A session is high if any high threshold is reached, else medium if any
// medium threshold is reached, else low.
const (
	HighRiskThreshold        = 70
	HighAlertThreshold       = 10
	HighViolationThreshold   = 15
	MediumRiskThreshold      = 40
	MediumAlertThreshold     = 5
	MediumViolationThreshold = 8
)

// RandSource yields values in [0, 1). *math/rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// ClassifySeverity buckets a session by risk, alert count and violation count.
func ClassifySeverity(risk, alerts, violations int) domain.Severity {
	switch {
	case risk >= HighRiskThreshold || alerts >= HighAlertThreshold || violations >= HighViolationThreshold:
		return domain.SeverityHigh
	case risk >= MediumRiskThreshold || alerts >= MediumAlertThreshold || violations >= MediumViolationThreshold:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// AverageRisk returns the rounded mean risk score of history, 0 when empty.
// Samples without a risk score count as 0.
func AverageRisk(history []domain.DetectionEvent) int {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, e := range history {
		sum += e.RiskScore
	}
	return round(sum / float64(len(history)))
}

// PeakRisk returns the rounded maximum risk score of history, 0 when empty.
func PeakRisk(history []domain.DetectionEvent) int {
	if len(history) == 0 {
		return 0
	}
	peak := history[0].RiskScore
	for _, e := range history[1:] {
		if e.RiskScore > peak {
			peak = e.RiskScore
		}
	}
	return round(peak)
}

// MostCommonViolation returns the key with the highest count. Ties go to the key seen first.
// Returns "none" when there are no violations.
func MostCommonViolation(violations *domain.Counter) string {
	best, bestCount := domain.ViolationNone, 0
	for _, e := range violations.Entries() {
		if e.Count > bestCount {
			best, bestCount = e.Type, e.Count
		}
	}
	return best
}

// DetectionAccuracy is a placeholder heuristic, not a measurement: 90 when no alerts were raised,
// otherwise round(85 + r*10) with r drawn from src. A nil src uses the midpoint.
func DetectionAccuracy(totalAlerts int, src RandSource) int {
	if totalAlerts == 0 {
		return 90
	}
	r := 0.5
	if src != nil {
		r = src.Float64()
	}
	return round(85 + r*10)
}

// Aggregate computes the analytics of one session.
func Aggregate(history []domain.DetectionEvent, alerts []domain.Alert, violations *domain.Counter, durationSeconds int64, src RandSource) domain.Analytics {
	return domain.Analytics{
		AverageRisk:         AverageRisk(history),
		PeakRisk:            PeakRisk(history),
		TotalViolations:     violations.Total(),
		MostCommonViolation: MostCommonViolation(violations),
		DetectionAccuracy:   DetectionAccuracy(len(alerts), src),
		SessionDuration:     durationSeconds,
		TotalDetections:     len(history),
		TotalAlerts:         len(alerts),
	}
}

// DurationSeconds returns whole seconds from start to end, never negative.
func DurationSeconds(start, end time.Time) int64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

func round(f float64) int {
	return int(math.Round(f))
}

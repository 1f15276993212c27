package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"ihire-proctoring/backend/internal/proctoring/analytics"
	"ihire-proctoring/backend/internal/proctoring/domain"
	"ihire-proctoring/backend/internal/proctoring/repository"
	"ihire-proctoring/backend/internal/proctoring/service"
)

type startRequest struct {
	SessionID         string                    `json:"sessionId"`
	MockID            string                    `json:"mockId"`
	UserEmail         string                    `json:"userEmail"`
	DetectionSettings *domain.DetectionSettings `json:"detectionSettings"`
}

type updateRequest struct {
	SessionID       string                  `json:"sessionId"`
	MockID          string                  `json:"mockId"`
	RiskScore       float64                 `json:"riskScore"`
	DetectionData   json.RawMessage         `json:"detectionData"`
	Alerts          []alertPayload          `json:"alerts"`
	EnhancedMetrics *domain.EnhancedMetrics `json:"enhancedMetrics"`
	Violations      *domain.Counter         `json:"violations"`
	// DetectionHistory is accepted for compatibility with older clients and ignored;
	// the server keeps its own history.
	DetectionHistory json.RawMessage `json:"detectionHistory"`
}

type endRequest struct {
	SessionID          string          `json:"sessionId"`
	MockID             string          `json:"mockId"`
	FinalDetectionData json.RawMessage `json:"finalDetectionData"`
}

// alertPayload is an alert as sent by the browser, whose ids and timestamps may be numbers.
type alertPayload struct {
	ID             flexString `json:"id"`
	Type           string     `json:"type"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	Confidence     float64    `json:"confidence"`
	ViolationCount int        `json:"violationCount"`
	RiskScore      float64    `json:"riskScore"`
	Timestamp      flexTime   `json:"timestamp"`
}

func (r updateRequest) toService() service.UpdateRequest {
	out := service.UpdateRequest{
		SessionID:       r.SessionID,
		MockID:          r.MockID,
		RiskScore:       r.RiskScore,
		EnhancedMetrics: r.EnhancedMetrics,
		Violations:      r.Violations,
	}
	if !isNull(r.DetectionData) {
		out.DetectionData = r.DetectionData
	}
	for _, a := range r.Alerts {
		out.Alerts = append(out.Alerts, domain.Alert{
			ID:             string(a.ID),
			Type:           a.Type,
			Severity:       a.Severity,
			Message:        a.Message,
			Confidence:     a.Confidence,
			ViolationCount: a.ViolationCount,
			RiskScore:      a.RiskScore,
			Timestamp:      a.Timestamp.Time,
		})
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*s = ""
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var v string
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		*s = flexString(n.String())
		return nil
	}
}

// flexTime accepts an RFC 3339 string or Unix milliseconds.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", v, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// parseStatisticsFilter reads sessionId, userId (matched against the user email), startDate and
// endDate from the query.
func parseStatisticsFilter(q url.Values) (repository.Filter, error) {
	return service.StatisticsFilter(q.Get("sessionId"), q.Get("userId"), q.Get("startDate"), q.Get("endDate"))
}

type startResponse struct {
	Success          bool            `json:"success"`
	Message          string          `json:"message"`
	SessionID        string          `json:"sessionId"`
	MockID           string          `json:"mockId"`
	SessionStartTime time.Time       `json:"sessionStartTime"`
	SessionRecord    *domain.Session `json:"sessionRecord,omitempty"`
}

type updateResponse struct {
	Success              bool            `json:"success"`
	Message              string          `json:"message"`
	SessionID            string          `json:"sessionId"`
	MockID               string          `json:"mockId"`
	SessionRiskScore     int             `json:"sessionRiskScore"`
	SessionSeverityLevel domain.Severity `json:"sessionSeverityLevel"`
	SessionDuration      int64           `json:"sessionDuration"`
	AlertCount           int             `json:"alertCount"`
	DetectionCount       int             `json:"detectionCount"`
}

type endResponse struct {
	Success        bool                   `json:"success"`
	Message        string                 `json:"message"`
	SessionSummary *domain.SessionSummary `json:"sessionSummary"`
	Analytics      domain.Analytics       `json:"analytics"`
}

type listResponse struct {
	Success      bool                  `json:"success"`
	Sessions     []*domain.Session     `json:"sessions"`
	SummaryStats analytics.MockSummary `json:"summaryStats"`
	TotalCount   int                   `json:"totalCount"`
	Message      string                `json:"message,omitempty"`
}

type statisticsResponse struct {
	Success          bool                         `json:"success"`
	Statistics       analytics.Statistics         `json:"statistics"`
	SessionBreakdown []analytics.SessionBreakdown `json:"sessionBreakdown"`
}

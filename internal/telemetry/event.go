package telemetry

import (
	"encoding/json"
	"time"
)

// Proctoring lifecycle event types.
const (
	EventSessionStarted = "session_started"
	EventSessionUpdated = "session_updated"
	EventSessionEnded   = "session_ended"

	// EventHTTPRequest is emitted by the request middleware for every API call.
	EventHTTPRequest = "http_request"
)

// Event is one proctoring lifecycle or request event. It is the JSON value written to Kafka and the
// attribute set of the OTel log record.
type Event struct {
	EventType  string          `json:"eventType"`
	Source     string          `json:"source,omitempty"`
	SessionID  string          `json:"sessionId"`
	MockID     string          `json:"mockId"`
	UserEmail  string          `json:"userEmail,omitempty"`
	RiskScore  int             `json:"riskScore"`
	Severity   string          `json:"severity,omitempty"`
	AlertCount int             `json:"alertCount"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

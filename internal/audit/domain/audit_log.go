package domain

import "time"

// AuditLog is one audited call against the proctoring API. Action is the route verb (start,
// update, end, export). SessionID and MockID name the proctoring session the call acted on and
// are empty when the request did not identify one.
type AuditLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	SessionID string    `json:"sessionId,omitempty"`
	MockID    string    `json:"mockId,omitempty"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filter narrows an audit listing. Empty fields match every entry.
// Limit caps the result; zero or negative selects DefaultListLimit.
type Filter struct {
	SessionID string
	MockID    string
	Limit     int
}

// DefaultListLimit bounds listings that do not set Filter.Limit.
const DefaultListLimit = 100

// Matches reports whether a satisfies the SessionID and MockID constraints of f.
func (f Filter) Matches(a *AuditLog) bool {
	if f.SessionID != "" && a.SessionID != f.SessionID {
		return false
	}
	return f.MockID == "" || a.MockID == f.MockID
}

// EffectiveLimit returns f.Limit, or DefaultListLimit when it is unset.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

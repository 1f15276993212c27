// Package live fans session snapshots out to websocket subscribers watching a mock interview.
package live

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// subscriberBuffer bounds the snapshots queued for one slow subscriber before new ones are dropped.
const subscriberBuffer = 32

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("live: hub closed")

// Snapshot is the state pushed to live subscribers after each lifecycle operation.
type Snapshot struct {
	Event           string    `json:"event"` // started, updated, ended
	SessionID       string    `json:"sessionId"`
	MockID          string    `json:"mockId"`
	UserEmail       string    `json:"userEmail,omitempty"`
	RiskScore       int       `json:"riskScore"`
	Severity        string    `json:"severityLevel"`
	AlertCount      int       `json:"alertCount"`
	DetectionCount  int       `json:"detectionCount"`
	DurationSeconds int64     `json:"sessionDuration"`
	Timestamp       time.Time `json:"timestamp"`
}

type subscriber struct {
	sessionID string // empty matches every session of the mock
	ch        chan Snapshot
}

// Hub routes snapshots to subscribers keyed by mock ID. Publish never blocks.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	closed  bool
	dropped atomic.Int64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers interest in mockID, optionally narrowed to one sessionID.
// The returned cancel func unregisters and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(mockID, sessionID string) (<-chan Snapshot, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, ErrHubClosed
	}
	s := &subscriber{sessionID: sessionID, ch: make(chan Snapshot, subscriberBuffer)}
	if h.subs[mockID] == nil {
		h.subs[mockID] = make(map[*subscriber]struct{})
	}
	h.subs[mockID][s] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[mockID]; ok {
				if _, ok := set[s]; ok {
					delete(set, s)
					close(s.ch)
				}
				if len(set) == 0 {
					delete(h.subs, mockID)
				}
			}
		})
	}
	return s.ch, cancel, nil
}

// Publish delivers snap to every matching subscriber whose buffer has room.
func (h *Hub) Publish(snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[snap.MockID] {
		if s.sessionID != "" && s.sessionID != snap.SessionID {
			continue
		}
		select {
		case s.ch <- snap:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions for mockID.
func (h *Hub) Subscribers(mockID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[mockID])
}

// Dropped returns how many snapshots were discarded because a subscriber was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close unregisters all subscribers and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for mockID, set := range h.subs {
		for s := range set {
			close(s.ch)
		}
		delete(h.subs, mockID)
	}
}

package service

import (
	"context"
	"encoding/json"

	"ihire-proctoring/backend/internal/live"
	"ihire-proctoring/backend/internal/proctoring/domain"
	"ihire-proctoring/backend/internal/telemetry"
)

// eventSource is the source field of emitted lifecycle events.
const eventSource = "proctoring"

var liveEvents = map[string]string{
	telemetry.EventSessionStarted: "started",
	telemetry.EventSessionUpdated: "updated",
	telemetry.EventSessionEnded:   "ended",
}

// notify pushes a live snapshot and emits a lifecycle event. Both are best-effort and non-blocking.
func (s *Service) notify(ctx context.Context, eventType string, sess *domain.Session, metadata json.RawMessage) {
	now := s.now()
	if s.publisher != nil {
		s.publisher.Publish(live.Snapshot{
			Event:           liveEvents[eventType],
			SessionID:       sess.SessionID,
			MockID:          sess.MockID,
			UserEmail:       sess.UserEmail,
			RiskScore:       sess.RiskScore,
			Severity:        string(sess.Severity),
			AlertCount:      len(sess.Alerts),
			DetectionCount:  len(sess.DetectionHistory),
			DurationSeconds: sess.DurationSeconds,
			Timestamp:       now,
		})
	}
	telemetry.EmitAsync(s.emitter, ctx, &telemetry.Event{
		EventType:  eventType,
		Source:     eventSource,
		SessionID:  sess.SessionID,
		MockID:     sess.MockID,
		UserEmail:  sess.UserEmail,
		RiskScore:  sess.RiskScore,
		Severity:   string(sess.Severity),
		AlertCount: len(sess.Alerts),
		Metadata:   metadata,
		CreatedAt:  now,
	})
}

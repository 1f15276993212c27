package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SessionMetrics records proctoring lifecycle instruments on an OTel meter.
type SessionMetrics struct {
	started   metric.Int64Counter
	updates   metric.Int64Counter
	ended     metric.Int64Counter
	conflicts metric.Int64Counter
	finalRisk metric.Int64Histogram
}

// NewSessionMetrics creates the lifecycle instruments on meter.
func NewSessionMetrics(meter metric.Meter) (*SessionMetrics, error) {
	started, err := meter.Int64Counter("proctoring.sessions.started",
		metric.WithDescription("Sessions started or restarted"))
	if err != nil {
		return nil, err
	}
	updates, err := meter.Int64Counter("proctoring.sessions.updates",
		metric.WithDescription("Detection updates applied"))
	if err != nil {
		return nil, err
	}
	ended, err := meter.Int64Counter("proctoring.sessions.ended",
		metric.WithDescription("Sessions finalized"))
	if err != nil {
		return nil, err
	}
	conflicts, err := meter.Int64Counter("proctoring.sessions.version_conflicts",
		metric.WithDescription("Concurrent-write retries on a session"))
	if err != nil {
		return nil, err
	}
	finalRisk, err := meter.Int64Histogram("proctoring.sessions.final_risk",
		metric.WithDescription("Average risk score of finalized sessions"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 40, 50, 60, 70, 80, 90, 100))
	if err != nil {
		return nil, err
	}
	return &SessionMetrics{
		started:   started,
		updates:   updates,
		ended:     ended,
		conflicts: conflicts,
		finalRisk: finalRisk,
	}, nil
}

// SessionStarted counts a start; restarted is true when an existing row was reset.
func (m *SessionMetrics) SessionStarted(ctx context.Context, restarted bool) {
	if m == nil {
		return
	}
	m.started.Add(ctx, 1, metric.WithAttributes(attribute.Bool("restarted", restarted)))
}

// SessionUpdated counts an applied update.
func (m *SessionMetrics) SessionUpdated(ctx context.Context, severity string) {
	if m == nil {
		return
	}
	m.updates.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", severity)))
}

// SessionEnded counts a finalized session and records its final risk.
func (m *SessionMetrics) SessionEnded(ctx context.Context, risk int, severity string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("severity", severity))
	m.ended.Add(ctx, 1, attrs)
	m.finalRisk.Record(ctx, int64(risk), attrs)
}

// VersionConflict counts one retry caused by a concurrent write.
func (m *SessionMetrics) VersionConflict(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

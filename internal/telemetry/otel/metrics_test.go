package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSessionMetrics(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m, err := NewSessionMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewSessionMetrics: %v", err)
	}
	ctx := context.Background()
	m.SessionStarted(ctx, false)
	m.SessionStarted(ctx, true)
	m.SessionUpdated(ctx, "low")
	m.VersionConflict(ctx, "update")
	m.SessionEnded(ctx, 55, "medium")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	sums := map[string]int64{}
	var histCount uint64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[md.Name] += dp.Value
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					histCount += dp.Count
				}
			}
		}
	}
	want := map[string]int64{
		"proctoring.sessions.started":           2,
		"proctoring.sessions.updates":           1,
		"proctoring.sessions.ended":             1,
		"proctoring.sessions.version_conflicts": 1,
	}
	for name, v := range want {
		if sums[name] != v {
			t.Errorf("%s = %d, want %d", name, sums[name], v)
		}
	}
	if histCount != 1 {
		t.Errorf("final_risk count = %d, want 1", histCount)
	}
}

func TestSessionMetrics_NilSafe(t *testing.T) {
	var m *SessionMetrics
	ctx := context.Background()
	m.SessionStarted(ctx, false)
	m.SessionUpdated(ctx, "low")
	m.SessionEnded(ctx, 1, "low")
	m.VersionConflict(ctx, "end")
}

package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"ihire-proctoring/backend/internal/telemetry"
)

// recordCapture keeps the last record it was given.
type recordCapture struct {
	rec   otellog.Record
	calls int
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.rec = rec
	r.calls++
}

func attributes(rec otellog.Record) map[string]otellog.Value {
	attrs := make(map[string]otellog.Value)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	return attrs
}

var observed = time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)

func newTestEmitter() (*LogEmitter, *recordCapture) {
	capture := &recordCapture{}
	em := NewLogEmitter(capture)
	em.now = func() time.Time { return observed }
	return em, capture
}

func TestNewEventEmitter_NilProvider(t *testing.T) {
	em := NewEventEmitter(nil)
	if err := em.Emit(context.Background(), &telemetry.Event{SessionID: "s1"}); err != nil {
		t.Errorf("Emit: %v", err)
	}

	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	if err := NewEventEmitter(provider).Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil event): %v", err)
	}
}

func TestLogEmitter_Mapping(t *testing.T) {
	em, capture := newTestEmitter()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	event := &telemetry.Event{
		EventType:  telemetry.EventSessionEnded,
		Source:     "proctoring",
		SessionID:  "s1",
		MockID:     "m1",
		UserEmail:  "candidate@example.com",
		RiskScore:  55,
		Severity:   "medium",
		AlertCount: 2,
		Metadata:   []byte(`{"mostCommonViolation":"faceDetection"}`),
		CreatedAt:  created,
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.rec

	if rec.EventName() != telemetry.EventSessionEnded {
		t.Errorf("EventName = %q, want %q", rec.EventName(), telemetry.EventSessionEnded)
	}
	if got := rec.Body().AsBytes(); string(got) != string(event.Metadata) {
		t.Errorf("body = %q, want %q", got, event.Metadata)
	}
	if !rec.Timestamp().Equal(created) || !rec.ObservedTimestamp().Equal(observed) {
		t.Errorf("timestamps = %v / %v, want %v / %v", rec.Timestamp(), rec.ObservedTimestamp(), created, observed)
	}
	if rec.Severity() != otellog.SeverityWarn || rec.SeverityText() != "WARN" {
		t.Errorf("severity = %v %q, want WARN", rec.Severity(), rec.SeverityText())
	}

	attrs := attributes(rec)
	wantStrings := map[string]string{
		"event_type": telemetry.EventSessionEnded,
		"source":     "proctoring",
		"session_id": "s1",
		"mock_id":    "m1",
		"user_email": "candidate@example.com",
		"severity":   "medium",
	}
	for k, v := range wantStrings {
		if got := attrs[k].AsString(); got != v {
			t.Errorf("attr %q = %q, want %q", k, got, v)
		}
	}
	if got := attrs["risk_score"].AsInt64(); got != 55 {
		t.Errorf("risk_score = %d, want 55", got)
	}
	if got := attrs["alert_count"].AsInt64(); got != 2 {
		t.Errorf("alert_count = %d, want 2", got)
	}
}

func TestLogEmitter_SparseEvent(t *testing.T) {
	em, capture := newTestEmitter()
	if err := em.Emit(context.Background(), &telemetry.Event{EventType: telemetry.EventSessionStarted}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.rec
	if got := rec.Body().AsString(); got != telemetry.EventSessionStarted {
		t.Errorf("body = %q, want the event type", got)
	}
	if !rec.Timestamp().Equal(observed) {
		t.Errorf("timestamp = %v, want observed time %v", rec.Timestamp(), observed)
	}
	attrs := attributes(rec)
	for _, k := range []string{"source", "session_id", "mock_id", "user_email", "severity"} {
		if _, ok := attrs[k]; ok {
			t.Errorf("attr %q should not be set for empty value", k)
		}
	}
}

func TestLogSeverity(t *testing.T) {
	testCases := []struct {
		in   string
		want otellog.Severity
	}{
		{"", otellog.SeverityInfo},
		{"low", otellog.SeverityInfo},
		{"medium", otellog.SeverityWarn},
		{"high", otellog.SeverityError},
		{"unknown", otellog.SeverityInfo},
	}
	for _, tc := range testCases {
		if got, _ := logSeverity(tc.in); got != tc.want {
			t.Errorf("logSeverity(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLogEmitter_NilSafe(t *testing.T) {
	em, capture := newTestEmitter()
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
	if capture.calls != 0 {
		t.Errorf("logger called %d times for nil event", capture.calls)
	}
	var nilEmitter *LogEmitter
	if err := nilEmitter.Emit(context.Background(), &telemetry.Event{}); err != nil {
		t.Errorf("nil emitter Emit: %v", err)
	}
}

package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"ihire-proctoring/backend/internal/telemetry"
)

// LoggerName is the instrumentation scope of lifecycle event records.
const LoggerName = "ihire-proctoring.sessions"

// RecordLogger is the part of otellog.Logger the emitter needs.
type RecordLogger interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that writes events as OTel log records. A nil provider
// yields an emitter that drops everything.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.EventEmitterFunc(func(context.Context, *telemetry.Event) error { return nil })
	}
	return &LogEmitter{logger: provider.Logger(LoggerName), now: time.Now}
}

// LogEmitter maps lifecycle events onto OTel log records.
type LogEmitter struct {
	logger RecordLogger
	now    func() time.Time
}

// NewLogEmitter returns a LogEmitter writing to logger.
func NewLogEmitter(logger RecordLogger) *LogEmitter {
	return &LogEmitter{logger: logger, now: time.Now}
}

// Emit writes one record. The event type is the record's event name; the session risk severity
// picks the log severity; metadata, when present, is the body.
func (e *LogEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if e == nil || e.logger == nil || event == nil {
		return nil
	}
	var rec otellog.Record
	rec.SetEventName(event.EventType)
	rec.SetObservedTimestamp(e.now().UTC())
	if event.CreatedAt.IsZero() {
		rec.SetTimestamp(rec.ObservedTimestamp())
	} else {
		rec.SetTimestamp(event.CreatedAt)
	}
	sev, text := logSeverity(event.Severity)
	rec.SetSeverity(sev)
	rec.SetSeverityText(text)
	if len(event.Metadata) > 0 {
		rec.SetBody(otellog.BytesValue(event.Metadata))
	} else {
		rec.SetBody(otellog.StringValue(event.EventType))
	}

	attrs := make([]otellog.KeyValue, 0, 8)
	for _, kv := range [...]struct{ key, value string }{
		{"event_type", event.EventType},
		{"source", event.Source},
		{"session_id", event.SessionID},
		{"mock_id", event.MockID},
		{"user_email", event.UserEmail},
		{"severity", event.Severity},
	} {
		if kv.value != "" {
			attrs = append(attrs, otellog.String(kv.key, kv.value))
		}
	}
	attrs = append(attrs,
		otellog.Int("risk_score", event.RiskScore),
		otellog.Int("alert_count", event.AlertCount),
	)
	rec.AddAttributes(attrs...)
	e.logger.Emit(ctx, rec)
	return nil
}

// logSeverity maps a session severity (low, medium or high) to a log severity. Events
// without one, such as session starts, are informational.
func logSeverity(severity string) (otellog.Severity, string) {
	switch severity {
	case "medium":
		return otellog.SeverityWarn, "WARN"
	case "high":
		return otellog.SeverityError, "ERROR"
	default:
		return otellog.SeverityInfo, "INFO"
	}
}

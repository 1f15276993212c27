package telemetry

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the longest Drain should be allowed to wait at shutdown; it covers one
// full emitTimeout.
const ShutdownDrainDuration = emitTimeout

// drainPoll is how often Drain rechecks the in-flight count.
const drainPoll = 10 * time.Millisecond

var inflight atomic.Int64

// EmitAsync emits event in a goroutine so request handlers are not blocked. The goroutine keeps
// ctx's values (trace span, identity) but not its cancellation, and gives up after emitTimeout.
// Errors are logged. A nil emitter or event is ignored.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Add(-1)
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit %s failed: %v", event.EventType, err)
		}
	}()
}

// Drain blocks until every EmitAsync goroutine has finished or ctx is done. Call it after the
// servers stop and before the providers flush.
func Drain(ctx context.Context) error {
	tick := time.NewTicker(drainPoll)
	defer tick.Stop()
	for inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Package relay moves lifecycle events from Kafka into Loki. Offsets are committed only after a
// batch is accepted by Loki, so delivery is at least once.
package relay

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"ihire-proctoring/backend/internal/telemetry/loki"
	"ihire-proctoring/backend/internal/telemetry/producer"
)

const (
	DefaultBatchSize    = 100
	DefaultFlushEvery   = time.Second
	DefaultRetryBackoff = 2 * time.Second

	finalFlushTimeout = 5 * time.Second
)

// Reader is the consumer-group side of kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Pusher is the Loki side.
type Pusher interface {
	Push(ctx context.Context, entries ...loki.Entry) error
}

// Options tune batching. Zero values take the defaults above.
type Options struct {
	BatchSize    int
	FlushEvery   time.Duration
	RetryBackoff time.Duration
}

// Relay forwards messages from a Reader to a Pusher in batches.
type Relay struct {
	reader Reader
	pusher Pusher
	opts   Options
	now    func() time.Time
}

// New returns a Relay.
func New(reader Reader, pusher Pusher, opts Options) *Relay {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	return &Relay{reader: reader, pusher: pusher, opts: opts, now: time.Now}
}

// Run consumes until ctx is done or the reader is closed. A batch is flushed when it is full or
// when no new message arrives within FlushEvery. While Loki rejects a batch, Run retries it and
// stops fetching. On shutdown the pending batch gets one last attempt.
func (r *Relay) Run(ctx context.Context) error {
	var (
		batch []kafka.Message
		due   bool
	)
	for {
		if len(batch) > 0 && (due || len(batch) >= r.opts.BatchSize) {
			if err := r.flush(ctx, batch); err != nil {
				log.Printf("relay: flush of %d events failed, retrying: %v", len(batch), err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(r.opts.RetryBackoff):
				}
				continue
			}
			batch, due = batch[:0], false
		}

		msg, err := r.fetch(ctx, len(batch) > 0)
		switch {
		case err == nil:
			batch = append(batch, msg)
		case ctx.Err() != nil:
			if len(batch) > 0 {
				finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
				if err := r.flush(finalCtx, batch); err != nil {
					log.Printf("relay: final flush of %d events failed; they will be redelivered: %v", len(batch), err)
				}
				cancel()
			}
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			due = true
		case errors.Is(err, io.EOF):
			return nil
		default:
			log.Printf("relay: fetch: %v", err)
		}
	}
}

// fetch waits at most FlushEvery when a batch is pending.
func (r *Relay) fetch(ctx context.Context, pending bool) (kafka.Message, error) {
	if !pending {
		return r.reader.FetchMessage(ctx)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.FlushEvery)
	defer cancel()
	return r.reader.FetchMessage(fetchCtx)
}

func (r *Relay) flush(ctx context.Context, batch []kafka.Message) error {
	entries := make([]loki.Entry, 0, len(batch))
	for _, msg := range batch {
		if _, err := producer.Decode(msg); err != nil {
			log.Printf("relay: partition %d offset %d is not a lifecycle event, forwarding raw: %v", msg.Partition, msg.Offset, err)
		}
		fallback := msg.Time
		if fallback.IsZero() {
			fallback = r.now()
		}
		entries = append(entries, loki.EntryFromEvent(msg.Value, fallback))
	}
	if err := r.pusher.Push(ctx, entries...); err != nil {
		return err
	}
	if err := r.reader.CommitMessages(ctx, batch...); err != nil {
		log.Printf("relay: commit failed; %d events may be redelivered: %v", len(batch), err)
	}
	return nil
}

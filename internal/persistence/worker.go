package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"MarketLedger/internal/event"
	"MarketLedger/internal/observability"
)

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// This goroutine runs independently from the core; the persist channel uses
// blocking sends, so if this worker falls behind the core stalls instead of
// losing an event.
type PersistenceWorker struct {
	db           *sql.DB
	writer       *EventLogWriter
	inputChan    <-chan *event.Envelope
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan *event.Envelope,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		db:           db,
		writer:       NewEventLogWriter(batchSize, flushTimeout),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming envelopes and
// flushes either when the batch is full or the flush timeout expires.
// Blocks until ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	eventBatch := make([]EventRow, 0, pw.batchSize)
	betBatch := make([]BetRow, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if len(eventBatch) > 0 {
				if err := pw.flush(context.Background(), eventBatch, betBatch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case env, ok := <-pw.inputChan:
			if !ok {
				// Channel closed — flush and exit
				if len(eventBatch) > 0 {
					if err := pw.flush(context.Background(), eventBatch, betBatch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			row, bet, err := RowsFromEnvelope(env)
			if err != nil {
				// Marshal failure is a programming error; the envelope is
				// unwritable, not retryable.
				log.Printf("ERROR: drop unmarshalable envelope seq %d: %v", env.Sequence, err)
				pw.metrics.PersistErrors.WithLabelValues("marshal").Inc()
				continue
			}
			eventBatch = append(eventBatch, row)
			if bet != nil {
				betBatch = append(betBatch, *bet)
			}

			if len(eventBatch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, eventBatch, betBatch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				eventBatch = eventBatch[:0]
				betBatch = betBatch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if len(eventBatch) > 0 {
				if err := pw.flushWithRetry(ctx, eventBatch, betBatch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				eventBatch = eventBatch[:0]
				betBatch = betBatch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// never drops a batch — it retries until the write succeeds or, on context
// cancellation, makes one final attempt with a background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, events []EventRow, bets []BetRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, events=%d)",
				attempt, backoff, len(events))
			select {
			case <-ctx.Done():
				finalErr := pw.flush(context.Background(), events, bets)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, events, bets)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		pw.metrics.PersistRetry.Inc()
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, events []EventRow, bets []BetRow) error {
	start := time.Now()

	// Events and bet rows commit atomically.
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, events); err != nil {
		pw.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		return err
	}
	if err := pw.writer.WriteBetBatch(ctx, tx, bets); err != nil {
		pw.metrics.PersistErrors.WithLabelValues("write_bets").Inc()
		return err
	}

	if err := tx.Commit(); err != nil {
		pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		return err
	}

	pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
	pw.metrics.PersistBatchSize.Observe(float64(len(events)))
	pw.metrics.PersistEventsWritten.Add(float64(len(events)))
	pw.metrics.PersistBetsWritten.Add(float64(len(bets)))
	if len(events) > 0 {
		pw.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
	}
	return nil
}

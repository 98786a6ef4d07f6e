// Package projection maintains eventually consistent read models derived
// from the event log. Projections are disposable: if the worker falls
// behind or a row is lost, RebuildProjections replays the log.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"MarketLedger/internal/event"
	"MarketLedger/internal/observability"
)

// Worker consumes envelopes from the fan-out dispatcher and updates the
// projections schema. Each envelope is applied in its own transaction
// together with a watermark bump, so the watermark never runs ahead of
// the rows it covers.
type Worker struct {
	db        *sql.DB
	inputChan <-chan *event.Envelope
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan *event.Envelope, metrics *observability.Metrics, log zerolog.Logger) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       log,
	}
}

// Run drains the input channel until the context is cancelled or the
// channel closes. Failures are logged and skipped: the projection is
// rebuildable, so a dropped update is an inconsistency window, not a
// correctness problem.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := w.apply(ctx, env); err != nil {
				w.log.Warn().
					Int64("sequence", env.Sequence).
					Str("event_type", env.EventType.String()).
					Err(err).
					Msg("projection update failed, continuing")
				continue
			}
			if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, env *event.Envelope) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch ev := env.Event.(type) {
	case *event.Mint:
		if err := creditBalance(ctx, tx, ev.Token.Hex(), ev.To.Hex(), ev.Amount.String(), env.Sequence); err != nil {
			return fmt.Errorf("mint projection: %w", err)
		}

	case *event.Transfer:
		if err := debitBalance(ctx, tx, ev.Token.Hex(), ev.From.Hex(), ev.Amount.String(), env.Sequence); err != nil {
			return fmt.Errorf("transfer debit projection: %w", err)
		}
		if err := creditBalance(ctx, tx, ev.Token.Hex(), ev.To.Hex(), ev.Amount.String(), env.Sequence); err != nil {
			return fmt.Errorf("transfer credit projection: %w", err)
		}

	case *event.BuyOrder:
		if err := insertOrder(ctx, tx, env.Sequence, "buy", ev.Buyer.Hex(), ev.Token.Hex(),
			ev.Amount.String(), ev.OldPrice.String(), env.Timestamp); err != nil {
			return fmt.Errorf("buy order projection: %w", err)
		}

	case *event.SellOrder:
		if err := insertOrder(ctx, tx, env.Sequence, "sell", ev.Seller.Hex(), ev.Token.Hex(),
			ev.Amount.String(), ev.OldPrice.String(), env.Timestamp); err != nil {
			return fmt.Errorf("sell order projection: %w", err)
		}
	}

	// The watermark advances on every envelope, including types this
	// worker ignores, so readers can tell staleness from emptiness.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET sequence = $1, updated_at = NOW()
	`, env.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func creditBalance(ctx context.Context, tx *sql.Tx, token, account, amount string, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (token, account, balance, updated_sequence)
		VALUES ($1, $2, $3::NUMERIC, $4)
		ON CONFLICT (token, account)
		DO UPDATE SET balance = projections.balances.balance + $3::NUMERIC, updated_sequence = $4
	`, token, account, amount, seq)
	return err
}

func debitBalance(ctx context.Context, tx *sql.Tx, token, account, amount string, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (token, account, balance, updated_sequence)
		VALUES ($1, $2, -$3::NUMERIC, $4)
		ON CONFLICT (token, account)
		DO UPDATE SET balance = projections.balances.balance - $3::NUMERIC, updated_sequence = $4
	`, token, account, amount, seq)
	return err
}

func insertOrder(ctx context.Context, tx *sql.Tx, seq int64, side, trader, token, amount, price string, ts time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.orders (sequence, side, trader, token, amount, price, timestamp)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)
		ON CONFLICT (sequence) DO NOTHING
	`, seq, side, trader, token, amount, price, ts)
	return err
}

// RebuildProjections truncates the projection tables and re-derives them
// from event_log.events. Balances fold Mint credits plus Transfer legs;
// orders are re-inserted from the filled-order events. Everything happens
// in SQL over the JSONB payloads, so a rebuild needs no replay machinery
// in the application.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.orders`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Mint and Transfer credits.
	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (token, account, balance, updated_sequence)
		SELECT
			payload->>'token' AS token,
			payload->>'to'    AS account,
			SUM((payload->>'amount')::NUMERIC) AS balance,
			MAX(sequence) AS updated_sequence
		FROM event_log.events
		WHERE event_type IN ('Mint', 'Transfer')
		GROUP BY payload->>'token', payload->>'to'
	`); err != nil {
		return fmt.Errorf("rebuild credits: %w", err)
	}

	// Transfer debits.
	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (token, account, balance, updated_sequence)
		SELECT
			payload->>'token' AS token,
			payload->>'from'  AS account,
			-SUM((payload->>'amount')::NUMERIC) AS balance,
			MAX(sequence) AS updated_sequence
		FROM event_log.events
		WHERE event_type = 'Transfer'
		GROUP BY payload->>'token', payload->>'from'
		ON CONFLICT (token, account) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    updated_sequence = GREATEST(projections.balances.updated_sequence, EXCLUDED.updated_sequence)
	`); err != nil {
		return fmt.Errorf("rebuild debits: %w", err)
	}

	// Filled order history.
	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.orders (sequence, side, trader, token, amount, price, timestamp)
		SELECT
			sequence,
			CASE event_type WHEN 'BuyOrder' THEN 'buy' ELSE 'sell' END,
			COALESCE(payload->>'buyer', payload->>'seller'),
			payload->>'token',
			(payload->>'amount')::NUMERIC,
			(payload->>'old_price')::NUMERIC,
			timestamp
		FROM event_log.events
		WHERE event_type IN ('BuyOrder', 'SellOrder')
		ON CONFLICT (sequence) DO NOTHING
	`); err != nil {
		return fmt.Errorf("rebuild orders: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, sequence, updated_at)
		SELECT 'main', MAX(sequence), NOW() FROM event_log.events
		HAVING MAX(sequence) IS NOT NULL
		ON CONFLICT (worker_id) DO UPDATE SET sequence = EXCLUDED.sequence, updated_at = NOW()
	`); err != nil {
		return fmt.Errorf("rebuild watermark: %w", err)
	}

	return nil
}

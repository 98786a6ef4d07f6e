package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"MarketLedger/internal/event"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventLogWriter writes events and bet rows to Postgres using batch inserts.
// Multi-row INSERT is used as a portable alternative to the COPY protocol;
// switch to pgx CopyFrom if write throughput ever becomes the bottleneck.
type EventLogWriter struct {
	batchSize    int
	flushTimeout time.Duration
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	MarketID       *int64
	Caller         string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// BetRow represents a row in event_log.bets, the side table that makes bet
// history queryable without unpacking event payloads.
type BetRow struct {
	Sequence  int64
	MarketID  int64
	Bettor    string
	Outcome   string
	Amount    string // NUMERIC(78,0), decimal string
	Price     string
	Timestamp time.Time
}

func NewEventLogWriter(batchSize int, flushTimeout time.Duration) *EventLogWriter {
	return &EventLogWriter{
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// RowsFromEnvelope converts one envelope into its event row and, for bets,
// the bet side-table row.
func RowsFromEnvelope(env *event.Envelope) (EventRow, *BetRow, error) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return EventRow{}, nil, fmt.Errorf("marshal payload seq %d: %w", env.Sequence, err)
	}

	row := EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		MarketID:       env.MarketID,
		Caller:         env.Caller.Hex(),
		Payload:        payload,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
	}

	var bet *BetRow
	if b, ok := env.Event.(*event.BetPlaced); ok {
		bet = &BetRow{
			Sequence:  env.Sequence,
			MarketID:  b.ID,
			Bettor:    b.Bettor.Hex(),
			Outcome:   b.Outcome,
			Amount:    b.Amount.String(),
			Price:     b.Price.String(),
			Timestamp: b.Timestamp,
		}
	}
	return row, bet, nil
}

// WriteEventBatch writes a batch of events to event_log.events using
// multi-row INSERT. ON CONFLICT DO NOTHING keeps replays idempotent.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, market_id, caller, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.MarketID, e.Caller,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteBetBatch writes a batch of bet rows to event_log.bets.
func (w *EventLogWriter) WriteBetBatch(ctx context.Context, ex execer, bets []BetRow) error {
	if len(bets) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.bets
		(sequence, market_id, bettor, outcome, amount, price, timestamp)
		VALUES `

	values := make([]string, 0, len(bets))
	args := make([]interface{}, 0, len(bets)*7)

	for i, b := range bets {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			b.Sequence, b.MarketID, b.Bettor, b.Outcome, b.Amount, b.Price, b.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

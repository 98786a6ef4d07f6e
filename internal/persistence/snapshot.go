package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"MarketLedger/internal/core"

	"github.com/google/uuid"
)

// SnapshotManager persists and loads full-state snapshots. A snapshot is
// the JSON-encoded core.SnapshotState; on restart the latest one is loaded
// and the engine resumes its hash chain from there.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to event_log.snapshots. A re-save at the
// same sequence overwrites the stored blob.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *core.SnapshotState) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded core.SnapshotState

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, state_hash, format_version, size_bytes, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $6, state_hash = $3, size_bytes = $5
	`, snapshotID, snap.Sequence, snap.StateHash.Bytes(), formatVersion, len(data), data, snap.CreatedAt)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent snapshot, or nil on cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.SnapshotState, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LoadEventsFrom loads events from a given sequence in order, for projection
// rebuilds and audit tooling.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, market_id, caller, payload,
		       state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.MarketID, &e.Caller,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, or -1
// when the log is empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// SnapshotAge reports how long ago the latest snapshot was taken.
func (sm *SnapshotManager) SnapshotAge(ctx context.Context) (time.Duration, error) {
	var createdAt time.Time
	err := sm.db.QueryRowContext(ctx, `
		SELECT created_at FROM event_log.snapshots ORDER BY sequence DESC LIMIT 1
	`).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return time.Since(createdAt), nil
}

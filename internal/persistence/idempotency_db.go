package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresIdempotencyChecker is the cold tier of command deduplication: a
// lookup against the durable event log for keys that have aged out of the
// in-memory LRU.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db: db,
	}
}

// IsDuplicate checks whether a command key already produced an event.
func (pic *PostgresIdempotencyChecker) IsDuplicate(idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	query := `
        SELECT 1
        FROM event_log.events
        WHERE idempotency_key = $1
        LIMIT 1
    `

	var exists int
	err := pic.db.QueryRowContext(ctx, query, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

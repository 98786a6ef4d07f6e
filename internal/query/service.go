// Package query serves read-only requests from the projection tables and
// the event log. Every response carries as_of_sequence — the projection
// watermark at query time — so callers can reason about freshness
// relative to the sequences in their own write responses.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MarketLedger/internal/observability"
)

type Service struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewService(db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{db: db, metrics: metrics}
}

// GetBalance returns the projected balance for one (token, account) pair.
// A pair the projection has never seen reads as zero, same as the ledger.
func (s *Service) GetBalance(ctx context.Context, token, account string) (*BalanceResponse, error) {
	start := time.Now()

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, s.fail("balance", fmt.Errorf("watermark: %w", err))
	}

	resp := &BalanceResponse{
		Token:        token,
		Account:      account,
		Balance:      "0",
		AsOfSequence: asOfSeq,
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT balance::TEXT FROM projections.balances
		WHERE token = $1 AND account = $2
	`, token, account).Scan(&resp.Balance)
	if err != nil && err != sql.ErrNoRows {
		return nil, s.fail("balance", err)
	}

	s.observe("balance", start)
	return resp, nil
}

// GetAccountBalances returns every non-zero projected balance held by an
// account, ordered by token address.
func (s *Service) GetAccountBalances(ctx context.Context, account string) ([]BalanceResponse, error) {
	start := time.Now()

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, s.fail("account_balances", fmt.Errorf("watermark: %w", err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT token, balance::TEXT FROM projections.balances
		WHERE account = $1 AND balance != 0
		ORDER BY token
	`, account)
	if err != nil {
		return nil, s.fail("account_balances", err)
	}
	defer rows.Close()

	var balances []BalanceResponse
	for rows.Next() {
		b := BalanceResponse{Account: account, AsOfSequence: asOfSeq}
		if err := rows.Scan(&b.Token, &b.Balance); err != nil {
			return nil, s.fail("account_balances", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("account_balances", err)
	}

	s.observe("account_balances", start)
	return balances, nil
}

// GetBetHistory returns a market's bets, newest first, with cursor-based
// pagination on the event sequence.
func (s *Service) GetBetHistory(ctx context.Context, marketID int64, limit int, beforeSequence *int64) ([]BetHistoryEntry, error) {
	start := time.Now()

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, s.fail("bet_history", fmt.Errorf("watermark: %w", err))
	}

	q := `
		SELECT sequence, market_id, bettor, outcome, amount::TEXT, price::TEXT, timestamp
		FROM event_log.bets
		WHERE market_id = $1
	`
	args := []interface{}{marketID}
	argIdx := 2

	if beforeSequence != nil {
		q += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	q += " ORDER BY sequence DESC"
	q += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.fail("bet_history", err)
	}
	defer rows.Close()

	var bets []BetHistoryEntry
	for rows.Next() {
		b := BetHistoryEntry{AsOfSequence: asOfSeq}
		if err := rows.Scan(&b.Sequence, &b.MarketID, &b.Bettor, &b.Outcome, &b.Amount, &b.Price, &b.Timestamp); err != nil {
			return nil, s.fail("bet_history", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("bet_history", err)
	}

	s.observe("bet_history", start)
	return bets, nil
}

// GetOrderHistory returns an account's filled limit orders, newest first,
// optionally filtered by token.
func (s *Service) GetOrderHistory(ctx context.Context, trader string, token *string, limit int, beforeSequence *int64) ([]OrderHistoryEntry, error) {
	start := time.Now()

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, s.fail("order_history", fmt.Errorf("watermark: %w", err))
	}

	q := `
		SELECT sequence, side, trader, token, amount::TEXT, price::TEXT, timestamp
		FROM projections.orders
		WHERE trader = $1
	`
	args := []interface{}{trader}
	argIdx := 2

	if token != nil {
		q += fmt.Sprintf(" AND token = $%d", argIdx)
		args = append(args, *token)
		argIdx++
	}

	if beforeSequence != nil {
		q += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	q += " ORDER BY sequence DESC"
	q += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.fail("order_history", err)
	}
	defer rows.Close()

	var orders []OrderHistoryEntry
	for rows.Next() {
		o := OrderHistoryEntry{AsOfSequence: asOfSeq}
		if err := rows.Scan(&o.Sequence, &o.Side, &o.Trader, &o.Token, &o.Amount, &o.Price, &o.Timestamp); err != nil {
			return nil, s.fail("order_history", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("order_history", err)
	}

	s.observe("order_history", start)
	return orders, nil
}

// GetMarketEvents returns a market's raw event envelopes, newest first.
func (s *Service) GetMarketEvents(ctx context.Context, marketID int64, limit int, beforeSequence *int64) ([]MarketEventEntry, error) {
	start := time.Now()

	q := `
		SELECT sequence, event_type, caller, payload, timestamp
		FROM event_log.events
		WHERE market_id = $1
	`
	args := []interface{}{marketID}
	argIdx := 2

	if beforeSequence != nil {
		q += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	q += " ORDER BY sequence DESC"
	q += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.fail("market_events", err)
	}
	defer rows.Close()

	var events []MarketEventEntry
	for rows.Next() {
		var e MarketEventEntry
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.Caller, &e.Payload, &e.Timestamp); err != nil {
			return nil, s.fail("market_events", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("market_events", err)
	}

	s.observe("market_events", start)
	return events, nil
}

// --- helpers ---

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func (s *Service) observe(endpoint string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (s *Service) fail(endpoint string, err error) error {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, "error").Inc()
		s.metrics.QueryErrors.WithLabelValues(endpoint, "db").Inc()
	}
	return err
}

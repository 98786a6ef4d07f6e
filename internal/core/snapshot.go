package core

import (
	"fmt"
	"time"

	"MarketLedger/internal/bridge"
	"MarketLedger/internal/exchange"
	"MarketLedger/internal/market"
	"MarketLedger/internal/token"

	"github.com/ethereum/go-ethereum/common"
)

// SnapshotState is the full serializable engine state: enough to resume
// processing with an intact hash chain and derived-address nonce.
type SnapshotState struct {
	// Sequence of the last applied event (-1 for an empty engine)
	Sequence int64 `json:"sequence"`

	// Chain tip after that event
	StateHash common.Hash `json:"state_hash"`

	// Next derived-address nonce
	Nonce uint64 `json:"nonce"`

	Owner     common.Address             `json:"owner"`
	Tokens    []token.TokenSnapshot      `json:"tokens"`
	Markets   []market.MarketSnapshot    `json:"markets"`
	OrderBook exchange.OrderBookSnapshot `json:"order_book"`
	Pool      exchange.PoolSnapshot      `json:"pool"`
	CreatedAt time.Time                  `json:"created_at"`
}

// CreateSnapshotState captures a consistent copy of the engine state.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &SnapshotState{
		Sequence:  e.sequence - 1,
		StateHash: common.Hash(e.hasher.GetPrevHash()),
		Nonce:     e.nonce,
		Owner:     e.owner,
		Tokens:    e.tokens.Snapshot(),
		Markets:   e.registry.Snapshot(),
		OrderBook: e.book.Snapshot(),
		Pool:      e.pool.Snapshot(),
		CreatedAt: e.clock(),
	}
}

// RestoreFromSnapshot replaces the engine state wholesale and resumes the
// hash chain at the snapshot's tip. The snapshot must have been taken by an
// engine with the same owner; custodial addresses are derived from it.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if snap.Owner != e.owner {
		return fmt.Errorf("snapshot owner %s does not match engine owner %s",
			snap.Owner.Hex(), e.owner.Hex())
	}

	e.sequence = snap.Sequence + 1
	e.nonce = snap.Nonce
	e.hasher.SetPrevHash([32]byte(snap.StateHash))

	e.tokens = token.RestoreLedger(snap.Tokens)
	e.registry = market.RestoreRegistry(e.owner, snap.Markets)
	e.book = exchange.RestoreOrderBook(e.owner, e.tokens, snap.OrderBook)
	e.pool = exchange.RestorePool(e.owner, e.tokens, snap.Pool)
	e.env = bridge.NewBridge(e.owner, e.registry)

	e.log.Info().
		Int64("sequence", snap.Sequence).
		Str("state_hash", snap.StateHash.Hex()).
		Int("tokens", len(snap.Tokens)).
		Int("markets", len(snap.Markets)).
		Msg("state restored from snapshot")
	return nil
}

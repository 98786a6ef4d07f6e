// Package market implements the per-market state machine and the registry
// that creates markets and assigns their sequential ids.
package market

import (
	"fmt"
	"math/big"
	"sort"

	"MarketLedger/internal/errs"

	"github.com/ethereum/go-ethereum/common"
)

// MarketType classifies a market's outcome structure.
type MarketType string

const (
	TypeBinary      MarketType = "BINARY"
	TypeCategorical MarketType = "CATEGORICAL"
	TypeScalar      MarketType = "SCALAR"
)

// ParseMarketType validates a caller-supplied market type string.
func ParseMarketType(s string) (MarketType, error) {
	switch MarketType(s) {
	case TypeBinary, TypeCategorical, TypeScalar:
		return MarketType(s), nil
	default:
		return "", fmt.Errorf("market type %q: %w", s, errs.ErrInvalidMarketDefinition)
	}
}

// State is the mutable, operator-overwritten portion of a market.
type State struct {
	CurrentPrice   *big.Int `json:"current_price"` // 1e18 fixed point
	TotalLiquidity *big.Int `json:"total_liquidity"`
	Resolved       bool     `json:"resolved"`
	Outcome        string   `json:"outcome"`
}

// Market has exactly two states: Active (resolved=false) and Resolved.
// Identity fields (id, description, outcomes) are immutable after creation.
// Not thread-safe — only accessed from the single-writer core.
type Market struct {
	id          int64
	handle      common.Address
	description string
	marketType  MarketType
	outcomes    []string

	state State

	// bets: bettor -> outcome string -> staked amount. Entries only ever
	// increase; there is no cancel/withdraw path.
	bets map[common.Address]map[string]*big.Int
}

// ID returns the market's registry-assigned id.
func (m *Market) ID() int64 { return m.id }

// Handle returns the market's derived address.
func (m *Market) Handle() common.Address { return m.handle }

// Description returns the immutable description.
func (m *Market) Description() string { return m.description }

// Type returns the market type.
func (m *Market) Type() MarketType { return m.marketType }

// Outcomes returns a copy of the declared outcome list.
func (m *Market) Outcomes() []string {
	out := make([]string, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}

// State returns a copy of the mutable state.
func (m *Market) State() State {
	return State{
		CurrentPrice:   new(big.Int).Set(m.state.CurrentPrice),
		TotalLiquidity: new(big.Int).Set(m.state.TotalLiquidity),
		Resolved:       m.state.Resolved,
		Outcome:        m.state.Outcome,
	}
}

// PlaceBet stakes amount on an outcome for the bettor. The outcome string is
// deliberately NOT validated against the declared outcome set, and price is
// recorded by the caller for audit without verification — both preserved
// source behaviors. Bets on resolved markets are rejected.
func (m *Market) PlaceBet(bettor common.Address, outcome string, amount *big.Int) error {
	if m.state.Resolved {
		return fmt.Errorf("market %d: %w", m.id, errs.ErrMarketResolved)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bet amount must be positive: %w", errs.ErrInvalidAmount)
	}

	if m.bets[bettor] == nil {
		m.bets[bettor] = make(map[string]*big.Int)
	}
	if stake, ok := m.bets[bettor][outcome]; ok {
		stake.Add(stake, amount)
	} else {
		m.bets[bettor][outcome] = new(big.Int).Set(amount)
	}
	m.state.TotalLiquidity.Add(m.state.TotalLiquidity, amount)
	return nil
}

// UpdateState unconditionally overwrites the four mutable fields. Updates
// after resolution are permitted so the simulation driver can re-push round
// state idempotently; the owner gate lives in the registry.
func (m *Market) UpdateState(s State) {
	m.state.CurrentPrice = new(big.Int).Set(s.CurrentPrice)
	m.state.TotalLiquidity = new(big.Int).Set(s.TotalLiquidity)
	m.state.Resolved = s.Resolved
	m.state.Outcome = s.Outcome
}

// Bet returns the bettor's staked amount for an outcome (zero if none).
func (m *Market) Bet(bettor common.Address, outcome string) *big.Int {
	if stakes, ok := m.bets[bettor]; ok {
		if stake, ok := stakes[outcome]; ok {
			return new(big.Int).Set(stake)
		}
	}
	return big.NewInt(0)
}

// SortedBets returns all bet entries in deterministic order for state-digest
// computation.
func (m *Market) SortedBets() []BetEntry {
	var entries []BetEntry
	for bettor, stakes := range m.bets {
		for outcome, stake := range stakes {
			entries = append(entries, BetEntry{
				Bettor:  bettor,
				Outcome: outcome,
				Amount:  new(big.Int).Set(stake),
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].Bettor.Cmp(entries[j].Bettor); c != 0 {
			return c < 0
		}
		return entries[i].Outcome < entries[j].Outcome
	})
	return entries
}

// BetEntry is one (bettor, outcome) stake.
type BetEntry struct {
	Bettor  common.Address `json:"bettor"`
	Outcome string         `json:"outcome"`
	Amount  *big.Int       `json:"amount"`
}

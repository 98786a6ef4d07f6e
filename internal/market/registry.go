package market

import (
	"fmt"
	"math/big"

	"MarketLedger/internal/errs"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is the only entry point for creating markets. Ids are assigned
// sequentially starting at 0. Privileged state updates are gated on the
// owner identity fixed at construction; there is no ownership transfer.
// Not thread-safe — only accessed from the single-writer core.
type Registry struct {
	owner   common.Address
	markets []*Market
}

func NewRegistry(owner common.Address) *Registry {
	return &Registry{owner: owner}
}

// Owner returns the registry's privileged identity.
func (r *Registry) Owner() common.Address { return r.owner }

// Create stores a new market with zeroed price/liquidity and resolved=false,
// returning it with the next sequential id. An empty outcome list, duplicate
// outcome strings, or an unknown market type are rejected with
// InvalidMarketDefinition.
func (r *Registry) Create(handle common.Address, description string, marketType MarketType, outcomes []string) (*Market, error) {
	if _, err := ParseMarketType(string(marketType)); err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("empty outcome list: %w", errs.ErrInvalidMarketDefinition)
	}
	seen := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		if seen[o] {
			return nil, fmt.Errorf("duplicate outcome %q: %w", o, errs.ErrInvalidMarketDefinition)
		}
		seen[o] = true
	}

	m := &Market{
		id:          int64(len(r.markets)),
		handle:      handle,
		description: description,
		marketType:  marketType,
		outcomes:    append([]string(nil), outcomes...),
		state: State{
			CurrentPrice:   new(big.Int),
			TotalLiquidity: new(big.Int),
		},
		bets: make(map[common.Address]map[string]*big.Int),
	}
	r.markets = append(r.markets, m)
	return m, nil
}

// UpdateState delegates to the target market's privileged update entry
// point. Owner-only.
func (r *Registry) UpdateState(caller common.Address, marketID int64, s State) error {
	if caller != r.owner {
		return fmt.Errorf("update market %d by %s: %w", marketID, caller.Hex(), errs.ErrUnauthorized)
	}
	m, err := r.Get(marketID)
	if err != nil {
		return err
	}
	m.UpdateState(s)
	return nil
}

// Get returns the market for an assigned id.
func (r *Registry) Get(marketID int64) (*Market, error) {
	if marketID < 0 || marketID >= int64(len(r.markets)) {
		return nil, fmt.Errorf("market %d: %w", marketID, errs.ErrMarketNotFound)
	}
	return r.markets[marketID], nil
}

// Count returns the number of created markets (also the next id).
func (r *Registry) Count() int64 {
	return int64(len(r.markets))
}

// All returns the markets in id order.
func (r *Registry) All() []*Market {
	return append([]*Market(nil), r.markets...)
}

// Package bridge implements the owner-gated batch endpoint that accepts a
// round of off-chain-computed market states, validates its shape, forwards
// each state into the registry, and re-emits one aggregated event. The
// bridge holds no persistent per-market state: it is a validated fan-out
// point, not a store.
package bridge

import (
	"fmt"

	"MarketLedger/internal/errs"
	"MarketLedger/internal/event"
	"MarketLedger/internal/market"

	"github.com/ethereum/go-ethereum/common"
)

// Bridge validates and applies round batches.
// Not thread-safe — only accessed from the single-writer core.
type Bridge struct {
	owner    common.Address
	registry *market.Registry
}

func NewBridge(owner common.Address, registry *market.Registry) *Bridge {
	return &Bridge{owner: owner, registry: registry}
}

// Sync validates a round batch and overwrites each referenced market's
// state. Validation is complete before any state is written: an unknown
// market id or a shape mismatch fails the whole call with no effect.
func (b *Bridge) Sync(caller common.Address, round int64, marketIDs []int64, states []event.MarketStateSnapshot) error {
	if caller != b.owner {
		return fmt.Errorf("sync round %d by %s: %w", round, caller.Hex(), errs.ErrUnauthorized)
	}
	if len(marketIDs) != len(states) {
		return fmt.Errorf("round %d: %d ids, %d states: %w",
			round, len(marketIDs), len(states), errs.ErrLengthMismatch)
	}
	for _, id := range marketIDs {
		if _, err := b.registry.Get(id); err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
	}

	for i, id := range marketIDs {
		s := states[i]
		if err := b.registry.UpdateState(caller, id, market.State{
			CurrentPrice:   s.CurrentPrice,
			TotalLiquidity: s.TotalLiquidity,
			Resolved:       s.Resolved,
			Outcome:        s.Outcome,
		}); err != nil {
			return fmt.Errorf("round %d market %d: %w", round, id, err)
		}
	}
	return nil
}

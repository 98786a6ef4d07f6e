package event

import "math/big"

// MarketStateSnapshot is one market's state as computed off-chain for a
// simulation round.
type MarketStateSnapshot struct {
	Description    string   `json:"description"`
	CurrentPrice   *big.Int `json:"current_price"` // 1e18 fixed point
	TotalLiquidity *big.Int `json:"total_liquidity"`
	Resolved       bool     `json:"resolved"`
	Outcome        string   `json:"outcome"`
}

// EnvironmentStateUpdated is the aggregated round event re-emitted by the
// bridge for off-chain subscribers. The bridge holds no per-market state of
// its own; this event is the only artifact of a sync call.
type EnvironmentStateUpdated struct {
	Round     int64                 `json:"round"`
	MarketIDs []int64               `json:"market_ids"`
	States    []MarketStateSnapshot `json:"states"`
}

func (e *EnvironmentStateUpdated) EventType() EventType { return EventTypeEnvironmentStateUpdated }
func (e *EnvironmentStateUpdated) MarketID() *int64     { return nil }

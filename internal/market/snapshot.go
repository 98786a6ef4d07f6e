package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MarketSnapshot is the full serializable state of one market.
type MarketSnapshot struct {
	ID          int64          `json:"id"`
	Handle      common.Address `json:"handle"`
	Description string         `json:"description"`
	MarketType  MarketType     `json:"market_type"`
	Outcomes    []string       `json:"outcomes"`
	State       State          `json:"state"`
	Bets        []BetEntry     `json:"bets"`
}

// Snapshot returns a deep copy of the registry in id order.
func (r *Registry) Snapshot() []MarketSnapshot {
	snapshots := make([]MarketSnapshot, 0, len(r.markets))
	for _, m := range r.markets {
		snapshots = append(snapshots, MarketSnapshot{
			ID:          m.id,
			Handle:      m.handle,
			Description: m.description,
			MarketType:  m.marketType,
			Outcomes:    m.Outcomes(),
			State:       m.State(),
			Bets:        m.SortedBets(),
		})
	}
	return snapshots
}

// RestoreRegistry rebuilds a registry from a snapshot.
func RestoreRegistry(owner common.Address, snapshots []MarketSnapshot) *Registry {
	r := NewRegistry(owner)
	for _, s := range snapshots {
		m := &Market{
			id:          s.ID,
			handle:      s.Handle,
			description: s.Description,
			marketType:  s.MarketType,
			outcomes:    append([]string(nil), s.Outcomes...),
			state: State{
				CurrentPrice:   new(big.Int).Set(s.State.CurrentPrice),
				TotalLiquidity: new(big.Int).Set(s.State.TotalLiquidity),
				Resolved:       s.State.Resolved,
				Outcome:        s.State.Outcome,
			},
			bets: make(map[common.Address]map[string]*big.Int),
		}
		for _, b := range s.Bets {
			if m.bets[b.Bettor] == nil {
				m.bets[b.Bettor] = make(map[string]*big.Int)
			}
			m.bets[b.Bettor][b.Outcome] = new(big.Int).Set(b.Amount)
		}
		r.markets = append(r.markets, m)
	}
	return r
}

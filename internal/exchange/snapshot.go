package exchange

import (
	"math/big"
	"sort"

	"MarketLedger/internal/token"

	"github.com/ethereum/go-ethereum/common"
)

// OrderBookSnapshot is the serializable state of the order book.
type OrderBookSnapshot struct {
	Account       common.Address `json:"account"`
	PriceToken    common.Address `json:"price_token"`
	PriceTokenSet bool           `json:"price_token_set"`
	Prices        []PriceEntry   `json:"prices"`
	Fee           int64          `json:"fee"`
}

// Snapshot returns a deep, deterministic copy of the order book.
func (ob *OrderBook) Snapshot() OrderBookSnapshot {
	return OrderBookSnapshot{
		Account:       ob.account,
		PriceToken:    ob.priceToken,
		PriceTokenSet: ob.priceTokenSet,
		Prices:        ob.SortedPrices(),
		Fee:           ob.fee,
	}
}

// RestoreOrderBook rebuilds an order book from a snapshot.
func RestoreOrderBook(owner common.Address, ledger *token.Ledger, s OrderBookSnapshot) *OrderBook {
	ob := NewOrderBook(owner, s.Account, ledger)
	ob.priceToken = s.PriceToken
	ob.priceTokenSet = s.PriceTokenSet
	for _, e := range s.Prices {
		ob.prices[e.Token] = new(big.Int).Set(e.Price)
	}
	ob.fee = s.Fee
	return ob
}

// DepositEntry is one provider's recorded liquidity for a token.
type DepositEntry struct {
	Provider common.Address `json:"provider"`
	Token    common.Address `json:"token"`
	Amount   *big.Int       `json:"amount"`
}

// PoolSnapshot is the serializable state of the pooled exchange.
type PoolSnapshot struct {
	Account  common.Address `json:"account"`
	Fee      int64          `json:"fee"`
	Totals   []PoolEntry    `json:"totals"`
	Deposits []DepositEntry `json:"deposits"`
}

// Snapshot returns a deep, deterministic copy of the pool.
func (p *Pool) Snapshot() PoolSnapshot {
	var deposits []DepositEntry
	for provider, tokens := range p.deposits {
		for tok, amount := range tokens {
			deposits = append(deposits, DepositEntry{
				Provider: provider,
				Token:    tok,
				Amount:   new(big.Int).Set(amount),
			})
		}
	}
	sort.Slice(deposits, func(i, j int) bool {
		if c := deposits[i].Provider.Cmp(deposits[j].Provider); c != 0 {
			return c < 0
		}
		return deposits[i].Token.Cmp(deposits[j].Token) < 0
	})

	return PoolSnapshot{
		Account:  p.account,
		Fee:      p.fee,
		Totals:   p.SortedTotals(),
		Deposits: deposits,
	}
}

// RestorePool rebuilds a pool from a snapshot.
func RestorePool(owner common.Address, ledger *token.Ledger, s PoolSnapshot) *Pool {
	p := NewPool(owner, s.Account, ledger)
	p.fee = s.Fee
	for _, e := range s.Totals {
		p.totals[e.Token] = new(big.Int).Set(e.Total)
	}
	for _, d := range s.Deposits {
		if p.deposits[d.Provider] == nil {
			p.deposits[d.Provider] = make(map[common.Address]*big.Int)
		}
		p.deposits[d.Provider][d.Token] = new(big.Int).Set(d.Amount)
	}
	return p
}

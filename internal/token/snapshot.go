package token

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// AllowanceEntry is one (owner, spender) allowance for a token.
type AllowanceEntry struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

// TokenSnapshot is the full serializable state of one token.
type TokenSnapshot struct {
	Address     common.Address   `json:"address"`
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	Creator     common.Address   `json:"creator"`
	TotalSupply *big.Int         `json:"total_supply"`
	Balances    []BalanceEntry   `json:"balances"`
	Allowances  []AllowanceEntry `json:"allowances"`
}

// Snapshot returns a deep, deterministic copy of the whole ledger, sorted by
// token address.
func (l *Ledger) Snapshot() []TokenSnapshot {
	snapshots := make([]TokenSnapshot, 0, len(l.tokens))
	for _, addr := range l.SortedTokens() {
		t := l.tokens[addr]

		var allowances []AllowanceEntry
		for owner, spenders := range t.allowances {
			for spender, amount := range spenders {
				if amount.Sign() == 0 {
					continue
				}
				allowances = append(allowances, AllowanceEntry{
					Owner:   owner,
					Spender: spender,
					Amount:  new(big.Int).Set(amount),
				})
			}
		}
		sort.Slice(allowances, func(i, j int) bool {
			if c := allowances[i].Owner.Cmp(allowances[j].Owner); c != 0 {
				return c < 0
			}
			return allowances[i].Spender.Cmp(allowances[j].Spender) < 0
		})

		snapshots = append(snapshots, TokenSnapshot{
			Address:     addr,
			Name:        t.name,
			Symbol:      t.symbol,
			Creator:     t.creator,
			TotalSupply: new(big.Int).Set(t.totalSupply),
			Balances:    l.SortedBalances(addr),
			Allowances:  allowances,
		})
	}
	return snapshots
}

// RestoreLedger rebuilds a ledger from a snapshot.
func RestoreLedger(snapshots []TokenSnapshot) *Ledger {
	l := NewLedger()
	for _, s := range snapshots {
		t := &Token{
			name:        s.Name,
			symbol:      s.Symbol,
			creator:     s.Creator,
			totalSupply: new(big.Int).Set(s.TotalSupply),
			balances:    make(map[common.Address]*big.Int, len(s.Balances)),
			allowances:  make(map[common.Address]map[common.Address]*big.Int),
		}
		for _, b := range s.Balances {
			t.balances[b.Account] = new(big.Int).Set(b.Balance)
		}
		for _, a := range s.Allowances {
			if t.allowances[a.Owner] == nil {
				t.allowances[a.Owner] = make(map[common.Address]*big.Int)
			}
			t.allowances[a.Owner][a.Spender] = new(big.Int).Set(a.Amount)
		}
		l.tokens[s.Address] = t
	}
	return l
}

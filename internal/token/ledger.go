// Package token implements the minimal fungible-token ledger: balances,
// allowances, creator-gated mint, and the conservation invariant (the sum of
// all account balances for a token equals its minted supply).
package token

import (
	"fmt"
	"math/big"
	"sort"

	"MarketLedger/internal/errs"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
)

// Unlimited is the sentinel allowance (2^256 - 1). An allowance at the
// sentinel is exempt from decrement in TransferFrom.
var Unlimited = new(big.Int).Set(ethmath.MaxBig256)

// Token holds one fungible asset's full state.
// Not thread-safe — only accessed from the single-writer core.
type Token struct {
	name        string
	symbol      string
	creator     common.Address
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

// Ledger maps token addresses to their state.
// Not thread-safe — only accessed from the single-writer core.
type Ledger struct {
	tokens map[common.Address]*Token
}

func NewLedger() *Ledger {
	return &Ledger{
		tokens: make(map[common.Address]*Token),
	}
}

// Register adds a new token with zero supply. The creator is the sole mint
// authority for the token's lifetime.
func (l *Ledger) Register(addr common.Address, name, symbol string, creator common.Address) error {
	if _, exists := l.tokens[addr]; exists {
		return fmt.Errorf("token %s already registered: %w", addr.Hex(), errs.ErrInvalidAmount)
	}
	l.tokens[addr] = &Token{
		name:        name,
		symbol:      symbol,
		creator:     creator,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
	return nil
}

// Mint credits newly created supply to an account. Creator-only.
func (l *Ledger) Mint(caller, token, to common.Address, amount *big.Int) error {
	t, err := l.get(token)
	if err != nil {
		return err
	}
	if caller != t.creator {
		return fmt.Errorf("mint on %s by %s: %w", t.symbol, caller.Hex(), errs.ErrUnauthorized)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive: %w", errs.ErrInvalidAmount)
	}

	t.credit(to, amount)
	t.totalSupply.Add(t.totalSupply, amount)
	return nil
}

// Transfer moves amount from sender to recipient. Fails with
// InsufficientBalance when the sender holds less than amount; either the
// full adjustment happens or none of it does.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	t, err := l.get(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer amount must be non-negative: %w", errs.ErrInvalidAmount)
	}
	if t.balanceOf(from).Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from %s: %w", t.symbol, from.Hex(), errs.ErrInsufficientBalance)
	}

	t.debit(from, amount)
	t.credit(to, amount)
	return nil
}

// Approve sets the spender's allowance over the owner's balance. Passing
// Unlimited exempts the allowance from decrement.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	t, err := l.get(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("allowance must be non-negative: %w", errs.ErrInvalidAmount)
	}

	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
	return nil
}

// TransferFrom moves amount from owner to recipient on the spender's
// authority. The allowance is decremented unless it sits at the Unlimited
// sentinel. Balance and allowance checks both precede any mutation.
func (l *Ledger) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	t, err := l.get(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer amount must be non-negative: %w", errs.ErrInvalidAmount)
	}

	allowance := t.allowanceOf(owner, spender)
	unlimited := allowance.Cmp(Unlimited) == 0
	if !unlimited && allowance.Cmp(amount) < 0 {
		return fmt.Errorf("transferFrom %s by %s: %w", t.symbol, spender.Hex(), errs.ErrInsufficientAllowance)
	}
	if t.balanceOf(owner).Cmp(amount) < 0 {
		return fmt.Errorf("transferFrom %s from %s: %w", t.symbol, owner.Hex(), errs.ErrInsufficientBalance)
	}

	if !unlimited {
		t.allowances[owner][spender] = new(big.Int).Sub(allowance, amount)
	}
	t.debit(owner, amount)
	t.credit(to, amount)
	return nil
}

// BalanceOf returns a copy of the account's balance (zero if unknown).
func (l *Ledger) BalanceOf(token, account common.Address) (*big.Int, error) {
	t, err := l.get(token)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(t.balanceOf(account)), nil
}

// Allowance returns a copy of the spender's remaining allowance.
func (l *Ledger) Allowance(token, owner, spender common.Address) (*big.Int, error) {
	t, err := l.get(token)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(t.allowanceOf(owner, spender)), nil
}

// TotalSupply returns a copy of the token's minted supply.
func (l *Ledger) TotalSupply(token common.Address) (*big.Int, error) {
	t, err := l.get(token)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(t.totalSupply), nil
}

// Creator returns the token's mint authority.
func (l *Ledger) Creator(token common.Address) (common.Address, error) {
	t, err := l.get(token)
	if err != nil {
		return common.Address{}, err
	}
	return t.creator, nil
}

// Exists reports whether the token is registered.
func (l *Ledger) Exists(token common.Address) bool {
	_, ok := l.tokens[token]
	return ok
}

// ValidateConservation checks that the sum of all account balances equals
// the token's total supply. A violation means the ledger is corrupt.
func (l *Ledger) ValidateConservation(token common.Address) error {
	t, err := l.get(token)
	if err != nil {
		return err
	}
	sum := new(big.Int)
	for _, bal := range t.balances {
		sum.Add(sum, bal)
	}
	if sum.Cmp(t.totalSupply) != 0 {
		return fmt.Errorf("conservation violated for %s: balances=%s supply=%s",
			t.symbol, sum.String(), t.totalSupply.String())
	}
	return nil
}

// SortedTokens returns all token addresses in deterministic order for
// state-digest computation.
func (l *Ledger) SortedTokens() []common.Address {
	addrs := make([]common.Address, 0, len(l.tokens))
	for addr := range l.tokens {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})
	return addrs
}

// SortedBalances returns (account, balance) pairs in deterministic order.
func (l *Ledger) SortedBalances(token common.Address) []BalanceEntry {
	t, err := l.get(token)
	if err != nil {
		return nil
	}
	entries := make([]BalanceEntry, 0, len(t.balances))
	for account, bal := range t.balances {
		entries = append(entries, BalanceEntry{Account: account, Balance: new(big.Int).Set(bal)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Account.Cmp(entries[j].Account) < 0
	})
	return entries
}

// BalanceEntry is one account's balance for a token.
type BalanceEntry struct {
	Account common.Address `json:"account"`
	Balance *big.Int       `json:"balance"`
}

func (l *Ledger) get(token common.Address) (*Token, error) {
	t, ok := l.tokens[token]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", token.Hex(), errs.ErrTokenNotFound)
	}
	return t, nil
}

func (t *Token) balanceOf(account common.Address) *big.Int {
	if bal, ok := t.balances[account]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (t *Token) allowanceOf(owner, spender common.Address) *big.Int {
	if spenders, ok := t.allowances[owner]; ok {
		if allowance, ok := spenders[spender]; ok {
			return allowance
		}
	}
	return big.NewInt(0)
}

func (t *Token) credit(account common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	if bal, ok := t.balances[account]; ok {
		bal.Add(bal, amount)
		return
	}
	t.balances[account] = new(big.Int).Set(amount)
}

func (t *Token) debit(account common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	bal := t.balances[account]
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(t.balances, account)
	}
}

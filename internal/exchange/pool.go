package exchange

import (
	"fmt"
	"math/big"
	"sort"

	"MarketLedger/internal/errs"
	fp "MarketLedger/internal/math"
	"MarketLedger/internal/token"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is the ratio-priced exchange. Individual liquidity is tracked as a
// flat deposited amount per (provider, token), not a proportional pool
// share: swap fees are retained inside the pool, which benefits whoever
// withdraws after the swap and dilutes whoever withdrew before. This is a
// preserved quirk of the source system, not an accident.
// Not thread-safe — only accessed from the single-writer core.
type Pool struct {
	owner   common.Address
	account common.Address // custodial pool address in the ledger
	ledger  *token.Ledger

	fee      int64                       // out of 1000
	totals   map[common.Address]*big.Int // token -> pool total
	deposits map[common.Address]map[common.Address]*big.Int // provider -> token -> recorded amount
}

func NewPool(owner, account common.Address, ledger *token.Ledger) *Pool {
	return &Pool{
		owner:    owner,
		account:  account,
		ledger:   ledger,
		totals:   make(map[common.Address]*big.Int),
		deposits: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Account returns the pool's custodial address.
func (p *Pool) Account() common.Address { return p.account }

// SetFee bounds the fee numerator at MaxFee/1000 (5%).
func (p *Pool) SetFee(caller common.Address, fee int64) error {
	if caller != p.owner {
		return fmt.Errorf("set fee by %s: %w", caller.Hex(), errs.ErrUnauthorized)
	}
	if fee < 0 {
		return fmt.Errorf("fee must be non-negative: %w", errs.ErrInvalidAmount)
	}
	if fee > MaxFee {
		return fmt.Errorf("fee %d > %d: %w", fee, MaxFee, errs.ErrFeeTooHigh)
	}
	p.fee = fee
	return nil
}

// Fee returns the fee numerator.
func (p *Pool) Fee() int64 { return p.fee }

// Deposit records liquidity for the caller. Deposits replace rather than
// top up: existing liquidity for the token is implicitly withdrawn first,
// and the returned amount (nil if none) is what that implicit withdraw
// pushed back to the caller.
func (p *Pool) Deposit(caller, tok common.Address, amount *big.Int) (withdrawn *big.Int, err error) {
	if !fp.IsPositive(amount) {
		return nil, fmt.Errorf("deposit amount must be positive: %w", errs.ErrInvalidAmount)
	}
	if !p.ledger.Exists(tok) {
		return nil, fmt.Errorf("deposit %s: %w", tok.Hex(), errs.ErrTokenNotFound)
	}

	existing := p.DepositOf(caller, tok)

	// Validate the pull leg against the post-implicit-withdraw balance
	// before mutating anything.
	balance, err := p.ledger.BalanceOf(tok, caller)
	if err != nil {
		return nil, err
	}
	allowance, err := p.ledger.Allowance(tok, caller, p.account)
	if err != nil {
		return nil, err
	}
	available := new(big.Int).Add(balance, existing)
	if available.Cmp(amount) < 0 || (allowance.Cmp(token.Unlimited) != 0 && allowance.Cmp(amount) < 0) {
		return nil, fmt.Errorf("pull %s of %s from %s: %w", amount, tok.Hex(), caller.Hex(), errs.ErrTransferFailed)
	}

	if existing.Sign() > 0 {
		if _, err := p.Withdraw(caller, tok); err != nil {
			return nil, err
		}
		withdrawn = existing
	}

	if err := p.ledger.TransferFrom(tok, p.account, caller, p.account, amount); err != nil {
		return nil, fmt.Errorf("pull leg: %w", errs.ErrTransferFailed)
	}
	if p.deposits[caller] == nil {
		p.deposits[caller] = make(map[common.Address]*big.Int)
	}
	p.deposits[caller][tok] = new(big.Int).Set(amount)
	p.addTotal(tok, amount)
	return withdrawn, nil
}

// Withdraw pushes the caller's entire recorded liquidity back. There is no
// partial withdraw.
func (p *Pool) Withdraw(caller, tok common.Address) (*big.Int, error) {
	recorded := p.DepositOf(caller, tok)
	if recorded.Sign() == 0 {
		return nil, fmt.Errorf("withdraw %s by %s: %w", tok.Hex(), caller.Hex(), errs.ErrNoLiquidity)
	}

	delete(p.deposits[caller], tok)
	if len(p.deposits[caller]) == 0 {
		delete(p.deposits, caller)
	}
	p.subTotal(tok, recorded)

	if err := p.ledger.Transfer(tok, p.account, caller, recorded); err != nil {
		return nil, fmt.Errorf("push leg: %w", errs.ErrTransferFailed)
	}
	return recorded, nil
}

// GetPrice returns buyPoolTotal * 1e18 / sellPoolTotal.
func (p *Pool) GetPrice(sellToken, buyToken common.Address) (*big.Int, error) {
	sellTotal := p.Total(sellToken)
	buyTotal := p.Total(buyToken)
	if sellTotal.Sign() == 0 || buyTotal.Sign() == 0 {
		return nil, fmt.Errorf("price %s/%s: %w", buyToken.Hex(), sellToken.Hex(), errs.ErrInsufficientLiquidity)
	}
	return fp.WadDiv(buyTotal, sellTotal), nil
}

// SwapResult reports a completed swap's economics.
type SwapResult struct {
	Price     *big.Int // 1e18-scaled execution price
	BuyAmount *big.Int // net of fee
	Fee       *big.Int // retained in the buy pool
}

// Swap sells sellAmount of sellToken for buyToken at the current ratio
// price, minus the proportional fee. The sell pool grows by the full sell
// amount and the buy pool shrinks only by the net amount: the fee stays in
// the pool.
func (p *Pool) Swap(caller, sellToken common.Address, sellAmount *big.Int, buyToken common.Address) (*SwapResult, error) {
	if !fp.IsPositive(sellAmount) {
		return nil, fmt.Errorf("sell amount must be positive: %w", errs.ErrInvalidAmount)
	}
	if sellToken == buyToken {
		return nil, fmt.Errorf("sell and buy token must differ: %w", errs.ErrInvalidAmount)
	}

	price, err := p.GetPrice(sellToken, buyToken)
	if err != nil {
		return nil, err
	}
	gross := fp.WadMul(sellAmount, price)
	fee := fp.Thousandths(gross, p.fee)
	net := new(big.Int).Sub(gross, fee)

	if p.Total(buyToken).Cmp(net) < 0 {
		return nil, fmt.Errorf("buy pool below %s: %w", net, errs.ErrInsufficientLiquidity)
	}

	// Validate the pull leg before mutating anything.
	balance, err := p.ledger.BalanceOf(sellToken, caller)
	if err != nil {
		return nil, err
	}
	allowance, err := p.ledger.Allowance(sellToken, caller, p.account)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(sellAmount) < 0 || (allowance.Cmp(token.Unlimited) != 0 && allowance.Cmp(sellAmount) < 0) {
		return nil, fmt.Errorf("pull %s of %s from %s: %w", sellAmount, sellToken.Hex(), caller.Hex(), errs.ErrTransferFailed)
	}

	if err := p.ledger.TransferFrom(sellToken, p.account, caller, p.account, sellAmount); err != nil {
		return nil, fmt.Errorf("pull leg: %w", errs.ErrTransferFailed)
	}
	if err := p.ledger.Transfer(buyToken, p.account, caller, net); err != nil {
		return nil, fmt.Errorf("push leg: %w", errs.ErrTransferFailed)
	}
	p.addTotal(sellToken, sellAmount)
	p.subTotal(buyToken, net)

	return &SwapResult{Price: price, BuyAmount: net, Fee: fee}, nil
}

// DepositOf returns a copy of the provider's recorded liquidity for a token.
func (p *Pool) DepositOf(provider, tok common.Address) *big.Int {
	if tokens, ok := p.deposits[provider]; ok {
		if amount, ok := tokens[tok]; ok {
			return new(big.Int).Set(amount)
		}
	}
	return big.NewInt(0)
}

// Total returns a copy of the pool total for a token.
func (p *Pool) Total(tok common.Address) *big.Int {
	if total, ok := p.totals[tok]; ok {
		return new(big.Int).Set(total)
	}
	return big.NewInt(0)
}

func (p *Pool) addTotal(tok common.Address, amount *big.Int) {
	if total, ok := p.totals[tok]; ok {
		total.Add(total, amount)
		return
	}
	p.totals[tok] = new(big.Int).Set(amount)
}

func (p *Pool) subTotal(tok common.Address, amount *big.Int) {
	total := p.totals[tok]
	total.Sub(total, amount)
	if total.Sign() == 0 {
		delete(p.totals, tok)
	}
}

// SortedTotals returns pool totals in deterministic order for state-digest
// computation.
func (p *Pool) SortedTotals() []PoolEntry {
	entries := make([]PoolEntry, 0, len(p.totals))
	for tok, total := range p.totals {
		entries = append(entries, PoolEntry{Token: tok, Total: new(big.Int).Set(total)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Token.Cmp(entries[j].Token) < 0
	})
	return entries
}

// PoolEntry is one token's pool total.
type PoolEntry struct {
	Token common.Address `json:"token"`
	Total *big.Int       `json:"total"`
}

// Package exchange implements the two trading venues: the oracle-priced
// limit order book and the pooled-liquidity ratio-priced exchange. Both
// custody inventory at their own derived addresses and move value through
// the shared fungible-token ledger.
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

// MaxFee is the upper bound for fee numerators, out of 1000 (5%).
const MaxFee = 50

// orderFeeAmount is the fixed nominal fee of the order book: one raw unit
// per order, a placeholder rather than a proportional fee. The settable fee
// numerator is stored but deliberately unused by order execution, matching
// the source system.
var orderFeeAmount = big.NewInt(1)

// OrderBook executes buy/sell orders against its custodial holdings at the
// current owner-pushed oracle price, subject to a caller-supplied limit.
// Not thread-safe — only accessed from the single-writer core.
type OrderBook struct {
	owner   common.Address
	account common.Address // custodial inventory address in the ledger
	ledger  *token.Ledger

	priceToken    common.Address
	priceTokenSet bool
	prices        map[common.Address]*big.Int // token -> 1e18-scaled price in price-token units
	fee           int64                       // out of 1000; stored but unused by execution
}

func NewOrderBook(owner, account common.Address, ledger *token.Ledger) *OrderBook {
	return &OrderBook{
		owner:   owner,
		account: account,
		ledger:  ledger,
		prices:  make(map[common.Address]*big.Int),
	}
}

// Account returns the order book's custodial address.
func (ob *OrderBook) Account() common.Address { return ob.account }

// SetPriceToken configures the quote asset. Owner-only; required before any
// oracle price can be set.
func (ob *OrderBook) SetPriceToken(caller, priceToken common.Address) error {
	if caller != ob.owner {
		return fmt.Errorf("set price token by %s: %w", caller.Hex(), errs.ErrUnauthorized)
	}
	if !ob.ledger.Exists(priceToken) {
		return fmt.Errorf("price token %s: %w", priceToken.Hex(), errs.ErrTokenNotFound)
	}
	ob.priceToken = priceToken
	ob.priceTokenSet = true
	return nil
}

// PriceToken returns the configured quote asset.
func (ob *OrderBook) PriceToken() (common.Address, bool) {
	return ob.priceToken, ob.priceTokenSet
}

// SetPrice pushes one oracle price. Owner-only; the price token must have
// been configured first.
func (ob *OrderBook) SetPrice(caller, tok common.Address, price *big.Int) error {
	if caller != ob.owner {
		return fmt.Errorf("set price by %s: %w", caller.Hex(), errs.ErrUnauthorized)
	}
	if !ob.priceTokenSet {
		return fmt.Errorf("set price for %s: %w", tok.Hex(), errs.ErrPriceTokenNotSet)
	}
	if price == nil || price.Sign() < 0 {
		return fmt.Errorf("price must be non-negative: %w", errs.ErrInvalidAmount)
	}
	ob.prices[tok] = new(big.Int).Set(price)
	return nil
}

// SetPriceBatch pushes a parallel array of oracle prices atomically.
func (ob *OrderBook) SetPriceBatch(caller common.Address, tokens []common.Address, prices []*big.Int) error {
	if caller != ob.owner {
		return fmt.Errorf("set price batch by %s: %w", caller.Hex(), errs.ErrUnauthorized)
	}
	if !ob.priceTokenSet {
		return fmt.Errorf("set price batch: %w", errs.ErrPriceTokenNotSet)
	}
	if len(tokens) != len(prices) {
		return fmt.Errorf("%d tokens, %d prices: %w", len(tokens), len(prices), errs.ErrLengthMismatch)
	}
	for i, price := range prices {
		if price == nil || price.Sign() < 0 {
			return fmt.Errorf("price[%d] must be non-negative: %w", i, errs.ErrInvalidAmount)
		}
	}
	for i, tok := range tokens {
		ob.prices[tok] = new(big.Int).Set(prices[i])
	}
	return nil
}

// Price returns the oracle price for a token, if one has been pushed.
func (ob *OrderBook) Price(tok common.Address) (*big.Int, bool) {
	p, ok := ob.prices[tok]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(p), true
}

// SetFee bounds the stored fee numerator at MaxFee/1000 (5%).
func (ob *OrderBook) SetFee(caller common.Address, fee int64) error {
	if caller != ob.owner {
		return fmt.Errorf("set fee by %s: %w", caller.Hex(), errs.ErrUnauthorized)
	}
	if fee < 0 {
		return fmt.Errorf("fee must be non-negative: %w", errs.ErrInvalidAmount)
	}
	if fee > MaxFee {
		return fmt.Errorf("fee %d > %d: %w", fee, MaxFee, errs.ErrFeeTooHigh)
	}
	ob.fee = fee
	return nil
}

// Fee returns the stored fee numerator.
func (ob *OrderBook) Fee() int64 { return ob.fee }

// OrderFill reports the executed price of a filled order. NewPrice equals
// OldPrice: there is no price-impact model.
type OrderFill struct {
	OldPrice *big.Int
	NewPrice *big.Int
	Cost     *big.Int // price-token units moved, fee included
}

// PlaceBuyOrder fills a limit buy at the current oracle price: the caller
// pays amount*price plus the fixed fee in price tokens and receives amount
// of the token from the book's inventory. Validation and both transfer-leg
// checks precede any balance mutation.
func (ob *OrderBook) PlaceBuyOrder(caller, tok common.Address, amount, limitPrice *big.Int) (*OrderFill, error) {
	price, err := ob.checkOrder(tok, amount, limitPrice)
	if err != nil {
		return nil, err
	}
	if price.Cmp(limitPrice) > 0 {
		return nil, fmt.Errorf("oracle %s > limit %s: %w", price, limitPrice, errs.ErrLimitExceeded)
	}

	// total = amount * oraclePrice + fixed fee, in raw price-token units
	total := fp.Mul(amount, price)
	total.Add(total, orderFeeAmount)

	if err := ob.checkPull(ob.priceToken, caller, total); err != nil {
		return nil, err
	}
	if err := ob.checkPush(tok, amount); err != nil {
		return nil, err
	}

	if err := ob.ledger.TransferFrom(ob.priceToken, ob.account, caller, ob.account, total); err != nil {
		return nil, fmt.Errorf("pull leg: %w", errs.ErrTransferFailed)
	}
	if err := ob.ledger.Transfer(tok, ob.account, caller, amount); err != nil {
		return nil, fmt.Errorf("push leg: %w", errs.ErrTransferFailed)
	}

	return &OrderFill{OldPrice: price, NewPrice: new(big.Int).Set(price), Cost: total}, nil
}

// PlaceSellOrder is the symmetric fill: the caller delivers amount of the
// token and receives amount*price minus the fixed fee in price tokens,
// requiring the oracle price to be at or above the limit.
func (ob *OrderBook) PlaceSellOrder(caller, tok common.Address, amount, limitPrice *big.Int) (*OrderFill, error) {
	price, err := ob.checkOrder(tok, amount, limitPrice)
	if err != nil {
		return nil, err
	}
	if price.Cmp(limitPrice) < 0 {
		return nil, fmt.Errorf("oracle %s < limit %s: %w", price, limitPrice, errs.ErrLimitExceeded)
	}

	proceeds := fp.Mul(amount, price)
	proceeds.Sub(proceeds, orderFeeAmount)
	if proceeds.Sign() < 0 {
		return nil, fmt.Errorf("proceeds below fee: %w", errs.ErrInvalidAmount)
	}

	if err := ob.checkPull(tok, caller, amount); err != nil {
		return nil, err
	}
	if err := ob.checkPush(ob.priceToken, proceeds); err != nil {
		return nil, err
	}

	if err := ob.ledger.TransferFrom(tok, ob.account, caller, ob.account, amount); err != nil {
		return nil, fmt.Errorf("pull leg: %w", errs.ErrTransferFailed)
	}
	if err := ob.ledger.Transfer(ob.priceToken, ob.account, caller, proceeds); err != nil {
		return nil, fmt.Errorf("push leg: %w", errs.ErrTransferFailed)
	}

	return &OrderFill{OldPrice: price, NewPrice: new(big.Int).Set(price), Cost: proceeds}, nil
}

func (ob *OrderBook) checkOrder(tok common.Address, amount, limitPrice *big.Int) (*big.Int, error) {
	if !fp.IsPositive(amount) {
		return nil, fmt.Errorf("order amount must be positive: %w", errs.ErrInvalidAmount)
	}
	if !fp.IsPositive(limitPrice) {
		return nil, fmt.Errorf("limit price must be positive: %w", errs.ErrInvalidAmount)
	}
	if !ob.priceTokenSet {
		return nil, fmt.Errorf("order: %w", errs.ErrPriceTokenNotSet)
	}
	if tok == ob.priceToken {
		return nil, fmt.Errorf("token must differ from the price token: %w", errs.ErrInvalidAmount)
	}
	price, ok := ob.prices[tok]
	if !ok || price.Sign() == 0 {
		return nil, fmt.Errorf("no oracle price for %s: %w", tok.Hex(), errs.ErrPriceTokenNotSet)
	}
	return new(big.Int).Set(price), nil
}

// checkPull verifies the caller's balance and allowance for a transferFrom
// leg before any state is mutated.
func (ob *OrderBook) checkPull(tok, from common.Address, amount *big.Int) error {
	balance, err := ob.ledger.BalanceOf(tok, from)
	if err != nil {
		return err
	}
	allowance, err := ob.ledger.Allowance(tok, from, ob.account)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 || (allowance.Cmp(token.Unlimited) != 0 && allowance.Cmp(amount) < 0) {
		return fmt.Errorf("pull %s of %s from %s: %w", amount, tok.Hex(), from.Hex(), errs.ErrTransferFailed)
	}
	return nil
}

// checkPush verifies the book's own inventory for a push leg.
func (ob *OrderBook) checkPush(tok common.Address, amount *big.Int) error {
	balance, err := ob.ledger.BalanceOf(tok, ob.account)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("push %s of %s: %w", amount, tok.Hex(), errs.ErrTransferFailed)
	}
	return nil
}

// SortedPrices returns the oracle table in deterministic order for
// state-digest computation.
func (ob *OrderBook) SortedPrices() []PriceEntry {
	entries := make([]PriceEntry, 0, len(ob.prices))
	for tok, price := range ob.prices {
		entries = append(entries, PriceEntry{Token: tok, Price: new(big.Int).Set(price)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Token.Cmp(entries[j].Token) < 0
	})
	return entries
}

// PriceEntry is one token's oracle price.
type PriceEntry struct {
	Token common.Address `json:"token"`
	Price *big.Int       `json:"price"`
}

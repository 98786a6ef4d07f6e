package exchange_test

import (
	"errors"
	"math/big"
	"testing"

	"MarketLedger/internal/errs"
	"MarketLedger/internal/exchange"
	"MarketLedger/internal/token"

	"github.com/ethereum/go-ethereum/common"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	trader   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	other    = common.HexToAddress("0x0000000000000000000000000000000000000022")
	obAddr   = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	usd      = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	tokenA   = common.HexToAddress("0x0000000000000000000000000000000000000A02")
	tokenB   = common.HexToAddress("0x0000000000000000000000000000000000000A03")
)

func wad(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// newOrderBook builds a funded book: the trader holds price tokens and
// token A, the book's inventory holds both, and the book has unlimited
// allowances from the trader.
func newOrderBook(t *testing.T) (*token.Ledger, *exchange.OrderBook) {
	t.Helper()
	l := token.NewLedger()
	for _, tok := range []common.Address{usd, tokenA, tokenB} {
		if err := l.Register(tok, "t", "T", operator); err != nil {
			t.Fatal(err)
		}
		if err := l.Mint(operator, tok, trader, wad(1_000_000)); err != nil {
			t.Fatal(err)
		}
		if err := l.Mint(operator, tok, obAddr, wad(1_000_000)); err != nil {
			t.Fatal(err)
		}
		if err := l.Approve(tok, trader, obAddr, token.Unlimited); err != nil {
			t.Fatal(err)
		}
	}

	ob := exchange.NewOrderBook(operator, obAddr, l)
	if err := ob.SetPriceToken(operator, usd); err != nil {
		t.Fatalf("set price token: %v", err)
	}
	return l, ob
}

// ============================================================================
// Test: oracle price table
// ============================================================================

func TestSetPrice_RequiresPriceToken(t *testing.T) {
	l := token.NewLedger()
	if err := l.Register(usd, "USD", "USD", operator); err != nil {
		t.Fatal(err)
	}
	ob := exchange.NewOrderBook(operator, obAddr, l)

	if err := ob.SetPrice(operator, tokenA, wad(2)); !errors.Is(err, errs.ErrPriceTokenNotSet) {
		t.Errorf("got %v, want ErrPriceTokenNotSet", err)
	}
	if err := ob.SetPriceBatch(operator, []common.Address{tokenA}, []*big.Int{wad(2)}); !errors.Is(err, errs.ErrPriceTokenNotSet) {
		t.Errorf("batch: got %v, want ErrPriceTokenNotSet", err)
	}
}

func TestSetPrice_OwnerGated(t *testing.T) {
	_, ob := newOrderBook(t)
	if err := ob.SetPrice(trader, tokenA, wad(2)); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
	if _, ok := ob.Price(tokenA); ok {
		t.Error("price set by non-owner")
	}
}

func TestSetPriceBatch_LengthMismatch(t *testing.T) {
	_, ob := newOrderBook(t)
	err := ob.SetPriceBatch(operator, []common.Address{tokenA, tokenB}, []*big.Int{wad(2)})
	if !errors.Is(err, errs.ErrLengthMismatch) {
		t.Errorf("got %v, want ErrLengthMismatch", err)
	}
}

func TestSetPriceBatch_SetsAll(t *testing.T) {
	_, ob := newOrderBook(t)
	err := ob.SetPriceBatch(operator, []common.Address{tokenA, tokenB}, []*big.Int{wad(2), wad(3)})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if p, ok := ob.Price(tokenA); !ok || p.Cmp(wad(2)) != 0 {
		t.Errorf("tokenA price: got %v", p)
	}
	if p, ok := ob.Price(tokenB); !ok || p.Cmp(wad(3)) != 0 {
		t.Errorf("tokenB price: got %v", p)
	}
}

// ============================================================================
// Test: fee bound
// ============================================================================

func TestSetFee_Bound(t *testing.T) {
	_, ob := newOrderBook(t)

	if err := ob.SetFee(operator, 51); !errors.Is(err, errs.ErrFeeTooHigh) {
		t.Errorf("fee 51: got %v, want ErrFeeTooHigh", err)
	}
	if err := ob.SetFee(operator, 50); err != nil {
		t.Errorf("fee 50: %v", err)
	}
	if ob.Fee() != 50 {
		t.Errorf("fee: got %d, want 50", ob.Fee())
	}
	if err := ob.SetFee(trader, 10); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("non-owner: got %v, want ErrUnauthorized", err)
	}
}

// ============================================================================
// Test: limit buy
// ============================================================================

func TestBuyOrder_FillsAtOraclePrice(t *testing.T) {
	l, ob := newOrderBook(t)
	if err := ob.SetPrice(operator, tokenA, big.NewInt(3)); err != nil {
		t.Fatal(err)
	}

	fill, err := ob.PlaceBuyOrder(trader, tokenA, big.NewInt(10), big.NewInt(3))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if fill.NewPrice.Cmp(fill.OldPrice) != 0 {
		t.Errorf("new price %s != old price %s", fill.NewPrice, fill.OldPrice)
	}

	// cost = 10*3 + 1 fixed fee
	wantCost := big.NewInt(31)
	if fill.Cost.Cmp(wantCost) != 0 {
		t.Errorf("cost: got %s, want %s", fill.Cost, wantCost)
	}

	usdBal, _ := l.BalanceOf(usd, trader)
	wantUSD := new(big.Int).Sub(wad(1_000_000), wantCost)
	if usdBal.Cmp(wantUSD) != 0 {
		t.Errorf("trader usd: got %s, want %s", usdBal, wantUSD)
	}
	tokBal, _ := l.BalanceOf(tokenA, trader)
	wantTok := new(big.Int).Add(wad(1_000_000), big.NewInt(10))
	if tokBal.Cmp(wantTok) != 0 {
		t.Errorf("trader tokenA: got %s, want %s", tokBal, wantTok)
	}
}

func TestBuyOrder_LimitBelowOracleRejected(t *testing.T) {
	l, ob := newOrderBook(t)
	if err := ob.SetPrice(operator, tokenA, wad(2)); err != nil {
		t.Fatal(err)
	}

	before, _ := l.BalanceOf(usd, trader)
	_, err := ob.PlaceBuyOrder(trader, tokenA, big.NewInt(10), wad(1))
	if !errors.Is(err, errs.ErrLimitExceeded) {
		t.Fatalf("got %v, want ErrLimitExceeded", err)
	}
	after, _ := l.BalanceOf(usd, trader)
	if before.Cmp(after) != 0 {
		t.Error("tokens moved on rejected order")
	}
}

func TestBuyOrder_Validation(t *testing.T) {
	_, ob := newOrderBook(t)
	if err := ob.SetPrice(operator, tokenA, big.NewInt(2)); err != nil {
		t.Fatal(err)
	}

	if _, err := ob.PlaceBuyOrder(trader, tokenA, big.NewInt(0), big.NewInt(2)); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := ob.PlaceBuyOrder(trader, tokenA, big.NewInt(1), big.NewInt(0)); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("zero limit: got %v", err)
	}
	if _, err := ob.PlaceBuyOrder(trader, usd, big.NewInt(1), big.NewInt(2)); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("price token as target: got %v", err)
	}
	if _, err := ob.PlaceBuyOrder(trader, tokenB, big.NewInt(1), big.NewInt(2)); !errors.Is(err, errs.ErrPriceTokenNotSet) {
		t.Errorf("unpriced token: got %v", err)
	}
}

func TestBuyOrder_UnfundedCallerTransferFailed(t *testing.T) {
	l, ob := newOrderBook(t)
	if err := ob.SetPrice(operator, tokenA, big.NewInt(2)); err != nil {
		t.Fatal(err)
	}
	// other has no balance and no allowance
	_, err := ob.PlaceBuyOrder(other, tokenA, big.NewInt(5), big.NewInt(2))
	if !errors.Is(err, errs.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	bal, _ := l.BalanceOf(tokenA, other)
	if bal.Sign() != 0 {
		t.Error("tokens moved on failed order")
	}
}

// ============================================================================
// Test: limit sell
// ============================================================================

func TestSellOrder_FillsWithFeeSubtracted(t *testing.T) {
	l, ob := newOrderBook(t)
	if err := ob.SetPrice(operator, tokenA, big.NewInt(4)); err != nil {
		t.Fatal(err)
	}

	fill, err := ob.PlaceSellOrder(trader, tokenA, big.NewInt(10), big.NewInt(4))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	// proceeds = 10*4 - 1 fixed fee
	wantProceeds := big.NewInt(39)
	if fill.Cost.Cmp(wantProceeds) != 0 {
		t.Errorf("proceeds: got %s, want %s", fill.Cost, wantProceeds)
	}

	usdBal, _ := l.BalanceOf(usd, trader)
	wantUSD := new(big.Int).Add(wad(1_000_000), wantProceeds)
	if usdBal.Cmp(wantUSD) != 0 {
		t.Errorf("trader usd: got %s, want %s", usdBal, wantUSD)
	}
}

func TestSellOrder_LimitAboveOracleRejected(t *testing.T) {
	_, ob := newOrderBook(t)
	if err := ob.SetPrice(operator, tokenA, wad(2)); err != nil {
		t.Fatal(err)
	}
	_, err := ob.PlaceSellOrder(trader, tokenA, big.NewInt(10), wad(3))
	if !errors.Is(err, errs.ErrLimitExceeded) {
		t.Errorf("got %v, want ErrLimitExceeded", err)
	}
}

// ============================================================================
// Test: Snapshot / Restore
// ============================================================================

func TestOrderBookSnapshot_RoundTrip(t *testing.T) {
	l, ob := newOrderBook(t)
	if err := ob.SetPrice(operator, tokenA, wad(7)); err != nil {
		t.Fatal(err)
	}
	if err := ob.SetFee(operator, 25); err != nil {
		t.Fatal(err)
	}

	restored := exchange.RestoreOrderBook(operator, l, ob.Snapshot())
	if p, ok := restored.Price(tokenA); !ok || p.Cmp(wad(7)) != 0 {
		t.Errorf("restored price: got %v", p)
	}
	if restored.Fee() != 25 {
		t.Errorf("restored fee: got %d", restored.Fee())
	}
	if pt, ok := restored.PriceToken(); !ok || pt != usd {
		t.Errorf("restored price token: got %s", pt.Hex())
	}
}

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

// newPool builds a funded pool: trader and other each hold 1M of every
// token with unlimited allowances granted to the pool's custodial address.
func newPool(t *testing.T) (*token.Ledger, *exchange.Pool) {
	t.Helper()
	l := token.NewLedger()
	for _, tok := range []common.Address{usd, tokenA, tokenB} {
		if err := l.Register(tok, "t", "T", operator); err != nil {
			t.Fatal(err)
		}
		for _, acct := range []common.Address{trader, other} {
			if err := l.Mint(operator, tok, acct, wad(1_000_000)); err != nil {
				t.Fatal(err)
			}
			if err := l.Approve(tok, acct, poolAddr, token.Unlimited); err != nil {
				t.Fatal(err)
			}
		}
	}
	return l, exchange.NewPool(operator, poolAddr, l)
}

// ============================================================================
// Test: Deposit / Withdraw
// ============================================================================

func TestDeposit_RecordsLiquidity(t *testing.T) {
	l, p := newPool(t)

	if _, err := p.Deposit(trader, tokenA, wad(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := p.DepositOf(trader, tokenA); got.Cmp(wad(100)) != 0 {
		t.Errorf("recorded: got %s, want %s", got, wad(100))
	}
	if got := p.Total(tokenA); got.Cmp(wad(100)) != 0 {
		t.Errorf("total: got %s, want %s", got, wad(100))
	}
	poolBal, _ := l.BalanceOf(tokenA, poolAddr)
	if poolBal.Cmp(wad(100)) != 0 {
		t.Errorf("custodial balance: got %s, want %s", poolBal, wad(100))
	}
}

func TestDeposit_ReplacesNotTopsUp(t *testing.T) {
	l, p := newPool(t)

	if _, err := p.Deposit(trader, tokenA, wad(100)); err != nil {
		t.Fatal(err)
	}
	withdrawn, err := p.Deposit(trader, tokenA, wad(30))
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if withdrawn == nil || withdrawn.Cmp(wad(100)) != 0 {
		t.Errorf("implicit withdraw: got %v, want %s", withdrawn, wad(100))
	}

	// Second deposit replaced the first: 30 recorded, not 130
	if got := p.DepositOf(trader, tokenA); got.Cmp(wad(30)) != 0 {
		t.Errorf("recorded: got %s, want %s", got, wad(30))
	}
	if got := p.Total(tokenA); got.Cmp(wad(30)) != 0 {
		t.Errorf("total: got %s, want %s", got, wad(30))
	}
	bal, _ := l.BalanceOf(tokenA, trader)
	want := new(big.Int).Sub(wad(1_000_000), wad(30))
	if bal.Cmp(want) != 0 {
		t.Errorf("trader balance: got %s, want %s", bal, want)
	}
}

func TestWithdraw_RoundTripReturnsExactAmount(t *testing.T) {
	l, p := newPool(t)
	totalBefore := p.Total(tokenA)
	balBefore, _ := l.BalanceOf(tokenA, trader)

	if _, err := p.Deposit(trader, tokenA, wad(250)); err != nil {
		t.Fatal(err)
	}
	got, err := p.Withdraw(trader, tokenA)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got.Cmp(wad(250)) != 0 {
		t.Errorf("withdrawn: got %s, want %s", got, wad(250))
	}

	if p.Total(tokenA).Cmp(totalBefore) != 0 {
		t.Errorf("pool total changed across round trip")
	}
	balAfter, _ := l.BalanceOf(tokenA, trader)
	if balAfter.Cmp(balBefore) != 0 {
		t.Errorf("trader balance changed across round trip")
	}
}

func TestWithdraw_NoLiquidity(t *testing.T) {
	_, p := newPool(t)
	if _, err := p.Withdraw(trader, tokenA); !errors.Is(err, errs.ErrNoLiquidity) {
		t.Errorf("got %v, want ErrNoLiquidity", err)
	}
}

// ============================================================================
// Test: GetPrice
// ============================================================================

func TestGetPrice_RatioOfPools(t *testing.T) {
	_, p := newPool(t)
	if _, err := p.Deposit(trader, tokenA, wad(200)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Deposit(trader, tokenB, wad(100)); err != nil {
		t.Fatal(err)
	}

	// price of A in B = buyPool(B) * 1e18 / sellPool(A) = 0.5
	price, err := p.GetPrice(tokenA, tokenB)
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	half := new(big.Int).Quo(wad(1), big.NewInt(2))
	if price.Cmp(half) != 0 {
		t.Errorf("price: got %s, want %s", price, half)
	}
}

func TestGetPrice_EmptyPool(t *testing.T) {
	_, p := newPool(t)
	if _, err := p.Deposit(trader, tokenA, wad(200)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.GetPrice(tokenA, tokenB); !errors.Is(err, errs.ErrInsufficientLiquidity) {
		t.Errorf("got %v, want ErrInsufficientLiquidity", err)
	}
}

// ============================================================================
// Test: Swap
// ============================================================================

func TestSwap_FeeMonotonicity(t *testing.T) {
	_, p := newPool(t)
	if _, err := p.Deposit(trader, tokenA, wad(1000)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Deposit(trader, tokenB, wad(1000)); err != nil {
		t.Fatal(err)
	}
	if err := p.SetFee(operator, 10); err != nil { // 1%
		t.Fatal(err)
	}

	res, err := p.Swap(other, tokenA, wad(100), tokenB)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	// gross = 100 * 1.0 = 100; fee = 1; net = 99
	if res.BuyAmount.Cmp(wad(99)) != 0 {
		t.Errorf("net: got %s, want %s", res.BuyAmount, wad(99))
	}
	if res.Fee.Cmp(wad(1)) != 0 {
		t.Errorf("fee: got %s, want %s", res.Fee, wad(1))
	}

	// net must be strictly below the fee-less amount whenever fee > 0
	if res.BuyAmount.Cmp(wad(100)) >= 0 {
		t.Error("net not reduced by fee")
	}
}

func TestSwap_PoolAccounting(t *testing.T) {
	l, p := newPool(t)
	if _, err := p.Deposit(trader, tokenA, wad(1000)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Deposit(trader, tokenB, wad(500)); err != nil {
		t.Fatal(err)
	}
	if err := p.SetFee(operator, 10); err != nil {
		t.Fatal(err)
	}

	// price of A in B = 0.5; gross = 50, fee = 0.5, net = 49.5
	res, err := p.Swap(other, tokenA, wad(100), tokenB)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	// Sell pool grows by the full sell amount
	if got := p.Total(tokenA); got.Cmp(wad(1100)) != 0 {
		t.Errorf("sell pool: got %s, want %s", got, wad(1100))
	}
	// Buy pool shrinks only by net: the fee stays in the pool
	wantBuyTotal := new(big.Int).Sub(wad(500), res.BuyAmount)
	if got := p.Total(tokenB); got.Cmp(wantBuyTotal) != 0 {
		t.Errorf("buy pool: got %s, want %s", got, wantBuyTotal)
	}
	// Custodial holdings match the pool totals
	custodial, _ := l.BalanceOf(tokenB, poolAddr)
	if custodial.Cmp(wantBuyTotal) != 0 {
		t.Errorf("custodial: got %s, want %s", custodial, wantBuyTotal)
	}
}

func TestSwap_Validation(t *testing.T) {
	_, p := newPool(t)
	if _, err := p.Swap(other, tokenA, big.NewInt(0), tokenB); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := p.Swap(other, tokenA, wad(1), tokenA); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("same token: got %v", err)
	}
	if _, err := p.Swap(other, tokenA, wad(1), tokenB); !errors.Is(err, errs.ErrInsufficientLiquidity) {
		t.Errorf("empty pools: got %v", err)
	}
}

func TestPoolSetFee_Bound(t *testing.T) {
	_, p := newPool(t)
	if err := p.SetFee(operator, 51); !errors.Is(err, errs.ErrFeeTooHigh) {
		t.Errorf("fee 51: got %v, want ErrFeeTooHigh", err)
	}
	if err := p.SetFee(operator, 50); err != nil {
		t.Errorf("fee 50: %v", err)
	}
	if err := p.SetFee(trader, 1); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("non-owner: got %v, want ErrUnauthorized", err)
	}
}

// ============================================================================
// Test: Snapshot / Restore
// ============================================================================

func TestPoolSnapshot_RoundTrip(t *testing.T) {
	l, p := newPool(t)
	if _, err := p.Deposit(trader, tokenA, wad(100)); err != nil {
		t.Fatal(err)
	}
	if err := p.SetFee(operator, 5); err != nil {
		t.Fatal(err)
	}

	restored := exchange.RestorePool(operator, l, p.Snapshot())
	if got := restored.DepositOf(trader, tokenA); got.Cmp(wad(100)) != 0 {
		t.Errorf("restored deposit: got %s", got)
	}
	if got := restored.Total(tokenA); got.Cmp(wad(100)) != 0 {
		t.Errorf("restored total: got %s", got)
	}
	if restored.Fee() != 5 {
		t.Errorf("restored fee: got %d", restored.Fee())
	}
}

package bridge_test

import (
	"errors"
	"math/big"
	"testing"

	"MarketLedger/internal/bridge"
	"MarketLedger/internal/errs"
	"MarketLedger/internal/event"
	"MarketLedger/internal/market"

	"github.com/ethereum/go-ethereum/common"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000022")
	handle   = common.HexToAddress("0x00000000000000000000000000000000000000D1")
)

func snapshot(price int64, resolved bool, outcome string) event.MarketStateSnapshot {
	return event.MarketStateSnapshot{
		CurrentPrice:   big.NewInt(price),
		TotalLiquidity: big.NewInt(0),
		Resolved:       resolved,
		Outcome:        outcome,
	}
}

func newBridge(t *testing.T, markets int) (*market.Registry, *bridge.Bridge) {
	t.Helper()
	r := market.NewRegistry(operator)
	for i := 0; i < markets; i++ {
		if _, err := r.Create(handle, "m", market.TypeBinary, []string{"Yes", "No"}); err != nil {
			t.Fatal(err)
		}
	}
	return r, bridge.NewBridge(operator, r)
}

func TestSync_UpdatesEveryMarket(t *testing.T) {
	r, b := newBridge(t, 2)

	err := b.Sync(operator, 7, []int64{0, 1}, []event.MarketStateSnapshot{
		snapshot(100, false, ""),
		snapshot(200, true, "Yes"),
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	m0, _ := r.Get(0)
	if got := m0.State().CurrentPrice; got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("market 0 price: got %s, want 100", got)
	}
	m1, _ := r.Get(1)
	if s := m1.State(); !s.Resolved || s.Outcome != "Yes" {
		t.Errorf("market 1 not resolved: %+v", s)
	}
}

func TestSync_OwnerGated(t *testing.T) {
	r, b := newBridge(t, 1)
	err := b.Sync(stranger, 1, []int64{0}, []event.MarketStateSnapshot{snapshot(5, false, "")})
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	m, _ := r.Get(0)
	if m.State().CurrentPrice.Sign() != 0 {
		t.Error("state written by non-owner")
	}
}

func TestSync_LengthMismatch(t *testing.T) {
	// Two ids, one state: the canonical shape-mismatch rejection.
	r, b := newBridge(t, 2)
	err := b.Sync(operator, 3, []int64{1, 2}, []event.MarketStateSnapshot{snapshot(1, false, "")})
	if !errors.Is(err, errs.ErrLengthMismatch) {
		t.Fatalf("got %v, want ErrLengthMismatch", err)
	}
	m, _ := r.Get(1)
	if m.State().CurrentPrice.Sign() != 0 {
		t.Error("state written despite mismatch")
	}
}

func TestSync_UnknownMarketAtomic(t *testing.T) {
	r, b := newBridge(t, 1)
	err := b.Sync(operator, 2, []int64{0, 9}, []event.MarketStateSnapshot{
		snapshot(1, false, ""),
		snapshot(2, false, ""),
	})
	if !errors.Is(err, errs.ErrMarketNotFound) {
		t.Fatalf("got %v, want ErrMarketNotFound", err)
	}
	// Market 0 must not have been written before the unknown id was found
	m, _ := r.Get(0)
	if m.State().CurrentPrice.Sign() != 0 {
		t.Error("partial write before validation failure")
	}
}

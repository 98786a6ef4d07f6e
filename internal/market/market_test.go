package market_test

import (
	"errors"
	"math/big"
	"testing"

	"MarketLedger/internal/errs"
	"MarketLedger/internal/market"

	"github.com/ethereum/go-ethereum/common"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	bettor   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000022")
	handle   = common.HexToAddress("0x00000000000000000000000000000000000000D1")
)

func newBinaryMarket(t *testing.T) (*market.Registry, *market.Market) {
	t.Helper()
	r := market.NewRegistry(operator)
	m, err := r.Create(handle, "Will it rain tomorrow?", market.TypeBinary, []string{"Yes", "No"})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	return r, m
}

// ============================================================================
// Test: Registry.Create
// ============================================================================

func TestCreate_SequentialIDsFromZero(t *testing.T) {
	r := market.NewRegistry(operator)
	for i := int64(0); i < 3; i++ {
		m, err := r.Create(handle, "m", market.TypeCategorical, []string{"A", "B", "C"})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if m.ID() != i {
			t.Errorf("id: got %d, want %d", m.ID(), i)
		}
	}
	if r.Count() != 3 {
		t.Errorf("count: got %d, want 3", r.Count())
	}
}

func TestCreate_EmptyOutcomesRejected(t *testing.T) {
	r := market.NewRegistry(operator)
	_, err := r.Create(handle, "m", market.TypeBinary, nil)
	if !errors.Is(err, errs.ErrInvalidMarketDefinition) {
		t.Errorf("got %v, want ErrInvalidMarketDefinition", err)
	}
	if r.Count() != 0 {
		t.Errorf("rejected create consumed an id")
	}
}

func TestCreate_DuplicateOutcomesRejected(t *testing.T) {
	r := market.NewRegistry(operator)
	_, err := r.Create(handle, "m", market.TypeBinary, []string{"Yes", "Yes"})
	if !errors.Is(err, errs.ErrInvalidMarketDefinition) {
		t.Errorf("got %v, want ErrInvalidMarketDefinition", err)
	}
}

func TestCreate_UnknownTypeRejected(t *testing.T) {
	r := market.NewRegistry(operator)
	_, err := r.Create(handle, "m", market.MarketType("PARLAY"), []string{"Yes", "No"})
	if !errors.Is(err, errs.ErrInvalidMarketDefinition) {
		t.Errorf("got %v, want ErrInvalidMarketDefinition", err)
	}
}

func TestCreate_ZeroedInitialState(t *testing.T) {
	_, m := newBinaryMarket(t)
	s := m.State()
	if s.CurrentPrice.Sign() != 0 || s.TotalLiquidity.Sign() != 0 || s.Resolved || s.Outcome != "" {
		t.Errorf("initial state not zeroed: %+v", s)
	}
}

// ============================================================================
// Test: PlaceBet
// ============================================================================

func TestPlaceBet_AccumulatesStakeAndLiquidity(t *testing.T) {
	_, m := newBinaryMarket(t)

	if err := m.PlaceBet(bettor, "Yes", big.NewInt(100)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if err := m.PlaceBet(bettor, "Yes", big.NewInt(50)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if err := m.PlaceBet(stranger, "No", big.NewInt(25)); err != nil {
		t.Fatalf("bet: %v", err)
	}

	if got := m.Bet(bettor, "Yes"); got.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("stake: got %s, want 150", got)
	}
	if got := m.State().TotalLiquidity; got.Cmp(big.NewInt(175)) != 0 {
		t.Errorf("liquidity: got %s, want 175", got)
	}
}

func TestPlaceBet_UndeclaredOutcomeAccepted(t *testing.T) {
	// Outcome strings are deliberately not validated against the declared
	// set; the permissive source behavior is preserved.
	_, m := newBinaryMarket(t)
	if err := m.PlaceBet(bettor, "Maybe", big.NewInt(10)); err != nil {
		t.Fatalf("bet on undeclared outcome: %v", err)
	}
	if got := m.Bet(bettor, "Maybe"); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("stake: got %s, want 10", got)
	}
}

func TestPlaceBet_ResolvedMarketRejected(t *testing.T) {
	r, m := newBinaryMarket(t)
	err := r.UpdateState(operator, m.ID(), market.State{
		CurrentPrice:   big.NewInt(1),
		TotalLiquidity: big.NewInt(0),
		Resolved:       true,
		Outcome:        "Yes",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.PlaceBet(bettor, "Yes", big.NewInt(10)); !errors.Is(err, errs.ErrMarketResolved) {
		t.Errorf("got %v, want ErrMarketResolved", err)
	}
	if got := m.State().TotalLiquidity; got.Sign() != 0 {
		t.Errorf("liquidity changed after rejected bet: %s", got)
	}
}

// ============================================================================
// Test: UpdateState
// ============================================================================

func TestUpdateState_OwnerGated(t *testing.T) {
	r, m := newBinaryMarket(t)
	s := market.State{CurrentPrice: big.NewInt(5), TotalLiquidity: big.NewInt(9)}

	if err := r.UpdateState(stranger, m.ID(), s); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
	if got := m.State().CurrentPrice; got.Sign() != 0 {
		t.Errorf("state changed after rejected update")
	}

	if err := r.UpdateState(operator, m.ID(), s); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if got := m.State().CurrentPrice; got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("price: got %s, want 5", got)
	}
}

func TestUpdateState_UnknownMarket(t *testing.T) {
	r, _ := newBinaryMarket(t)
	err := r.UpdateState(operator, 42, market.State{CurrentPrice: big.NewInt(0), TotalLiquidity: big.NewInt(0)})
	if !errors.Is(err, errs.ErrMarketNotFound) {
		t.Errorf("got %v, want ErrMarketNotFound", err)
	}
}

func TestUpdateState_AllowedAfterResolution(t *testing.T) {
	r, m := newBinaryMarket(t)
	resolved := market.State{CurrentPrice: big.NewInt(1), TotalLiquidity: big.NewInt(0), Resolved: true, Outcome: "No"}
	if err := r.UpdateState(operator, m.ID(), resolved); err != nil {
		t.Fatal(err)
	}
	// The driver may idempotently re-push round state after resolution.
	if err := r.UpdateState(operator, m.ID(), resolved); err != nil {
		t.Errorf("re-push after resolution: %v", err)
	}
}

// ============================================================================
// Test: Snapshot / Restore
// ============================================================================

func TestRegistrySnapshot_RoundTrip(t *testing.T) {
	r, m := newBinaryMarket(t)
	if err := m.PlaceBet(bettor, "Yes", big.NewInt(100)); err != nil {
		t.Fatal(err)
	}

	restored := market.RestoreRegistry(operator, r.Snapshot())
	if restored.Count() != 1 {
		t.Fatalf("count: got %d, want 1", restored.Count())
	}
	rm, err := restored.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := rm.Bet(bettor, "Yes"); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("restored stake: got %s, want 100", got)
	}
	if got := rm.State().TotalLiquidity; got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("restored liquidity: got %s, want 100", got)
	}
}

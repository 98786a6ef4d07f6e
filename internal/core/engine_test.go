package core_test

import (
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"
	"time"

	"MarketLedger/internal/core"
	"MarketLedger/internal/errs"
	"MarketLedger/internal/event"
	"MarketLedger/internal/observability"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Prometheus collectors register globally; one instance for the test binary.
var testMetrics = observability.NewMetrics()

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000011")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000022")
)

func wad(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T) (*core.Engine, chan *event.Envelope) {
	t.Helper()
	persist := make(chan *event.Envelope, 1024)
	e := core.NewEngine(core.Config{
		Owner:       operator,
		PersistChan: persist,
		Metrics:     testMetrics,
		Logger:      zerolog.Nop(),
		Clock:       fixedClock,
	})
	return e, persist
}

func drain(ch chan *event.Envelope) []*event.Envelope {
	var out []*event.Envelope
	for {
		select {
		case env := <-ch:
			out = append(out, env)
		default:
			return out
		}
	}
}

// ============================================================================
// Test: sequencing and hash chain
// ============================================================================

func TestEmit_SequencesFromZeroAndChainsHashes(t *testing.T) {
	e, persist := newTestEngine(t)

	usd, err := e.CreateToken(operator, "Settlement Dollar", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Mint(operator, usd, alice, wad(1000)); err != nil {
		t.Fatal(err)
	}
	if err := e.Transfer(alice, usd, bob, wad(100)); err != nil {
		t.Fatal(err)
	}

	envs := drain(persist)
	if len(envs) != 3 {
		t.Fatalf("envelopes: got %d, want 3", len(envs))
	}

	genesis := sha256.Sum256([]byte(core.GenesisHashSeed))
	if envs[0].PrevHash != genesis {
		t.Error("first envelope does not chain from genesis")
	}
	for i, env := range envs {
		if env.Sequence != int64(i) {
			t.Errorf("envelope %d: sequence %d", i, env.Sequence)
		}
		if i > 0 && env.PrevHash != envs[i-1].StateHash {
			t.Errorf("envelope %d: prev hash does not match predecessor", i)
		}
		if env.StateHash == env.PrevHash {
			t.Errorf("envelope %d: state hash did not advance", i)
		}
	}
	if e.Sequence() != 3 {
		t.Errorf("next sequence: got %d, want 3", e.Sequence())
	}
}

func TestEmit_RejectedOperationLeavesChainUntouched(t *testing.T) {
	e, persist := newTestEngine(t)

	usd, _ := e.CreateToken(operator, "usd", "USD")
	if err := e.Mint(operator, usd, alice, wad(10)); err != nil {
		t.Fatal(err)
	}
	before := e.StateHash()
	drain(persist)

	err := e.Transfer(alice, usd, bob, wad(999))
	if !errors.Is(err, errs.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if got := e.StateHash(); got != before {
		t.Error("state hash advanced on rejected operation")
	}
	if envs := drain(persist); len(envs) != 0 {
		t.Errorf("rejected operation emitted %d envelopes", len(envs))
	}
}

// ============================================================================
// Test: determinism
// ============================================================================

func TestDeterminism_IdenticalOpsProduceIdenticalHashes(t *testing.T) {
	run := func() common.Hash {
		e, persist := newTestEngine(t)
		usd, _ := e.CreateToken(operator, "usd", "USD")
		gold, _ := e.CreateToken(operator, "gold", "GLD")
		e.Mint(operator, usd, alice, wad(500))
		e.Mint(operator, gold, bob, wad(200))
		e.SetPriceToken(operator, usd)
		e.SetPrice(operator, gold, wad(3))
		e.CreateMarket(operator, "rain tomorrow", "BINARY", []string{"Yes", "No"})
		e.PlaceBet(alice, 0, "Yes", wad(10), wad(1))
		drain(persist)
		return e.StateHash()
	}

	first := run()
	second := run()
	if first != second {
		t.Errorf("hash diverged across identical runs: %s vs %s", first.Hex(), second.Hex())
	}
}

// ============================================================================
// Test: market and bet scenario
// ============================================================================

func TestScenario_CreateMarketAndBet(t *testing.T) {
	e, persist := newTestEngine(t)

	id, err := e.CreateMarket(operator, "rain tomorrow", "BINARY", []string{"Yes", "No"})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	if id != 0 {
		t.Errorf("first market id: got %d, want 0", id)
	}
	drain(persist)

	if err := e.PlaceBet(alice, id, "Yes", wad(100), wad(1)); err != nil {
		t.Fatalf("place bet: %v", err)
	}

	m, err := e.Market(id)
	if err != nil {
		t.Fatal(err)
	}
	if m.State.TotalLiquidity.Cmp(wad(100)) != 0 {
		t.Errorf("liquidity: got %s, want %s", m.State.TotalLiquidity, wad(100))
	}
	stake, err := e.Bet(id, alice, "Yes")
	if err != nil {
		t.Fatal(err)
	}
	if stake.Cmp(wad(100)) != 0 {
		t.Errorf("stake: got %s, want %s", stake, wad(100))
	}

	envs := drain(persist)
	if len(envs) != 1 {
		t.Fatalf("envelopes: got %d, want 1", len(envs))
	}
	bet, ok := envs[0].Event.(*event.BetPlaced)
	if !ok {
		t.Fatalf("event type: got %T", envs[0].Event)
	}
	if bet.Bettor != alice || bet.Outcome != "Yes" || bet.Amount.Cmp(wad(100)) != 0 {
		t.Errorf("bet event fields: %+v", bet)
	}
	if !bet.Timestamp.Equal(fixedClock()) {
		t.Errorf("bet timestamp: got %s", bet.Timestamp)
	}
	if envs[0].MarketID == nil || *envs[0].MarketID != id {
		t.Error("envelope missing market context")
	}
}

func TestCreateMarket_InvalidDefinition(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.CreateMarket(operator, "empty", "BINARY", nil); !errors.Is(err, errs.ErrInvalidMarketDefinition) {
		t.Errorf("empty outcomes: got %v", err)
	}
	if _, err := e.CreateMarket(operator, "bad type", "WEIRD", []string{"A"}); !errors.Is(err, errs.ErrInvalidMarketDefinition) {
		t.Errorf("unknown type: got %v", err)
	}
}

// ============================================================================
// Test: order book through the engine
// ============================================================================

func TestBuyOrder_LimitBelowOracleRejected(t *testing.T) {
	e, _ := newTestEngine(t)

	usd, _ := e.CreateToken(operator, "usd", "USD")
	gold, _ := e.CreateToken(operator, "gold", "GLD")
	e.Mint(operator, usd, alice, wad(1000))
	e.Mint(operator, gold, e.OrderBookAccount(), wad(1000))
	e.SetPriceToken(operator, usd)
	e.SetPrice(operator, gold, wad(2))
	e.Approve(alice, usd, e.OrderBookAccount(), wad(1000))

	_, err := e.PlaceBuyOrder(alice, gold, big.NewInt(10), wad(1))
	if !errors.Is(err, errs.ErrLimitExceeded) {
		t.Fatalf("got %v, want ErrLimitExceeded", err)
	}

	bal, _ := e.BalanceOf(usd, alice)
	if bal.Cmp(wad(1000)) != 0 {
		t.Error("balance moved on rejected order")
	}
}

func TestSetFees_BoundAtFifty(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.SetOrderBookFee(operator, 51); !errors.Is(err, errs.ErrFeeTooHigh) {
		t.Errorf("order book fee 51: got %v", err)
	}
	if err := e.SetOrderBookFee(operator, 50); err != nil {
		t.Errorf("order book fee 50: %v", err)
	}
	if err := e.SetExchangeFee(operator, 51); !errors.Is(err, errs.ErrFeeTooHigh) {
		t.Errorf("exchange fee 51: got %v", err)
	}
	if err := e.SetExchangeFee(alice, 10); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("exchange fee by non-owner: got %v", err)
	}
}

// ============================================================================
// Test: pool deposit-replace event ordering
// ============================================================================

func TestDepositLiquidity_ReplaceEmitsWithdrawFirst(t *testing.T) {
	e, persist := newTestEngine(t)

	gold, _ := e.CreateToken(operator, "gold", "GLD")
	e.Mint(operator, gold, alice, wad(1000))
	e.Approve(alice, gold, e.PoolAccount(), wad(1000))
	if err := e.DepositLiquidity(alice, gold, wad(100)); err != nil {
		t.Fatal(err)
	}
	drain(persist)

	if err := e.DepositLiquidity(alice, gold, wad(30)); err != nil {
		t.Fatal(err)
	}
	// Transfer(pool->alice), LiquidityWithdrawn, Transfer(alice->pool),
	// LiquidityDeposited: the implicit withdraw precedes the new deposit.
	envs := drain(persist)
	if len(envs) != 4 {
		t.Fatalf("envelopes: got %d, want 4", len(envs))
	}
	if _, ok := envs[1].Event.(*event.LiquidityWithdrawn); !ok {
		t.Errorf("second event: got %T, want LiquidityWithdrawn", envs[1].Event)
	}
	if _, ok := envs[3].Event.(*event.LiquidityDeposited); !ok {
		t.Errorf("fourth event: got %T, want LiquidityDeposited", envs[3].Event)
	}
	leg, ok := envs[0].Event.(*event.Transfer)
	if !ok || leg.From != e.PoolAccount() || leg.To != alice || leg.Amount.Cmp(wad(100)) != 0 {
		t.Errorf("withdraw leg: %+v", envs[0].Event)
	}
	if got := e.PoolDeposit(alice, gold); got.Cmp(wad(30)) != 0 {
		t.Errorf("recorded deposit: got %s, want %s", got, wad(30))
	}
}

// ============================================================================
// Test: environment sync
// ============================================================================

func TestSyncEnvironmentState_EmitsPerMarketAndAggregate(t *testing.T) {
	e, persist := newTestEngine(t)

	e.CreateMarket(operator, "m0", "BINARY", []string{"Yes", "No"})
	e.CreateMarket(operator, "m1", "BINARY", []string{"Yes", "No"})
	drain(persist)

	states := []event.MarketStateSnapshot{
		{CurrentPrice: wad(1), TotalLiquidity: wad(0), Resolved: false},
		{CurrentPrice: wad(2), TotalLiquidity: wad(0), Resolved: true, Outcome: "Yes"},
	}
	if err := e.SyncEnvironmentState(operator, 7, []int64{0, 1}, states); err != nil {
		t.Fatalf("sync: %v", err)
	}

	envs := drain(persist)
	if len(envs) != 3 {
		t.Fatalf("envelopes: got %d, want 3", len(envs))
	}
	for i := 0; i < 2; i++ {
		upd, ok := envs[i].Event.(*event.MarketStateUpdated)
		if !ok {
			t.Fatalf("event %d: got %T", i, envs[i].Event)
		}
		if upd.Round == nil || *upd.Round != 7 {
			t.Errorf("event %d missing round tag", i)
		}
	}
	agg, ok := envs[2].Event.(*event.EnvironmentStateUpdated)
	if !ok {
		t.Fatalf("last event: got %T", envs[2].Event)
	}
	if agg.Round != 7 || len(agg.MarketIDs) != 2 {
		t.Errorf("aggregate event: %+v", agg)
	}

	m1, _ := e.Market(1)
	if !m1.State.Resolved || m1.State.Outcome != "Yes" {
		t.Error("market 1 state not applied")
	}
}

func TestSyncEnvironmentState_MismatchAndGating(t *testing.T) {
	e, persist := newTestEngine(t)
	e.CreateMarket(operator, "m0", "BINARY", []string{"Yes", "No"})
	drain(persist)

	one := []event.MarketStateSnapshot{{CurrentPrice: wad(1), TotalLiquidity: wad(0)}}
	err := e.SyncEnvironmentState(operator, 1, []int64{0, 1}, one)
	if !errors.Is(err, errs.ErrLengthMismatch) {
		t.Errorf("mismatch: got %v", err)
	}
	err = e.SyncEnvironmentState(alice, 1, []int64{0}, one)
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("non-owner: got %v", err)
	}
	if envs := drain(persist); len(envs) != 0 {
		t.Errorf("rejected syncs emitted %d envelopes", len(envs))
	}
}

// ============================================================================
// Test: snapshot / restore
// ============================================================================

func TestSnapshot_RestoreResumesChain(t *testing.T) {
	a, persistA := newTestEngine(t)
	usd, _ := a.CreateToken(operator, "usd", "USD")
	a.Mint(operator, usd, alice, wad(500))
	a.SetPriceToken(operator, usd)
	a.CreateMarket(operator, "m", "BINARY", []string{"Yes", "No"})
	a.PlaceBet(alice, 0, "Yes", wad(5), wad(1))
	drain(persistA)

	snap := a.CreateSnapshotState()
	if snap.Sequence != a.Sequence()-1 {
		t.Errorf("snapshot sequence: got %d, want %d", snap.Sequence, a.Sequence()-1)
	}

	b, persistB := newTestEngine(t)
	if err := b.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if b.Sequence() != a.Sequence() {
		t.Errorf("restored sequence: got %d, want %d", b.Sequence(), a.Sequence())
	}
	if b.StateHash() != a.StateHash() {
		t.Error("restored chain tip differs")
	}

	// The same next operation must produce the same hash on both engines.
	if err := a.Transfer(alice, usd, bob, wad(10)); err != nil {
		t.Fatal(err)
	}
	if err := b.Transfer(alice, usd, bob, wad(10)); err != nil {
		t.Fatal(err)
	}
	if a.StateHash() != b.StateHash() {
		t.Error("hash diverged after restore")
	}

	envsA, envsB := drain(persistA), drain(persistB)
	if len(envsA) != 1 || len(envsB) != 1 {
		t.Fatalf("envelopes: %d vs %d", len(envsA), len(envsB))
	}
	if envsA[0].Sequence != envsB[0].Sequence || envsA[0].StateHash != envsB[0].StateHash {
		t.Error("post-restore envelopes differ")
	}
}

func TestSnapshot_OwnerMismatchRejected(t *testing.T) {
	a, _ := newTestEngine(t)
	snap := a.CreateSnapshotState()

	persist := make(chan *event.Envelope, 16)
	other := core.NewEngine(core.Config{
		Owner:       alice,
		PersistChan: persist,
		Metrics:     testMetrics,
		Logger:      zerolog.Nop(),
		Clock:       fixedClock,
	})
	if err := other.RestoreFromSnapshot(snap); err == nil {
		t.Error("restore with mismatched owner succeeded")
	}
}

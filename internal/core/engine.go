// Package core hosts the single-writer engine. Every mutating operation is
// serialized through one mutex, applied to the in-memory state, chained into
// the state-hash sequence, and emitted as an event envelope to the
// persistence and publish channels. Reads take the same mutex and return
// copies, so callers never observe torn state.
package core

import (
	"math/big"
	"strconv"
	"sync"
	"time"

	"MarketLedger/internal/bridge"
	"MarketLedger/internal/errs"
	"MarketLedger/internal/event"
	"MarketLedger/internal/exchange"
	"MarketLedger/internal/market"
	"MarketLedger/internal/observability"
	"MarketLedger/internal/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config wires the engine's collaborators.
type Config struct {
	// Owner is the privileged identity, fixed for the engine's lifetime.
	Owner common.Address

	// PersistChan receives every envelope; the engine blocks when it is
	// full rather than lose an event.
	PersistChan chan<- *event.Envelope

	// PublishChan receives envelopes best-effort; full means dropped.
	PublishChan chan<- *event.Envelope

	Metrics *observability.Metrics
	Logger  zerolog.Logger

	// Clock is injectable for tests; nil means time.Now.
	Clock func() time.Time
}

// Engine is the deterministic ledger core.
type Engine struct {
	mu      sync.Mutex
	log     zerolog.Logger
	metrics *observability.Metrics
	clock   func() time.Time

	owner    common.Address
	sequence int64
	nonce    uint64 // next derived-address nonce
	hasher   *StateHasher

	tokens   *token.Ledger
	registry *market.Registry
	book     *exchange.OrderBook
	pool     *exchange.Pool
	env      *bridge.Bridge

	persistChan chan<- *event.Envelope
	publishChan chan<- *event.Envelope
}

// NewEngine builds an empty engine. The order book and pool custodial
// addresses are derived from the owner at nonces 0 and 1; token and market
// handles consume nonces from 2 upward.
func NewEngine(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		clock:       clock,
		owner:       cfg.Owner,
		hasher:      NewStateHasher(),
		tokens:      token.NewLedger(),
		persistChan: cfg.PersistChan,
		publishChan: cfg.PublishChan,
	}
	e.registry = market.NewRegistry(cfg.Owner)
	bookAccount := crypto.CreateAddress(cfg.Owner, 0)
	poolAccount := crypto.CreateAddress(cfg.Owner, 1)
	e.nonce = 2
	e.book = exchange.NewOrderBook(cfg.Owner, bookAccount, e.tokens)
	e.pool = exchange.NewPool(cfg.Owner, poolAccount, e.tokens)
	e.env = bridge.NewBridge(cfg.Owner, e.registry)
	return e
}

// Owner returns the privileged identity.
func (e *Engine) Owner() common.Address { return e.owner }

// OrderBookAccount returns the order book's custodial address.
func (e *Engine) OrderBookAccount() common.Address { return e.book.Account() }

// PoolAccount returns the pool's custodial address.
func (e *Engine) PoolAccount() common.Address { return e.pool.Account() }

// Sequence returns the next sequence number to be assigned.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// StateHash returns the current chain tip.
func (e *Engine) StateHash() common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return common.Hash(e.hasher.GetPrevHash())
}

// ============================================================================
// Token operations
// ============================================================================

// CreateToken registers a new fungible token under a derived address and
// returns it. The caller becomes the token's sole mint authority.
func (e *Engine) CreateToken(caller common.Address, name, symbol string) (common.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	addr := crypto.CreateAddress(caller, e.nonce)
	if err := e.tokens.Register(addr, name, symbol, caller); err != nil {
		return common.Address{}, e.reject("create_token", err)
	}
	e.nonce++

	e.emit("create_token", caller, start, &event.TokenCreated{
		Token:   addr,
		Creator: caller,
		Name:    name,
		Symbol:  symbol,
	})
	return addr, nil
}

// Mint credits new supply to an account. Creator-only.
func (e *Engine) Mint(caller, tok, to common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.tokens.Mint(caller, tok, to, amount); err != nil {
		return e.reject("mint", err)
	}
	e.mustConserve(tok)

	e.emit("mint", caller, start, &event.Mint{
		Token:  tok,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// Transfer moves amount from the caller to the recipient.
func (e *Engine) Transfer(caller, tok, to common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.tokens.Transfer(tok, caller, to, amount); err != nil {
		return e.reject("transfer", err)
	}
	e.mustConserve(tok)

	e.emit("transfer", caller, start, &event.Transfer{
		Token:  tok,
		From:   caller,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// Approve sets the spender's allowance over the caller's balance.
func (e *Engine) Approve(caller, tok, spender common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.tokens.Approve(tok, caller, spender, amount); err != nil {
		return e.reject("approve", err)
	}

	e.emit("approve", caller, start, &event.Approval{
		Token:   tok,
		Owner:   caller,
		Spender: spender,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// TransferFrom moves amount from owner to recipient on the caller's
// allowance.
func (e *Engine) TransferFrom(caller, tok, owner, to common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.tokens.TransferFrom(tok, caller, owner, to, amount); err != nil {
		return e.reject("transfer_from", err)
	}
	e.mustConserve(tok)

	e.emit("transfer_from", caller, start, &event.Transfer{
		Token:  tok,
		From:   owner,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// BalanceOf returns the account's balance for a token.
func (e *Engine) BalanceOf(tok, account common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens.BalanceOf(tok, account)
}

// Allowance returns the spender's remaining allowance.
func (e *Engine) Allowance(tok, owner, spender common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens.Allowance(tok, owner, spender)
}

// TotalSupply returns the token's minted supply.
func (e *Engine) TotalSupply(tok common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens.TotalSupply(tok)
}

// ============================================================================
// Market operations
// ============================================================================

// CreateMarket stores a new market and returns its sequential id.
func (e *Engine) CreateMarket(caller common.Address, description, marketType string, outcomes []string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	mt, err := market.ParseMarketType(marketType)
	if err != nil {
		return 0, e.reject("create_market", err)
	}
	handle := crypto.CreateAddress(e.owner, e.nonce)
	m, err := e.registry.Create(handle, description, mt, outcomes)
	if err != nil {
		return 0, e.reject("create_market", err)
	}
	e.nonce++

	e.emit("create_market", caller, start, &event.MarketCreated{
		ID:          m.ID(),
		Handle:      handle,
		Description: description,
		MarketType:  marketType,
		Outcomes:    append([]string(nil), outcomes...),
	})
	return m.ID(), nil
}

// UpdateMarketState overwrites a market's mutable state. Owner-only.
func (e *Engine) UpdateMarketState(caller common.Address, marketID int64, s market.State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.registry.UpdateState(caller, marketID, s); err != nil {
		return e.reject("update_market_state", err)
	}

	e.emit("update_market_state", caller, start, &event.MarketStateUpdated{
		ID:             marketID,
		CurrentPrice:   new(big.Int).Set(s.CurrentPrice),
		TotalLiquidity: new(big.Int).Set(s.TotalLiquidity),
		Resolved:       s.Resolved,
		Outcome:        s.Outcome,
	})
	return nil
}

// PlaceBet stakes amount on an outcome. The price is caller-supplied and
// recorded for audit without verification.
func (e *Engine) PlaceBet(caller common.Address, marketID int64, outcome string, amount, price *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	m, err := e.registry.Get(marketID)
	if err != nil {
		return e.reject("place_bet", err)
	}
	if err := m.PlaceBet(caller, outcome, amount); err != nil {
		return e.reject("place_bet", err)
	}

	e.metrics.BetsPlaced.WithLabelValues(strconv.FormatInt(marketID, 10)).Inc()
	e.emit("place_bet", caller, start, &event.BetPlaced{
		ID:        marketID,
		Bettor:    caller,
		Outcome:   outcome,
		Amount:    new(big.Int).Set(amount),
		Price:     new(big.Int).Set(price),
		Timestamp: start,
	})
	return nil
}

// Market returns a deep copy of one market's state.
func (e *Engine) Market(marketID int64) (market.MarketSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.registry.Get(marketID)
	if err != nil {
		return market.MarketSnapshot{}, err
	}
	return snapshotMarket(m), nil
}

// Markets returns deep copies of all markets in id order.
func (e *Engine) Markets() []market.MarketSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Snapshot()
}

// Bet returns the bettor's staked amount for an outcome.
func (e *Engine) Bet(marketID int64, bettor common.Address, outcome string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.registry.Get(marketID)
	if err != nil {
		return nil, err
	}
	return m.Bet(bettor, outcome), nil
}

// ============================================================================
// Order book operations
// ============================================================================

// SetPriceToken configures the order book's quote asset. Owner-only.
func (e *Engine) SetPriceToken(caller, priceToken common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.book.SetPriceToken(caller, priceToken); err != nil {
		return e.reject("set_price_token", err)
	}

	e.emit("set_price_token", caller, start, &event.PriceTokenSet{PriceToken: priceToken})
	return nil
}

// SetPrice pushes one oracle price. Owner-only.
func (e *Engine) SetPrice(caller, tok common.Address, price *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.book.SetPrice(caller, tok, price); err != nil {
		return e.reject("set_price", err)
	}

	e.metrics.OracleUpdates.Inc()
	e.emit("set_price", caller, start, &event.PriceUpdated{
		Token: tok,
		Price: new(big.Int).Set(price),
	})
	return nil
}

// SetPriceBatch pushes a parallel array of oracle prices atomically,
// emitting one PriceUpdated per entry.
func (e *Engine) SetPriceBatch(caller common.Address, tokens []common.Address, prices []*big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.book.SetPriceBatch(caller, tokens, prices); err != nil {
		return e.reject("set_price_batch", err)
	}

	evs := make([]event.Event, 0, len(tokens))
	for i, tok := range tokens {
		evs = append(evs, &event.PriceUpdated{
			Token: tok,
			Price: new(big.Int).Set(prices[i]),
		})
	}
	e.metrics.OracleUpdates.Add(float64(len(tokens)))
	e.emit("set_price_batch", caller, start, evs...)
	return nil
}

// SetOrderBookFee updates the order book fee numerator. Owner-only, bounded
// at 50/1000.
func (e *Engine) SetOrderBookFee(caller common.Address, fee int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.book.SetFee(caller, fee); err != nil {
		return e.reject("set_order_book_fee", err)
	}

	e.emit("set_order_book_fee", caller, start, &event.OrderBookFeeUpdated{Fee: fee})
	return nil
}

// PlaceBuyOrder fills a limit buy at the oracle price.
func (e *Engine) PlaceBuyOrder(caller, tok common.Address, amount, limitPrice *big.Int) (*exchange.OrderFill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	fill, err := e.book.PlaceBuyOrder(caller, tok, amount, limitPrice)
	if err != nil {
		return nil, e.reject("buy_order", err)
	}
	e.mustConserve(tok)

	// Both custody legs are emitted as Transfer sub-events so the balance
	// projection can follow the log without knowing order economics.
	priceToken, _ := e.book.PriceToken()
	e.metrics.OrdersFilled.WithLabelValues("buy").Inc()
	e.emit("buy_order", caller, start,
		&event.Transfer{Token: priceToken, From: caller, To: e.book.Account(), Amount: new(big.Int).Set(fill.Cost)},
		&event.Transfer{Token: tok, From: e.book.Account(), To: caller, Amount: new(big.Int).Set(amount)},
		&event.BuyOrder{
			Buyer:    caller,
			Token:    tok,
			Amount:   new(big.Int).Set(amount),
			OldPrice: fill.OldPrice,
			NewPrice: fill.NewPrice,
		})
	return fill, nil
}

// PlaceSellOrder fills a limit sell at the oracle price.
func (e *Engine) PlaceSellOrder(caller, tok common.Address, amount, limitPrice *big.Int) (*exchange.OrderFill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	fill, err := e.book.PlaceSellOrder(caller, tok, amount, limitPrice)
	if err != nil {
		return nil, e.reject("sell_order", err)
	}
	e.mustConserve(tok)

	priceToken, _ := e.book.PriceToken()
	e.metrics.OrdersFilled.WithLabelValues("sell").Inc()
	e.emit("sell_order", caller, start,
		&event.Transfer{Token: tok, From: caller, To: e.book.Account(), Amount: new(big.Int).Set(amount)},
		&event.Transfer{Token: priceToken, From: e.book.Account(), To: caller, Amount: new(big.Int).Set(fill.Cost)},
		&event.SellOrder{
			Seller:   caller,
			Token:    tok,
			Amount:   new(big.Int).Set(amount),
			OldPrice: fill.OldPrice,
			NewPrice: fill.NewPrice,
		})
	return fill, nil
}

// OraclePrice returns the pushed oracle price for a token, if any.
func (e *Engine) OraclePrice(tok common.Address) (*big.Int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Price(tok)
}

// PriceToken returns the order book's configured quote asset.
func (e *Engine) PriceToken() (common.Address, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.PriceToken()
}

// OrderBookFee returns the order book fee numerator.
func (e *Engine) OrderBookFee() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Fee()
}

// ============================================================================
// Pooled exchange operations
// ============================================================================

// DepositLiquidity records pool liquidity for the caller. Existing liquidity
// for the token is implicitly withdrawn first and emits its own event.
func (e *Engine) DepositLiquidity(caller, tok common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	withdrawn, err := e.pool.Deposit(caller, tok, amount)
	if err != nil {
		return e.reject("deposit_liquidity", err)
	}
	e.mustConserve(tok)

	var evs []event.Event
	if withdrawn != nil && withdrawn.Sign() > 0 {
		evs = append(evs,
			&event.Transfer{Token: tok, From: e.pool.Account(), To: caller, Amount: withdrawn},
			&event.LiquidityWithdrawn{
				Provider: caller,
				Token:    tok,
				Amount:   new(big.Int).Set(withdrawn),
			})
	}
	evs = append(evs,
		&event.Transfer{Token: tok, From: caller, To: e.pool.Account(), Amount: new(big.Int).Set(amount)},
		&event.LiquidityDeposited{
			Provider: caller,
			Token:    tok,
			Amount:   new(big.Int).Set(amount),
		})
	e.emit("deposit_liquidity", caller, start, evs...)
	return nil
}

// WithdrawLiquidity pushes the caller's entire recorded liquidity back.
func (e *Engine) WithdrawLiquidity(caller, tok common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	withdrawn, err := e.pool.Withdraw(caller, tok)
	if err != nil {
		return nil, e.reject("withdraw_liquidity", err)
	}
	e.mustConserve(tok)

	e.emit("withdraw_liquidity", caller, start,
		&event.Transfer{Token: tok, From: e.pool.Account(), To: caller, Amount: new(big.Int).Set(withdrawn)},
		&event.LiquidityWithdrawn{
			Provider: caller,
			Token:    tok,
			Amount:   new(big.Int).Set(withdrawn),
		})
	return withdrawn, nil
}

// Swap executes a ratio-priced swap.
func (e *Engine) Swap(caller, sellToken common.Address, sellAmount *big.Int, buyToken common.Address) (*exchange.SwapResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	res, err := e.pool.Swap(caller, sellToken, sellAmount, buyToken)
	if err != nil {
		return nil, e.reject("swap", err)
	}
	e.mustConserve(sellToken, buyToken)

	e.metrics.SwapsExecuted.Inc()
	if res.Fee.Sign() > 0 {
		e.metrics.SwapFeeRetained.Inc()
	}
	e.emit("swap", caller, start,
		&event.Transfer{Token: sellToken, From: caller, To: e.pool.Account(), Amount: new(big.Int).Set(sellAmount)},
		&event.Transfer{Token: buyToken, From: e.pool.Account(), To: caller, Amount: new(big.Int).Set(res.BuyAmount)},
		&event.Swap{
			Trader:     caller,
			SellToken:  sellToken,
			SellAmount: new(big.Int).Set(sellAmount),
			BuyToken:   buyToken,
			BuyAmount:  new(big.Int).Set(res.BuyAmount),
			Fee:        new(big.Int).Set(res.Fee),
			Price:      new(big.Int).Set(res.Price),
		})
	return res, nil
}

// SetExchangeFee updates the pool fee numerator. Owner-only, bounded at
// 50/1000.
func (e *Engine) SetExchangeFee(caller common.Address, fee int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.pool.SetFee(caller, fee); err != nil {
		return e.reject("set_exchange_fee", err)
	}

	e.emit("set_exchange_fee", caller, start, &event.ExchangeFeeUpdated{Fee: fee})
	return nil
}

// PoolPrice returns buyPoolTotal * 1e18 / sellPoolTotal.
func (e *Engine) PoolPrice(sellToken, buyToken common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.GetPrice(sellToken, buyToken)
}

// PoolDeposit returns the provider's recorded liquidity for a token.
func (e *Engine) PoolDeposit(provider, tok common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.DepositOf(provider, tok)
}

// PoolTotal returns the pool total for a token.
func (e *Engine) PoolTotal(tok common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Total(tok)
}

// ExchangeFee returns the pool fee numerator.
func (e *Engine) ExchangeFee() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Fee()
}

// ============================================================================
// Environment bridge
// ============================================================================

// SyncEnvironmentState applies one round of off-chain-computed market states
// and re-emits the aggregated round event. Owner-only, atomic.
func (e *Engine) SyncEnvironmentState(caller common.Address, round int64, marketIDs []int64, states []event.MarketStateSnapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()

	if err := e.env.Sync(caller, round, marketIDs, states); err != nil {
		return e.reject("sync_environment_state", err)
	}

	evs := make([]event.Event, 0, len(marketIDs)+1)
	for i, id := range marketIDs {
		s := states[i]
		evs = append(evs, &event.MarketStateUpdated{
			ID:             id,
			CurrentPrice:   new(big.Int).Set(s.CurrentPrice),
			TotalLiquidity: new(big.Int).Set(s.TotalLiquidity),
			Resolved:       s.Resolved,
			Outcome:        s.Outcome,
			Round:          &round,
		})
	}
	evs = append(evs, &event.EnvironmentStateUpdated{
		Round:     round,
		MarketIDs: append([]int64(nil), marketIDs...),
		States:    append([]event.MarketStateSnapshot(nil), states...),
	})

	e.metrics.SyncRounds.Inc()
	e.emit("sync_environment_state", caller, start, evs...)
	return nil
}

// ============================================================================
// Emission
// ============================================================================

// emit assigns sequences, chains state hashes, and fans the envelopes out.
// Called with the engine mutex held, after all mutations succeeded. The
// state digest is computed once per operation; envelopes of a multi-event
// operation share it and differ by sequence.
func (e *Engine) emit(op string, caller common.Address, start time.Time, evs ...event.Event) {
	hashStart := time.Now()
	digest := e.computeStateDigest()
	e.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())

	for _, ev := range evs {
		seq := e.sequence
		prev := e.hasher.GetPrevHash()
		hash := e.hasher.ComputeHash(seq, digest)
		env := &event.Envelope{
			Sequence:       seq,
			IdempotencyKey: uuid.New().String(),
			EventType:      ev.EventType(),
			MarketID:       ev.MarketID(),
			Caller:         caller,
			Timestamp:      start,
			Event:          ev,
			StateHash:      hash,
			PrevHash:       prev,
		}
		e.sequence++

		if e.persistChan != nil {
			select {
			case e.persistChan <- env:
			default:
				// Persistence is lossless: block until the writer drains.
				e.metrics.PersistBackpressure.Inc()
				e.persistChan <- env
			}
		}
		if e.publishChan != nil {
			select {
			case e.publishChan <- env:
			default:
				e.metrics.PublishDrops.Inc()
			}
		}
		e.metrics.CoreOpsApplied.WithLabelValues(ev.EventType().String()).Inc()
	}

	e.metrics.CoreSequence.Set(float64(e.sequence - 1))
	e.metrics.CoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (e *Engine) reject(op string, err error) error {
	e.metrics.CoreOpsRejected.WithLabelValues(op, errs.Code(err)).Inc()
	e.log.Debug().
		Str("op", op).
		Str("code", errs.Code(err)).
		Err(err).
		Msg("operation rejected")
	return err
}

// mustConserve halts the process on a conservation violation. A broken
// invariant here means the in-memory state is corrupt and nothing further
// can be trusted.
func (e *Engine) mustConserve(tokens ...common.Address) {
	for _, tok := range tokens {
		if err := e.tokens.ValidateConservation(tok); err != nil {
			e.log.Error().Err(err).Msg("conservation violated, halting")
			panic(err)
		}
	}
}

func snapshotMarket(m *market.Market) market.MarketSnapshot {
	return market.MarketSnapshot{
		ID:          m.ID(),
		Handle:      m.Handle(),
		Description: m.Description(),
		MarketType:  m.Type(),
		Outcomes:    m.Outcomes(),
		State:       m.State(),
		Bets:        m.SortedBets(),
	}
}

package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidityDeposited is emitted when an account records a pool deposit.
// A deposit over existing liquidity emits LiquidityWithdrawn first: deposits
// replace, they do not top up.
type LiquidityDeposited struct {
	Provider common.Address `json:"provider"`
	Token    common.Address `json:"token"`
	Amount   *big.Int       `json:"amount"`
}

func (e *LiquidityDeposited) EventType() EventType { return EventTypeLiquidityDeposited }
func (e *LiquidityDeposited) MarketID() *int64     { return nil }

// LiquidityWithdrawn is emitted for the full-liquidation withdraw.
type LiquidityWithdrawn struct {
	Provider common.Address `json:"provider"`
	Token    common.Address `json:"token"`
	Amount   *big.Int       `json:"amount"`
}

func (e *LiquidityWithdrawn) EventType() EventType { return EventTypeLiquidityWithdrawn }
func (e *LiquidityWithdrawn) MarketID() *int64     { return nil }

// Swap is emitted for a completed ratio-priced swap. Fee stays in the buy
// pool rather than being routed anywhere.
type Swap struct {
	Trader     common.Address `json:"trader"`
	SellToken  common.Address `json:"sell_token"`
	SellAmount *big.Int       `json:"sell_amount"`
	BuyToken   common.Address `json:"buy_token"`
	BuyAmount  *big.Int       `json:"buy_amount"` // net of fee
	Fee        *big.Int       `json:"fee"`
	Price      *big.Int       `json:"price"` // 1e18 fixed point at execution
}

func (e *Swap) EventType() EventType { return EventTypeSwap }
func (e *Swap) MarketID() *int64     { return nil }

// ExchangeFeeUpdated is emitted when the pool fee numerator changes.
type ExchangeFeeUpdated struct {
	Fee int64 `json:"fee"` // out of 1000
}

func (e *ExchangeFeeUpdated) EventType() EventType { return EventTypeExchangeFeeUpdated }
func (e *ExchangeFeeUpdated) MarketID() *int64     { return nil }

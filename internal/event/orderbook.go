package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceTokenSet is emitted once when the order book's quote asset is
// configured.
type PriceTokenSet struct {
	PriceToken common.Address `json:"price_token"`
}

func (e *PriceTokenSet) EventType() EventType { return EventTypePriceTokenSet }
func (e *PriceTokenSet) MarketID() *int64     { return nil }

// PriceUpdated is emitted per token for both single and batch oracle price
// pushes.
type PriceUpdated struct {
	Token common.Address `json:"token"`
	Price *big.Int       `json:"price"` // 1e18 fixed point, in price-token units
}

func (e *PriceUpdated) EventType() EventType { return EventTypePriceUpdated }
func (e *PriceUpdated) MarketID() *int64     { return nil }

// OrderBookFeeUpdated is emitted when the order book fee numerator changes.
type OrderBookFeeUpdated struct {
	Fee int64 `json:"fee"` // out of 1000
}

func (e *OrderBookFeeUpdated) EventType() EventType { return EventTypeOrderBookFeeUpdated }
func (e *OrderBookFeeUpdated) MarketID() *int64     { return nil }

// BuyOrder is emitted for a filled limit buy. NewPrice equals OldPrice: the
// source system has no price-impact model, documented pass-through behavior.
type BuyOrder struct {
	Buyer    common.Address `json:"buyer"`
	Token    common.Address `json:"token"`
	Amount   *big.Int       `json:"amount"`
	OldPrice *big.Int       `json:"old_price"`
	NewPrice *big.Int       `json:"new_price"`
}

func (e *BuyOrder) EventType() EventType { return EventTypeBuyOrder }
func (e *BuyOrder) MarketID() *int64     { return nil }

// SellOrder is the sell-side counterpart of BuyOrder.
type SellOrder struct {
	Seller   common.Address `json:"seller"`
	Token    common.Address `json:"token"`
	Amount   *big.Int       `json:"amount"`
	OldPrice *big.Int       `json:"old_price"`
	NewPrice *big.Int       `json:"new_price"`
}

func (e *SellOrder) EventType() EventType { return EventTypeSellOrder }
func (e *SellOrder) MarketID() *int64     { return nil }

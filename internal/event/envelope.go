package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeTokenCreated
	EventTypeMint
	EventTypeTransfer
	EventTypeApproval
	EventTypeMarketCreated
	EventTypeMarketStateUpdated
	EventTypeBetPlaced
	EventTypePriceTokenSet
	EventTypePriceUpdated
	EventTypeOrderBookFeeUpdated
	EventTypeBuyOrder
	EventTypeSellOrder
	EventTypeLiquidityDeposited
	EventTypeLiquidityWithdrawn
	EventTypeSwap
	EventTypeExchangeFeeUpdated
	EventTypeEnvironmentStateUpdated
)

// Envelope wraps every event appended to the log. The envelope is the sole
// durable audit trail: one per successful mutating operation (plus the
// envelopes of its documented sub-events).
type Envelope struct {
	// Global monotonic sequence assigned by the core
	Sequence int64

	// Stable dedup key assigned at ingress
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Market context (nil for global events)
	MarketID *int64

	// Caller whose operation produced the event
	Caller common.Address

	// Timestamp assigned when the operation was serialized
	Timestamp time.Time

	// Typed payload; persistence marshals it to JSON
	Event Event

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads implement.
type Event interface {
	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context (nil for global events)
	MarketID() *int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeTokenCreated:
		return "TokenCreated"
	case EventTypeMint:
		return "Mint"
	case EventTypeTransfer:
		return "Transfer"
	case EventTypeApproval:
		return "Approval"
	case EventTypeMarketCreated:
		return "MarketCreated"
	case EventTypeMarketStateUpdated:
		return "MarketStateUpdated"
	case EventTypeBetPlaced:
		return "BetPlaced"
	case EventTypePriceTokenSet:
		return "PriceTokenSet"
	case EventTypePriceUpdated:
		return "PriceUpdated"
	case EventTypeOrderBookFeeUpdated:
		return "OrderBookFeeUpdated"
	case EventTypeBuyOrder:
		return "BuyOrder"
	case EventTypeSellOrder:
		return "SellOrder"
	case EventTypeLiquidityDeposited:
		return "LiquidityDeposited"
	case EventTypeLiquidityWithdrawn:
		return "LiquidityWithdrawn"
	case EventTypeSwap:
		return "Swap"
	case EventTypeExchangeFeeUpdated:
		return "ExchangeFeeUpdated"
	case EventTypeEnvironmentStateUpdated:
		return "EnvironmentStateUpdated"
	default:
		return "Unknown"
	}
}

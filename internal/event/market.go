package event

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketCreated is emitted by the registry when a new market is assigned
// its sequential id. Handle is the market's derived address, mirroring the
// per-market contract address of the source system.
type MarketCreated struct {
	ID          int64          `json:"market_id"`
	Handle      common.Address `json:"market_handle"`
	Description string         `json:"description"`
	MarketType  string         `json:"market_type"`
	Outcomes    []string       `json:"outcomes"`
}

func (e *MarketCreated) EventType() EventType { return EventTypeMarketCreated }
func (e *MarketCreated) MarketID() *int64     { return &e.ID }

// MarketStateUpdated is emitted when the privileged update entry point
// overwrites a market's mutable fields.
type MarketStateUpdated struct {
	ID             int64    `json:"market_id"`
	CurrentPrice   *big.Int `json:"current_price"` // 1e18 fixed point
	TotalLiquidity *big.Int `json:"total_liquidity"`
	Resolved       bool     `json:"resolved"`
	Outcome        string   `json:"outcome"`
	Round          *int64   `json:"round,omitempty"` // set when pushed via the bridge
}

func (e *MarketStateUpdated) EventType() EventType { return EventTypeMarketStateUpdated }
func (e *MarketStateUpdated) MarketID() *int64     { return &e.ID }

// BetPlaced is emitted for every successful bet. Price is caller-supplied
// and recorded for audit, not verified against the market's current price.
type BetPlaced struct {
	ID        int64          `json:"market_id"`
	Bettor    common.Address `json:"bettor"`
	Outcome   string         `json:"outcome"`
	Amount    *big.Int       `json:"amount"`
	Price     *big.Int       `json:"price"` // 1e18 fixed point
	Timestamp time.Time      `json:"timestamp"`
}

func (e *BetPlaced) EventType() EventType { return EventTypeBetPlaced }
func (e *BetPlaced) MarketID() *int64     { return &e.ID }

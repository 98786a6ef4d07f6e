package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenCreated is emitted when a new fungible token is registered.
type TokenCreated struct {
	Token   common.Address `json:"token"`
	Creator common.Address `json:"creator"`
	Name    string         `json:"name"`
	Symbol  string         `json:"symbol"`
}

func (e *TokenCreated) EventType() EventType { return EventTypeTokenCreated }
func (e *TokenCreated) MarketID() *int64     { return nil }

// Mint is emitted when the token creator mints new supply.
type Mint struct {
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func (e *Mint) EventType() EventType { return EventTypeMint }
func (e *Mint) MarketID() *int64     { return nil }

// Transfer is emitted for both direct transfers and transferFrom pulls.
type Transfer struct {
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func (e *Transfer) EventType() EventType { return EventTypeTransfer }
func (e *Transfer) MarketID() *int64     { return nil }

// Approval is emitted when an owner sets a spender's allowance.
type Approval struct {
	Token   common.Address `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

func (e *Approval) EventType() EventType { return EventTypeApproval }
func (e *Approval) MarketID() *int64     { return nil }

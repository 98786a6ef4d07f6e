package query

import "time"

// BalanceResponse is a projected balance for one (token, account) pair.
// Balance is a decimal string: 1e18 fixed-point amounts exceed int64.
type BalanceResponse struct {
	Token        string `json:"token"`
	Account      string `json:"account"`
	Balance      string `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"` // projection watermark at query time
}

// BetHistoryEntry is one recorded bet, served from the event-log side
// table. Price is the caller-supplied price at bet time, recorded
// unverified.
type BetHistoryEntry struct {
	Sequence     int64     `json:"sequence"`
	MarketID     int64     `json:"market_id"`
	Bettor       string    `json:"bettor"`
	Outcome      string    `json:"outcome"`
	Amount       string    `json:"amount"`
	Price        string    `json:"price"`
	Timestamp    time.Time `json:"timestamp"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// OrderHistoryEntry is one filled limit order from the orders projection.
type OrderHistoryEntry struct {
	Sequence     int64     `json:"sequence"`
	Side         string    `json:"side"` // "buy" or "sell"
	Trader       string    `json:"trader"`
	Token        string    `json:"token"`
	Amount       string    `json:"amount"`
	Price        string    `json:"price"` // oracle price at fill time
	Timestamp    time.Time `json:"timestamp"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// MarketEventEntry is one raw envelope from the event log, scoped to a
// market. Payload is the stored JSON, passed through untouched.
type MarketEventEntry struct {
	Sequence  int64     `json:"sequence"`
	EventType string    `json:"event_type"`
	Caller    string    `json:"caller"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification pass over
// the event log and the balance projection.
type IntegrityReport struct {
	IsHealthy        bool               `json:"is_healthy"`
	HashChainBreaks  []int64            `json:"hash_chain_breaks,omitempty"`
	UnbalancedTokens []UnbalancedToken  `json:"unbalanced_tokens,omitempty"`
	NegativeBalances []NegativeBalance  `json:"negative_balances,omitempty"`
	CheckedEvents    int64              `json:"checked_events"`
}

// UnbalancedToken is a token whose projected balances no longer sum to
// its minted supply.
type UnbalancedToken struct {
	Token     string `json:"token"`
	Minted    string `json:"minted"`
	Projected string `json:"projected"`
}

// NegativeBalance is a (token, account) pair the projection drove below
// zero; impossible if the log and the projection are both intact.
type NegativeBalance struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

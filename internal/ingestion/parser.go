package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"MarketLedger/internal/event"
)

// Command type discriminators, one per inbound subject.
const (
	CommandEnvSync    = "EnvSync"
	CommandPriceBatch = "PriceBatch"
)

// EnvSyncCommand is one simulation round of off-chain market states. The
// parallel marketIDs/states shape of the driver is preserved; shape
// validation happens in the engine so a mismatch is rejected there, not
// silently repaired here.
type EnvSyncCommand struct {
	Round          int64
	MarketIDs      []int64
	States         []event.MarketStateSnapshot
	IdempotencyKey string
}

// PriceBatchCommand is one round of oracle price pushes for the order book.
type PriceBatchCommand struct {
	Round          int64
	Tokens         []common.Address
	Prices         []*big.Int
	IdempotencyKey string
}

// ParseRawMessage converts a RawMessage into a typed command. Parse
// failures are permanent: redelivering a malformed message cannot fix it.
func ParseRawMessage(raw RawMessage, commandType string) (interface{}, error) {
	switch commandType {
	case CommandEnvSync:
		return parseEnvSync(raw.Data)
	case CommandPriceBatch:
		return parsePriceBatch(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match the driver. Amounts and prices are
// decimal strings: JSON numbers cannot carry 78-digit values losslessly.

type marketStateJSON struct {
	MarketID       int64  `json:"market_id"`
	Description    string `json:"description"`
	CurrentPrice   string `json:"current_price"`
	TotalLiquidity string `json:"total_liquidity"`
	Resolved       bool   `json:"resolved"`
	Outcome        string `json:"outcome"`
}

type envSyncJSON struct {
	Round          int64             `json:"round"`
	Markets        []marketStateJSON `json:"markets"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

func parseEnvSync(data []byte) (*EnvSyncCommand, error) {
	var j envSyncJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse EnvSync: %w", err)
	}
	if j.Round < 0 {
		return nil, fmt.Errorf("parse EnvSync: negative round %d", j.Round)
	}

	cmd := &EnvSyncCommand{
		Round:          j.Round,
		MarketIDs:      make([]int64, 0, len(j.Markets)),
		States:         make([]event.MarketStateSnapshot, 0, len(j.Markets)),
		IdempotencyKey: j.IdempotencyKey,
	}
	for i, m := range j.Markets {
		price, err := parseAmount(m.CurrentPrice)
		if err != nil {
			return nil, fmt.Errorf("parse EnvSync market[%d] current_price: %w", i, err)
		}
		liquidity, err := parseAmount(m.TotalLiquidity)
		if err != nil {
			return nil, fmt.Errorf("parse EnvSync market[%d] total_liquidity: %w", i, err)
		}
		cmd.MarketIDs = append(cmd.MarketIDs, m.MarketID)
		cmd.States = append(cmd.States, event.MarketStateSnapshot{
			Description:    m.Description,
			CurrentPrice:   price,
			TotalLiquidity: liquidity,
			Resolved:       m.Resolved,
			Outcome:        m.Outcome,
		})
	}
	return cmd, nil
}

type priceBatchJSON struct {
	Round          int64    `json:"round"`
	Tokens         []string `json:"tokens"`
	Prices         []string `json:"prices"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

func parsePriceBatch(data []byte) (*PriceBatchCommand, error) {
	var j priceBatchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceBatch: %w", err)
	}
	if j.Round < 0 {
		return nil, fmt.Errorf("parse PriceBatch: negative round %d", j.Round)
	}

	cmd := &PriceBatchCommand{
		Round:          j.Round,
		Tokens:         make([]common.Address, 0, len(j.Tokens)),
		Prices:         make([]*big.Int, 0, len(j.Prices)),
		IdempotencyKey: j.IdempotencyKey,
	}
	for i, t := range j.Tokens {
		addr, err := parseAddress(t)
		if err != nil {
			return nil, fmt.Errorf("parse PriceBatch tokens[%d]: %w", i, err)
		}
		cmd.Tokens = append(cmd.Tokens, addr)
	}
	for i, p := range j.Prices {
		price, err := parseAmount(p)
		if err != nil {
			return nil, fmt.Errorf("parse PriceBatch prices[%d]: %w", i, err)
		}
		cmd.Prices = append(cmd.Prices, price)
	}
	return cmd, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %q", s)
	}
	return v, nil
}

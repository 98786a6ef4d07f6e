// Package errs defines the stable error taxonomy shared by every ledger
// component. All failures abort the whole call with no partial state change;
// callers wrap these sentinels with fmt.Errorf("...: %w", err) for context.
package errs

import "errors"

var (
	// ErrUnauthorized is returned when the caller is not the designated
	// owner for a privileged operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientBalance is returned when a transfer leg would exceed
	// the sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is returned by transferFrom when the
	// spender's allowance is below the requested amount and not unlimited.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrTransferFailed is returned when an external transfer leg of a
	// composite operation cannot complete.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrInsufficientLiquidity is returned for pool price/swap operations
	// against a zero or inadequate pool.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrLimitExceeded is returned when the oracle price falls outside the
	// caller-supplied limit.
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrFeeTooHigh is returned when a fee above 50/1000 is requested.
	ErrFeeTooHigh = errors.New("fee too high")

	// ErrLengthMismatch is returned when parallel arrays differ in length.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrMarketNotFound is returned for operations on an unassigned market id.
	ErrMarketNotFound = errors.New("market not found")

	// ErrInvalidMarketDefinition is returned when a market is created with
	// an empty or internally duplicated outcome list.
	ErrInvalidMarketDefinition = errors.New("invalid market definition")

	// ErrMarketResolved is returned when a bet is placed on a resolved
	// market. The original system left this unguarded; the ledger forbids it.
	ErrMarketResolved = errors.New("market resolved")

	// ErrNoLiquidity is returned by withdraw when the caller has nothing
	// deposited.
	ErrNoLiquidity = errors.New("no liquidity")

	// ErrPriceTokenNotSet is returned by oracle price mutations before the
	// price token has been configured.
	ErrPriceTokenNotSet = errors.New("price token not set")

	// ErrTokenNotFound is returned for operations on an unregistered token.
	ErrTokenNotFound = errors.New("token not found")

	// ErrInvalidAmount is returned when an amount or price fails the
	// positivity requirement of an operation.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Code returns the stable string code for a wrapped sentinel, used in event
// payloads and API responses. Unrecognized errors map to "Internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrInsufficientAllowance):
		return "InsufficientAllowance"
	case errors.Is(err, ErrTransferFailed):
		return "TransferFailed"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "InsufficientLiquidity"
	case errors.Is(err, ErrLimitExceeded):
		return "LimitExceeded"
	case errors.Is(err, ErrFeeTooHigh):
		return "FeeTooHigh"
	case errors.Is(err, ErrLengthMismatch):
		return "LengthMismatch"
	case errors.Is(err, ErrMarketNotFound):
		return "MarketNotFound"
	case errors.Is(err, ErrInvalidMarketDefinition):
		return "InvalidMarketDefinition"
	case errors.Is(err, ErrMarketResolved):
		return "MarketResolved"
	case errors.Is(err, ErrNoLiquidity):
		return "NoLiquidity"
	case errors.Is(err, ErrPriceTokenNotSet):
		return "PriceTokenNotSet"
	case errors.Is(err, ErrTokenNotFound):
		return "TokenNotFound"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	default:
		return "Internal"
	}
}

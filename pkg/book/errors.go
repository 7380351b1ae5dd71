package book

import "errors"

// Every lifecycle failure maps to exactly one of these sentinels. They are
// terminal for the triggering operation: nothing is retried, and the
// operation's partial effects are rolled back before the error is returned.
var (
	ErrInvalidAmount   = errors.New("order amount must be positive")
	ErrInvalidPair     = errors.New("tokenIn and tokenOut must differ")
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderInactive   = errors.New("order is not active")
	ErrNotMaker        = errors.New("caller is not the order maker")
	ErrValueMismatch   = errors.New("attached value does not match required amount")
	ErrUnexpectedValue = errors.New("attached value not accepted for token side")
	ErrTransferFailed  = errors.New("asset transfer failed")
	ErrOverflow        = errors.New("escrow accounting overflow")

	// ErrReentrantCall rejects a lifecycle call made from inside an outbound
	// transfer of another lifecycle call. Second line of defense behind the
	// checks-effects-interactions ordering.
	ErrReentrantCall = errors.New("reentrant call into settlement engine")
)

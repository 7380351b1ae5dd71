package book

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"swapbook/pkg/asset"
)

// Status is the lifecycle state of an order. Filled and Cancelled are
// terminal; the record itself is kept forever for historical queries.
type Status int8

const (
	StatusActive Status = iota
	StatusFilled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order is one published offer: the maker escrows AmountIn of TokenIn and
// receives AmountOut of TokenOut when any taker fills. Amounts are in the
// asset's smallest unit and immutable after creation.
type Order struct {
	ID        uint64         `json:"id"`
	Maker     common.Address `json:"maker"`
	TokenIn   asset.Asset    `json:"tokenIn"`
	TokenOut  asset.Asset    `json:"tokenOut"`
	AmountIn  *big.Int       `json:"amountIn"`
	AmountOut *big.Int       `json:"amountOut"`
	Status    Status         `json:"status"`

	// CreatedAt is for display and audit only; nothing orders by it.
	CreatedAt int64 `json:"createdAt"` // Unix milliseconds
}

// Active reports whether the order can still be filled or cancelled.
func (o *Order) Active() bool {
	return o.Status == StatusActive
}

// Pair returns the directional asset pair this order trades.
func (o *Order) Pair() asset.Pair {
	return asset.Pair{In: o.TokenIn, Out: o.TokenOut}
}

// snapshot returns a deep copy safe to hand to callers while the ledger
// keeps mutating the original.
func (o *Order) snapshot() Order {
	cp := *o
	cp.AmountIn = new(big.Int).Set(o.AmountIn)
	cp.AmountOut = new(big.Int).Set(o.AmountOut)
	return cp
}

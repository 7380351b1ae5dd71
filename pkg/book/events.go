package book

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"swapbook/pkg/asset"
)

// Lifecycle events are an observability side channel: order ids come back
// synchronously from the engine, so nothing needs to scan the feed to learn
// the outcome of its own call. Each event carries a keccak topic computed
// from its signature, in the shape of EVM contract logs so existing log
// consumers can match on topic.

// eventTopic computes keccak256 of an event signature string.
func eventTopic(signature string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return common.BytesToHash(h.Sum(nil))
}

var (
	topicOrderCreated   = eventTopic("OrderCreated(uint256,address,address,address,uint256,uint256)")
	topicOrderFilled    = eventTopic("OrderFilled(uint256,address)")
	topicOrderCancelled = eventTopic("OrderCancelled(uint256)")
)

type Event interface {
	Name() string
	Topic() common.Hash
	OrderID() uint64
}

type OrderCreated struct {
	ID        uint64         `json:"id"`
	Maker     common.Address `json:"maker"`
	TokenIn   asset.Asset    `json:"tokenIn"`
	TokenOut  asset.Asset    `json:"tokenOut"`
	AmountIn  *big.Int       `json:"amountIn"`
	AmountOut *big.Int       `json:"amountOut"`
}

func (OrderCreated) Name() string       { return "OrderCreated" }
func (OrderCreated) Topic() common.Hash { return topicOrderCreated }
func (e OrderCreated) OrderID() uint64  { return e.ID }

type OrderFilled struct {
	ID    uint64         `json:"id"`
	Taker common.Address `json:"taker"`
}

func (OrderFilled) Name() string       { return "OrderFilled" }
func (OrderFilled) Topic() common.Hash { return topicOrderFilled }
func (e OrderFilled) OrderID() uint64  { return e.ID }

type OrderCancelled struct {
	ID uint64 `json:"id"`
}

func (OrderCancelled) Name() string       { return "OrderCancelled" }
func (OrderCancelled) Topic() common.Hash { return topicOrderCancelled }
func (e OrderCancelled) OrderID() uint64  { return e.ID }

// Emitter receives events after the emitting operation has fully committed.
// Implementations must not call back into the engine's lifecycle operations.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

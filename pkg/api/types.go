package api

import "swapbook/pkg/book"

// Amounts cross the wire as base-10 strings in the asset's smallest unit;
// asset addresses use the zero-address sentinel for the native currency.

type CreateOrderRequest struct {
	Maker     string `json:"maker"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	// Value is the attached native amount; required (== amountIn) when
	// tokenIn is the native sentinel, forbidden otherwise.
	Value string `json:"value,omitempty"`
}

type FillOrderRequest struct {
	Taker string `json:"taker"`
	Value string `json:"value,omitempty"`
}

type CancelOrderRequest struct {
	Caller string `json:"caller"`
}

type OrderInfo struct {
	ID        uint64 `json:"id"`
	Maker     string `json:"maker"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	Active    bool   `json:"active"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

type OrderIDList struct {
	Orders []uint64 `json:"orders"`
}

type EscrowInfo struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is the client→server control message on the socket.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// EventMessage wraps an engine lifecycle event for the feed.
type EventMessage struct {
	Type  string     `json:"type"` // always "event"
	Name  string     `json:"name"`
	Topic string     `json:"topic"`
	Data  book.Event `json:"data"`
}

func orderInfo(o book.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Maker:     o.Maker.Hex(),
		TokenIn:   o.TokenIn.Address().Hex(),
		TokenOut:  o.TokenOut.Address().Hex(),
		AmountIn:  o.AmountIn.String(),
		AmountOut: o.AmountOut.String(),
		Active:    o.Active(),
		Status:    o.Status.String(),
		CreatedAt: o.CreatedAt,
	}
}

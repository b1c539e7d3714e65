package model

// Order status codes on the broker's order feed.
const (
	OrderCancelled = 1
	OrderTraded    = 2
	OrderTransit   = 4
	OrderRejected  = 5
	OrderPending   = 6
)

// Order sides for placement.
const (
	SideSell = -1
	SideBuy  = 1
)

// OrderUpdate is one message from the broker order socket.
type OrderUpdate struct {
	ID          string  `json:"id"`
	Status      int     `json:"status"`
	TradedPrice float64 `json:"tradedPrice"`
	Qty         int     `json:"qty"`
	Symbol      string  `json:"symbol"`
}

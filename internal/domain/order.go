package domain

import "time"

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the order lifecycle as reported by the venue.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusPartial   OrderStatus = "partially_filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// StopLoss is a protective stop attached to an entry order.
type StopLoss struct {
	StopPrice float64
	Type      OrderType
}

// OrderParams carries venue-interpreted extras.
type OrderParams struct {
	StopLoss        *StopLoss
	SlippagePercent *float64
	Extra           map[string]string
}

// OrderRequest is what the executor hands to an exchange client.
type OrderRequest struct {
	Symbol string
	Type   OrderType
	Side   OrderSide
	Amount float64
	Price  *float64
	Params OrderParams
}

// OrderResult is the venue's view of a submitted order. Zero-valued numeric
// fields mean the venue did not report them.
type OrderResult struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Type      OrderType
	Amount    float64
	Price     float64
	Average   float64
	Filled    float64
	Status    OrderStatus
	Timestamp time.Time
}

// SizingResult is the outcome of order sizing.
type SizingResult struct {
	Amount         float64
	Currency       string
	SourceBalance  float64
	Percent        float64
	Price          float64
	AppliedMinimum bool
	FromSignal     bool
}

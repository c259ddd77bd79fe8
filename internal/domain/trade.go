package domain

import "time"

// Trade is a persisted execution record. Size and Price are always set;
// PnL is only set for sells that could be paired with an earlier buy.
type Trade struct {
	ID         string
	UserID     string
	BotID      string
	ExternalID string
	ExchangeID string
	Symbol     string
	Side       OrderSide
	OrderType  OrderType
	Status     OrderStatus
	Size       float64
	Price      float64
	PnL        *float64
	Strategy   string
	CreatedAt  time.Time
}

// Notional returns size times price.
func (t Trade) Notional() float64 { return t.Size * t.Price }

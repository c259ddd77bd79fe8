package domain

import "fmt"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Signal is a validated trading alert. Optional numeric fields are nil when
// the alert omitted them. A Signal never carries the webhook token.
type Signal struct {
	BotID            string
	Symbol           string
	Action           OrderSide
	Price            *float64
	Strategy         string
	StopLossPercent  *float64
	Amount           *float64
	OrderSizePercent *float64
}

// HasPrice reports whether the alert carried an explicit price.
func (s Signal) HasPrice() bool { return s.Price != nil && *s.Price > 0 }

// Fingerprint identifies an alert for duplicate detection.
func (s Signal) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		s.BotID, s.Symbol, s.Action, fmtOpt(s.Price), fmtOpt(s.Amount),
		fmtOpt(s.OrderSizePercent), fmtOpt(s.StopLossPercent))
}

func fmtOpt(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

// Float returns a pointer to v. Handy for building optional signal fields.
func Float(v float64) *float64 { return &v }

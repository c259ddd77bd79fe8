package domain

import "time"

// MarketType distinguishes spot markets from perpetual swaps.
type MarketType string

const (
	MarketTypeSpot MarketType = "spot"
	MarketTypeSwap MarketType = "swap"
)

// Market describes a tradable instrument on a venue.
type Market struct {
	Symbol          string
	ID              string // venue-native identifier
	Base            string
	Quote           string
	Type            MarketType
	AmountPrecision int
	MinAmount       float64
	MinNotional     float64
	Active          bool
}

// Ticker is the latest top-of-book summary for a symbol.
type Ticker struct {
	Symbol    string
	Last      float64
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a depth snapshot.
type OrderBook struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Balance is an account balance snapshot keyed by currency code.
type Balance struct {
	Free  map[string]float64
	Used  map[string]float64
	Total map[string]float64
}

// NewBalance returns a Balance with initialised maps.
func NewBalance() Balance {
	return Balance{
		Free:  map[string]float64{},
		Used:  map[string]float64{},
		Total: map[string]float64{},
	}
}

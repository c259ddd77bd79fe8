// Package exchange defines the venue-neutral client interface used by the
// execution pipeline, the per-venue plugin contract, and the registry and
// factory that turn an exchange id plus credentials into a client.
package exchange

import (
	"context"
	"net/http"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// Client is the capability set the pipeline needs from a venue. Symbols are
// unified ("BASE/QUOTE" or "BASE/QUOTE:SETTLE"); implementations translate
// to native identifiers.
type Client interface {
	ID() string
	LoadMarkets(ctx context.Context) ([]domain.Market, error)
	FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, limit int) (domain.OrderBook, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, since time.Time, limit int) ([]domain.Candle, error)
	FetchBalance(ctx context.Context, params map[string]string) (domain.Balance, error)
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// MarketPriceMode says when a market order must carry a price.
type MarketPriceMode int

const (
	// MarketPriceNever omits the price on market orders.
	MarketPriceNever MarketPriceMode = iota
	// MarketPriceOnBuy sends the price only on market buys, bounding cost.
	MarketPriceOnBuy
	// MarketPriceAlways sends a price hint on every market order.
	MarketPriceAlways
)

// VenueRules are the data-driven quirks the sizing engine and executor
// consult instead of branching on exchange ids.
type VenueRules struct {
	// BuyQuoteCurrency, when set, is the currency spent on buys regardless
	// of the symbol's quote.
	BuyQuoteCurrency string
	// AmountDecimals is the number of decimals amounts are reduced to.
	// Negative leaves amounts untouched.
	AmountDecimals int32
	// TruncateAmount truncates instead of rounding when AmountDecimals >= 0.
	TruncateAmount   bool
	MinOrderValueUSD float64
	MarketPrice      MarketPriceMode
	// SlippagePercent is attached to market orders when positive.
	SlippagePercent float64
}

// Venue is a plugin for one exchange.
type Venue interface {
	ID() string
	// RequiredCredentials lists domain.Cred* field names that must be present.
	RequiredCredentials() []string
	// FormatSymbol converts an alert symbol into the unified form.
	FormatSymbol(symbol string) string
	// BalanceParams returns venue-specific FetchBalance parameters.
	BalanceParams(symbol string, creds *domain.ResolvedCredentials) map[string]string
	Rules() VenueRules
	// NewClient builds a client. Nil credentials yield a public-data-only
	// client. It must not perform network I/O.
	NewClient(creds *domain.ResolvedCredentials) (Client, error)
}

// BaseVenue supplies default plugin behaviour. Venues embed it and
// override what differs.
type BaseVenue struct{}

// FormatSymbol returns symbol unchanged.
func (BaseVenue) FormatSymbol(symbol string) string { return symbol }

// BalanceParams returns no parameters.
func (BaseVenue) BalanceParams(string, *domain.ResolvedCredentials) map[string]string { return nil }

// VenueConfig is the per-venue connection configuration handed to plugins.
type VenueConfig struct {
	BaseURL           string
	Testnet           bool
	Timeout           time.Duration
	RequestsPerSecond float64
	MinOrderUSD       float64
	HTTPClient        *http.Client
}

// HTTP returns the configured client or a new one with the configured
// timeout.
func (c VenueConfig) HTTP() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// MinOrder returns the override when set, else def.
func (c VenueConfig) MinOrder(def float64) float64 {
	if c.MinOrderUSD > 0 {
		return c.MinOrderUSD
	}
	return def
}

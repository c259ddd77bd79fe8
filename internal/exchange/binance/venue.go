// Package binance adapts Binance spot to exchange.Client using the
// go-binance SDK.
package binance

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// ID is the registry id of this venue.
const ID = "binance"

const (
	defaultMinOrderUSD = 5.0
	testnetBaseURL     = "https://testnet.binance.vision"
)

// Venue is the Binance plugin.
type Venue struct {
	exchange.BaseVenue
	cfg     exchange.VenueConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ exchange.Venue = (*Venue)(nil)

// New creates the Binance plugin.
func New(cfg exchange.VenueConfig, logger *slog.Logger) *Venue {
	return &Venue{
		cfg:     cfg,
		limiter: exchange.NewLimiter(cfg.RequestsPerSecond),
		logger:  logger.With(slog.String("component", "exchange.binance")),
	}
}

func (v *Venue) ID() string { return ID }

func (v *Venue) RequiredCredentials() []string {
	return []string{domain.CredAPIKey, domain.CredAPISecret}
}

// FormatSymbol accepts "BTCUSDT" style alert symbols.
func (v *Venue) FormatSymbol(symbol string) string {
	return exchange.NormalizeSymbol(symbol)
}

func (v *Venue) Rules() exchange.VenueRules {
	return exchange.VenueRules{
		AmountDecimals:   -1,
		MinOrderValueUSD: v.cfg.MinOrder(defaultMinOrderUSD),
		MarketPrice:      exchange.MarketPriceOnBuy,
	}
}

func (v *Venue) NewClient(creds *domain.ResolvedCredentials) (exchange.Client, error) {
	return newClient(v.cfg, creds, v.limiter, v.logger), nil
}

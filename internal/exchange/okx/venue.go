// Package okx adapts the OKX v5 REST API to exchange.Client.
package okx

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// ID is the registry id of this venue.
const ID = "okx"

const (
	defaultBaseURL     = "https://www.okx.com"
	defaultMinOrderUSD = 5.0
)

// Venue is the OKX plugin.
type Venue struct {
	exchange.BaseVenue
	cfg     exchange.VenueConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ exchange.Venue = (*Venue)(nil)

// New creates the OKX plugin.
func New(cfg exchange.VenueConfig, logger *slog.Logger) *Venue {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Venue{
		cfg:     cfg,
		limiter: exchange.NewLimiter(cfg.RequestsPerSecond),
		logger:  logger.With(slog.String("component", "exchange.okx")),
	}
}

func (v *Venue) ID() string { return ID }

// RequiredCredentials includes the API passphrase OKX issues with each key.
func (v *Venue) RequiredCredentials() []string {
	return []string{domain.CredAPIKey, domain.CredAPISecret, domain.CredPassword}
}

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

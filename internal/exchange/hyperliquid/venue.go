// Package hyperliquid adapts the Hyperliquid info and exchange APIs to
// exchange.Client. Bots store the wallet address as the API key and the
// signing private key as the API secret.
package hyperliquid

import (
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// ID is the registry id of this venue.
const ID = "hyperliquid"

const (
	mainnetBaseURL = "https://api.hyperliquid.xyz"
	testnetBaseURL = "https://api.hyperliquid-testnet.xyz"

	// Hyperliquid accounts settle everything in USDC.
	settleCurrency = "USDC"

	defaultMinOrderUSD     = 10.0
	defaultSlippagePercent = 5.0
	amountDecimals         = 5
)

// Venue is the Hyperliquid plugin.
type Venue struct {
	exchange.BaseVenue
	cfg     exchange.VenueConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ exchange.Venue = (*Venue)(nil)

// New creates the Hyperliquid plugin.
func New(cfg exchange.VenueConfig, logger *slog.Logger) *Venue {
	if cfg.BaseURL == "" {
		cfg.BaseURL = mainnetBaseURL
		if cfg.Testnet {
			cfg.BaseURL = testnetBaseURL
		}
	}
	return &Venue{
		cfg:     cfg,
		limiter: exchange.NewLimiter(cfg.RequestsPerSecond),
		logger:  logger.With(slog.String("component", "exchange.hyperliquid")),
	}
}

func (v *Venue) ID() string { return ID }

func (v *Venue) RequiredCredentials() []string {
	return []string{domain.CredAPIKey, domain.CredAPISecret}
}

// FormatSymbol maps alerts onto USDC perpetuals. Only an explicit
// "BASE/USDC" pair without a settle currency stays on the spot book.
func (v *Venue) FormatSymbol(symbol string) string {
	sym, ok := exchange.ParseSymbol(symbol)
	if !ok {
		return strings.ToUpper(strings.TrimSpace(symbol))
	}
	explicitSpot := strings.Contains(symbol, "/") && !sym.IsSwap() && sym.Quote == settleCurrency
	if explicitSpot {
		return sym.String()
	}
	return exchange.Symbol{Base: sym.Base, Quote: settleCurrency, Settle: settleCurrency}.String()
}

// BalanceParams selects the perp clearinghouse for swap symbols.
func (v *Venue) BalanceParams(symbol string, creds *domain.ResolvedCredentials) map[string]string {
	p := map[string]string{"type": "spot"}
	if strings.Contains(symbol, ":") {
		p["type"] = "swap"
	}
	if creds != nil {
		p["user"] = creds.APIKey
	}
	return p
}

func (v *Venue) Rules() exchange.VenueRules {
	return exchange.VenueRules{
		BuyQuoteCurrency: settleCurrency,
		AmountDecimals:   amountDecimals,
		TruncateAmount:   true,
		MinOrderValueUSD: v.cfg.MinOrder(defaultMinOrderUSD),
		MarketPrice:      exchange.MarketPriceAlways,
		SlippagePercent:  defaultSlippagePercent,
	}
}

func (v *Venue) NewClient(creds *domain.ResolvedCredentials) (exchange.Client, error) {
	c, err := newClient(v.cfg, creds, v.limiter, v.logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Package sizing turns a signal and an account balance into an order
// amount that respects venue precision and minimum order value.
package sizing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// minimumHeadroom pads the venue minimum so fees and price drift between
// sizing and fill do not push the order back under it.
const minimumHeadroom = 1.1

const defaultPercent = 100.0

// Engine computes order amounts.
type Engine struct {
	aliases map[string][]string
	logger  *slog.Logger
}

// NewEngine creates an Engine. aliases maps a currency code to the
// alternative codes venues may report it under, in preference order.
func NewEngine(aliases map[string][]string, logger *slog.Logger) *Engine {
	norm := make(map[string][]string, len(aliases))
	for k, v := range aliases {
		codes := make([]string, 0, len(v))
		for _, c := range v {
			codes = append(codes, strings.ToUpper(c))
		}
		norm[strings.ToUpper(k)] = codes
	}
	return &Engine{aliases: norm, logger: logger.With(slog.String("component", "sizing"))}
}

// Size computes the order amount for sig. price is the reference price in
// quote currency; creds feed venue-specific balance parameters. An explicit
// signal amount is returned untouched without reading the balance.
func (e *Engine) Size(ctx context.Context, sig domain.Signal, client exchange.Client, bot domain.Bot, venue exchange.Venue, creds *domain.ResolvedCredentials, price float64) (domain.SizingResult, error) {
	if sig.Amount != nil && *sig.Amount > 0 {
		return domain.SizingResult{Amount: *sig.Amount, Price: price, FromSignal: true}, nil
	}

	symbol := venue.FormatSymbol(sig.Symbol)
	sym, ok := exchange.ParseSymbol(symbol)
	if !ok {
		return domain.SizingResult{}, fmt.Errorf("sizing: cannot parse symbol %q: %w", symbol, domain.ErrInsufficientData)
	}
	rules := venue.Rules()

	currency := sym.Base
	if sig.Action == domain.OrderSideBuy {
		currency = sym.Quote
		if rules.BuyQuoteCurrency != "" {
			currency = rules.BuyQuoteCurrency
		}
		if price <= 0 {
			return domain.SizingResult{}, fmt.Errorf("sizing: no price to size a buy of %s: %w", symbol, domain.ErrInsufficientData)
		}
	}

	bal, err := client.FetchBalance(ctx, venue.BalanceParams(symbol, creds))
	if err != nil {
		return domain.SizingResult{}, fmt.Errorf("sizing: fetch balance: %w", err)
	}

	free, found, ok := e.pick(bal, currency)
	if !ok {
		return domain.SizingResult{}, fmt.Errorf("sizing: %s (or an alias) not in %s balance: %w", currency, venue.ID(), domain.ErrInsufficientData)
	}

	percent := defaultPercent
	switch {
	case sig.OrderSizePercent != nil && *sig.OrderSizePercent > 0:
		percent = *sig.OrderSizePercent
	case bot.OrderSizePercent != nil && *bot.OrderSizePercent > 0:
		percent = *bot.OrderSizePercent
	}

	positionSize := free * percent / 100
	amount := positionSize
	if sig.Action == domain.OrderSideBuy {
		amount = positionSize / price
	}
	amount = applyPrecision(amount, rules)

	res := domain.SizingResult{
		Amount:        amount,
		Currency:      found,
		SourceBalance: free,
		Percent:       percent,
		Price:         price,
	}

	belowMinimum := price > 0 && rules.MinOrderValueUSD > 0 && amount*price < rules.MinOrderValueUSD
	if amount <= 0 || belowMinimum {
		if price <= 0 || rules.MinOrderValueUSD <= 0 {
			return domain.SizingResult{}, fmt.Errorf("sizing: computed amount %g for %s: %w", amount, symbol, domain.ErrSizing)
		}
		floor := applyPrecision(rules.MinOrderValueUSD*minimumHeadroom/price, rules)
		e.logger.InfoContext(ctx, "order raised to venue minimum",
			slog.String("bot_id", bot.ID),
			slog.String("symbol", symbol),
			slog.Float64("computed", amount),
			slog.Float64("minimum_amount", floor),
			slog.Float64("min_order_usd", rules.MinOrderValueUSD),
		)
		res.Amount = floor
		res.AppliedMinimum = true
	}

	if res.Amount <= 0 {
		return domain.SizingResult{}, fmt.Errorf("sizing: amount for %s rounds to zero: %w", symbol, domain.ErrSizing)
	}
	return res, nil
}

// pick returns the free balance of the first candidate code with a
// positive balance. When none is positive but one is present, that
// (zero) balance is used. ok is false when no candidate is present.
func (e *Engine) pick(bal domain.Balance, currency string) (free float64, code string, ok bool) {
	candidates := append([]string{currency}, e.aliases[currency]...)
	for _, c := range candidates {
		if v, present := bal.Free[c]; present && v > 0 {
			return v, c, true
		}
	}
	for _, c := range candidates {
		if v, present := bal.Free[c]; present {
			return v, c, true
		}
	}
	return 0, "", false
}

func applyPrecision(amount float64, rules exchange.VenueRules) float64 {
	if rules.AmountDecimals < 0 {
		return amount
	}
	d := decimal.NewFromFloat(amount)
	if rules.TruncateAmount {
		d = d.Truncate(rules.AmountDecimals)
	} else {
		d = d.Round(rules.AmountDecimals)
	}
	f, _ := d.Float64()
	return f
}

// Package executor turns a sized signal into a single order on a venue.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// Executor builds and submits orders. It never retries: a failed
// submission is classified and handed back to the caller.
type Executor struct {
	dedup           *Dedup
	logger          *slog.Logger
	cleanupInterval time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithDedup replaces the duplicate-alert guard.
func WithDedup(d *Dedup) Option {
	return func(e *Executor) { e.dedup = d }
}

// NewExecutor creates an Executor that rejects an identical alert seen
// again inside dedupWindow.
func NewExecutor(dedupWindow time.Duration, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		dedup:           NewDedup(dedupWindow),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run expires old dedup entries until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.dedup.Cleanup()
		}
	}
}

// BuildOrder derives the order request for sig. price is the reference
// price used for market price hints and stop-loss levels.
func BuildOrder(venue exchange.Venue, sig domain.Signal, sizing domain.SizingResult, price float64) domain.OrderRequest {
	rules := venue.Rules()
	req := domain.OrderRequest{
		Symbol: venue.FormatSymbol(sig.Symbol),
		Type:   domain.OrderTypeMarket,
		Side:   sig.Action,
		Amount: sizing.Amount,
	}

	execPrice := price
	if sig.HasPrice() {
		req.Type = domain.OrderTypeLimit
		execPrice = *sig.Price
		req.Price = domain.Float(execPrice)
	} else if execPrice > 0 {
		switch rules.MarketPrice {
		case exchange.MarketPriceAlways:
			req.Price = domain.Float(execPrice)
		case exchange.MarketPriceOnBuy:
			if sig.Action == domain.OrderSideBuy {
				req.Price = domain.Float(execPrice)
			}
		}
	}

	if req.Type == domain.OrderTypeMarket && rules.SlippagePercent > 0 {
		req.Params.SlippagePercent = domain.Float(rules.SlippagePercent)
	}

	if sig.StopLossPercent != nil && execPrice > 0 {
		p := *sig.StopLossPercent / 100
		stop := execPrice * (1 - p)
		if sig.Action == domain.OrderSideSell {
			stop = execPrice * (1 + p)
		}
		req.Params.StopLoss = &domain.StopLoss{StopPrice: stop, Type: domain.OrderTypeMarket}
	}
	return req
}

// Execute submits the order for sig once. An identical alert seen inside
// the dedup window fails with domain.ErrDuplicateSignal before anything
// reaches the venue. Venue failures come back as *domain.ExecutionError.
func (e *Executor) Execute(ctx context.Context, client exchange.Client, venue exchange.Venue, sig domain.Signal, sizing domain.SizingResult, price float64) (domain.OrderResult, error) {
	key := sig.Fingerprint()
	if e.dedup.IsDuplicate(key) {
		e.logger.WarnContext(ctx, "duplicate signal rejected",
			slog.String("bot_id", sig.BotID),
			slog.String("symbol", sig.Symbol),
			slog.String("side", string(sig.Action)),
		)
		return domain.OrderResult{}, fmt.Errorf("executor: %s %s for bot %s: %w", sig.Action, sig.Symbol, sig.BotID, domain.ErrDuplicateSignal)
	}

	req := BuildOrder(venue, sig, sizing, price)
	log := e.logger.With(
		slog.String("bot_id", sig.BotID),
		slog.String("exchange", venue.ID()),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("type", string(req.Type)),
		slog.Float64("amount", req.Amount),
	)

	res, err := client.CreateOrder(ctx, req)
	if err != nil {
		e.dedup.Forget(key)
		class := Classify(err)
		log.ErrorContext(ctx, "order submission failed",
			slog.String("class", string(class)),
			slog.String("error", err.Error()),
		)
		return domain.OrderResult{}, &domain.ExecutionError{
			Class:    class,
			Exchange: venue.ID(),
			Symbol:   req.Symbol,
			Err:      err,
		}
	}

	if res.Symbol == "" {
		res.Symbol = req.Symbol
	}
	if res.Side == "" {
		res.Side = req.Side
	}
	if res.Type == "" {
		res.Type = req.Type
	}
	log.InfoContext(ctx, "order submitted",
		slog.String("order_id", res.ID),
		slog.String("status", string(res.Status)),
	)
	return res, nil
}

// Classify buckets a venue error.
func Classify(err error) domain.ExecClass {
	switch {
	case errors.Is(err, domain.ErrExchangeAuth), errors.Is(err, domain.ErrSigningFailed):
		return domain.ExecClassAuth
	case errors.Is(err, domain.ErrInsufficientFunds):
		return domain.ExecClassInsufficientFunds
	case errors.Is(err, domain.ErrInvalidOrder):
		return domain.ExecClassInvalidOrder
	case errors.Is(err, domain.ErrRateLimited):
		return domain.ExecClassRateLimit
	case errors.Is(err, domain.ErrNetwork),
		errors.Is(err, context.DeadlineExceeded):
		return domain.ExecClassNetwork
	default:
		return domain.ExecClassUnknown
	}
}

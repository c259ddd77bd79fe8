package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// TradeRecorder persists executed orders and computes realized P&L for
// sells against the most recent buy of the same bot and symbol.
type TradeRecorder struct {
	trades domain.TradeStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewTradeRecorder creates a TradeRecorder.
func NewTradeRecorder(trades domain.TradeStore, logger *slog.Logger) *TradeRecorder {
	return &TradeRecorder{
		trades: trades,
		logger: logger.With(slog.String("component", "recorder")),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Record builds and inserts the trade for an executed order. Size falls
// back from the venue's amount to the sized amount; price from the venue's
// price to its average fill to referencePrice. Any store failure is
// returned wrapped as domain.ErrPersistence.
func (r *TradeRecorder) Record(
	ctx context.Context,
	ownerID, botID, exchangeID string,
	result domain.OrderResult,
	sig domain.Signal,
	sizing domain.SizingResult,
	referencePrice float64,
) (domain.Trade, error) {
	t := domain.Trade{
		ID:         r.newID(),
		UserID:     ownerID,
		BotID:      botID,
		ExternalID: result.ID,
		ExchangeID: exchangeID,
		Symbol:     firstString(result.Symbol, sig.Symbol),
		Side:       sig.Action,
		OrderType:  result.Type,
		Status:     result.Status,
		Size:       firstPositive(result.Amount, sizing.Amount),
		Price:      firstPositive(result.Price, result.Average, referencePrice),
		Strategy:   sig.Strategy,
		CreatedAt:  r.now().UTC(),
	}
	if t.OrderType == "" {
		t.OrderType = domain.OrderTypeMarket
		if sig.HasPrice() {
			t.OrderType = domain.OrderTypeLimit
		}
	}
	if t.Status == "" {
		t.Status = domain.OrderStatusOpen
	}

	if t.Side == domain.OrderSideSell {
		buy, err := r.trades.LatestBuy(ctx, botID, t.Symbol)
		switch {
		case err == nil:
			pnl := (t.Price - buy.Price) * t.Size
			t.PnL = &pnl
		case errors.Is(err, domain.ErrNotFound):
			r.logger.DebugContext(ctx, "no prior buy for sell",
				slog.String("bot_id", botID),
				slog.String("symbol", t.Symbol),
			)
		default:
			return t, fmt.Errorf("recorder: latest buy for %s %s: %v: %w", botID, t.Symbol, err, domain.ErrPersistence)
		}
	}

	if err := r.trades.Insert(ctx, t); err != nil {
		return t, fmt.Errorf("recorder: insert trade %s: %v: %w", t.ID, err, domain.ErrPersistence)
	}

	attrs := []any{
		slog.String("trade_id", t.ID),
		slog.String("bot_id", botID),
		slog.String("symbol", t.Symbol),
		slog.String("side", string(t.Side)),
		slog.Float64("size", t.Size),
		slog.Float64("price", t.Price),
	}
	if t.PnL != nil {
		attrs = append(attrs, slog.Float64("pnl", *t.PnL))
	}
	r.logger.InfoContext(ctx, "trade recorded", attrs...)
	return t, nil
}

// List returns a bot's trades, scoped to its owner.
func (r *TradeRecorder) List(ctx context.Context, botID, ownerID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := r.trades.ListByBot(ctx, botID, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("recorder: list trades for %q: %w", botID, err)
	}
	return trades, nil
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

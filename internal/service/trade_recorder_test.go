package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

type brokenLookup struct{ memTrades }

func (b *brokenLookup) LatestBuy(context.Context, string, string) (domain.Trade, error) {
	return domain.Trade{}, errors.New("timeout")
}

func TestRecordFallbacks(t *testing.T) {
	r := NewTradeRecorder(&memTrades{}, discard())
	sig := domain.Signal{BotID: "b", Symbol: "ETH/USDT", Action: domain.OrderSideBuy}

	// The venue reported neither amount nor price.
	tr, err := r.Record(context.Background(), "u", "b", "okx", domain.OrderResult{ID: "x"}, sig, domain.SizingResult{Amount: 2}, 3000)
	require.NoError(t, err)
	assert.Equal(t, 2.0, tr.Size)
	assert.Equal(t, 3000.0, tr.Price)
	assert.Equal(t, domain.OrderTypeMarket, tr.OrderType)
	assert.Equal(t, domain.OrderStatusOpen, tr.Status)

	// Average fill wins over the reference price.
	tr, err = r.Record(context.Background(), "u", "b", "okx", domain.OrderResult{ID: "y", Average: 3010}, sig, domain.SizingResult{Amount: 2}, 3000)
	require.NoError(t, err)
	assert.Equal(t, 3010.0, tr.Price)
}

func TestRecordSellPnL(t *testing.T) {
	store := &memTrades{}
	r := NewTradeRecorder(store, discard())
	ctx := context.Background()
	buy := domain.Signal{BotID: "b", Symbol: "BTC/USDT", Action: domain.OrderSideBuy}
	sell := domain.Signal{BotID: "b", Symbol: "BTC/USDT", Action: domain.OrderSideSell}

	_, err := r.Record(ctx, "u", "b", "binance", domain.OrderResult{Amount: 1, Price: 100}, buy, domain.SizingResult{}, 0)
	require.NoError(t, err)
	_, err = r.Record(ctx, "u", "b", "binance", domain.OrderResult{Amount: 1, Price: 90}, buy, domain.SizingResult{}, 0)
	require.NoError(t, err)

	tr, err := r.Record(ctx, "u", "b", "binance", domain.OrderResult{Amount: 2, Price: 95}, sell, domain.SizingResult{}, 0)
	require.NoError(t, err)
	require.NotNil(t, tr.PnL)
	assert.InDelta(t, 10, *tr.PnL, 1e-9, "paired with the most recent buy at 90")
}

func TestRecordLookupFailureIsPersistenceError(t *testing.T) {
	r := NewTradeRecorder(&brokenLookup{}, discard())
	sell := domain.Signal{BotID: "b", Symbol: "BTC/USDT", Action: domain.OrderSideSell}

	_, err := r.Record(context.Background(), "u", "b", "binance", domain.OrderResult{Amount: 1, Price: 1}, sell, domain.SizingResult{}, 0)
	require.ErrorIs(t, err, domain.ErrPersistence)
}

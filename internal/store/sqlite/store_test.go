package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestBotStoreOwnerScoping(t *testing.T) {
	ctx := context.Background()
	bots := NewBotStore(openTest(t))
	require.NoError(t, bots.Save(ctx, domain.Bot{
		ID: "b1", OwnerID: "u1", ExchangeID: "binance", Enabled: true,
		OrderSizePercent: domain.Float(25), WebhookSecret: "s",
		CreatedAt: time.Unix(1_700_000_000, 0),
	}))

	b, err := bots.GetByIDForOwner(ctx, "b1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "binance", b.ExchangeID)
	assert.True(t, b.Enabled)
	require.NotNil(t, b.OrderSizePercent)
	assert.Equal(t, 25.0, *b.OrderSizePercent)
	assert.True(t, b.CreatedAt.Equal(time.Unix(1_700_000_000, 0)))

	_, err = bots.GetByIDForOwner(ctx, "b1", "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = bots.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b, err = bots.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "u1", b.OwnerID)
}

func trade(id string, side domain.OrderSide, price float64, at time.Time) domain.Trade {
	return domain.Trade{
		ID: id, UserID: "u1", BotID: "b1", ExchangeID: "binance", Symbol: "BTC/USDT",
		Side: side, OrderType: domain.OrderTypeMarket, Status: domain.OrderStatusFilled,
		Size: 1, Price: price, CreatedAt: at,
	}
}

func TestTradeStoreLatestBuy(t *testing.T) {
	ctx := context.Background()
	trades := NewTradeStore(openTest(t))
	base := time.Unix(1_700_000_000, 0)

	_, err := trades.LatestBuy(ctx, "b1", "BTC/USDT")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, trades.Insert(ctx, trade("t1", domain.OrderSideBuy, 100, base)))
	require.NoError(t, trades.Insert(ctx, trade("t2", domain.OrderSideBuy, 110, base.Add(time.Minute))))
	sell := trade("t3", domain.OrderSideSell, 120, base.Add(2*time.Minute))
	sell.PnL = domain.Float(10)
	require.NoError(t, trades.Insert(ctx, sell))

	buy, err := trades.LatestBuy(ctx, "b1", "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "t2", buy.ID)
	assert.Nil(t, buy.PnL)

	_, err = trades.LatestBuy(ctx, "b1", "ETH/USDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := trades.ListByBot(ctx, "b1", "u1", domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t3", list[0].ID)
	require.NotNil(t, list[0].PnL)
	assert.Equal(t, 10.0, *list[0].PnL)
	assert.Equal(t, domain.OrderSideSell, list[0].Side)

	list, err = trades.ListByBot(ctx, "b1", "someone-else", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTradeStoreArchiveWindow(t *testing.T) {
	ctx := context.Background()
	trades := NewTradeStore(openTest(t))
	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, trades.Insert(ctx, trade(id, domain.OrderSideBuy, 1, base.Add(time.Duration(i)*time.Hour))))
	}

	cutoff := base.Add(90 * time.Minute)
	old, err := trades.ListBefore(ctx, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, "a", old[0].ID)

	n, err := trades.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := trades.ListBefore(ctx, base.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "c", left[0].ID)
}

func TestAuditStore(t *testing.T) {
	ctx := context.Background()
	audit := NewAuditStore(openTest(t))
	require.NoError(t, audit.Log(ctx, "trade_recorded", map[string]any{"trade_id": "t1"}))
	require.NoError(t, audit.Log(ctx, "trade_unrecorded", map[string]any{"order_id": "o1"}))

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "trade_unrecorded", entries[0].Event)
	assert.Equal(t, "o1", entries[0].Detail["order_id"])
}

func TestAuditStoreFiltersAndRedacts(t *testing.T) {
	ctx := context.Background()
	audit := NewAuditStore(openTest(t))
	require.NoError(t, audit.Log(ctx, "signal_rejected", map[string]any{"bot_id": "b1", "secret": "hunter2"}))
	require.NoError(t, audit.Log(ctx, "trade_recorded", map[string]any{"trade_id": "t1"}))

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 10, Event: "signal_rejected"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "[redacted]", entries[0].Detail["secret"])
	assert.Equal(t, "b1", entries[0].Detail["bot_id"])
}

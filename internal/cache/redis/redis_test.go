package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/marketdata"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestMarketDataStoreRoundTripAndExpiry(t *testing.T) {
	c, mr := newTestClient(t)
	s := NewMarketDataStore(c)
	ctx := context.Background()

	err := s.Set(ctx, "binance", "BTC/USDT", marketdata.KindTicker, domain.Ticker{Symbol: "BTC/USDT", Last: 50000}, 5*time.Second)
	require.NoError(t, err)

	v, ok, err := s.Get(ctx, "binance", "BTC/USDT", marketdata.KindTicker)
	require.NoError(t, err)
	require.True(t, ok)
	var tk domain.Ticker
	require.NoError(t, json.Unmarshal(v.(json.RawMessage), &tk))
	assert.Equal(t, 50000.0, tk.Last)

	mr.FastForward(5100 * time.Millisecond)
	_, ok, err = s.Get(ctx, "binance", "BTC/USDT", marketdata.KindTicker)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarketDataStoreClear(t *testing.T) {
	c, mr := newTestClient(t)
	s := NewMarketDataStore(c)
	ctx := context.Background()

	for _, k := range []struct{ ex, sym, kind string }{
		{"binance", "BTC/USDT", marketdata.KindTicker},
		{"binance", "ETH/USDT", marketdata.KindTicker},
		{"okx", "BTC/USDT", marketdata.KindTicker},
		{"hyperliquid", "BTC/USDC:USDC", marketdata.KindOrderBook},
	} {
		require.NoError(t, s.Set(ctx, k.ex, k.sym, k.kind, 1, time.Minute))
	}

	require.NoError(t, s.Clear(ctx, "binance", "", ""))
	assert.Len(t, mr.Keys(), 2)

	require.NoError(t, s.Clear(ctx, "", "BTC/USDC:USDC", ""))
	assert.Equal(t, []string{"md:okx:ticker:BTC/USDT"}, mr.Keys())

	require.NoError(t, s.Clear(ctx, "", "", ""))
	assert.Empty(t, mr.Keys())
}

func TestMarketDataStoreBacksCachedClient(t *testing.T) {
	c, _ := newTestClient(t)
	var _ marketdata.Store = NewMarketDataStore(c)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 2 {
		ok, err := rl.Allow(ctx, "webhook:bot-1", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "webhook:bot-1", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "webhook:bot-2", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	now = now.Add(1100 * time.Millisecond)
	ok, err = rl.Allow(ctx, "webhook:bot-1", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelTrades)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, []byte(`{"id":"t1"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"id":"t1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSignalBusStream(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamTrades, []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamTrades, []byte("b")))

	msgs, err := bus.StreamRead(ctx, domain.StreamTrades, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Payload))
	assert.Equal(t, "b", string(msgs[1].Payload))

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamTrades, []byte("c")))
	tail, err := bus.StreamTail(ctx, domain.StreamTrades, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "b", string(tail[0].Payload))
	assert.Equal(t, "c", string(tail[1].Payload))
}

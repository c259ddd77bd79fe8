package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestTTLTable(t *testing.T) {
	assert.Equal(t, 5*time.Second, TTL(KindTicker))
	assert.Equal(t, 5*time.Second, TTL(KindOrderBook))
	assert.Equal(t, 60*time.Second, TTL(KindOHLCV))
	assert.Equal(t, 5*time.Second, TTL(KindMarkets))
	assert.Equal(t, 5*time.Second, TTL("anything"))
}

func TestTickerExpiresAfterFiveSeconds(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewCache(WithClock(clock.now))
	c.Set("binance", "BTC/USDT", KindTicker, domain.Ticker{Last: 50000})

	clock.advance(4900 * time.Millisecond)
	v, ok := c.Get("binance", "BTC/USDT", KindTicker)
	require.True(t, ok)
	assert.Equal(t, 50000.0, v.(domain.Ticker).Last)

	clock.advance(200 * time.Millisecond)
	_, ok = c.Get("binance", "BTC/USDT", KindTicker)
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is removed on read")
}

func TestOHLCVLivesSixtySeconds(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := NewCache(WithClock(clock.now))
	c.Set("okx", "BTC/USDT", KindOHLCV, []domain.Candle{{Close: 1}})

	clock.advance(59 * time.Second)
	_, ok := c.Get("okx", "BTC/USDT", KindOHLCV)
	assert.True(t, ok)
	clock.advance(2 * time.Second)
	_, ok = c.Get("okx", "BTC/USDT", KindOHLCV)
	assert.False(t, ok)
}

func TestClearWildcards(t *testing.T) {
	fill := func() *Cache {
		c := NewCache()
		c.Set("binance", "BTC/USDT", KindTicker, 1)
		c.Set("binance", "ETH/USDT", KindTicker, 2)
		c.Set("binance", "BTC/USDT", KindOrderBook, 3)
		c.Set("okx", "BTC/USDT", KindTicker, 4)
		return c
	}

	c := fill()
	c.Clear("binance", "", "")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("okx", "BTC/USDT", KindTicker)
	assert.True(t, ok)

	c = fill()
	c.Clear("", "BTC/USDT", KindTicker)
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("binance", "ETH/USDT", KindTicker)
	assert.True(t, ok)

	c = fill()
	c.Clear("", "", "")
	assert.Zero(t, c.Len())
}

type countingClient struct {
	stubClient
	tickers  atomic.Int32
	balances atomic.Int32
	release  chan struct{}
	fail     error
}

func (c *countingClient) FetchTicker(_ context.Context, symbol string) (domain.Ticker, error) {
	c.tickers.Add(1)
	if c.release != nil {
		<-c.release
	}
	if c.fail != nil {
		return domain.Ticker{}, c.fail
	}
	return domain.Ticker{Symbol: symbol, Last: 42}, nil
}

func (c *countingClient) FetchBalance(context.Context, map[string]string) (domain.Balance, error) {
	c.balances.Add(1)
	return domain.NewBalance(), nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCachedClientServesFromCache(t *testing.T) {
	inner := &countingClient{}
	cc := Wrap(inner, NewMemoryStore(NewCache()), nil, discard())

	for range 3 {
		tk, err := cc.FetchTicker(context.Background(), "BTC/USDT")
		require.NoError(t, err)
		assert.Equal(t, 42.0, tk.Last)
	}
	assert.Equal(t, int32(1), inner.tickers.Load())

	for range 2 {
		_, err := cc.FetchBalance(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), inner.balances.Load(), "balances are never cached")
}

func TestCachedClientCoalescesConcurrentMisses(t *testing.T) {
	inner := &countingClient{release: make(chan struct{})}
	cc := Wrap(inner, NewMemoryStore(NewCache()), &singleflight.Group{}, discard())

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cc.FetchTicker(context.Background(), "BTC/USDT")
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return inner.tickers.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int32(1), inner.tickers.Load())
}

// ctxClient blocks FetchTicker until released or its context ends.
type ctxClient struct {
	stubClient
	calls   atomic.Int32
	release chan struct{}
}

func (c *ctxClient) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	c.calls.Add(1)
	select {
	case <-ctx.Done():
		return domain.Ticker{}, ctx.Err()
	case <-c.release:
		return domain.Ticker{Symbol: symbol, Last: 7}, nil
	}
}

func TestCachedClientFirstCallerCancelDoesNotFailWaiters(t *testing.T) {
	inner := &ctxClient{release: make(chan struct{})}
	cc := Wrap(inner, NewMemoryStore(NewCache()), &singleflight.Group{}, discard())

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cc.FetchTicker(first, "BTC/USDT")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		tk  domain.Ticker
		err error
	}
	second := make(chan result, 1)
	go func() {
		tk, err := cc.FetchTicker(context.Background(), "BTC/USDT")
		second <- result{tk, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(inner.release)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Equal(t, 7.0, r.tk.Last)
	case <-time.After(time.Second):
		t.Fatal("waiter did not return")
	}
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedClientDoesNotCacheErrors(t *testing.T) {
	inner := &countingClient{fail: errors.New("boom")}
	cc := Wrap(inner, NewMemoryStore(NewCache()), nil, discard())

	_, err := cc.FetchTicker(context.Background(), "BTC/USDT")
	require.Error(t, err)
	_, err = cc.FetchTicker(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.tickers.Load())
}

type rawStore struct{ MemoryStore }

// Get returns JSON, like a serialising backend would.
func (r rawStore) Get(ctx context.Context, ex, sym string, kind Kind) (any, bool, error) {
	v, ok, err := r.MemoryStore.Get(ctx, ex, sym, kind)
	if !ok || err != nil {
		return v, ok, err
	}
	b, err := json.Marshal(v)
	return json.RawMessage(b), true, err
}

func TestCachedClientDecodesSerialisedValues(t *testing.T) {
	inner := &countingClient{}
	cc := Wrap(inner, rawStore{NewMemoryStore(NewCache())}, nil, discard())

	_, err := cc.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	tk, err := cc.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 42.0, tk.Last)
	assert.Equal(t, int32(1), inner.tickers.Load())
}

type tally struct{ hits, misses map[string]int }

func (t *tally) CacheHit(kind string)  { t.hits[kind]++ }
func (t *tally) CacheMiss(kind string) { t.misses[kind]++ }

func TestCachedClientReportsHitsAndMisses(t *testing.T) {
	obs := &tally{hits: map[string]int{}, misses: map[string]int{}}
	cc := Wrap(&countingClient{}, NewMemoryStore(NewCache()), nil, discard()).Observe(obs)

	for range 3 {
		_, err := cc.FetchTicker(context.Background(), "ETH/USDT")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, obs.misses[KindTicker])
	assert.Equal(t, 2, obs.hits[KindTicker])
}

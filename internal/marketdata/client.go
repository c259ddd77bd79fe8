package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// flightTimeout bounds a shared upstream fetch once it no longer follows the
// caller that started it.
const flightTimeout = 15 * time.Second

// CachedClient decorates an exchange.Client so public reads go through a
// Store. Concurrent misses for the same key share one upstream call.
// FetchBalance and CreateOrder always reach the venue.
type CachedClient struct {
	exchange.Client
	store  Store
	group  *singleflight.Group
	logger *slog.Logger
	obs    Observer
}

// Observer is told about every cache lookup. metrics.Metrics implements it.
type Observer interface {
	CacheHit(kind string)
	CacheMiss(kind string)
}

// Observe attaches o and returns c.
func (c *CachedClient) Observe(o Observer) *CachedClient {
	c.obs = o
	return c
}

// Wrap returns client decorated with store. Pass the same group to every
// wrapper sharing a store so coalescing works across bots.
func Wrap(client exchange.Client, store Store, group *singleflight.Group, logger *slog.Logger) *CachedClient {
	if group == nil {
		group = &singleflight.Group{}
	}
	return &CachedClient{Client: client, store: store, group: group, logger: logger}
}

func (c *CachedClient) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	return cached(ctx, c, "", KindMarkets, c.Client.LoadMarkets)
}

func (c *CachedClient) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	return cached(ctx, c, symbol, KindTicker, func(ctx context.Context) (domain.Ticker, error) {
		return c.Client.FetchTicker(ctx, symbol)
	})
}

func (c *CachedClient) FetchOrderBook(ctx context.Context, symbol string, limit int) (domain.OrderBook, error) {
	key := symbol + "@" + strconv.Itoa(limit)
	return cached(ctx, c, key, KindOrderBook, func(ctx context.Context) (domain.OrderBook, error) {
		return c.Client.FetchOrderBook(ctx, symbol, limit)
	})
}

func (c *CachedClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, since time.Time, limit int) ([]domain.Candle, error) {
	key := fmt.Sprintf("%s@%s/%d/%d", symbol, timeframe, since.UnixMilli(), limit)
	return cached(ctx, c, key, KindOHLCV, func(ctx context.Context) ([]domain.Candle, error) {
		return c.Client.FetchOHLCV(ctx, symbol, timeframe, since, limit)
	})
}

func cached[T any](ctx context.Context, c *CachedClient, symbol string, kind Kind, fetch func(context.Context) (T, error)) (T, error) {
	exchangeID := c.Client.ID()
	v, ok, err := c.store.Get(ctx, exchangeID, symbol, kind)
	if err != nil {
		c.logger.WarnContext(ctx, "marketdata: cache read failed",
			slog.String("exchange", exchangeID),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
	if ok {
		if out, ok := decode[T](v); ok {
			if c.obs != nil {
				c.obs.CacheHit(kind)
			}
			return out, nil
		}
	}
	if c.obs != nil {
		c.obs.CacheMiss(kind)
	}

	flightKey := exchangeID + "|" + symbol + "|" + kind
	ch := c.group.DoChan(flightKey, func() (any, error) {
		// Detached from the caller that started it.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		// A flight that finished between our miss and Do has filled the store.
		if v, ok, _ := c.store.Get(fctx, exchangeID, symbol, kind); ok {
			if out, ok := decode[T](v); ok {
				return out, nil
			}
		}
		out, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(fctx, exchangeID, symbol, kind, out, TTL(kind)); err != nil {
			c.logger.WarnContext(ctx, "marketdata: cache write failed",
				slog.String("exchange", exchangeID),
				slog.String("kind", kind),
				slog.String("error", err.Error()),
			)
		}
		return out, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func decode[T any](v any) (T, bool) {
	switch x := v.(type) {
	case T:
		return x, true
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(x, &out); err != nil {
			return out, false
		}
		return out, true
	}
	var zero T
	return zero, false
}

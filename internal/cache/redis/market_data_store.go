package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Hidayat0507/tradebot/internal/marketdata"
)

const scanBatch = 200

// MarketDataStore implements marketdata.Store with JSON values and Redis
// key expiry, letting several instances share one market data cache.
//
// Key schema:
//
//	md:{exchange}:{kind}:{symbol}
type MarketDataStore struct {
	rdb *redis.Client
}

// NewMarketDataStore creates a MarketDataStore backed by the given Client.
func NewMarketDataStore(c *Client) *MarketDataStore {
	return &MarketDataStore{rdb: c.rdb}
}

func marketDataKey(exchangeID, symbol string, kind marketdata.Kind) string {
	return "md:" + exchangeID + ":" + kind + ":" + symbol
}

// Get returns the stored JSON as a json.RawMessage.
func (s *MarketDataStore) Get(ctx context.Context, exchangeID, symbol string, kind marketdata.Kind) (any, bool, error) {
	b, err := s.rdb.Get(ctx, marketDataKey(exchangeID, symbol, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get market data %s/%s: %w", exchangeID, symbol, err)
	}
	return json.RawMessage(b), true, nil
}

// Set stores data with a millisecond-precision expiry.
func (s *MarketDataStore) Set(ctx context.Context, exchangeID, symbol string, kind marketdata.Kind, data any, ttl time.Duration) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("redis: marshal market data %s/%s: %w", exchangeID, symbol, err)
	}
	if err := s.rdb.Set(ctx, marketDataKey(exchangeID, symbol, kind), b, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market data %s/%s: %w", exchangeID, symbol, err)
	}
	return nil
}

// Clear deletes matching keys. Empty arguments are wildcards.
func (s *MarketDataStore) Clear(ctx context.Context, exchangeID, symbol string, kind marketdata.Kind) error {
	pattern := marketDataKey(orWildcard(exchangeID), orWildcard(symbol), orWildcard(kind))
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis: scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: clear market data: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func orWildcard(s string) string {
	if s == "" {
		return "*"
	}
	// Glob metacharacters in symbols are matched literally.
	r := strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`)
	return r.Replace(s)
}

var _ marketdata.Store = (*MarketDataStore)(nil)

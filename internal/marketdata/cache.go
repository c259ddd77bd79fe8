// Package marketdata caches public market data (tickers, orderbooks,
// candles, market lists) per exchange and symbol with short TTLs.
package marketdata

import (
	"context"
	"sync"
	"time"
)

// Kind names a cached data type.
type Kind = string

const (
	KindTicker    Kind = "ticker"
	KindOrderBook Kind = "orderBook"
	KindOHLCV     Kind = "ohlcv"
	KindMarkets   Kind = "marketList"
)

var ttls = map[Kind]time.Duration{
	KindTicker:    5 * time.Second,
	KindOrderBook: 5 * time.Second,
	KindOHLCV:     60 * time.Second,
}

const defaultTTL = 5 * time.Second

// TTL returns how long data of the given kind stays fresh.
func TTL(kind Kind) time.Duration {
	if d, ok := ttls[kind]; ok {
		return d
	}
	return defaultTTL
}

type entryKey struct {
	exchange string
	symbol   string
	kind     Kind
}

type entry struct {
	value   any
	expires time.Time
}

// Cache is an in-process TTL cache. Expired entries are dropped lazily
// when read.
type Cache struct {
	mu      sync.Mutex
	entries map[entryKey]entry
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{entries: make(map[entryKey]entry), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached value when present and not expired.
func (c *Cache) Get(exchangeID, symbol string, kind Kind) (any, bool) {
	k := entryKey{exchangeID, symbol, kind}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, k)
		return nil, false
	}
	return e.value, true
}

// Set stores data using the TTL for its kind.
func (c *Cache) Set(exchangeID, symbol string, kind Kind, data any) {
	c.set(exchangeID, symbol, kind, data, TTL(kind))
}

func (c *Cache) set(exchangeID, symbol string, kind Kind, data any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entryKey{exchangeID, symbol, kind}] = entry{value: data, expires: c.now().Add(ttl)}
}

// Clear removes matching entries. An empty argument matches anything, so
// Clear("", "", "") empties the cache.
func (c *Cache) Clear(exchangeID, symbol string, kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exchangeID == "" && symbol == "" && kind == "" {
		c.entries = make(map[entryKey]entry)
		return
	}
	for k := range c.entries {
		if (exchangeID == "" || k.exchange == exchangeID) &&
			(symbol == "" || k.symbol == symbol) &&
			(kind == "" || k.kind == kind) {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Store is a cache backend shared by CachedClient instances. Values
// returned by Get are either the stored Go value or a json.RawMessage for
// backends that serialise.
type Store interface {
	Get(ctx context.Context, exchangeID, symbol string, kind Kind) (any, bool, error)
	Set(ctx context.Context, exchangeID, symbol string, kind Kind, data any, ttl time.Duration) error
	Clear(ctx context.Context, exchangeID, symbol string, kind Kind) error
}

// MemoryStore adapts a Cache to Store.
type MemoryStore struct {
	*Cache
}

// NewMemoryStore wraps c.
func NewMemoryStore(c *Cache) MemoryStore { return MemoryStore{Cache: c} }

func (m MemoryStore) Get(_ context.Context, exchangeID, symbol string, kind Kind) (any, bool, error) {
	v, ok := m.Cache.Get(exchangeID, symbol, kind)
	return v, ok, nil
}

func (m MemoryStore) Set(_ context.Context, exchangeID, symbol string, kind Kind, data any, ttl time.Duration) error {
	m.Cache.set(exchangeID, symbol, kind, data, ttl)
	return nil
}

func (m MemoryStore) Clear(_ context.Context, exchangeID, symbol string, kind Kind) error {
	m.Cache.Clear(exchangeID, symbol, kind)
	return nil
}

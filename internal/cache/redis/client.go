// Package redis provides the optional shared backends: the market data
// store, the webhook ingress rate limiter, and the trade event bus. They
// let several tradebot instances share state behind a load balancer.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// ClientConfig holds connection parameters.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

func (c ClientConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		MaxRetries:  c.MaxRetries,
		DialTimeout: dialTimeout,
	}
	if c.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Client is the connection shared by the stores in this package.
type Client struct {
	rdb  *redis.Client
	addr string
}

// New connects and pings. A failed ping closes the pool.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(cfg.options())
	c := &Client{rdb: rdb, addr: cfg.Addr}
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

// Ping is the health probe.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", c.addr, err)
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

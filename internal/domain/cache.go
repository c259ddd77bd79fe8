package domain

import (
	"context"
	"time"
)

// RateLimiter counts requests per key in a sliding window. Allow records
// the request only when it is admitted. The Redis implementation shares
// the window across instances; the memory one is per process.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is one stream entry. ID is opaque and ordered, and can be
// passed back to StreamRead to continue after it.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries trade events to live subscribers (Publish/Subscribe)
// and keeps a short replay history (StreamAppend, StreamRead, StreamTail).
// Subscribe's channel closes when ctx ends. StreamRead with count 0 returns
// everything after lastID. StreamTail returns the newest n entries, oldest
// first.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	StreamTail(ctx context.Context, stream string, n int) ([]StreamMessage, error)
}

// Bus channel and stream names.
const (
	ChannelTrades = "trades"
	StreamTrades  = "stream:trades"
)

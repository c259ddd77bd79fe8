package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

const (
	// streamMaxLen caps trade streams via XADD MAXLEN ~.
	streamMaxLen int64 = 10000
	// subscriberBuffer is the per-subscriber backlog before a slow reader
	// starts losing messages.
	subscriberBuffer = 128
)

// SignalBus implements domain.SignalBus: Pub/Sub carries live trade events
// to websocket hubs on every instance, and a capped stream keeps a replayable
// history.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.rdb}
}

// Publish sends payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel. The
// subscription and the returned channel close when ctx is done. Messages
// are dropped rather than blocking Redis when the reader falls behind.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := sb.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
				}
			}
		}
	}()
	return out, nil
}

// StreamAppend appends payload to a capped stream.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" reads from the
// start). An empty stream yields no messages and no error.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	results, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		messages = appendMessages(messages, s.Messages)
	}
	return messages, nil
}

// StreamTail returns the newest n entries, oldest first.
func (sb *SignalBus) StreamTail(ctx context.Context, stream string, n int) ([]domain.StreamMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	newest, err := sb.rdb.XRevRangeN(ctx, stream, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream tail %s: %w", stream, err)
	}
	slices.Reverse(newest)
	return appendMessages(nil, newest), nil
}

// appendMessages converts stream entries, skipping any without a payload
// field.
func appendMessages(dst []domain.StreamMessage, msgs []redis.XMessage) []domain.StreamMessage {
	for _, msg := range msgs {
		var data []byte
		switch v := msg.Values["payload"].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		dst = append(dst, domain.StreamMessage{ID: msg.ID, Payload: data})
	}
	return dst
}

var _ domain.SignalBus = (*SignalBus)(nil)

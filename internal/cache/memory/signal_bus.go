// Package memory provides single-process stand-ins for the Redis backends:
// an event bus and a per-key rate limiter.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

const (
	streamMaxLen     = 10000
	subscriberBuffer = 128
)

type entry struct {
	seq     uint64
	payload []byte
}

// SignalBus implements domain.SignalBus inside one process. Stream ids are
// decimal sequence numbers, so "0" reads from the start like Redis.
type SignalBus struct {
	mu      sync.RWMutex
	subs    map[string]map[chan []byte]struct{}
	streams map[string][]entry
	seq     uint64
}

// NewSignalBus creates an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[string]map[chan []byte]struct{}),
		streams: make(map[string][]entry),
	}
}

// Publish delivers payload to current subscribers of channel. Slow
// subscribers lose messages instead of blocking the publisher.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers for channel until ctx is done, then closes the
// returned channel.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// StreamAppend appends payload, dropping the oldest entries past the cap.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	s := append(b.streams[stream], entry{seq: b.seq, payload: payload})
	if len(s) > streamMaxLen {
		s = append([]entry(nil), s[len(s)-streamMaxLen:]...)
	}
	b.streams[stream] = s
	return nil
}

// StreamRead returns up to count entries with ids greater than lastID.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := strconv.ParseUint(lastID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("memory: stream read %s: bad id %q", stream, lastID)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, e := range b.streams[stream] {
		if e.seq <= after {
			continue
		}
		out = append(out, domain.StreamMessage{ID: strconv.FormatUint(e.seq, 10), Payload: e.payload})
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

// StreamTail returns the newest n entries, oldest first.
func (b *SignalBus) StreamTail(_ context.Context, stream string, n int) ([]domain.StreamMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.streams[stream]
	if len(s) > n {
		s = s[len(s)-n:]
	}
	out := make([]domain.StreamMessage, 0, len(s))
	for _, e := range s {
		out = append(out, domain.StreamMessage{ID: strconv.FormatUint(e.seq, 10), Payload: e.payload})
	}
	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)

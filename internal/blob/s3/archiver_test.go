package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	failPut bool
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.failPut {
		return errors.New("bucket unavailable")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type memTrades struct{ rows []domain.Trade }

func (m *memTrades) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	sort.Slice(m.rows, func(i, j int) bool { return m.rows[i].CreatedAt.Before(m.rows[j].CreatedAt) })
	var out []domain.Trade
	for _, t := range m.rows {
		if t.CreatedAt.Before(before) {
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memTrades) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var keep []domain.Trade
	for _, t := range m.rows {
		if !t.CreatedAt.Before(before) {
			keep = append(keep, t)
		}
	}
	n := int64(len(m.rows) - len(keep))
	m.rows = keep
	return n, nil
}

var base = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func trades(offsets ...time.Duration) *memTrades {
	m := &memTrades{}
	for i, off := range offsets {
		m.rows = append(m.rows, domain.Trade{
			ID: string(rune('a' + i)), BotID: "b1", Symbol: "BTC/USDT",
			Side: domain.OrderSideBuy, Size: 1, Price: 100, CreatedAt: base.Add(off),
		})
	}
	return m
}

func newArchiver(blobs *memBlobs, store *memTrades) *Archiver {
	return NewArchiver(blobs, blobs, store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func lines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestArchiveTradesUploadsThenDeletes(t *testing.T) {
	blobs := &memBlobs{objects: map[string][]byte{}}
	store := trades(0, time.Hour, 48*time.Hour)

	n, err := newArchiver(blobs, store).ArchiveTrades(context.Background(), base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.Len(t, store.rows, 1)
	assert.Equal(t, "c", store.rows[0].ID)

	require.Len(t, blobs.objects, 1)
	for path, body := range blobs.objects {
		assert.True(t, strings.HasPrefix(path, "archive/trades/2025/01/"), path)
		got := lines(t, body)
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0]["id"])
		assert.Equal(t, "BTC/USDT", got[0]["symbol"])
		assert.Nil(t, got[0]["pnl"])
	}
}

func TestArchiveTradesNothingToDo(t *testing.T) {
	blobs := &memBlobs{objects: map[string][]byte{}}
	n, err := newArchiver(blobs, trades(time.Hour)).ArchiveTrades(context.Background(), base)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blobs.objects)
}

func TestArchiveTradesKeepsRowsWhenUploadFails(t *testing.T) {
	store := trades(0, time.Minute)
	_, err := newArchiver(&memBlobs{failPut: true}, store).ArchiveTrades(context.Background(), base.Add(time.Hour))
	require.Error(t, err)
	assert.Len(t, store.rows, 2)
}

func TestArchiveTradesBatchStopsAtSharedTimestamp(t *testing.T) {
	blobs := &memBlobs{objects: map[string][]byte{}}
	store := trades(0, time.Minute, time.Minute, 2*time.Minute)
	a := newArchiver(blobs, store)
	a.batch = 2

	n, err := a.ArchiveTrades(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "both trades at +1m stay for the next run")
	assert.Len(t, store.rows, 3)

	a.batch = 10
	n, err = a.ArchiveTrades(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Empty(t, store.rows)
	assert.Len(t, blobs.objects, 2)
}

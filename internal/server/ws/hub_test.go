package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/cache/memory"
	"github.com/Hidayat0507/tradebot/internal/domain"
)

func startHub(t *testing.T, bus domain.SignalBus, cfg Config) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	go func() { _ = h.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e envelope
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestHubStatusThenTrades(t *testing.T) {
	bus := memory.NewSignalBus()
	conn := dial(t, startHub(t, bus, Config{Mode: "Paper"}))

	status := next(t, conn)
	assert.Equal(t, "status", status.Type)
	assert.Contains(t, string(status.Payload), `"mode":"paper"`)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelTrades, []byte(`{"bot_id":"b1","symbol":"BTC/USDT"}`)))
	trade := next(t, conn)
	assert.Equal(t, "trade", trade.Type)
	assert.JSONEq(t, `{"bot_id":"b1","symbol":"BTC/USDT"}`, string(trade.Payload))
}

func TestHubBotFilter(t *testing.T) {
	bus := memory.NewSignalBus()
	conn := dial(t, startHub(t, bus, Config{})+"/ws?bot_id=b2")
	next(t, conn)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, []byte(`{"bot_id":"b1"}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, []byte(`{"bot_id":"b2"}`)))
	assert.JSONEq(t, `{"bot_id":"b2"}`, string(next(t, conn).Payload))

	// Clearing the filter over the socket admits every bot again. The
	// filter applies asynchronously, so keep publishing until b3 arrives.
	require.NoError(t, conn.WriteJSON(filterMsg{Action: "filter"}))
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				_ = bus.Publish(ctx, domain.ChannelTrades, []byte(`{"bot_id":"b3"}`))
			}
		}
	}()
	assert.JSONEq(t, `{"bot_id":"b3"}`, string(next(t, conn).Payload))
}

func TestHubReplaysRecentTrades(t *testing.T) {
	bus := memory.NewSignalBus()
	ctx := context.Background()
	for _, id := range []string{"t1", "t2", "t3"} {
		payload, err := json.Marshal(map[string]string{"id": id})
		require.NoError(t, err)
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamTrades, payload))
	}

	conn := dial(t, startHub(t, bus, Config{Replay: 2}))
	assert.Equal(t, "status", next(t, conn).Type)

	first, second := next(t, conn), next(t, conn)
	assert.Equal(t, "trade_replay", first.Type)
	assert.JSONEq(t, `{"id":"t2"}`, string(first.Payload))
	assert.JSONEq(t, `{"id":"t3"}`, string(second.Payload))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://dash.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "non-browser clients send no Origin")

	req.Header.Set("Origin", "https://DASH.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}

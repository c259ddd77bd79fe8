// Package ws streams recorded trade events to dashboard clients over
// WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// envelope wraps every frame sent to clients.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client represents a single WebSocket connection.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	botIDs map[string]bool // empty means every bot
	mu     sync.RWMutex
}

// filterMsg narrows the feed to specific bots. An empty list clears the
// filter.
type filterMsg struct {
	Action string   `json:"action"` // "filter"
	BotIDs []string `json:"bot_ids"`
}

// Hub fans trade events from the SignalBus out to connected clients.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	replay     int
	startedAt  time.Time
}

// Config captures hub runtime settings.
type Config struct {
	Mode string
	// Replay is how many recent trades from the durable stream a new client
	// receives on connect. Zero disables replay.
	Replay         int
	AllowedOrigins []string
	StartedAt      time.Time
}

// NewHub creates a hub bridging bus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	h := &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws")),
		mode:       mode,
		replay:     cfg.Replay,
		startedAt:  startedAt,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run subscribes to the trades channel and dispatches events until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	msgCh, err := h.bus.Subscribe(ctx, domain.ChannelTrades)
	if err != nil {
		return err
	}
	h.logger.Info("ws: subscribed", slog.String("channel", domain.ChannelTrades))

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: trade subscription closed")
				msgCh = nil
				continue
			}
			h.dispatch(data)
		}
	}
}

func (h *Hub) dispatch(data []byte) {
	var head struct {
		BotID string `json:"bot_id"`
	}
	_ = json.Unmarshal(data, &head)

	frame, err := json.Marshal(envelope{Type: "trade", Payload: data})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(head.BotID) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. A bot_id query parameter (repeatable) sets the
// initial filter.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		botIDs: make(map[string]bool),
	}
	for _, id := range r.URL.Query()["bot_id"] {
		c.botIDs[id] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.sendInitialStatus()
	h.replayTo(r.Context(), c)

	go c.writePump()
	go c.readPump()
}

// replayTo queues the most recent trades from the durable stream.
func (h *Hub) replayTo(ctx context.Context, c *client) {
	if h.replay <= 0 {
		return
	}
	msgs, err := h.bus.StreamTail(ctx, domain.StreamTrades, h.replay)
	if err != nil {
		h.logger.Warn("ws: replay read failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range msgs {
		frame, err := json.Marshal(envelope{Type: "trade_replay", Payload: m.Payload})
		if err != nil {
			continue
		}
		select {
		case c.send <- frame:
		default:
			return
		}
	}
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) wants(botID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.botIDs) == 0 || c.botIDs[botID]
}

// readPump handles filter messages and detects disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var f filterMsg
		if json.Unmarshal(message, &f) == nil && f.Action == "filter" {
			c.mu.Lock()
			c.botIDs = make(map[string]bool, len(f.BotIDs))
			for _, id := range f.BotIDs {
				c.botIDs[id] = true
			}
			c.mu.Unlock()
		}
	}
}

// sendInitialStatus lets clients mark the connection healthy before any
// trade arrives.
func (c *client) sendInitialStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	payload, err := json.Marshal(map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": uptime,
	})
	if err != nil {
		return
	}
	msg, err := json.Marshal(envelope{Type: "status", Payload: payload})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// writePump sends JSON text frames and periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Package server hosts the webhook, the operator API, metrics and the trade
// WebSocket feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/server/handler"
	"github.com/Hidayat0507/tradebot/internal/server/middleware"
	"github.com/Hidayat0507/tradebot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, operator authentication is disabled
	RateLimit   middleware.RateLimitConfig
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Webhook *handler.WebhookHandler
	Trades  *handler.TradeHandler
	// Audit is optional.
	Audit *handler.AuditHandler
	// Metrics is optional; nil leaves /metrics unregistered.
	Metrics http.Handler
}

// Server is the HTTP + WebSocket front end of the bot.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter guards only the webhook.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           Routes(cfg, handlers, limiter, wsHub, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Exchange calls run inside the webhook request.
			WriteTimeout: 45 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the full handler chain.
func Routes(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.Auth(cfg.APIKey)
	limit := middleware.RateLimit(limiter, cfg.RateLimit, logger)

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("POST /webhook", limit(http.HandlerFunc(handlers.Webhook.HandleSignal)))
	mux.Handle("GET /api/bots/{id}/trades", auth(http.HandlerFunc(handlers.Trades.ListTrades)))
	if handlers.Audit != nil {
		mux.Handle("GET /api/audit", auth(http.HandlerFunc(handlers.Audit.ListAudit)))
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", auth(handlers.Metrics))
	}
	if wsHub != nil {
		mux.Handle("GET /ws", auth(http.HandlerFunc(wsHub.HandleWS)))
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

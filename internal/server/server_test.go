package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/cache/memory"
	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/server/handler"
	"github.com/Hidayat0507/tradebot/internal/server/middleware"
	"github.com/Hidayat0507/tradebot/internal/service"
)

type okProcessor struct{}

func (okProcessor) Process(context.Context, []byte) (service.Outcome, error) {
	return service.Outcome{Trade: domain.Trade{ID: "t1"}}, nil
}

type noTrades struct{}

func (noTrades) Trades(context.Context, string, string, domain.ListOpts) ([]domain.Trade, error) {
	return nil, nil
}

func routes(t *testing.T, limit int) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{
		APIKey:      "operator-key",
		CORSOrigins: []string{"https://dash.example"},
		RateLimit:   middleware.RateLimitConfig{Limit: limit, Window: time.Minute, Prefix: "ratelimit:webhook:"},
	}
	h := Handlers{
		Health:  handler.NewHealthHandler(nil, "paper", logger),
		Webhook: handler.NewWebhookHandler(okProcessor{}, logger),
		Trades:  handler.NewTradeHandler(noTrades{}, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	}
	return Routes(cfg, h, memory.NewRateLimiter(), nil, logger)
}

func do(h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(`{}`))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookIsNotBehindOperatorKey(t *testing.T) {
	rec := do(routes(t, 10), http.MethodPost, "/webhook", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestOperatorRoutesRequireKey(t *testing.T) {
	h := routes(t, 10)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/bots/b1/trades?owner_id=u", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/metrics", map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/bots/b1/trades?owner_id=u", map[string]string{"Authorization": "Bearer operator-key"}).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/health", nil).Code)
}

func TestWebhookRateLimited(t *testing.T) {
	h := routes(t, 2)
	for range 2 {
		require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/webhook", nil).Code)
	}
	rec := do(h, http.MethodPost, "/webhook", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"class":"rate_limit"`)

	// Health is not limited.
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/health", nil).Code)
}

func TestForwardedForIgnoredWithoutTrustProxy(t *testing.T) {
	h := routes(t, 1)
	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/webhook", map[string]string{"X-Forwarded-For": "1.1.1.1"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/webhook", map[string]string{"X-Forwarded-For": "2.2.2.2"}).Code)
}

func TestCORSPreflight(t *testing.T) {
	rec := do(routes(t, 10), http.MethodOptions, "/webhook", map[string]string{"Origin": "https://dash.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDEchoed(t *testing.T) {
	rec := do(routes(t, 10), http.MethodGet, "/api/health", map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = do(routes(t, 10), http.MethodGet, "/api/health", nil)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

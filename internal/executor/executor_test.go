package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

type orderClient struct {
	reqs []domain.OrderRequest
	res  domain.OrderResult
	err  error
}

func (c *orderClient) ID() string { return "test" }
func (c *orderClient) LoadMarkets(context.Context) ([]domain.Market, error) {
	return nil, nil
}
func (c *orderClient) FetchTicker(context.Context, string) (domain.Ticker, error) {
	return domain.Ticker{}, nil
}
func (c *orderClient) FetchOrderBook(context.Context, string, int) (domain.OrderBook, error) {
	return domain.OrderBook{}, nil
}
func (c *orderClient) FetchOHLCV(context.Context, string, string, time.Time, int) ([]domain.Candle, error) {
	return nil, nil
}
func (c *orderClient) FetchBalance(context.Context, map[string]string) (domain.Balance, error) {
	return domain.NewBalance(), nil
}
func (c *orderClient) CreateOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	c.reqs = append(c.reqs, req)
	return c.res, c.err
}

type venue struct {
	exchange.BaseVenue
	rules exchange.VenueRules
}

func (v venue) ID() string                    { return "test" }
func (v venue) RequiredCredentials() []string { return nil }
func (v venue) Rules() exchange.VenueRules    { return v.rules }
func (v venue) FormatSymbol(s string) string  { return exchange.NormalizeSymbol(s) }
func (v venue) NewClient(*domain.ResolvedCredentials) (exchange.Client, error) {
	return nil, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var sized = domain.SizingResult{Amount: 0.01}

func TestBuildOrderMarketBuyCarriesPriceOnBuy(t *testing.T) {
	v := venue{rules: exchange.VenueRules{MarketPrice: exchange.MarketPriceOnBuy}}
	buy := domain.Signal{BotID: "b", Symbol: "BTCUSDT", Action: domain.OrderSideBuy}
	sell := domain.Signal{BotID: "b", Symbol: "BTCUSDT", Action: domain.OrderSideSell}

	req := BuildOrder(v, buy, sized, 50000)
	assert.Equal(t, "BTC/USDT", req.Symbol)
	assert.Equal(t, domain.OrderTypeMarket, req.Type)
	require.NotNil(t, req.Price)
	assert.Equal(t, 50000.0, *req.Price)
	assert.Nil(t, req.Params.SlippagePercent)

	req = BuildOrder(v, sell, sized, 50000)
	assert.Nil(t, req.Price)
}

func TestBuildOrderLimitUsesSignalPrice(t *testing.T) {
	v := venue{rules: exchange.VenueRules{MarketPrice: exchange.MarketPriceAlways, SlippagePercent: 5}}
	sig := domain.Signal{Symbol: "ETH/USDC:USDC", Action: domain.OrderSideSell, Price: domain.Float(3000)}

	req := BuildOrder(v, sig, sized, 2990)
	assert.Equal(t, domain.OrderTypeLimit, req.Type)
	require.NotNil(t, req.Price)
	assert.Equal(t, 3000.0, *req.Price)
	assert.Nil(t, req.Params.SlippagePercent, "slippage only applies to market orders")
}

func TestBuildOrderMarketAlwaysAddsSlippage(t *testing.T) {
	v := venue{rules: exchange.VenueRules{MarketPrice: exchange.MarketPriceAlways, SlippagePercent: 5}}
	sig := domain.Signal{Symbol: "BTC/USDC:USDC", Action: domain.OrderSideSell}

	req := BuildOrder(v, sig, sized, 50000)
	require.NotNil(t, req.Price)
	require.NotNil(t, req.Params.SlippagePercent)
	assert.Equal(t, 5.0, *req.Params.SlippagePercent)
}

func TestBuildOrderNeverOmitsPrice(t *testing.T) {
	v := venue{rules: exchange.VenueRules{MarketPrice: exchange.MarketPriceNever}}
	sig := domain.Signal{Symbol: "BTC/USDT", Action: domain.OrderSideBuy}
	assert.Nil(t, BuildOrder(v, sig, sized, 50000).Price)
}

func TestBuildOrderStopLoss(t *testing.T) {
	v := venue{}
	buy := domain.Signal{Symbol: "BTC/USDT", Action: domain.OrderSideBuy, StopLossPercent: domain.Float(2)}
	req := BuildOrder(v, buy, sized, 50000)
	require.NotNil(t, req.Params.StopLoss)
	assert.InDelta(t, 49000, req.Params.StopLoss.StopPrice, 1e-9)
	assert.Equal(t, domain.OrderTypeMarket, req.Params.StopLoss.Type)

	sell := domain.Signal{Symbol: "BTC/USDT", Action: domain.OrderSideSell, StopLossPercent: domain.Float(2), Price: domain.Float(60000)}
	req = BuildOrder(v, sell, sized, 50000)
	require.NotNil(t, req.Params.StopLoss)
	assert.InDelta(t, 61200, req.Params.StopLoss.StopPrice, 1e-9)
}

func TestExecuteFillsMissingResultFields(t *testing.T) {
	client := &orderClient{res: domain.OrderResult{ID: "42", Status: domain.OrderStatusFilled}}
	e := NewExecutor(time.Second, discard())
	sig := domain.Signal{BotID: "b", Symbol: "BTCUSDT", Action: domain.OrderSideBuy}

	res, err := e.Execute(context.Background(), client, venue{}, sig, sized, 50000)
	require.NoError(t, err)
	assert.Equal(t, "42", res.ID)
	assert.Equal(t, "BTC/USDT", res.Symbol)
	assert.Equal(t, domain.OrderSideBuy, res.Side)
	assert.Equal(t, domain.OrderTypeMarket, res.Type)
	require.Len(t, client.reqs, 1)
	assert.Equal(t, 0.01, client.reqs[0].Amount)
}

func TestExecuteRejectsDuplicates(t *testing.T) {
	client := &orderClient{res: domain.OrderResult{ID: "1"}}
	e := NewExecutor(time.Minute, discard())
	sig := domain.Signal{BotID: "b", Symbol: "BTCUSDT", Action: domain.OrderSideBuy}

	_, err := e.Execute(context.Background(), client, venue{}, sig, sized, 50000)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), client, venue{}, sig, sized, 50000)
	require.ErrorIs(t, err, domain.ErrDuplicateSignal)
	assert.Len(t, client.reqs, 1)

	other := sig
	other.Action = domain.OrderSideSell
	_, err = e.Execute(context.Background(), client, venue{}, other, sized, 50000)
	require.NoError(t, err)
}

func TestExecuteFailureIsClassifiedAndNotRetried(t *testing.T) {
	client := &orderClient{err: fmt.Errorf("okx: code 51008: %w", domain.ErrInsufficientFunds)}
	e := NewExecutor(time.Minute, discard())
	sig := domain.Signal{BotID: "b", Symbol: "BTC/USDT", Action: domain.OrderSideBuy}

	_, err := e.Execute(context.Background(), client, venue{}, sig, sized, 50000)
	require.ErrorIs(t, err, domain.ErrExecution)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, domain.ExecClassInsufficientFunds, ee.Class)
	assert.False(t, ee.Retryable())
	assert.Len(t, client.reqs, 1)

	// A failed attempt does not block the next one.
	client.err = nil
	_, err = e.Execute(context.Background(), client, venue{}, sig, sized, 50000)
	require.NoError(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want domain.ExecClass
	}{
		{domain.ErrExchangeAuth, domain.ExecClassAuth},
		{domain.ErrSigningFailed, domain.ExecClassAuth},
		{domain.ErrInsufficientFunds, domain.ExecClassInsufficientFunds},
		{domain.ErrInvalidOrder, domain.ExecClassInvalidOrder},
		{domain.ErrRateLimited, domain.ExecClassRateLimit},
		{domain.ErrNetwork, domain.ExecClassNetwork},
		{context.DeadlineExceeded, domain.ExecClassNetwork},
		{errors.New("boom"), domain.ExecClassUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(fmt.Errorf("wrapped: %w", tt.err)), tt.err.Error())
	}
}

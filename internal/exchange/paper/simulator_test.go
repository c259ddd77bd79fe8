package paper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

type stubMarket struct {
	last  float64
	calls int
}

func (m *stubMarket) ID() string { return "stub" }
func (m *stubMarket) LoadMarkets(context.Context) ([]domain.Market, error) {
	return nil, nil
}
func (m *stubMarket) FetchTicker(_ context.Context, symbol string) (domain.Ticker, error) {
	m.calls++
	return domain.Ticker{Symbol: symbol, Last: m.last}, nil
}
func (m *stubMarket) FetchOrderBook(context.Context, string, int) (domain.OrderBook, error) {
	return domain.OrderBook{}, nil
}
func (m *stubMarket) FetchOHLCV(context.Context, string, string, time.Time, int) ([]domain.Candle, error) {
	return nil, nil
}
func (m *stubMarket) FetchBalance(context.Context, map[string]string) (domain.Balance, error) {
	panic("paper client must not read live balances")
}
func (m *stubMarket) CreateOrder(context.Context, domain.OrderRequest) (domain.OrderResult, error) {
	panic("paper client must not place live orders")
}

type stubVenue struct {
	exchange.BaseVenue
	rules exchange.VenueRules
}

func (stubVenue) ID() string { return "stub" }
func (stubVenue) RequiredCredentials() []string { return nil }
func (v stubVenue) Rules() exchange.VenueRules { return v.rules }
func (stubVenue) NewClient(*domain.ResolvedCredentials) (exchange.Client, error) { return nil, nil }

func newSim() *Simulator {
	return New(map[string]float64{"USDT": 1000, "USDC": 500}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBuyThenSellMovesBalances(t *testing.T) {
	ctx := context.Background()
	market := &stubMarket{last: 50000}
	c := newSim().Wrap(stubVenue{}, market, &domain.ResolvedCredentials{APIKey: "k1"})

	res, err := c.CreateOrder(ctx, domain.OrderRequest{
		Symbol: "BTC/USDT", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy, Amount: 0.01,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
	assert.Equal(t, 50000.0, res.Average)
	assert.Equal(t, 1, market.calls)

	bal, err := c.FetchBalance(ctx, nil)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, bal.Free["USDT"], 1e-9)
	assert.InDelta(t, 0.01, bal.Free["BTC"], 1e-12)

	_, err = c.CreateOrder(ctx, domain.OrderRequest{
		Symbol: "BTC/USDT", Type: domain.OrderTypeLimit, Side: domain.OrderSideSell, Amount: 0.01, Price: domain.Float(60000),
	})
	require.NoError(t, err)
	bal, _ = c.FetchBalance(ctx, nil)
	assert.InDelta(t, 1100.0, bal.Free["USDT"], 1e-9)
	assert.InDelta(t, 0, bal.Free["BTC"], 1e-12)
}

func TestInsufficientFunds(t *testing.T) {
	c := newSim().Wrap(stubVenue{}, &stubMarket{last: 50000}, nil)
	_, err := c.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTC/USDT", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy, Amount: 1,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = c.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTC/USDT", Type: domain.OrderTypeMarket, Side: domain.OrderSideSell, Amount: 1,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestBuyQuoteCurrencyRule(t *testing.T) {
	v := stubVenue{rules: exchange.VenueRules{BuyQuoteCurrency: "USDC"}}
	c := newSim().Wrap(v, &stubMarket{}, nil)
	_, err := c.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "ETH/USDC:USDC", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy, Amount: 0.1, Price: domain.Float(3000),
	})
	require.NoError(t, err)
	bal, _ := c.FetchBalance(context.Background(), nil)
	assert.InDelta(t, 200.0, bal.Free["USDC"], 1e-9)
	assert.Equal(t, 1000.0, bal.Free["USDT"])
}

func TestAccountsAreKeyedByAPIKey(t *testing.T) {
	sim := newSim()
	a := sim.Wrap(stubVenue{}, &stubMarket{}, &domain.ResolvedCredentials{APIKey: "a"})
	a2 := sim.Wrap(stubVenue{}, &stubMarket{}, &domain.ResolvedCredentials{APIKey: "a"})
	b := sim.Wrap(stubVenue{}, &stubMarket{}, &domain.ResolvedCredentials{APIKey: "b"})

	_, err := a.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTC/USDT", Type: domain.OrderTypeLimit, Side: domain.OrderSideBuy, Amount: 0.01, Price: domain.Float(10000),
	})
	require.NoError(t, err)

	balA2, _ := a2.FetchBalance(context.Background(), nil)
	balB, _ := b.FetchBalance(context.Background(), nil)
	assert.InDelta(t, 900.0, balA2.Free["USDT"], 1e-9)
	assert.Equal(t, 1000.0, balB.Free["USDT"])
}

func TestFactoryUsesSimulator(t *testing.T) {
	sim := newSim()
	f := exchange.NewFactory(exchange.NewRegistry(stubVenue{}), exchange.WithSimulator(sim.Wrap))
	assert.True(t, f.Simulated())

	c, err := f.CreateClient("stub", &domain.ResolvedCredentials{APIKey: "k"})
	require.NoError(t, err)
	_, ok := c.(*Client)
	assert.True(t, ok)
}

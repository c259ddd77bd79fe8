package marketdata

import (
	"context"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// stubClient satisfies exchange.Client with empty responses.
type stubClient struct{}

func (stubClient) ID() string { return "stub" }

func (stubClient) LoadMarkets(context.Context) ([]domain.Market, error) { return nil, nil }

func (stubClient) FetchTicker(context.Context, string) (domain.Ticker, error) {
	return domain.Ticker{}, nil
}

func (stubClient) FetchOrderBook(context.Context, string, int) (domain.OrderBook, error) {
	return domain.OrderBook{}, nil
}

func (stubClient) FetchOHLCV(context.Context, string, string, time.Time, int) ([]domain.Candle, error) {
	return nil, nil
}

func (stubClient) FetchBalance(context.Context, map[string]string) (domain.Balance, error) {
	return domain.NewBalance(), nil
}

func (stubClient) CreateOrder(context.Context, domain.OrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{}, nil
}

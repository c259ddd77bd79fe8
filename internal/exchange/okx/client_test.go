package okx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

func testClient(t *testing.T, handler http.HandlerFunc, creds *domain.ResolvedCredentials) exchange.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	v := New(exchange.VenueConfig{BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c, err := v.NewClient(creds)
	require.NoError(t, err)
	return c
}

var testCreds = &domain.ResolvedCredentials{APIKey: "key", APISecret: "secret", Password: "pass"}

const (
	btcSpot  = `{"code":"0","data":[{"instId":"BTC-USDT","instType":"SPOT","baseCcy":"BTC","quoteCcy":"USDT","lotSz":"0.00000001","minSz":"0.00001","state":"live"}]}`
	dogeSwap = `{"code":"0","data":[{"instId":"DOGE-USDT-SWAP","instType":"SWAP","settleCcy":"USDT","ctVal":"1000","ctValCcy":"DOGE","lotSz":"0.01","minSz":"0.01","state":"live"}]}`
)

// serveInstrument answers instrument lookups with body and reports whether
// r was one.
func serveInstrument(w http.ResponseWriter, r *http.Request, body string) bool {
	if r.URL.Path != "/api/v5/public/instruments" {
		return false
	}
	_, _ = io.WriteString(w, body)
	return true
}

func TestInstID(t *testing.T) {
	assert.Equal(t, "BTC-USDT", instID("BTC/USDT"))
	assert.Equal(t, "ETH-USDT-SWAP", instID("ETH/USDT:USDT"))
	assert.Equal(t, "SOL-USDC", instID("SOL-USDC"))
}

func TestFetchTickerIsPublic(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/ticker", r.URL.Path)
		assert.Equal(t, "BTC-USDT", r.URL.Query().Get("instId"))
		assert.Empty(t, r.Header.Get("OK-ACCESS-KEY"))
		_, _ = io.WriteString(w, `{"code":"0","msg":"","data":[{"instId":"BTC-USDT","last":"50000.1","bidPx":"50000","askPx":"50000.2","ts":"1700000000000"}]}`)
	}, nil)

	tk, err := c.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.1, tk.Last)
	assert.Equal(t, int64(1700000000000), tk.Timestamp.UnixMilli())
}

func TestFetchBalanceSigned(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-SIGN"))
		_, _ = io.WriteString(w, `{"code":"0","data":[{"details":[{"ccy":"USDT","availBal":"1000","frozenBal":"5","eq":"1005"}]}]}`)
	}, testCreds)

	bal, err := c.FetchBalance(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, bal.Free["USDT"])
	assert.Equal(t, 1005.0, bal.Total["USDT"])
}

func TestFetchBalanceWithoutCredentials(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, nil)
	_, err := c.FetchBalance(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrExchangeAuth)
}

func TestCreateMarketBuyWithStopLoss(t *testing.T) {
	var placed placeOrder
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if serveInstrument(w, r, btcSpot) {
			return
		}
		switch r.Method {
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&placed))
			_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"123","sCode":"0","sMsg":"","ts":"1700000000000"}]}`)
		case http.MethodGet:
			assert.Equal(t, "123", r.URL.Query().Get("ordId"))
			_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"123","px":"","sz":"0.01","avgPx":"50010","accFillSz":"0.01","state":"filled"}]}`)
		}
	}, testCreds)

	res, err := c.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTC/USDT",
		Type:   domain.OrderTypeMarket,
		Side:   domain.OrderSideBuy,
		Amount: 0.01,
		Price:  domain.Float(50000),
		Params: domain.OrderParams{StopLoss: &domain.StopLoss{StopPrice: 49000, Type: domain.OrderTypeMarket}},
	})
	require.NoError(t, err)

	assert.Equal(t, "BTC-USDT", placed.InstID)
	assert.Equal(t, "cash", placed.TdMode)
	assert.Equal(t, "base_ccy", placed.TgtCcy)
	assert.Empty(t, placed.Px)
	require.Len(t, placed.AttachAlgoOrds, 1)
	assert.Equal(t, "49000", placed.AttachAlgoOrds[0].SlTriggerPx)

	assert.Equal(t, "123", res.ID)
	assert.Equal(t, 50010.0, res.Average)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
}

func TestCreateOrderErrorCodes(t *testing.T) {
	tests := []struct {
		body string
		want error
	}{
		{`{"code":"1","msg":"All operations failed","data":[{"sCode":"51008","sMsg":"Insufficient balance"}]}`, domain.ErrInsufficientFunds},
		{`{"code":"50113","msg":"Invalid Sign","data":[]}`, domain.ErrExchangeAuth},
		{`{"code":"50011","msg":"Too Many Requests","data":[]}`, domain.ErrRateLimited},
		{`{"code":"1","msg":"","data":[{"sCode":"51000","sMsg":"Parameter sz error"}]}`, domain.ErrInvalidOrder},
	}
	for _, tt := range tests {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			if serveInstrument(w, r, btcSpot) {
				return
			}
			_, _ = io.WriteString(w, tt.body)
		}, testCreds)
		_, err := c.CreateOrder(context.Background(), domain.OrderRequest{
			Symbol: "BTC/USDT", Type: domain.OrderTypeLimit, Side: domain.OrderSideSell,
			Amount: 1, Price: domain.Float(1),
		})
		assert.ErrorIs(t, err, tt.want, tt.body)
	}
}

func TestHTTPErrorsWithoutEnvelope(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	}, nil)
	_, err := c.FetchTicker(context.Background(), "BTC/USDT")
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

// placeCapture serves instrument lookups from inst, records the placed order
// and reports a fill of the placed size.
func placeCapture(t *testing.T, inst string, placed *placeOrder, lookups *atomic.Int32) exchange.Client {
	t.Helper()
	return testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v5/public/instruments" {
			lookups.Add(1)
			_, _ = io.WriteString(w, inst)
			return
		}
		switch r.Method {
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(placed))
			_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"9","sCode":"0"}]}`)
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"9","sz":"`+placed.Sz+`","accFillSz":"`+placed.Sz+`","avgPx":"0.1","state":"filled"}]}`)
		}
	}, testCreds)
}

func TestSwapOrderSizedInContracts(t *testing.T) {
	var placed placeOrder
	var lookups atomic.Int32
	c := placeCapture(t, dogeSwap, &placed, &lookups)

	// 1000 DOGE at 1000 DOGE per contract is one contract.
	res, err := c.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "DOGE/USDT:USDT", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy, Amount: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "DOGE-USDT-SWAP", placed.InstID)
	assert.Equal(t, "cross", placed.TdMode)
	assert.Equal(t, "1.00", placed.Sz)
	assert.Empty(t, placed.TgtCcy)
	assert.Equal(t, 1000.0, res.Amount, "result is reported in base units")
	assert.Equal(t, 1000.0, res.Filled)

	_, err = c.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "DOGE/USDT:USDT", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy, Amount: 12345,
	})
	require.NoError(t, err)
	assert.Equal(t, "12.34", placed.Sz, "contracts truncate to the lot")
	assert.Equal(t, int32(1), lookups.Load(), "instrument rules are cached")
}

func TestSwapOrderBelowOneLotIsRejected(t *testing.T) {
	var placed placeOrder
	var lookups atomic.Int32
	c := placeCapture(t, dogeSwap, &placed, &lookups)

	_, err := c.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "DOGE/USDT:USDT", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy, Amount: 5,
	})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.Empty(t, placed.InstID, "nothing is submitted")
}

func TestSpotOrderTruncatedToLotSize(t *testing.T) {
	var placed placeOrder
	var lookups atomic.Int32
	c := placeCapture(t, btcSpot, &placed, &lookups)

	res, err := c.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTC/USDT", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy, Amount: 100 / 50123.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.00199506", placed.Sz)
	assert.Equal(t, "cash", placed.TdMode)
	assert.InDelta(t, 0.00199506, res.Amount, 1e-12)
}

func TestParseSpecRequiresContractValueForSwaps(t *testing.T) {
	_, err := parseSpec(instrument{InstID: "DOGE-USDT-SWAP", InstType: "SWAP", LotSz: "1"})
	require.Error(t, err)

	s, err := parseSpec(instrument{InstID: "BTC-USDT", InstType: "SPOT", LotSz: "0.00100000"})
	require.NoError(t, err)
	assert.False(t, s.swap())
	assert.Equal(t, int32(-3), s.lot.Exponent())
}

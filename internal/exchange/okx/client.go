package okx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Hidayat0507/tradebot/internal/crypto"
	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// Client implements exchange.Client for OKX.
type Client struct {
	baseURL string
	testnet bool
	http    *http.Client
	auth    *crypto.HMACAuth // nil for public-only clients
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	specs map[string]lotSpec // instId -> lot rules
}

func newClient(cfg exchange.VenueConfig, creds *domain.ResolvedCredentials, limiter *rate.Limiter, logger *slog.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		testnet: cfg.Testnet,
		http:    cfg.HTTP(),
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
		specs:   make(map[string]lotSpec),
	}
	if creds != nil {
		c.auth = &crypto.HMACAuth{Key: creds.APIKey, Secret: creds.APISecret, Passphrase: creds.Password}
	}
	return c
}

func (c *Client) ID() string { return ID }

// instID converts "BTC/USDT" to "BTC-USDT" and "BTC/USDT:USDT" to
// "BTC-USDT-SWAP".
func instID(symbol string) string {
	sym, ok := exchange.ParseSymbol(symbol)
	if !ok {
		return strings.ToUpper(symbol)
	}
	if sym.IsSwap() {
		return sym.Base + "-" + sym.Quote + "-SWAP"
	}
	return sym.Base + "-" + sym.Quote
}

// do performs a request and decodes the data array of a successful envelope
// into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return exchange.TransportError(ID, err)
	}

	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("okx: encode %s: %w", path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("okx: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.testnet {
		req.Header.Set("x-simulated-trading", "1")
	}
	if signed {
		if c.auth == nil {
			return fmt.Errorf("okx: %s requires credentials: %w", path, domain.ErrExchangeAuth)
		}
		for k, v := range c.auth.OKXHeadersAt(method, requestPath, string(payload), c.now()) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return exchange.TransportError(ID, err)
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return exchange.TransportError(ID, err)
	}

	var env envelope
	if jsonErr := json.Unmarshal(rb, &env); jsonErr != nil || env.Code == "" {
		if resp.StatusCode/100 != 2 {
			return exchange.StatusError(ID, resp.StatusCode, string(rb))
		}
		return fmt.Errorf("okx: decode %s: %v: %w", path, jsonErr, domain.ErrNetwork)
	}
	if env.Code != "0" {
		// Order endpoints report per-order codes inside data.
		var results []placeResult
		if json.Unmarshal(env.Data, &results) == nil && len(results) > 0 && results[0].SCode != "" && results[0].SCode != "0" {
			return apiError(results[0].SCode, results[0].SMsg)
		}
		return apiError(env.Code, env.Msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("okx: decode %s data: %v: %w", path, err, domain.ErrNetwork)
	}
	return nil
}

func (c *Client) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	var out []domain.Market
	for _, instType := range []string{"SPOT", "SWAP"} {
		var insts []instrument
		if err := c.do(ctx, http.MethodGet, "/api/v5/public/instruments", url.Values{"instType": {instType}}, nil, false, &insts); err != nil {
			return nil, err
		}
		for _, in := range insts {
			m := domain.Market{
				ID:              in.InstID,
				Base:            in.BaseCcy,
				Quote:           in.QuoteCcy,
				Type:            domain.MarketTypeSpot,
				AmountPrecision: decimals(in.LotSz),
				MinAmount:       parseFloat(in.MinSz),
				Active:          in.State == "live",
			}
			if instType == "SWAP" {
				parts := strings.Split(in.InstID, "-")
				if len(parts) < 2 {
					continue
				}
				m.Base, m.Quote = parts[0], parts[1]
				m.Type = domain.MarketTypeSwap
				m.Symbol = m.Base + "/" + m.Quote + ":" + in.SettleCcy
			} else {
				m.Symbol = m.Base + "/" + m.Quote
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	var ts []ticker
	if err := c.do(ctx, http.MethodGet, "/api/v5/market/ticker", url.Values{"instId": {instID(symbol)}}, nil, false, &ts); err != nil {
		return domain.Ticker{}, err
	}
	if len(ts) == 0 {
		return domain.Ticker{}, fmt.Errorf("okx: no ticker for %s: %w", symbol, domain.ErrInsufficientData)
	}
	t := ts[0]
	return domain.Ticker{
		Symbol:    symbol,
		Last:      parseFloat(t.Last),
		Bid:       parseFloat(t.BidPx),
		Ask:       parseFloat(t.AskPx),
		Timestamp: parseMillis(t.Ts),
	}, nil
}

func (c *Client) FetchOrderBook(ctx context.Context, symbol string, limit int) (domain.OrderBook, error) {
	q := url.Values{"instId": {instID(symbol)}}
	if limit > 0 {
		q.Set("sz", strconv.Itoa(limit))
	}
	var books []book
	if err := c.do(ctx, http.MethodGet, "/api/v5/market/books", q, nil, false, &books); err != nil {
		return domain.OrderBook{}, err
	}
	ob := domain.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	if len(books) == 0 {
		return ob, nil
	}
	ob.Timestamp = parseMillis(books[0].Ts)
	ob.Bids = levels(books[0].Bids)
	ob.Asks = levels(books[0].Asks)
	return ob, nil
}

func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, since time.Time, limit int) ([]domain.Candle, error) {
	q := url.Values{"instId": {instID(symbol)}, "bar": {barFor(timeframe)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if !since.IsZero() {
		// "before" returns records newer than the timestamp.
		q.Set("before", strconv.FormatInt(since.UnixMilli()-1, 10))
	}
	var rows [][]string
	if err := c.do(ctx, http.MethodGet, "/api/v5/market/candles", q, nil, false, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Candle, 0, len(rows))
	// OKX returns newest first.
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if len(r) < 6 {
			continue
		}
		out = append(out, domain.Candle{
			Time:   parseMillis(r[0]),
			Open:   parseFloat(r[1]),
			High:   parseFloat(r[2]),
			Low:    parseFloat(r[3]),
			Close:  parseFloat(r[4]),
			Volume: parseFloat(r[5]),
		})
	}
	return out, nil
}

func (c *Client) FetchBalance(ctx context.Context, params map[string]string) (domain.Balance, error) {
	q := url.Values{}
	if ccy := params["ccy"]; ccy != "" {
		q.Set("ccy", ccy)
	}
	var data []balanceData
	if err := c.do(ctx, http.MethodGet, "/api/v5/account/balance", q, nil, true, &data); err != nil {
		return domain.Balance{}, err
	}
	bal := domain.NewBalance()
	for _, d := range data {
		for _, det := range d.Details {
			bal.Free[det.Ccy] = parseFloat(det.AvailBal)
			bal.Used[det.Ccy] = parseFloat(det.FrozenBal)
			bal.Total[det.Ccy] = parseFloat(det.Eq)
		}
	}
	return bal, nil
}

func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	id := instID(req.Symbol)
	spec, err := c.spec(ctx, id)
	if err != nil {
		return domain.OrderResult{}, err
	}
	sz, err := spec.size(req.Amount)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("okx: %s: %w", id, err)
	}
	body := placeOrder{
		InstID:  id,
		TdMode:  "cash",
		Side:    string(req.Side),
		OrdType: string(req.Type),
		Sz:      sz,
	}
	if spec.swap() {
		body.TdMode = "cross"
	}
	switch req.Type {
	case domain.OrderTypeLimit:
		if req.Price == nil {
			return domain.OrderResult{}, fmt.Errorf("okx: limit order without price: %w", domain.ErrInvalidOrder)
		}
		body.Px = strconv.FormatFloat(*req.Price, 'f', -1, 64)
	case domain.OrderTypeMarket:
		// Spot market buys are sized in quote currency unless told otherwise.
		if body.TdMode == "cash" {
			body.TgtCcy = "base_ccy"
		}
	}
	if sl := req.Params.StopLoss; sl != nil {
		body.AttachAlgoOrds = []attachAlgo{{
			SlTriggerPx: strconv.FormatFloat(sl.StopPrice, 'f', -1, 64),
			SlOrdPx:     "-1", // market on trigger
		}}
	}

	var results []placeResult
	if err := c.do(ctx, http.MethodPost, "/api/v5/trade/order", nil, body, true, &results); err != nil {
		return domain.OrderResult{}, err
	}
	if len(results) == 0 {
		return domain.OrderResult{}, fmt.Errorf("okx: empty order response: %w", domain.ErrNetwork)
	}
	placed := results[0]
	out := domain.OrderResult{
		ID:        placed.OrdID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Amount:    spec.base(sz),
		Status:    domain.OrderStatusOpen,
		Timestamp: parseMillis(placed.Ts),
	}
	if req.Price != nil && req.Type == domain.OrderTypeLimit {
		out.Price = *req.Price
	}

	// The placement response carries no fill data; one lookup fills it in.
	var details []orderDetail
	q := url.Values{"instId": {id}, "ordId": {placed.OrdID}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/trade/order", q, nil, true, &details); err != nil {
		c.logger.WarnContext(ctx, "okx: order lookup failed",
			slog.String("order_id", placed.OrdID),
			slog.String("error", err.Error()),
		)
		return out, nil
	}
	if len(details) > 0 {
		d := details[0]
		if parseFloat(d.Sz) > 0 {
			out.Amount = spec.base(d.Sz)
		}
		if px := parseFloat(d.Px); px > 0 {
			out.Price = px
		}
		out.Average = parseFloat(d.AvgPx)
		out.Filled = spec.base(d.AccFillSz)
		out.Status = mapState(d.State)
	}
	return out, nil
}

func apiError(code, msg string) error {
	var kind error
	switch {
	case code == "50111" || code == "50113" || code == "50102" || code == "50104" || code == "50105" || code == "50100":
		kind = domain.ErrExchangeAuth
	case code == "50011" || code == "50061":
		kind = domain.ErrRateLimited
	case code == "51008" || code == "51131":
		kind = domain.ErrInsufficientFunds
	case code == "50001" || code == "50013" || code == "50026":
		kind = domain.ErrNetwork
	default:
		kind = domain.ErrInvalidOrder
	}
	return fmt.Errorf("okx: code %s: %s: %w", code, msg, kind)
}

func mapState(s string) domain.OrderStatus {
	switch s {
	case "filled":
		return domain.OrderStatusFilled
	case "partially_filled":
		return domain.OrderStatusPartial
	case "canceled", "mmp_canceled":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusOpen
	}
}

// barFor maps common timeframes to OKX bar names ("1h" -> "1H").
func barFor(tf string) string {
	if tf == "" {
		return "1m"
	}
	if strings.HasSuffix(tf, "h") || strings.HasSuffix(tf, "d") || strings.HasSuffix(tf, "w") {
		return strings.ToUpper(tf)
	}
	return tf
}

func levels(rows [][]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: parseFloat(r[0]), Size: parseFloat(r[1])})
	}
	return out
}

func decimals(step string) int {
	_, frac, ok := strings.Cut(strings.TrimRight(step, "0"), ".")
	if !ok {
		return 0
	}
	return len(frac)
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

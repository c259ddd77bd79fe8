package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Hidayat0507/tradebot/internal/crypto"
	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// asset is a resolved tradable instrument.
type asset struct {
	ID         int    // order wire asset index
	Coin       string // info endpoint coin name
	SzDecimals int
	Spot       bool
	Market     domain.Market
}

// Client implements exchange.Client for Hyperliquid.
type Client struct {
	baseURL string
	mainnet bool
	http    *http.Client
	wallet  string
	signer  *crypto.Signer // nil for public-only clients
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	assets map[string]asset // unified symbol -> asset
}

func newClient(cfg exchange.VenueConfig, creds *domain.ResolvedCredentials, limiter *rate.Limiter, logger *slog.Logger) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		mainnet: !cfg.Testnet,
		http:    cfg.HTTP(),
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
	if creds != nil {
		c.wallet = strings.ToLower(strings.TrimSpace(creds.APIKey))
		if creds.APISecret != "" {
			s, err := crypto.NewSigner(creds.APISecret)
			if err != nil {
				return nil, fmt.Errorf("hyperliquid: %v: %w", err, domain.ErrExchangeAuth)
			}
			c.signer = s
		}
	}
	return c, nil
}

func (c *Client) ID() string { return ID }

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return exchange.TransportError(ID, err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("hyperliquid: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("hyperliquid: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return exchange.TransportError(ID, err)
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return exchange.TransportError(ID, err)
	}
	if resp.StatusCode/100 != 2 {
		return exchange.StatusError(ID, resp.StatusCode, string(rb))
	}
	if err := json.Unmarshal(rb, out); err != nil {
		return fmt.Errorf("hyperliquid: decode %s: %v: %w", path, err, domain.ErrNetwork)
	}
	return nil
}

func (c *Client) info(ctx context.Context, req infoRequest, out any) error {
	return c.post(ctx, "/info", req, out)
}

// loadAssets fetches perp and spot metadata once per client.
func (c *Client) loadAssets(ctx context.Context) (map[string]asset, error) {
	c.mu.Lock()
	if c.assets != nil {
		defer c.mu.Unlock()
		return c.assets, nil
	}
	c.mu.Unlock()

	var perps perpMeta
	if err := c.info(ctx, infoRequest{Type: "meta"}, &perps); err != nil {
		return nil, err
	}
	var spot spotMeta
	if err := c.info(ctx, infoRequest{Type: "spotMeta"}, &spot); err != nil {
		return nil, err
	}

	assets := make(map[string]asset, len(perps.Universe)+len(spot.Universe))
	for i, u := range perps.Universe {
		symbol := u.Name + "/" + settleCurrency + ":" + settleCurrency
		assets[symbol] = asset{
			ID:         i,
			Coin:       u.Name,
			SzDecimals: u.SzDecimals,
			Market: domain.Market{
				Symbol:          symbol,
				ID:              u.Name,
				Base:            u.Name,
				Quote:           settleCurrency,
				Type:            domain.MarketTypeSwap,
				AmountPrecision: u.SzDecimals,
				Active:          !u.IsDelisted,
			},
		}
	}

	tokens := make(map[int]int, len(spot.Tokens)) // token index -> position
	for i, t := range spot.Tokens {
		tokens[t.Index] = i
	}
	for _, u := range spot.Universe {
		if len(u.Tokens) != 2 {
			continue
		}
		bi, ok1 := tokens[u.Tokens[0]]
		qi, ok2 := tokens[u.Tokens[1]]
		if !ok1 || !ok2 {
			continue
		}
		base, quote := spot.Tokens[bi], spot.Tokens[qi]
		symbol := base.Name + "/" + quote.Name
		assets[symbol] = asset{
			ID:         10000 + u.Index,
			Coin:       u.Name,
			SzDecimals: base.SzDecimals,
			Spot:       true,
			Market: domain.Market{
				Symbol:          symbol,
				ID:              u.Name,
				Base:            base.Name,
				Quote:           quote.Name,
				Type:            domain.MarketTypeSpot,
				AmountPrecision: base.SzDecimals,
				Active:          true,
			},
		}
	}

	c.mu.Lock()
	c.assets = assets
	c.mu.Unlock()
	return assets, nil
}

func (c *Client) lookup(ctx context.Context, symbol string) (asset, error) {
	assets, err := c.loadAssets(ctx)
	if err != nil {
		return asset{}, err
	}
	a, ok := assets[exchange.NormalizeSymbol(symbol)]
	if !ok {
		return asset{}, fmt.Errorf("hyperliquid: unknown market %s: %w", symbol, domain.ErrInvalidOrder)
	}
	return a, nil
}

func (c *Client) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	assets, err := c.loadAssets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Market, 0, len(assets))
	for _, a := range assets {
		out = append(out, a.Market)
	}
	return out, nil
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	a, err := c.lookup(ctx, symbol)
	if err != nil {
		return domain.Ticker{}, err
	}
	var mids map[string]string
	if err := c.info(ctx, infoRequest{Type: "allMids"}, &mids); err != nil {
		return domain.Ticker{}, err
	}
	mid, ok := mids[a.Coin]
	if !ok {
		return domain.Ticker{}, fmt.Errorf("hyperliquid: no mid for %s: %w", symbol, domain.ErrInsufficientData)
	}
	t := domain.Ticker{Symbol: symbol, Last: parseFloat(mid), Timestamp: c.now()}

	if ob, err := c.FetchOrderBook(ctx, symbol, 1); err == nil {
		if len(ob.Bids) > 0 {
			t.Bid = ob.Bids[0].Price
		}
		if len(ob.Asks) > 0 {
			t.Ask = ob.Asks[0].Price
		}
	}
	return t, nil
}

func (c *Client) FetchOrderBook(ctx context.Context, symbol string, limit int) (domain.OrderBook, error) {
	a, err := c.lookup(ctx, symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}
	var book l2Book
	if err := c.info(ctx, infoRequest{Type: "l2Book", Coin: a.Coin}, &book); err != nil {
		return domain.OrderBook{}, err
	}
	ob := domain.OrderBook{Symbol: symbol, Timestamp: time.UnixMilli(book.Time)}
	if len(book.Levels) == 2 {
		ob.Bids = levels(book.Levels[0], limit)
		ob.Asks = levels(book.Levels[1], limit)
	}
	return ob, nil
}

func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, since time.Time, limit int) ([]domain.Candle, error) {
	a, err := c.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		timeframe = "1m"
	}
	if limit <= 0 {
		limit = 100
	}
	end := c.now()
	start := since
	if start.IsZero() {
		start = end.Add(-time.Duration(limit) * intervalDuration(timeframe))
	}
	var rows []candle
	req := infoRequest{Type: "candleSnapshot", Req: candleRequest{
		Coin:      a.Coin,
		Interval:  timeframe,
		StartTime: start.UnixMilli(),
		EndTime:   end.UnixMilli(),
	}}
	if err := c.info(ctx, req, &rows); err != nil {
		return nil, err
	}
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]domain.Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Candle{
			Time:   time.UnixMilli(r.T),
			Open:   parseFloat(r.O),
			High:   parseFloat(r.H),
			Low:    parseFloat(r.L),
			Close:  parseFloat(r.C),
			Volume: parseFloat(r.V),
		})
	}
	return out, nil
}

// FetchBalance reads the perp clearinghouse when params["type"] is "swap"
// and the spot clearinghouse otherwise. params["user"] overrides the
// client's wallet.
func (c *Client) FetchBalance(ctx context.Context, params map[string]string) (domain.Balance, error) {
	user := params["user"]
	if user == "" {
		user = c.wallet
	}
	if user == "" {
		return domain.Balance{}, fmt.Errorf("hyperliquid: balance needs a wallet address: %w", domain.ErrExchangeAuth)
	}

	bal := domain.NewBalance()
	if params["type"] == "swap" {
		var st clearinghouseState
		if err := c.info(ctx, infoRequest{Type: "clearinghouseState", User: user}, &st); err != nil {
			return domain.Balance{}, err
		}
		free := parseFloat(st.Withdrawable)
		total := parseFloat(st.MarginSummary.AccountValue)
		bal.Free[settleCurrency] = free
		bal.Total[settleCurrency] = total
		bal.Used[settleCurrency] = total - free
		// Long positions are what a sell signal can close.
		for _, ap := range st.AssetPositions {
			if szi := parseFloat(ap.Position.Szi); szi > 0 {
				bal.Free[ap.Position.Coin] = szi
				bal.Total[ap.Position.Coin] = szi
			}
		}
		return bal, nil
	}

	var st spotClearinghouseState
	if err := c.info(ctx, infoRequest{Type: "spotClearinghouseState", User: user}, &st); err != nil {
		return domain.Balance{}, err
	}
	for _, b := range st.Balances {
		total, hold := parseFloat(b.Total), parseFloat(b.Hold)
		bal.Free[b.Coin] = total - hold
		bal.Used[b.Coin] = hold
		bal.Total[b.Coin] = total
	}
	return bal, nil
}

// CreateOrder places a signed order. Market orders are sent as IOC limits
// bounded by the slippage percentage around the reference price.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if c.signer == nil {
		return domain.OrderResult{}, fmt.Errorf("hyperliquid: trading requires a private key: %w", domain.ErrExchangeAuth)
	}
	a, err := c.lookup(ctx, req.Symbol)
	if err != nil {
		return domain.OrderResult{}, err
	}
	isBuy := req.Side == domain.OrderSideBuy

	var ref float64
	if req.Price != nil {
		ref = *req.Price
	}
	tif := "Gtc"
	px := ref
	if req.Type == domain.OrderTypeMarket {
		tif = "Ioc"
		if ref <= 0 {
			t, err := c.FetchTicker(ctx, req.Symbol)
			if err != nil {
				return domain.OrderResult{}, err
			}
			ref = t.Last
		}
		px = slipped(ref, isBuy, req.Params.SlippagePercent)
	}
	if px <= 0 {
		return domain.OrderResult{}, fmt.Errorf("hyperliquid: order needs a price: %w", domain.ErrInvalidOrder)
	}

	size := formatSize(req.Amount, a)
	action := orderAction{
		Type:     "order",
		Grouping: "na",
		Orders: []orderWire{{
			Asset:     a.ID,
			IsBuy:     isBuy,
			Price:     formatPrice(px, a),
			Size:      size,
			OrderType: orderTypeWire{Limit: &limitWire{Tif: tif}},
		}},
	}
	if sl := req.Params.StopLoss; sl != nil && sl.StopPrice > 0 {
		action.Grouping = "normalTpsl"
		action.Orders = append(action.Orders, orderWire{
			Asset:      a.ID,
			IsBuy:      !isBuy,
			Price:      formatPrice(slipped(sl.StopPrice, !isBuy, req.Params.SlippagePercent), a),
			Size:       size,
			ReduceOnly: true,
			OrderType: orderTypeWire{Trigger: &triggerWire{
				IsMarket:  sl.Type != domain.OrderTypeLimit,
				TriggerPx: formatPrice(sl.StopPrice, a),
				Tpsl:      "sl",
			}},
		})
	}

	nonce := c.now().UnixMilli()
	connID, err := actionHash(action, nonce)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("%v: %w", err, domain.ErrSigningFailed)
	}
	sig, err := c.signer.SignL1Action(connID, c.mainnet)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("hyperliquid: %v: %w", err, domain.ErrSigningFailed)
	}

	var resp exchangeResponse
	if err := c.post(ctx, "/exchange", exchangeRequest{Action: action, Nonce: nonce, Signature: sig}, &resp); err != nil {
		return domain.OrderResult{}, err
	}
	if resp.Status != "ok" {
		var msg string
		if json.Unmarshal(resp.Response, &msg) != nil {
			msg = string(resp.Response)
		}
		return domain.OrderResult{}, rejection(msg)
	}

	var placed orderResponse
	if err := json.Unmarshal(resp.Response, &placed); err != nil || len(placed.Data.Statuses) == 0 {
		return domain.OrderResult{}, fmt.Errorf("hyperliquid: unexpected order response %s: %w", resp.Response, domain.ErrNetwork)
	}
	st := placed.Data.Statuses[0]
	if st.Error != "" {
		return domain.OrderResult{}, rejection(st.Error)
	}
	if len(placed.Data.Statuses) > 1 && placed.Data.Statuses[1].Error != "" {
		c.logger.WarnContext(ctx, "hyperliquid: stop-loss rejected",
			slog.String("symbol", req.Symbol),
			slog.String("error", placed.Data.Statuses[1].Error),
		)
	}

	out := domain.OrderResult{
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Amount:    parseFloat(size),
		Status:    domain.OrderStatusOpen,
		Timestamp: time.UnixMilli(nonce),
	}
	if req.Type == domain.OrderTypeLimit {
		out.Price = px
	}
	switch {
	case st.Filled != nil:
		out.ID = strconv.FormatInt(st.Filled.Oid, 10)
		out.Filled = parseFloat(st.Filled.TotalSz)
		out.Average = parseFloat(st.Filled.AvgPx)
		out.Status = domain.OrderStatusFilled
		if out.Filled < out.Amount {
			out.Status = domain.OrderStatusPartial
		}
	case st.Resting != nil:
		out.ID = strconv.FormatInt(st.Resting.Oid, 10)
	}
	return out, nil
}

// slipped moves price against the taker by pct percent (default 5).
func slipped(price float64, isBuy bool, pct *float64) float64 {
	p := defaultSlippagePercent
	if pct != nil && *pct > 0 {
		p = *pct
	}
	if isBuy {
		return price * (1 + p/100)
	}
	return price * (1 - p/100)
}

func rejection(msg string) error {
	m := strings.ToLower(msg)
	var kind error
	switch {
	case strings.Contains(m, "insufficient"):
		kind = domain.ErrInsufficientFunds
	case strings.Contains(m, "does not exist") || strings.Contains(m, "signature") || strings.Contains(m, "not authorized"):
		kind = domain.ErrExchangeAuth
	case strings.Contains(m, "rate limit") || strings.Contains(m, "too many"):
		kind = domain.ErrRateLimited
	default:
		kind = domain.ErrInvalidOrder
	}
	return fmt.Errorf("hyperliquid: %s: %w", msg, kind)
}

func levels(in []l2Level, limit int) []domain.PriceLevel {
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		out = append(out, domain.PriceLevel{Price: parseFloat(l.Px), Size: parseFloat(l.Sz)})
	}
	return out
}

func intervalDuration(tf string) time.Duration {
	if len(tf) < 2 {
		return time.Minute
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return time.Minute
	}
	unit := map[byte]time.Duration{
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
		'M': 30 * 24 * time.Hour,
	}[tf[len(tf)-1]]
	if unit == 0 {
		return time.Minute
	}
	return time.Duration(n) * unit
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

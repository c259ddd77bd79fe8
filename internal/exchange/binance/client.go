package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	sdk "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// Client implements exchange.Client for Binance spot.
type Client struct {
	api     *sdk.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	filters map[string]lotFilter // native symbol -> filters
}

type lotFilter struct {
	step        decimal.Decimal
	minQty      float64
	minNotional float64
}

func newClient(cfg exchange.VenueConfig, creds *domain.ResolvedCredentials, limiter *rate.Limiter, logger *slog.Logger) *Client {
	var key, secret string
	if creds != nil {
		key, secret = creds.APIKey, creds.APISecret
	}
	api := sdk.NewClient(key, secret)
	api.HTTPClient = cfg.HTTP()
	switch {
	case cfg.BaseURL != "":
		api.BaseURL = cfg.BaseURL
	case cfg.Testnet:
		api.BaseURL = testnetBaseURL
	}
	return &Client{
		api:     api,
		limiter: limiter,
		logger:  logger,
		filters: make(map[string]lotFilter),
	}
}

func (c *Client) ID() string { return ID }

// native converts "BTC/USDT" to "BTCUSDT".
func native(symbol string) string {
	if sym, ok := exchange.ParseSymbol(symbol); ok {
		return sym.Base + sym.Quote
	}
	return strings.ToUpper(symbol)
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return exchange.TransportError(ID, err)
	}
	return nil
}

func (c *Client) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]domain.Market, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		f := parseFilters(s.Filters)
		c.mu.Lock()
		c.filters[s.Symbol] = f
		c.mu.Unlock()
		out = append(out, domain.Market{
			Symbol:          s.BaseAsset + "/" + s.QuoteAsset,
			ID:              s.Symbol,
			Base:            s.BaseAsset,
			Quote:           s.QuoteAsset,
			Type:            domain.MarketTypeSpot,
			AmountPrecision: int(-f.step.Exponent()),
			MinAmount:       f.minQty,
			MinNotional:     f.minNotional,
			Active:          s.Status == "TRADING",
		})
	}
	return out, nil
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	if err := c.wait(ctx); err != nil {
		return domain.Ticker{}, err
	}
	stats, err := c.api.NewListPriceChangeStatsService().Symbol(native(symbol)).Do(ctx)
	if err != nil {
		return domain.Ticker{}, wrapErr(err)
	}
	if len(stats) == 0 {
		return domain.Ticker{}, fmt.Errorf("binance: no ticker for %s: %w", symbol, domain.ErrInsufficientData)
	}
	s := stats[0]
	return domain.Ticker{
		Symbol:    symbol,
		Last:      parseFloat(s.LastPrice),
		Bid:       parseFloat(s.BidPrice),
		Ask:       parseFloat(s.AskPrice),
		Timestamp: time.UnixMilli(s.CloseTime),
	}, nil
}

func (c *Client) FetchOrderBook(ctx context.Context, symbol string, limit int) (domain.OrderBook, error) {
	if err := c.wait(ctx); err != nil {
		return domain.OrderBook{}, err
	}
	svc := c.api.NewDepthService().Symbol(native(symbol))
	if limit > 0 {
		svc = svc.Limit(limit)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderBook{}, wrapErr(err)
	}
	book := domain.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	for _, b := range res.Bids {
		book.Bids = append(book.Bids, domain.PriceLevel{Price: parseFloat(b.Price), Size: parseFloat(b.Quantity)})
	}
	for _, a := range res.Asks {
		book.Asks = append(book.Asks, domain.PriceLevel{Price: parseFloat(a.Price), Size: parseFloat(a.Quantity)})
	}
	return book, nil
}

func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, since time.Time, limit int) ([]domain.Candle, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	svc := c.api.NewKlinesService().Symbol(native(symbol)).Interval(timeframe)
	if !since.IsZero() {
		svc = svc.StartTime(since.UnixMilli())
	}
	if limit > 0 {
		svc = svc.Limit(limit)
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, domain.Candle{
			Time:   time.UnixMilli(k.OpenTime),
			Open:   parseFloat(k.Open),
			High:   parseFloat(k.High),
			Low:    parseFloat(k.Low),
			Close:  parseFloat(k.Close),
			Volume: parseFloat(k.Volume),
		})
	}
	return out, nil
}

func (c *Client) FetchBalance(ctx context.Context, _ map[string]string) (domain.Balance, error) {
	if err := c.wait(ctx); err != nil {
		return domain.Balance{}, err
	}
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return domain.Balance{}, wrapErr(err)
	}
	bal := domain.NewBalance()
	for _, b := range acct.Balances {
		free, locked := parseFloat(b.Free), parseFloat(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		bal.Free[b.Asset] = free
		bal.Used[b.Asset] = locked
		bal.Total[b.Asset] = free + locked
	}
	return bal, nil
}

func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	sym := native(req.Symbol)
	filter, err := c.filter(ctx, sym)
	if err != nil {
		return domain.OrderResult{}, err
	}
	qty := formatQty(req.Amount, filter.step)

	side := sdk.SideTypeBuy
	if req.Side == domain.OrderSideSell {
		side = sdk.SideTypeSell
	}

	svc := c.api.NewCreateOrderService().Symbol(sym).Side(side).Quantity(qty)
	if req.Type == domain.OrderTypeLimit {
		if req.Price == nil {
			return domain.OrderResult{}, fmt.Errorf("binance: limit order without price: %w", domain.ErrInvalidOrder)
		}
		svc = svc.Type(sdk.OrderTypeLimit).
			TimeInForce(sdk.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(*req.Price, 'f', -1, 64))
	} else {
		// Quantity is in base units, so the market-buy price hint only
		// bounds sizing upstream.
		svc = svc.Type(sdk.OrderTypeMarket)
	}

	if err := c.wait(ctx); err != nil {
		return domain.OrderResult{}, err
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderResult{}, wrapErr(err)
	}

	out := domain.OrderResult{
		ID:        strconv.FormatInt(res.OrderID, 10),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Amount:    parseFloat(res.OrigQuantity),
		Price:     parseFloat(res.Price),
		Filled:    parseFloat(res.ExecutedQuantity),
		Status:    mapStatus(res.Status),
		Timestamp: time.UnixMilli(res.TransactTime),
	}
	if out.Filled > 0 {
		out.Average = parseFloat(res.CummulativeQuoteQuantity) / out.Filled
	}

	if sl := req.Params.StopLoss; sl != nil {
		c.placeStopLoss(ctx, sym, req, out, sl, filter)
	}
	return out, nil
}

// placeStopLoss submits the protective STOP_LOSS order. Spot orders cannot
// carry an attached stop, so failure is logged and the entry stands.
func (c *Client) placeStopLoss(ctx context.Context, sym string, req domain.OrderRequest, entry domain.OrderResult, sl *domain.StopLoss, f lotFilter) {
	side := sdk.SideTypeSell
	if req.Side == domain.OrderSideSell {
		side = sdk.SideTypeBuy
	}
	qty := entry.Filled
	if qty <= 0 {
		qty = req.Amount
	}
	if err := c.wait(ctx); err != nil {
		return
	}
	_, err := c.api.NewCreateOrderService().
		Symbol(sym).
		Side(side).
		Type(sdk.OrderTypeStopLoss).
		Quantity(formatQty(qty, f.step)).
		StopPrice(strconv.FormatFloat(sl.StopPrice, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "binance: stop-loss placement failed",
			slog.String("symbol", sym),
			slog.String("entry_order", entry.ID),
			slog.String("error", err.Error()),
		)
	}
}

// filter returns cached lot filters for sym, fetching them on first use.
func (c *Client) filter(ctx context.Context, sym string) (lotFilter, error) {
	c.mu.Lock()
	f, ok := c.filters[sym]
	c.mu.Unlock()
	if ok {
		return f, nil
	}
	if err := c.wait(ctx); err != nil {
		return lotFilter{}, err
	}
	info, err := c.api.NewExchangeInfoService().Symbol(sym).Do(ctx)
	if err != nil {
		return lotFilter{}, wrapErr(err)
	}
	if len(info.Symbols) == 0 {
		return lotFilter{}, fmt.Errorf("binance: unknown symbol %s: %w", sym, domain.ErrInvalidOrder)
	}
	f = parseFilters(info.Symbols[0].Filters)
	c.mu.Lock()
	c.filters[sym] = f
	c.mu.Unlock()
	return f, nil
}

func parseFilters(filters []map[string]interface{}) lotFilter {
	f := lotFilter{step: decimal.Zero}
	for _, m := range filters {
		str := func(k string) string { s, _ := m[k].(string); return s }
		switch m["filterType"] {
		case "LOT_SIZE":
			// "0.00100000" -> "0.001" so the exponent is the real precision
			if step, err := decimal.NewFromString(str("stepSize")); err == nil {
				f.step, _ = decimal.NewFromString(step.String())
			}
			f.minQty = parseFloat(str("minQty"))
		case "NOTIONAL", "MIN_NOTIONAL":
			f.minNotional = parseFloat(str("minNotional"))
		}
	}
	return f
}

// formatQty truncates q to the lot step.
func formatQty(q float64, step decimal.Decimal) string {
	d := decimal.NewFromFloat(q)
	if step.IsPositive() {
		d = d.Div(step).Floor().Mul(step)
		return d.StringFixed(-step.Exponent())
	}
	return d.String()
}

func mapStatus(s sdk.OrderStatusType) domain.OrderStatus {
	switch s {
	case sdk.OrderStatusTypeFilled:
		return domain.OrderStatusFilled
	case sdk.OrderStatusTypePartiallyFilled:
		return domain.OrderStatusPartial
	case sdk.OrderStatusTypeCanceled, sdk.OrderStatusTypeExpired:
		return domain.OrderStatusCancelled
	case sdk.OrderStatusTypeRejected:
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusOpen
	}
}

// wrapErr attaches a domain sentinel to SDK errors.
func wrapErr(err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return exchange.TransportError(ID, err)
	}
	var kind error
	switch apiErr.Code {
	case -2014, -2015, -1022, -2008:
		kind = domain.ErrExchangeAuth
	case -1003, -1015:
		kind = domain.ErrRateLimited
	case -2010:
		if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
			kind = domain.ErrInsufficientFunds
		} else {
			kind = domain.ErrInvalidOrder
		}
	case -1001, -1007, -1021:
		kind = domain.ErrNetwork
	default:
		kind = domain.ErrInvalidOrder
	}
	return fmt.Errorf("binance: %d %s: %w", apiErr.Code, apiErr.Message, kind)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

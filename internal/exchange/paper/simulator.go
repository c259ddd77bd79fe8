// Package paper provides simulated trading clients. Market data comes from
// the real venue; orders fill instantly against in-memory balances.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// Simulator owns the paper accounts. One account exists per venue and API
// key, so bots sharing a key share a balance.
type Simulator struct {
	seed   map[string]float64
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	accounts map[string]*account
	seq      atomic.Int64
}

type account struct {
	mu   sync.Mutex
	free map[string]float64
}

// New creates a simulator whose accounts start with the given balances.
func New(seed map[string]float64, logger *slog.Logger) *Simulator {
	s := &Simulator{
		seed:     make(map[string]float64, len(seed)),
		logger:   logger.With(slog.String("component", "exchange.paper")),
		now:      time.Now,
		accounts: make(map[string]*account),
	}
	for ccy, amt := range seed {
		s.seed[ccy] = amt
	}
	return s
}

// Wrap satisfies exchange.SimulatorFunc.
func (s *Simulator) Wrap(v exchange.Venue, market exchange.Client, creds *domain.ResolvedCredentials) exchange.Client {
	key := v.ID() + "|"
	if creds != nil {
		key += creds.APIKey
	}
	return &Client{Client: market, sim: s, acct: s.account(key), venue: v}
}

func (s *Simulator) account(key string) *account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[key]; ok {
		return a
	}
	a := &account{free: make(map[string]float64, len(s.seed))}
	for ccy, amt := range s.seed {
		a.free[ccy] = amt
	}
	s.accounts[key] = a
	return a
}

// Client serves market data from the embedded venue client and simulates
// balances and orders.
type Client struct {
	exchange.Client
	sim   *Simulator
	acct  *account
	venue exchange.Venue
}

// FetchBalance returns the simulated balance. Nothing is ever reserved, so
// Used is always zero.
func (c *Client) FetchBalance(_ context.Context, _ map[string]string) (domain.Balance, error) {
	c.acct.mu.Lock()
	defer c.acct.mu.Unlock()
	bal := domain.NewBalance()
	for ccy, amt := range c.acct.free {
		bal.Free[ccy] = amt
		bal.Used[ccy] = 0
		bal.Total[ccy] = amt
	}
	return bal, nil
}

// CreateOrder fills the whole order at the request price, or at the last
// traded price when the request has none.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Amount <= 0 {
		return domain.OrderResult{}, fmt.Errorf("paper: amount must be positive: %w", domain.ErrInvalidOrder)
	}
	sym, ok := exchange.ParseSymbol(req.Symbol)
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("paper: cannot parse symbol %q: %w", req.Symbol, domain.ErrInvalidOrder)
	}

	var price float64
	if req.Price != nil && *req.Price > 0 {
		price = *req.Price
	} else {
		t, err := c.Client.FetchTicker(ctx, req.Symbol)
		if err != nil {
			return domain.OrderResult{}, err
		}
		price = t.Last
	}
	if price <= 0 {
		return domain.OrderResult{}, fmt.Errorf("paper: no price for %s: %w", req.Symbol, domain.ErrInvalidOrder)
	}

	quote := sym.Quote
	if q := c.venue.Rules().BuyQuoteCurrency; q != "" {
		quote = q
	}
	cost := req.Amount * price

	c.acct.mu.Lock()
	switch req.Side {
	case domain.OrderSideBuy:
		if c.acct.free[quote] < cost {
			c.acct.mu.Unlock()
			return domain.OrderResult{}, fmt.Errorf("paper: need %.8g %s, have %.8g: %w", cost, quote, c.acct.free[quote], domain.ErrInsufficientFunds)
		}
		c.acct.free[quote] -= cost
		c.acct.free[sym.Base] += req.Amount
	case domain.OrderSideSell:
		if c.acct.free[sym.Base] < req.Amount {
			c.acct.mu.Unlock()
			return domain.OrderResult{}, fmt.Errorf("paper: need %.8g %s, have %.8g: %w", req.Amount, sym.Base, c.acct.free[sym.Base], domain.ErrInsufficientFunds)
		}
		c.acct.free[sym.Base] -= req.Amount
		c.acct.free[quote] += cost
	default:
		c.acct.mu.Unlock()
		return domain.OrderResult{}, fmt.Errorf("paper: unknown side %q: %w", req.Side, domain.ErrInvalidOrder)
	}
	c.acct.mu.Unlock()

	id := "paper-" + strconv.FormatInt(c.sim.seq.Add(1), 10)
	c.sim.logger.InfoContext(ctx, "paper: order filled",
		slog.String("venue", c.venue.ID()),
		slog.String("order_id", id),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.Float64("amount", req.Amount),
		slog.Float64("price", price),
	)

	out := domain.OrderResult{
		ID:        id,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Amount:    req.Amount,
		Average:   price,
		Filled:    req.Amount,
		Status:    domain.OrderStatusFilled,
		Timestamp: c.sim.now(),
	}
	if req.Type == domain.OrderTypeLimit {
		out.Price = price
	}
	return out, nil
}

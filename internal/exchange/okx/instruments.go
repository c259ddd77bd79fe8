package okx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// lotSpec carries the order size rules of one instrument. Swap sizes are
// contract counts of ctVal base units each; spot sizes are base units.
type lotSpec struct {
	lot   decimal.Decimal
	ctVal decimal.Decimal // zero for spot
}

func (s lotSpec) swap() bool { return s.ctVal.IsPositive() }

// size converts a base-currency amount to the sz OKX expects, truncated to
// whole lots.
func (s lotSpec) size(amount float64) (string, error) {
	d := decimal.NewFromFloat(amount)
	if s.swap() {
		d = d.Div(s.ctVal)
	}
	if s.lot.IsPositive() {
		d = d.Div(s.lot).Floor().Mul(s.lot)
	}
	if !d.IsPositive() {
		if s.swap() {
			return "", fmt.Errorf("amount %g is below one lot of %s contracts (%s each): %w",
				amount, s.lot, s.ctVal, domain.ErrInvalidOrder)
		}
		return "", fmt.Errorf("amount %g is below lot size %s: %w", amount, s.lot, domain.ErrInvalidOrder)
	}
	if s.lot.IsPositive() {
		return d.StringFixed(-s.lot.Exponent()), nil
	}
	return d.String(), nil
}

// base converts an OKX sz back to base-currency units.
func (s lotSpec) base(sz string) float64 {
	d, err := decimal.NewFromString(sz)
	if err != nil {
		return 0
	}
	if s.swap() {
		d = d.Mul(s.ctVal)
	}
	f, _ := d.Float64()
	return f
}

// spec returns cached lot rules for id, fetching them on first use.
func (c *Client) spec(ctx context.Context, id string) (lotSpec, error) {
	c.mu.Lock()
	s, ok := c.specs[id]
	c.mu.Unlock()
	if ok {
		return s, nil
	}

	instType := "SPOT"
	if strings.HasSuffix(id, "-SWAP") {
		instType = "SWAP"
	}
	var insts []instrument
	q := url.Values{"instType": {instType}, "instId": {id}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/public/instruments", q, nil, false, &insts); err != nil {
		return lotSpec{}, err
	}
	if len(insts) == 0 {
		return lotSpec{}, fmt.Errorf("okx: unknown instrument %s: %w", id, domain.ErrInvalidOrder)
	}
	s, err := parseSpec(insts[0])
	if err != nil {
		return lotSpec{}, fmt.Errorf("okx: instrument %s: %w", id, err)
	}
	c.mu.Lock()
	c.specs[id] = s
	c.mu.Unlock()
	return s, nil
}

func parseSpec(in instrument) (lotSpec, error) {
	s := lotSpec{lot: decimal.Zero, ctVal: decimal.Zero}
	if in.LotSz != "" {
		lot, err := decimal.NewFromString(in.LotSz)
		if err != nil {
			return lotSpec{}, fmt.Errorf("lotSz %q: %v: %w", in.LotSz, err, domain.ErrNetwork)
		}
		// "0.00100000" -> "0.001" so the exponent is the real precision
		s.lot, _ = decimal.NewFromString(lot.String())
	}
	if in.InstType == "SWAP" || strings.HasSuffix(in.InstID, "-SWAP") {
		ct, err := decimal.NewFromString(in.CtVal)
		if err != nil || !ct.IsPositive() {
			return lotSpec{}, fmt.Errorf("contract value %q: %w", in.CtVal, domain.ErrNetwork)
		}
		s.ctVal = ct
	}
	return s, nil
}

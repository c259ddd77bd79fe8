package exchange

import "strings"

// Quote currencies recognised when splitting concatenated symbols such as
// "BTCUSDT". Longer codes come first so "FDUSD" wins over "USD".
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "USD", "EUR", "BTC", "ETH", "BNB"}

// Symbol is a parsed unified symbol.
type Symbol struct {
	Base   string
	Quote  string
	Settle string // empty for spot
}

// String renders the unified form.
func (s Symbol) String() string {
	if s.Settle != "" {
		return s.Base + "/" + s.Quote + ":" + s.Settle
	}
	return s.Base + "/" + s.Quote
}

// IsSwap reports whether the symbol names a perpetual.
func (s Symbol) IsSwap() bool { return s.Settle != "" }

// ParseSymbol accepts "BASE/QUOTE", "BASE/QUOTE:SETTLE", "BASE-QUOTE",
// "BASE-QUOTE-SWAP" and concatenated "BASEQUOTE". ok is false when no
// quote could be identified.
func ParseSymbol(raw string) (Symbol, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Symbol{}, false
	}

	// TradingView prefixes symbols with the exchange ("BINANCE:BTCUSDT").
	if i := strings.Index(s, ":"); i > 0 && !strings.Contains(s[:i], "/") {
		s = s[i+1:]
	}

	if base, rest, found := strings.Cut(s, "/"); found {
		quote, settle, _ := strings.Cut(rest, ":")
		if base == "" || quote == "" {
			return Symbol{}, false
		}
		return Symbol{Base: base, Quote: quote, Settle: settle}, true
	}

	if parts := strings.Split(s, "-"); len(parts) >= 2 {
		sym := Symbol{Base: parts[0], Quote: parts[1]}
		if len(parts) == 3 && parts[2] == "SWAP" {
			sym.Settle = parts[1]
		}
		if sym.Base == "" || sym.Quote == "" {
			return Symbol{}, false
		}
		return sym, true
	}

	s = strings.TrimSuffix(s, ".P") // TradingView perpetual suffix
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return Symbol{Base: strings.TrimSuffix(s, q), Quote: q}, true
		}
	}
	return Symbol{}, false
}

// NormalizeSymbol returns the unified form of raw, or raw upper-cased when
// it cannot be parsed.
func NormalizeSymbol(raw string) string {
	if sym, ok := ParseSymbol(raw); ok {
		return sym.String()
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}

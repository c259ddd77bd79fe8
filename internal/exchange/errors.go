package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// StatusError maps a non-2xx HTTP response to a domain sentinel.
func StatusError(venue string, status int, body string) error {
	if len(body) > 256 {
		body = body[:256]
	}
	var kind error
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		kind = domain.ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.ErrExchangeAuth
	case status >= 500:
		kind = domain.ErrNetwork
	default:
		kind = domain.ErrInvalidOrder
	}
	return fmt.Errorf("%s: http %d: %s: %w", venue, status, body, kind)
}

// TransportError wraps a failed round trip as domain.ErrNetwork. Context
// cancellation is passed through untouched.
func TransportError(venue string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", venue, err)
	}
	return fmt.Errorf("%s: %v: %w", venue, err, domain.ErrNetwork)
}

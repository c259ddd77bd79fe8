// Package handler implements the HTTP endpoints: the signal webhook, trade
// and audit listing, and health.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/server/middleware"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// writeJSON encodes v with the given status. Encoding failures after the
// header is sent cannot be reported to the client and are dropped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every error response. Class is the
// machine-readable error class, e.g. "validation" or "rate_limit".
type errorBody struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, class string) {
	writeJSON(w, status, errorBody{Error: msg, Class: class})
}

// parseListOpts reads limit and offset. Bad values fall back to the
// defaults rather than failing the request; limit is clamped.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: defaultListLimit}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = min(n, maxListLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		opts.Offset = n
	}
	return opts
}

func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

// requestAttr tags a log line with the request's correlation id.
func requestAttr(r *http.Request) slog.Attr {
	return slog.String("request_id", middleware.RequestID(r.Context()))
}

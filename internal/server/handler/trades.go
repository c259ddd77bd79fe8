package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// TradeLister reads recorded trades.
type TradeLister interface {
	Trades(ctx context.Context, botID, ownerID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trade history.
type TradeHandler struct {
	trades TradeLister
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeLister, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logHandler(logger, "trades")}
}

// ListTrades returns a bot's trades newest first. owner_id is required;
// since and until accept RFC 3339 timestamps.
// GET /api/bots/{id}/trades?owner_id=&limit=&offset=&since=&until=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")
	ownerID := r.URL.Query().Get("owner_id")
	if botID == "" || ownerID == "" {
		writeError(w, http.StatusBadRequest, "bot id and owner_id are required", "validation")
		return
	}

	opts := parseListOpts(r)
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp", "validation")
			return
		}
		*dst = &ts
	}

	trades, err := h.trades.Trades(r.Context(), botID, ownerID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed",
			requestAttr(r),
			slog.String("bot_id", botID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error", "persistence")
		return
	}

	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": out, "count": len(out)})
}

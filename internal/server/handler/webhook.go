package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/service"
)

// maxWebhookBody bounds alert payloads.
const maxWebhookBody = 64 << 10

// SignalProcessor runs one alert through the pipeline.
type SignalProcessor interface {
	Process(ctx context.Context, body []byte) (service.Outcome, error)
}

// WebhookHandler receives strategy alerts.
type WebhookHandler struct {
	svc    SignalProcessor
	logger *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(svc SignalProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, logger: logHandler(logger, "webhook")}
}

type tradeResponse struct {
	ID         string    `json:"id"`
	BotID      string    `json:"bot_id"`
	ExternalID string    `json:"external_id"`
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	OrderType  string    `json:"order_type"`
	Status     string    `json:"status"`
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	PnL        *float64  `json:"pnl"`
	Strategy   string    `json:"strategy,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type orderResponse struct {
	ID      string  `json:"id"`
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Type    string  `json:"type"`
	Amount  float64 `json:"amount"`
	Price   float64 `json:"price"`
	Average float64 `json:"average"`
	Filled  float64 `json:"filled"`
	Status  string  `json:"status"`
}

type sizingResponse struct {
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency,omitempty"`
	SourceBalance  float64 `json:"source_balance"`
	Percent        float64 `json:"percent"`
	Price          float64 `json:"price"`
	AppliedMinimum bool    `json:"applied_minimum"`
}

type webhookResponse struct {
	Trade  tradeResponse  `json:"trade"`
	Order  orderResponse  `json:"order"`
	Sizing sizingResponse `json:"sizing"`
}

func toTradeResponse(t domain.Trade) tradeResponse {
	return tradeResponse{
		ID:         t.ID,
		BotID:      t.BotID,
		ExternalID: t.ExternalID,
		Exchange:   t.ExchangeID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		OrderType:  string(t.OrderType),
		Status:     string(t.Status),
		Size:       t.Size,
		Price:      t.Price,
		PnL:        t.PnL,
		Strategy:   t.Strategy,
		CreatedAt:  t.CreatedAt,
	}
}

// HandleSignal runs the alert and maps the outcome to a status code.
// POST /webhook
func (h *WebhookHandler) HandleSignal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large", "validation")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read body", "validation")
		return
	}

	out, err := h.svc.Process(r.Context(), body)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "signal failed", slog.String("error", err.Error()), requestAttr(r))
		}
		writeError(w, status, publicMessage(err, status), service.ErrorClass(err))
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		Trade: toTradeResponse(out.Trade),
		Order: orderResponse{
			ID:      out.Order.ID,
			Symbol:  out.Order.Symbol,
			Side:    string(out.Order.Side),
			Type:    string(out.Order.Type),
			Amount:  out.Order.Amount,
			Price:   out.Order.Price,
			Average: out.Order.Average,
			Filled:  out.Order.Filled,
			Status:  string(out.Order.Status),
		},
		Sizing: sizingResponse{
			Amount:         out.Sizing.Amount,
			Currency:       out.Sizing.Currency,
			SourceBalance:  out.Sizing.SourceBalance,
			Percent:        out.Sizing.Percent,
			Price:          out.Sizing.Price,
			AppliedMinimum: out.Sizing.AppliedMinimum,
		},
	})
}

// StatusFor maps a pipeline error to its HTTP status.
func StatusFor(err error) int {
	var ee *domain.ExecutionError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateSignal):
		return http.StatusConflict
	case errors.As(err, &ee):
		if ee.Class == domain.ExecClassRateLimit {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrSizing),
		errors.Is(err, domain.ErrInsufficientData),
		errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, domain.ErrCredential),
		errors.Is(err, domain.ErrUnsupportedExchange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrExchangeAuth),
		errors.Is(err, domain.ErrNetwork),
		errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal detail on server-side failures.
func publicMessage(err error, status int) string {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return "order executed but could not be recorded; operators have been notified"
	case status == http.StatusInternalServerError:
		return "internal error"
	case errors.Is(err, domain.ErrNotFound):
		return "bot not found"
	case errors.Is(err, domain.ErrAuthentication):
		return "authentication failed"
	case errors.Is(err, domain.ErrCredential):
		return "stored exchange credentials could not be decrypted"
	}
	return err.Error()
}

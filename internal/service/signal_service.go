// Package service runs the signal pipeline: authenticate, validate, resolve
// credentials, build a client, size, execute, record and publish.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
	"github.com/Hidayat0507/tradebot/internal/marketdata"
	"github.com/Hidayat0507/tradebot/internal/metrics"
	"github.com/Hidayat0507/tradebot/internal/notify"
	"github.com/Hidayat0507/tradebot/internal/signal"
)

// Audit event names.
const (
	AuditSignalRejected  = "signal_rejected"
	AuditOrderSubmitted  = "order_submitted"
	AuditTradeRecorded   = "trade_recorded"
	AuditTradeUnrecorded = "trade_unrecorded"
)

// CredentialResolver loads a bot for its owner with decrypted secrets.
type CredentialResolver interface {
	Resolve(ctx context.Context, botID, ownerID string) (domain.Bot, domain.ResolvedCredentials, error)
}

// ClientFactory builds venue clients.
type ClientFactory interface {
	Venue(exchangeID string) (exchange.Venue, error)
	CreateClient(exchangeID string, creds *domain.ResolvedCredentials) (exchange.Client, error)
}

// Sizer computes order amounts.
type Sizer interface {
	Size(ctx context.Context, sig domain.Signal, client exchange.Client, bot domain.Bot, venue exchange.Venue, creds *domain.ResolvedCredentials, price float64) (domain.SizingResult, error)
}

// OrderExecutor submits orders.
type OrderExecutor interface {
	Execute(ctx context.Context, client exchange.Client, venue exchange.Venue, sig domain.Signal, sizing domain.SizingResult, price float64) (domain.OrderResult, error)
}

// Deps are the collaborators of a SignalService. Bus, Audit, MarketData,
// Notifier and Metrics are optional.
type Deps struct {
	Bots          domain.BotStore
	Authenticator *signal.Authenticator
	Validator     *signal.Validator
	Resolver      CredentialResolver
	Factory       ClientFactory
	Sizer         Sizer
	Executor      OrderExecutor
	Recorder      *TradeRecorder
	MarketData    marketdata.Store
	Bus           domain.SignalBus
	Audit         domain.AuditStore
	Notifier      *notify.Notifier
	Metrics       *metrics.Metrics
}

// Outcome is what a successful pipeline run produced. On a persistence
// failure Order and Sizing are still populated.
type Outcome struct {
	Trade  domain.Trade
	Order  domain.OrderResult
	Sizing domain.SizingResult
}

// SignalService is the pipeline orchestrator. One call runs one alert to
// completion on the caller's goroutine.
type SignalService struct {
	d      Deps
	group  singleflight.Group
	logger *slog.Logger
}

// NewSignalService creates a SignalService.
func NewSignalService(d Deps, logger *slog.Logger) *SignalService {
	return &SignalService{d: d, logger: logger.With(slog.String("component", "pipeline"))}
}

// Process runs the alert in body through the pipeline. Once submission
// starts, cancelling ctx no longer stops it: the order and its record run
// on a detached context.
func (s *SignalService) Process(ctx context.Context, body []byte) (Outcome, error) {
	var out Outcome

	bot, sig, err := s.admit(ctx, body)
	if err != nil {
		s.reject(ctx, bot.ID, bot.ExchangeID, err)
		return out, err
	}
	exchangeID := bot.ExchangeID
	log := s.logger.With(
		slog.String("bot_id", bot.ID),
		slog.String("exchange", bot.ExchangeID),
		slog.String("symbol", sig.Symbol),
		slog.String("side", string(sig.Action)),
	)

	start := time.Now()
	bot, creds, err := s.d.Resolver.Resolve(ctx, bot.ID, bot.OwnerID)
	s.d.Metrics.ObserveStage("resolve", start)
	if err != nil {
		s.reject(ctx, sig.BotID, exchangeID, err)
		return out, err
	}

	venue, err := s.d.Factory.Venue(bot.ExchangeID)
	if err != nil {
		s.reject(ctx, bot.ID, exchangeID, err)
		return out, err
	}
	client, err := s.d.Factory.CreateClient(bot.ExchangeID, &creds)
	if err != nil {
		s.reject(ctx, bot.ID, exchangeID, err)
		return out, err
	}
	if s.d.MarketData != nil {
		cc := marketdata.Wrap(client, s.d.MarketData, &s.group, s.logger)
		if s.d.Metrics != nil {
			cc.Observe(s.d.Metrics)
		}
		client = cc
	}

	price := s.referencePrice(ctx, log, client, venue, sig)

	start = time.Now()
	sizing, err := s.d.Sizer.Size(ctx, sig, client, bot, venue, &creds, price)
	s.d.Metrics.ObserveStage("sizing", start)
	if err != nil {
		s.reject(ctx, bot.ID, exchangeID, err)
		return out, err
	}
	out.Sizing = sizing

	execCtx := context.WithoutCancel(ctx)

	start = time.Now()
	order, err := s.d.Executor.Execute(execCtx, client, venue, sig, sizing, price)
	s.d.Metrics.ObserveStage("execute", start)
	if err != nil {
		var ee *domain.ExecutionError
		if errors.As(err, &ee) {
			s.d.Metrics.Order(venue.ID(), string(sig.Action), orderType(sig), string(ee.Class))
			if nerr := s.d.Notifier.ExecutionFailed(execCtx, bot.ID, ee); nerr != nil {
				log.WarnContext(ctx, "execution notification failed", slog.String("error", nerr.Error()))
			}
		}
		s.reject(execCtx, bot.ID, exchangeID, err)
		return out, err
	}
	out.Order = order
	s.d.Metrics.Order(venue.ID(), string(sig.Action), string(order.Type), "ok")
	s.audit(execCtx, AuditOrderSubmitted, map[string]any{
		"bot_id":   bot.ID,
		"exchange": venue.ID(),
		"order_id": order.ID,
		"symbol":   order.Symbol,
		"side":     string(order.Side),
		"amount":   sizing.Amount,
	})

	start = time.Now()
	trade, err := s.d.Recorder.Record(execCtx, bot.OwnerID, bot.ID, venue.ID(), order, sig, sizing, price)
	s.d.Metrics.ObserveStage("record", start)
	if err != nil {
		s.unrecorded(execCtx, log, bot, venue.ID(), order, err)
		return out, err
	}
	out.Trade = trade

	s.audit(execCtx, AuditTradeRecorded, map[string]any{
		"bot_id":   bot.ID,
		"trade_id": trade.ID,
		"order_id": order.ID,
	})
	s.publish(execCtx, log, trade)
	s.d.Metrics.Signal(venue.ID(), metrics.OutcomeExecuted, "")
	return out, nil
}

// admit authenticates and validates the alert. The bot is returned as
// soon as it is known so rejections can be attributed.
func (s *SignalService) admit(ctx context.Context, body []byte) (domain.Bot, domain.Signal, error) {
	raw, err := signal.Decode(body)
	if err != nil {
		return domain.Bot{}, domain.Signal{}, err
	}

	botID, token := signal.ExtractAuthFields(raw, s.d.Validator.TokenField())
	if botID == "" || token == "" {
		// Missing identity fields are a malformed payload, not a failed login.
		_, err := s.d.Validator.Validate(raw)
		return domain.Bot{}, domain.Signal{}, err
	}

	bot, err := s.d.Bots.GetByID(ctx, botID)
	if err != nil {
		return domain.Bot{ID: botID}, domain.Signal{}, fmt.Errorf("pipeline: load bot %s: %w", botID, err)
	}
	if err := s.d.Authenticator.Authenticate(bot, token); err != nil {
		return bot, domain.Signal{}, err
	}

	sig, err := s.d.Validator.Validate(raw)
	if err != nil {
		return bot, domain.Signal{}, err
	}
	return bot, sig, nil
}

// referencePrice is the alert price when present, else the venue's last
// traded price. A ticker failure leaves it at zero; sizing then decides
// whether a price was needed.
func (s *SignalService) referencePrice(ctx context.Context, log *slog.Logger, client exchange.Client, venue exchange.Venue, sig domain.Signal) float64 {
	if sig.HasPrice() {
		return *sig.Price
	}
	tk, err := client.FetchTicker(ctx, venue.FormatSymbol(sig.Symbol))
	if err != nil {
		log.WarnContext(ctx, "ticker unavailable", slog.String("error", err.Error()))
		return 0
	}
	return tk.Last
}

func (s *SignalService) reject(ctx context.Context, botID, exchangeID string, err error) {
	class := ErrorClass(err)
	outcome := metrics.OutcomeRejected
	if errors.Is(err, domain.ErrExecution) {
		outcome = metrics.OutcomeFailed
	}
	s.d.Metrics.Signal(exchangeID, outcome, class)

	s.logger.WarnContext(ctx, "signal rejected",
		slog.String("bot_id", botID),
		slog.String("class", class),
		slog.String("error", err.Error()),
	)
	s.audit(ctx, AuditSignalRejected, map[string]any{
		"bot_id": botID,
		"class":  class,
		"error":  err.Error(),
	})
}

func (s *SignalService) unrecorded(ctx context.Context, log *slog.Logger, bot domain.Bot, exchangeID string, order domain.OrderResult, err error) {
	s.d.Metrics.Unrecorded()
	s.d.Metrics.Signal(exchangeID, metrics.OutcomeFailed, ErrorClass(err))
	log.ErrorContext(ctx, "order executed but trade not recorded",
		slog.String("order_id", order.ID),
		slog.String("error", err.Error()),
	)
	if nerr := s.d.Notifier.TradeUnrecorded(ctx, bot.OwnerID, bot.ID, exchangeID, order, err); nerr != nil {
		log.ErrorContext(ctx, "unrecorded trade notification failed", slog.String("error", nerr.Error()))
	}
	s.audit(ctx, AuditTradeUnrecorded, map[string]any{
		"bot_id":   bot.ID,
		"owner_id": bot.OwnerID,
		"exchange": exchangeID,
		"order_id": order.ID,
		"symbol":   order.Symbol,
		"side":     string(order.Side),
		"amount":   order.Amount,
		"price":    order.Price,
		"error":    err.Error(),
	})
}

// TradeEvent is the payload published for every recorded trade.
type TradeEvent struct {
	Event      string    `json:"event"`
	TradeID    string    `json:"trade_id"`
	BotID      string    `json:"bot_id"`
	ExchangeID string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	PnL        *float64  `json:"pnl,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *SignalService) publish(ctx context.Context, log *slog.Logger, t domain.Trade) {
	if s.d.Bus == nil {
		return
	}
	evt, err := json.Marshal(TradeEvent{
		Event:      "trade_executed",
		TradeID:    t.ID,
		BotID:      t.BotID,
		ExchangeID: t.ExchangeID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		Size:       t.Size,
		Price:      t.Price,
		PnL:        t.PnL,
		Timestamp:  t.CreatedAt,
	})
	if err != nil {
		return
	}
	if err := s.d.Bus.Publish(ctx, domain.ChannelTrades, evt); err != nil {
		log.WarnContext(ctx, "publish trade event failed",
			slog.String("trade_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.d.Bus.StreamAppend(ctx, domain.StreamTrades, evt); err != nil {
		log.WarnContext(ctx, "append trade stream failed",
			slog.String("trade_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SignalService) audit(ctx context.Context, event string, detail map[string]any) {
	if s.d.Audit == nil {
		return
	}
	if err := s.d.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// Trades lists a bot's recorded trades for its owner.
func (s *SignalService) Trades(ctx context.Context, botID, ownerID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.d.Recorder.List(ctx, botID, ownerID, opts)
}

func orderType(sig domain.Signal) string {
	if sig.HasPrice() {
		return string(domain.OrderTypeLimit)
	}
	return string(domain.OrderTypeMarket)
}

// ErrorClass names the pipeline failure category of err for metrics, audit
// and API error bodies.
func ErrorClass(err error) string {
	var ee *domain.ExecutionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ee):
		return string(ee.Class)
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrAuthentication):
		return "authentication"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateSignal):
		return "duplicate"
	case errors.Is(err, domain.ErrCredential):
		return "credential"
	case errors.Is(err, domain.ErrUnsupportedExchange):
		return "unsupported_exchange"
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, domain.ErrSizing):
		return "sizing"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	case errors.Is(err, domain.ErrExchangeAuth):
		return string(domain.ExecClassAuth)
	case errors.Is(err, domain.ErrRateLimited):
		return string(domain.ExecClassRateLimit)
	case errors.Is(err, domain.ErrNetwork):
		return string(domain.ExecClassNetwork)
	case errors.Is(err, domain.ErrInsufficientFunds):
		return string(domain.ExecClassInsufficientFunds)
	case errors.Is(err, domain.ErrInvalidOrder):
		return string(domain.ExecClassInvalidOrder)
	default:
		return "internal"
	}
}

// Package notify pages operators when the pipeline loses track of money:
// an order that filled but could not be recorded, or a submission the venue
// rejected. Notifications fan out to every configured sender (Telegram,
// Discord) and are filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// Event types.
const (
	EventTradeUnrecorded = "trade_unrecorded"
	EventExecutionFailed = "execution_failed"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Only events in
// the allowed set are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Notify sends a notification to all senders if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// TradeUnrecorded reports an order the venue accepted but the trade store
// did not persist. The operator must reconcile it by hand.
func (n *Notifier) TradeUnrecorded(ctx context.Context, ownerID, botID, exchangeID string, order domain.OrderResult, cause error) error {
	msg := fmt.Sprintf("bot %s (owner %s) on %s\norder %s %s %s amount=%g price=%g status=%s\nerror: %v",
		botID, ownerID, exchangeID,
		order.ID, order.Side, order.Symbol, order.Amount, order.Price, order.Status,
		cause)
	return n.Notify(ctx, EventTradeUnrecorded, "Trade executed but not recorded", msg)
}

// ExecutionFailed reports a classified submission failure.
func (n *Notifier) ExecutionFailed(ctx context.Context, botID string, err *domain.ExecutionError) error {
	msg := fmt.Sprintf("bot %s on %s: %s %s\n%v", botID, err.Exchange, err.Class, err.Symbol, err.Err)
	return n.Notify(ctx, EventExecutionFailed, "Order submission failed", msg)
}

// dispatch sends to every sender and joins the failures; one broken
// channel does not silence the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}

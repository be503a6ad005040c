// Package notify alerts operators about executions, residual exposure and
// breaker trips through one or more channels (Telegram, Discord). Each
// channel renders the trade and breaker fields in its own native format.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/faridmah/arbot/internal/domain"
)

// Event types the notifier can filter on.
const (
	EventTradeExecuted  = "trade_executed"
	EventTradePartial   = "trade_partial"
	EventBreakerTripped = "breaker_tripped"
	EventVenueStopped   = "venue_stopped"
)

// Notification is one operator alert. Exactly one of Trade or Breaker is
// populated; Detail carries free-form context either way.
type Notification struct {
	Event  string
	Trade  *domain.TradeRecord
	// Breaker and Scope describe a breaker trip: which machine, and the
	// venue or symbol it protects.
	Breaker string
	Scope   string
	Detail  string
}

// Sender is one delivery channel. Senders own the rendering of the
// notification's domain content into their channel's message format.
type Sender interface {
	Send(ctx context.Context, n Notification) error
	Name() string
}

// Notifier dispatches notifications to all senders. A configured event
// list acts as an allow-filter; an empty list lets everything through.
// Sender failures are logged and do not block the remaining channels.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers one notification to every sender, subject to the event
// filter.
func (n *Notifier) Notify(ctx context.Context, notification Notification) {
	if len(n.events) > 0 && !n.events[notification.Event] {
		return
	}
	for _, s := range n.senders {
		if err := s.Send(ctx, notification); err != nil {
			n.logger.Warn("notification delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", notification.Event),
				slog.String("error", err.Error()),
			)
		}
	}
}

// NotifyTrade delivers a settled trade record.
func (n *Notifier) NotifyTrade(ctx context.Context, t domain.TradeRecord) {
	event := EventTradeExecuted
	if t.ExposureQty.IsPositive() {
		event = EventTradePartial
	}
	n.Notify(ctx, Notification{Event: event, Trade: &t})
}

// NotifyBreaker delivers a breaker trip.
func (n *Notifier) NotifyBreaker(ctx context.Context, breaker, scope string) {
	n.Notify(ctx, Notification{
		Event:   EventBreakerTripped,
		Breaker: breaker,
		Scope:   scope,
	})
}

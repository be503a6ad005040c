// Package journal is the thin write-through between the trading core and
// the repository: append-only, best-effort, mode-tagged. Store failures are
// logged and swallowed; they never alter a trade outcome.
package journal

import (
	"context"
	"log/slog"

	"github.com/faridmah/arbot/internal/domain"
)

// Journal fans records out to the configured stores. Any nil store turns
// that record class into a log-only write, which is how dry-run mode runs
// with no database at all. The mode tag is stamped on every record; nothing
// else in the core branches on it.
type Journal struct {
	orders   domain.OrderStore
	trades   domain.TradeStore
	features domain.FeatureStore
	mode     string
	logger   *slog.Logger
}

// New creates a Journal. Stores may be nil.
func New(orders domain.OrderStore, trades domain.TradeStore, features domain.FeatureStore, mode string, logger *slog.Logger) *Journal {
	return &Journal{
		orders:   orders,
		trades:   trades,
		features: features,
		mode:     mode,
		logger:   logger.With(slog.String("component", "journal"), slog.String("mode", mode)),
	}
}

// RecordOrder persists one order state, best-effort.
func (j *Journal) RecordOrder(ctx context.Context, o domain.Order) {
	if j.orders == nil {
		j.logger.Debug("order journaled to log only",
			slog.String("venue", string(o.Venue)),
			slog.String("venue_id", o.VenueID),
			slog.String("status", string(o.Status)),
		)
		return
	}
	if err := j.orders.RecordOrder(ctx, o, j.mode); err != nil {
		j.logger.Warn("order journaling failed",
			slog.String("venue", string(o.Venue)),
			slog.String("venue_id", o.VenueID),
			slog.String("error", err.Error()),
		)
	}
}

// RecordTrade persists one trade record, best-effort.
func (j *Journal) RecordTrade(ctx context.Context, t domain.TradeRecord) {
	t.Mode = j.mode
	if j.trades == nil {
		j.logger.Info("trade journaled to log only",
			slog.String("trade_id", t.ID),
			slog.String("symbol", t.Symbol.String()),
			slog.String("result", t.Result),
			slog.String("matched_qty", t.MatchedQty.String()),
			slog.String("net_profit", t.NetProfit.String()),
		)
		return
	}
	if err := j.trades.RecordTrade(ctx, t); err != nil {
		j.logger.Warn("trade journaling failed",
			slog.String("trade_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}

// RecordFeatures persists one feature row, best-effort.
func (j *Journal) RecordFeatures(ctx context.Context, f domain.FeatureRecord) {
	if j.features == nil {
		j.logger.Debug("features journaled to log only",
			slog.String("venue", string(f.Venue)),
		)
		return
	}
	if err := j.features.RecordFeatures(ctx, f, j.mode); err != nil {
		j.logger.Warn("feature journaling failed",
			slog.String("venue", string(f.Venue)),
			slog.String("error", err.Error()),
		)
	}
}

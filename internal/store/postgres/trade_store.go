package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faridmah/arbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// RecordTrade appends one trade record. The primary key makes replays of
// the same record a no-op, so one execution never journals twice.
func (s *TradeStore) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	const insert = `
		INSERT INTO trades (
			id, opportunity_id, symbol, buy_venue, sell_venue,
			buy_order_id, sell_order_id, matched_qty, net_profit,
			exposure_qty, exposure_side, exposure_ccy, result, mode, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, insert,
		t.ID, t.OpportunityID, t.Symbol.String(), string(t.BuyVenue), string(t.SellVenue),
		t.BuyOrder.VenueID, t.SellOrder.VenueID, t.MatchedQty, t.NetProfit,
		t.ExposureQty, string(t.ExposureSide), t.ExposureCcy, t.Result, t.Mode, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

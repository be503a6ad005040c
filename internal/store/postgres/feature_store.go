package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faridmah/arbot/internal/domain"
)

// FeatureStore implements domain.FeatureStore using PostgreSQL.
type FeatureStore struct {
	pool *pgxpool.Pool
}

// NewFeatureStore creates a FeatureStore backed by the given pool.
func NewFeatureStore(pool *pgxpool.Pool) *FeatureStore {
	return &FeatureStore{pool: pool}
}

// RecordFeatures appends one feature row for advisor retraining.
func (s *FeatureStore) RecordFeatures(ctx context.Context, f domain.FeatureRecord, mode string) error {
	const insert = `
		INSERT INTO features (
			venue, symbol, side, best_bid, best_ask, spread_bps,
			bid_depth, ask_depth, used_maker, filled, mode, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.pool.Exec(ctx, insert,
		string(f.Venue), f.Symbol.String(), string(f.Side),
		f.BestBid, f.BestAsk, f.SpreadBps, f.BidDepth, f.AskDepth,
		f.UsedMaker, f.Filled, mode, f.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert features: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faridmah/arbot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// RecordOrder upserts the order state on (venue, venue_order_id). Orders
// without a venue id (never acknowledged) insert a fresh row each time so
// failed submissions remain visible.
func (s *OrderStore) RecordOrder(ctx context.Context, o domain.Order, mode string) error {
	if o.VenueID == "" {
		const insert = `
			INSERT INTO orders (
				venue, venue_order_id, symbol, side, order_type, status,
				quantity, price, filled_qty, avg_price, fee, post_only, mode,
				created_at, updated_at
			) VALUES ($1, gen_random_uuid()::text, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
		_, err := s.pool.Exec(ctx, insert,
			string(o.Venue), o.Symbol.String(), string(o.Side), string(o.Type), string(o.Status),
			o.Quantity, o.Price, o.FilledQty, o.AvgPrice, o.Fee, o.PostOnly, mode,
			o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert order: %w", err)
		}
		return nil
	}

	const upsert = `
		INSERT INTO orders (
			venue, venue_order_id, symbol, side, order_type, status,
			quantity, price, filled_qty, avg_price, fee, post_only, mode,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (venue, venue_order_id) DO UPDATE SET
			status     = EXCLUDED.status,
			filled_qty = EXCLUDED.filled_qty,
			avg_price  = EXCLUDED.avg_price,
			fee        = EXCLUDED.fee,
			updated_at = EXCLUDED.updated_at`
	_, err := s.pool.Exec(ctx, upsert,
		string(o.Venue), o.VenueID, o.Symbol.String(), string(o.Side), string(o.Type), string(o.Status),
		o.Quantity, o.Price, o.FilledQty, o.AvgPrice, o.Fee, o.PostOnly, mode,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s/%s: %w", o.Venue, o.VenueID, err)
	}
	return nil
}

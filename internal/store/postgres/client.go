// Package postgres implements the domain store interfaces on PostgreSQL
// via pgx. The stores are append-mostly: orders upsert on (venue, venue_id),
// trades and features only insert.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig holds connection parameters for the PostgreSQL client.
type ClientConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN builds a PostgreSQL connection string from the given config.
func DSN(cfg ClientConfig) string {
	if strings.TrimSpace(cfg.DSN) != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database, sslMode,
	)
}

// Client wraps a pgxpool.Pool and manages schema setup.
type Client struct {
	pool *pgxpool.Pool
}

// New creates a Client with a connection pool configured from cfg and
// verifies connectivity with a ping.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Client{pool: pool}, nil
}

// Pool exposes the underlying connection pool.
func (c *Client) Pool() *pgxpool.Pool { return c.pool }

// Close releases the connection pool.
func (c *Client) Close() { c.pool.Close() }

// schema is applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id             BIGSERIAL PRIMARY KEY,
	venue          TEXT        NOT NULL,
	venue_order_id TEXT        NOT NULL,
	symbol         TEXT        NOT NULL,
	side           TEXT        NOT NULL,
	order_type     TEXT        NOT NULL,
	status         TEXT        NOT NULL,
	quantity       NUMERIC     NOT NULL,
	price          NUMERIC,
	filled_qty     NUMERIC     NOT NULL DEFAULT 0,
	avg_price      NUMERIC,
	fee            NUMERIC,
	post_only      BOOLEAN     NOT NULL DEFAULT FALSE,
	mode           TEXT        NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (venue, venue_order_id)
);

CREATE TABLE IF NOT EXISTS trades (
	id             TEXT        PRIMARY KEY,
	opportunity_id TEXT        NOT NULL,
	symbol         TEXT        NOT NULL,
	buy_venue      TEXT        NOT NULL,
	sell_venue     TEXT        NOT NULL,
	buy_order_id   TEXT,
	sell_order_id  TEXT,
	matched_qty    NUMERIC     NOT NULL,
	net_profit     NUMERIC     NOT NULL,
	exposure_qty   NUMERIC     NOT NULL DEFAULT 0,
	exposure_side  TEXT,
	exposure_ccy   TEXT,
	result         TEXT        NOT NULL,
	mode           TEXT        NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS features (
	id          BIGSERIAL PRIMARY KEY,
	venue       TEXT        NOT NULL,
	symbol      TEXT        NOT NULL,
	side        TEXT        NOT NULL,
	best_bid    NUMERIC,
	best_ask    NUMERIC,
	spread_bps  NUMERIC,
	bid_depth   NUMERIC,
	ask_depth   NUMERIC,
	used_maker  BOOLEAN     NOT NULL,
	filled      BOOLEAN     NOT NULL,
	mode        TEXT        NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_venue_status ON orders (venue, status);
CREATE INDEX IF NOT EXISTS idx_trades_symbol_created ON trades (symbol, created_at);
`

// Migrate applies the schema.
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

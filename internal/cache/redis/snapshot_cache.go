package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
)

// SnapshotCache stores the latest order-book snapshot per (venue, symbol)
// as a JSON value with a TTL, keyed book:{venue}:{symbol}.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache. Entries expire after ttl so a
// stopped engine never leaves stale books behind.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

func bookKey(v domain.Venue, sym domain.Symbol) string {
	return "book:" + string(v) + ":" + sym.String()
}

// cachedLevel and cachedBook are the wire form; decimals travel as strings.
type cachedLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type cachedBook struct {
	Venue     string        `json:"venue"`
	Symbol    string        `json:"symbol"`
	Bids      []cachedLevel `json:"bids"`
	Asks      []cachedLevel `json:"asks"`
	Timestamp int64         `json:"ts_unix_nano"`
}

// SetSnapshot implements stream.SnapshotCache.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, book domain.OrderBook) error {
	payload := cachedBook{
		Venue:     string(book.Venue),
		Symbol:    book.Symbol.String(),
		Bids:      toCached(book.Bids),
		Asks:      toCached(book.Asks),
		Timestamp: book.Timestamp.UnixNano(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := sc.rdb.Set(ctx, bookKey(book.Venue, book.Symbol), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// GetSnapshot reads a cached snapshot; the second result is false on miss.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, v domain.Venue, sym domain.Symbol) (domain.OrderBook, bool, error) {
	data, err := sc.rdb.Get(ctx, bookKey(v, sym)).Bytes()
	if err == redis.Nil {
		return domain.OrderBook{}, false, nil
	}
	if err != nil {
		return domain.OrderBook{}, false, fmt.Errorf("redis: get snapshot: %w", err)
	}

	var payload cachedBook
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.OrderBook{}, false, fmt.Errorf("redis: decode snapshot: %w", err)
	}

	symbol, err := domain.ParseSymbol(payload.Symbol)
	if err != nil {
		return domain.OrderBook{}, false, err
	}
	book := domain.OrderBook{
		Venue:     domain.Venue(payload.Venue),
		Symbol:    symbol,
		Bids:      fromCached(payload.Bids),
		Asks:      fromCached(payload.Asks),
		Timestamp: time.Unix(0, payload.Timestamp),
	}
	return book, true, nil
}

func toCached(levels []domain.BookLevel) []cachedLevel {
	out := make([]cachedLevel, len(levels))
	for i, l := range levels {
		out[i] = cachedLevel{Price: l.Price.String(), Quantity: l.Quantity.String()}
	}
	return out
}

func fromCached(levels []cachedLevel) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(levels))
	for _, l := range levels {
		price, err1 := decimal.NewFromString(l.Price)
		qty, err2 := decimal.NewFromString(l.Quantity)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, domain.BookLevel{Price: price, Quantity: qty})
	}
	return out
}

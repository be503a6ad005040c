package stream

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/venue"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeAdapter serves a scripted sequence of order books.
type fakeAdapter struct {
	mu      sync.Mutex
	name    domain.Venue
	fetches int
	fail    bool
}

func (f *fakeAdapter) Name() domain.Venue        { return f.name }
func (f *fakeAdapter) MakerFee() decimal.Decimal { return dec("0.001") }
func (f *fakeAdapter) TakerFee() decimal.Decimal { return dec("0.001") }
func (f *fakeAdapter) SupportsPostOnly() bool    { return false }
func (f *fakeAdapter) IsAuthenticated() bool     { return false }

func (f *fakeAdapter) FetchOrderBook(ctx context.Context, symbol domain.Symbol, depth int) (domain.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fail {
		return domain.OrderBook{}, &domain.VenueError{
			Venue: f.name, Kind: domain.ErrKindNetwork,
			Message: "connection refused", Err: domain.ErrNetwork,
		}
	}
	return domain.OrderBook{
		Venue:     f.name,
		Symbol:    symbol,
		Timestamp: time.Now(),
		Bids:      []domain.BookLevel{{Price: dec("65000"), Quantity: dec("1")}},
		Asks:      []domain.BookLevel{{Price: dec("65010"), Quantity: dec("1")}},
	}, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotAuthenticated
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, venueID string, symbol domain.Symbol) (bool, error) {
	return false, domain.ErrNotAuthenticated
}

func (f *fakeAdapter) GetOrder(ctx context.Context, venueID string, symbol domain.Symbol) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotAuthenticated
}

func (f *fakeAdapter) GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	return nil, domain.ErrNotAuthenticated
}

func (f *fakeAdapter) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	return domain.Balance{}, domain.ErrNotAuthenticated
}

func (f *fakeAdapter) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func testStream(adapters []*fakeAdapter, sym domain.Symbol, cfg Config) *Stream {
	var pairs []Pair
	venueAdapters := make([]venue.Adapter, 0, len(adapters))
	for _, a := range adapters {
		pairs = append(pairs, Pair{Venue: a.name, Symbol: sym})
		venueAdapters = append(venueAdapters, a)
	}
	return New(venue.NewRegistry(venueAdapters...), pairs, cfg, slog.Default())
}

func TestStreamDeliversMonotonicSnapshots(t *testing.T) {
	sym := domain.MustParseSymbol("BTCUSDT")
	a := &fakeAdapter{name: domain.VenueNobitex}
	s := testStream([]*fakeAdapter{a}, sym, Config{
		Interval:             5 * time.Millisecond,
		Depth:                5,
		PerVenueConcurrency:  2,
		MaxAge:               time.Second,
		MaxConsecutiveErrors: 3,
	})

	var mu sync.Mutex
	var timestamps []time.Time
	s.Subscribe(func(book domain.OrderBook) {
		mu.Lock()
		defer mu.Unlock()
		timestamps = append(timestamps, book.Timestamp)
	})

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop(time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(timestamps), 2)
	for i := 1; i < len(timestamps); i++ {
		assert.False(t, timestamps[i].Before(timestamps[i-1]),
			"snapshot %d delivered out of order", i)
	}

	book, fresh := s.Snapshot(domain.VenueNobitex, sym)
	assert.True(t, fresh)
	assert.Equal(t, sym, book.Symbol)
}

func TestStreamStopsPairAfterRepeatedFailures(t *testing.T) {
	sym := domain.MustParseSymbol("BTCUSDT")
	a := &fakeAdapter{name: domain.VenueNobitex, fail: true}

	var mu sync.Mutex
	var failures int
	s := testStream([]*fakeAdapter{a}, sym, Config{
		Interval:             2 * time.Millisecond,
		PerVenueConcurrency:  1,
		MaxConsecutiveErrors: 3,
	})
	s.SetResultHook(func(v domain.Venue, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures++
		}
	})

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop(time.Second)

	assert.Equal(t, StateStopped, s.State(domain.VenueNobitex, sym))
	assert.Equal(t, 3, a.fetchCount(), "loop stops at the error budget")
	mu.Lock()
	assert.Equal(t, 3, failures)
	mu.Unlock()
}

func TestSnapshotStalenessBoundary(t *testing.T) {
	sym := domain.MustParseSymbol("BTCUSDT")
	a := &fakeAdapter{name: domain.VenueNobitex}
	s := testStream([]*fakeAdapter{a}, sym, Config{
		Interval:            time.Hour, // single refresh
		PerVenueConcurrency: 1,
		MaxAge:              30 * time.Millisecond,
	})

	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)

	_, fresh := s.Snapshot(domain.VenueNobitex, sym)
	assert.True(t, fresh)

	time.Sleep(40 * time.Millisecond)
	_, fresh = s.Snapshot(domain.VenueNobitex, sym)
	assert.False(t, fresh, "snapshot beyond max_age must not be served as fresh")

	s.Stop(time.Second)
}

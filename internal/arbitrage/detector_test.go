package arbitrage

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faridmah/arbot/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixedFees struct {
	maker map[domain.Venue]decimal.Decimal
	taker map[domain.Venue]decimal.Decimal
}

func (f fixedFees) MakerFee(v domain.Venue) decimal.Decimal { return f.maker[v] }
func (f fixedFees) TakerFee(v domain.Venue) decimal.Decimal { return f.taker[v] }

func uniformFees(rate string) fixedFees {
	maker := make(map[domain.Venue]decimal.Decimal)
	taker := make(map[domain.Venue]decimal.Decimal)
	for _, v := range domain.AllVenues() {
		maker[v] = dec(rate)
		taker[v] = dec(rate)
	}
	return fixedFees{maker: maker, taker: taker}
}

func book(v domain.Venue, sym domain.Symbol, ts time.Time, bids, asks []domain.BookLevel) domain.OrderBook {
	return domain.OrderBook{Venue: v, Symbol: sym, Timestamp: ts, Bids: bids, Asks: asks}
}

func levels(pairs ...string) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.BookLevel{Price: dec(pairs[i]), Quantity: dec(pairs[i+1])})
	}
	return out
}

func newDetector(t *testing.T, cfg Config, fees Fees) *Detector {
	t.Helper()
	rates := NewRateTable("USDT", map[string]decimal.Decimal{"USDT": dec("1")})
	return New(fees, rates, cfg, slog.Default())
}

// Two venues, BTCUSDT, ask 65000 on one and bid 65300 on the other, both
// fees 0.1%: exactly one opportunity, buy low sell high, quantity 1.
func TestTwoVenueDetection(t *testing.T) {
	sym := domain.MustParseSymbol("BTCUSDT")
	now := time.Now()

	d := newDetector(t, Config{
		MinSpread:       dec("0.003"), // 0.30%
		MinProfitRef:    decimal.Zero,
		MaxPositionSize: dec("10"),
		MaxAge:          3 * time.Second,
	}, uniformFees("0.001"))

	books := map[domain.Venue]domain.OrderBook{
		domain.VenueNobitex: book(domain.VenueNobitex, sym, now,
			levels("64900", "1"), levels("65000", "1.0")),
		domain.VenueWallex: book(domain.VenueWallex, sym, now,
			levels("65300", "1.0"), levels("65400", "1")),
	}

	opps := d.FindOpportunities(now, sym, books)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.VenueNobitex, opp.BuyVenue)
	assert.Equal(t, domain.VenueWallex, opp.SellVenue)
	assert.True(t, opp.Quantity.Equal(dec("1")), "quantity %s", opp.Quantity)
	assert.True(t, opp.BuyPrice.Equal(dec("65000")))
	assert.True(t, opp.SellPrice.Equal(dec("65300")))

	// Gross spread = 300/65000 ≈ 0.4615%.
	wantSpread := dec("300").Div(dec("65000"))
	assert.True(t, opp.GrossSpread.Equal(wantSpread), "spread %s", opp.GrossSpread)

	// Net = 65300·(1−0.001) − 65000·(1+0.001) = 169.7 per unit.
	assert.True(t, opp.NetProfitQuote.Equal(dec("169.7")), "net %s", opp.NetProfitQuote)
	assert.False(t, opp.Unconverted)
}

// IRT-family quotes are one market; USDT is another.
func TestQuoteFamilyDetection(t *testing.T) {
	now := time.Now()
	irt := domain.MustParseSymbol("BTCIRT")

	d := newDetector(t, Config{
		MinSpread:       dec("0.001"),
		MinProfitRef:    decimal.Zero,
		MaxPositionSize: dec("10"),
		MaxAge:          3 * time.Second,
	}, uniformFees("0.001"))

	// Nobitex quotes IRT, Wallex quotes TMN; both canonicalise to BTCIRT.
	tmnBook := book(domain.VenueWallex, domain.MustParseSymbol("BTCTMN"), now,
		levels("4310000000", "0.5"), levels("4320000000", "1"))
	books := map[domain.Venue]domain.OrderBook{
		domain.VenueNobitex: book(domain.VenueNobitex, irt, now,
			levels("4200000000", "1"), levels("4250000000", "0.5")),
		domain.VenueWallex: tmnBook,
	}

	opps := d.FindOpportunities(now, irt, books)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.VenueNobitex, opps[0].BuyVenue)
	assert.Equal(t, domain.VenueWallex, opps[0].SellVenue)
	assert.True(t, opps[0].Unconverted, "IRT has no reference rate configured")

	// Swap the second venue to a USDT book: different market, no detection.
	books[domain.VenueWallex] = book(domain.VenueWallex, domain.MustParseSymbol("BTCUSDT"), now,
		levels("4310000000", "0.5"), levels("4320000000", "1"))
	assert.Empty(t, d.FindOpportunities(now, irt, books))
}

func TestStaleSnapshotsRejected(t *testing.T) {
	sym := domain.MustParseSymbol("BTCUSDT")
	now := time.Now()

	d := newDetector(t, Config{
		MinSpread:       dec("0.003"),
		MaxPositionSize: dec("10"),
		MaxAge:          3 * time.Second,
	}, uniformFees("0.001"))

	books := map[domain.Venue]domain.OrderBook{
		// Exactly max_age old: stale.
		domain.VenueNobitex: book(domain.VenueNobitex, sym, now.Add(-3*time.Second),
			levels("64900", "1"), levels("65000", "1")),
		domain.VenueWallex: book(domain.VenueWallex, sym, now,
			levels("65300", "1"), levels("65400", "1")),
	}
	assert.Empty(t, d.FindOpportunities(now, sym, books))
}

func TestProfitFloorIsStrict(t *testing.T) {
	sym := domain.MustParseSymbol("BTCUSDT")
	now := time.Now()

	// Zero fees make the numbers exact: net profit = (65300−65000)·1 = 300.
	d := newDetector(t, Config{
		MinSpread:       dec("0.003"),
		MinProfitRef:    dec("300"), // exactly the achievable profit
		MaxPositionSize: dec("10"),
		MaxAge:          3 * time.Second,
	}, uniformFees("0"))

	books := map[domain.Venue]domain.OrderBook{
		domain.VenueNobitex: book(domain.VenueNobitex, sym, now,
			levels("64900", "1"), levels("65000", "1")),
		domain.VenueWallex: book(domain.VenueWallex, sym, now,
			levels("65300", "1"), levels("65400", "1")),
	}

	// Profit exactly at the floor is rejected (strict inequality).
	assert.Empty(t, d.FindOpportunities(now, sym, books))

	d.cfg.MinProfitRef = dec("299.999999")
	assert.Len(t, d.FindOpportunities(now, sym, books), 1)
}

func TestThinTopLevelDropped(t *testing.T) {
	sym := domain.MustParseSymbol("BTCUSDT")
	now := time.Now()

	d := newDetector(t, Config{
		MinSpread:       dec("0.003"),
		MinOrderSize:    dec("0.01"),
		MaxPositionSize: dec("10"),
		MaxAge:          3 * time.Second,
	}, uniformFees("0.001"))

	books := map[domain.Venue]domain.OrderBook{
		domain.VenueNobitex: book(domain.VenueNobitex, sym, now,
			levels("64900", "1"), levels("65000", "0.001")), // saturates below min size
		domain.VenueWallex: book(domain.VenueWallex, sym, now,
			levels("65300", "1"), levels("65400", "1")),
	}
	assert.Empty(t, d.FindOpportunities(now, sym, books))

	// Depth of exactly one level on each side executes iff the level
	// carries the minimum size.
	books[domain.VenueNobitex] = book(domain.VenueNobitex, sym, now,
		nil, levels("65000", "0.01"))
	opps := d.FindOpportunities(now, sym, books)
	require.Len(t, opps, 1)
	assert.True(t, opps[0].Quantity.Equal(dec("0.01")))
}

func TestRankingOrder(t *testing.T) {
	sym := domain.MustParseSymbol("BTCUSDT")
	now := time.Now()

	d := newDetector(t, Config{
		MinSpread:       dec("0.001"),
		MaxPositionSize: dec("10"),
		MaxAge:          10 * time.Second,
	}, uniformFees("0"))

	// Three venues: nobitex is the cheap ask, wallex and tabdeal both bid
	// above it, wallex higher.
	books := map[domain.Venue]domain.OrderBook{
		domain.VenueNobitex: book(domain.VenueNobitex, sym, now,
			levels("64000", "1"), levels("65000", "1")),
		domain.VenueWallex: book(domain.VenueWallex, sym, now,
			levels("65500", "1"), levels("65600", "1")),
		domain.VenueTabdeal: book(domain.VenueTabdeal, sym, now,
			levels("65300", "1"), levels("65650", "1")),
	}

	opps := d.FindOpportunities(now, sym, books)
	require.NotEmpty(t, opps)
	// Best first: highest net profit.
	assert.Equal(t, domain.VenueWallex, opps[0].SellVenue)
	for i := 1; i < len(opps); i++ {
		assert.True(t, opps[i-1].NetProfitRef.GreaterThanOrEqual(opps[i].NetProfitRef))
	}
}

func TestRateTableConversion(t *testing.T) {
	rates := NewRateTable("USDT", map[string]decimal.Decimal{
		"IRT": dec("0.0000215"),
	})

	got, ok := rates.Convert("TMN", dec("1000000"))
	require.True(t, ok, "TMN shares the IRT family rate")
	assert.True(t, got.Equal(dec("21.5")))

	// Reference converts at 1.
	got, ok = rates.Convert("USDT", dec("5"))
	require.True(t, ok)
	assert.True(t, got.Equal(dec("5")))

	// Missing pair: raw amount back, unconverted.
	raw, ok := rates.Convert("EUR", dec("7"))
	assert.False(t, ok)
	assert.True(t, raw.Equal(dec("7")))
}

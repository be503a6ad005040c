package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func level(price, qty string) BookLevel {
	return BookLevel{Price: dec(price), Quantity: dec(qty)}
}

func TestOrderBookValidate(t *testing.T) {
	sym := MustParseSymbol("BTCUSDT")
	good := OrderBook{
		Venue:  VenueNobitex,
		Symbol: sym,
		Bids:   []BookLevel{level("65000", "1"), level("64990", "2")},
		Asks:   []BookLevel{level("65010", "1"), level("65020", "0.5")},
	}
	require.NoError(t, good.Validate())

	badBids := good
	badBids.Bids = []BookLevel{level("64990", "1"), level("65000", "1")}
	require.Error(t, badBids.Validate())

	badAsks := good
	badAsks.Asks = []BookLevel{level("65020", "1"), level("65010", "1")}
	require.Error(t, badAsks.Validate())

	zeroQty := good
	zeroQty.Bids = []BookLevel{level("65000", "0")}
	require.Error(t, zeroQty.Validate())

	equalPrices := good
	equalPrices.Asks = []BookLevel{level("65010", "1"), level("65010", "1")}
	require.Error(t, equalPrices.Validate())
}

func TestStalenessBoundary(t *testing.T) {
	now := time.Now()
	maxAge := 3 * time.Second
	book := OrderBook{Timestamp: now.Add(-maxAge)}

	// A snapshot at exactly max_age is stale.
	assert.True(t, book.Stale(now, maxAge))

	book.Timestamp = now.Add(-maxAge + time.Millisecond)
	assert.False(t, book.Stale(now, maxAge))
}

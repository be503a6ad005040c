package nobitex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/venue"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFetchOrderBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/orderbook/BTCIRT", r.URL.Path)
		w.Write([]byte(`{
			"status": "ok",
			"lastUpdate": 1700000000000,
			"bids": [["4250000000", "0.5"], ["4240000000", "1.2"]],
			"asks": [["4260000000", "0.3"], ["4270000000", "2"]]
		}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	book, err := c.FetchOrderBook(context.Background(), domain.MustParseSymbol("BTCIRT"), 20)
	require.NoError(t, err)

	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, "4250000000", book.Bids[0].Price.String())
	assert.Equal(t, "0.5", book.Bids[0].Quantity.String())
	assert.Equal(t, domain.VenueNobitex, book.Venue)
	require.NoError(t, book.Validate())
}

func TestFetchOrderBookClampsDepth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","bids":[["100","1"],["99","1"],["98","1"]],"asks":[["101","1"]]}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	book, err := c.FetchOrderBook(context.Background(), domain.MustParseSymbol("BTCIRT"), 2)
	require.NoError(t, err)
	assert.Len(t, book.Bids, 2, "depth trimmed client-side")

	_, err = c.FetchOrderBook(context.Background(), domain.MustParseSymbol("BTCIRT"), 0)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUnauthenticatedOrderCalls(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"})
	require.False(t, c.IsAuthenticated())

	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol:   domain.MustParseSymbol("BTCIRT"),
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: dec("1"),
		Price:    dec("4250000000"),
	})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestRateLimitedSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Retry: venue.RetryPolicy{MaxAttempts: 1}})
	_, err := c.FetchOrderBook(context.Background(), domain.MustParseSymbol("BTCIRT"), 5)
	require.ErrorIs(t, err, domain.ErrRateLimited)

	ve, ok := domain.AsVenueError(err)
	require.True(t, ok)
	assert.Equal(t, 429, ve.Status)
	assert.True(t, ve.Retryable())
}

func TestPlaceOrderValidation(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0", Token: "tok"})

	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol:   domain.MustParseSymbol("BTCIRT"),
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: dec("0"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = c.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol:   domain.MustParseSymbol("BTCIRT"),
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: dec("1"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput, "limit orders need a price")
}

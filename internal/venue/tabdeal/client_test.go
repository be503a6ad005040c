package tabdeal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faridmah/arbot/internal/crypto"
	"github.com/faridmah/arbot/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlaceOrderSignsCanonicalQuery(t *testing.T) {
	const secret = "top-secret"

	var verified bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/orders", r.URL.Path)
		assert.Equal(t, "my-key", r.Header.Get("X-MBX-APIKEY"))

		// Rebuild the canonical parameter encoding the client signed: the
		// JSON body fields plus the query timestamp, sorted by key.
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))

		params := url.Values{}
		for k, v := range payload {
			params.Set(k, v)
		}
		params.Set("timestamp", r.URL.Query().Get("timestamp"))

		auth := crypto.HMACAuth{Key: "my-key", Secret: secret}
		want := auth.QuerySignature(params.Encode())
		assert.Equal(t, want, r.URL.Query().Get("signature"))
		verified = true

		w.Write([]byte(`{"id": 991, "status": "new"}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, APIKey: "my-key", APISecret: secret})
	order, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol:   domain.MustParseSymbol("BTCIRT"),
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: dec("0.25"),
		Price:    dec("4250000000"),
	})
	require.NoError(t, err)
	require.True(t, verified, "server verified the signature")

	assert.Equal(t, "991", order.VenueID)
	assert.Equal(t, domain.OrderStatusOpen, order.Status)
	assert.True(t, order.Quantity.Equal(dec("0.25")))
}

func TestFetchOrderBookPublic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCIRT", r.URL.Query().Get("symbol"))
		assert.Empty(t, r.Header.Get("X-MBX-APIKEY"), "depth is a public endpoint")
		w.Write([]byte(`{"bids":[["4250000000","0.5"]],"asks":[["4260000000","0.3"]]}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	book, err := c.FetchOrderBook(context.Background(), domain.MustParseSymbol("BTCIRT"), 5)
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "4250000000", book.Bids[0].Price.String())
}

func TestPlaceOrderRequiresCredentials(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"})
	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol:   domain.MustParseSymbol("BTCIRT"),
		Side:     domain.SideSell,
		Type:     domain.OrderTypeLimit,
		Quantity: dec("1"),
		Price:    dec("4250000000"),
	})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

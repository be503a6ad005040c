package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyUpdateProgresses(t *testing.T) {
	now := time.Now()
	o := Order{
		Venue:    VenueNobitex,
		Symbol:   MustParseSymbol("BTCUSDT"),
		Side:     SideBuy,
		Type:     OrderTypeLimit,
		Quantity: dec("1"),
		Price:    dec("65000"),
		Status:   OrderStatusPending,
	}

	changed := o.ApplyUpdate(Order{Status: OrderStatusOpen, VenueID: "42"}, now)
	require.True(t, changed)
	assert.Equal(t, OrderStatusOpen, o.Status)
	assert.Equal(t, "42", o.VenueID)

	changed = o.ApplyUpdate(Order{Status: OrderStatusPartiallyFilled, FilledQty: dec("0.4"), AvgPrice: dec("64990")}, now)
	require.True(t, changed)
	assert.True(t, o.FilledQty.Equal(dec("0.4")))
	assert.True(t, o.AvgPrice.Equal(dec("64990")))

	changed = o.ApplyUpdate(Order{Status: OrderStatusFilled, FilledQty: dec("1")}, now)
	require.True(t, changed)
	assert.Equal(t, OrderStatusFilled, o.Status)
}

func TestApplyUpdateNeverRegressesFromTerminal(t *testing.T) {
	now := time.Now()
	o := Order{
		Status:    OrderStatusFilled,
		Quantity:  dec("1"),
		FilledQty: dec("1"),
		AvgPrice:  dec("65000"),
	}

	changed := o.ApplyUpdate(Order{Status: OrderStatusOpen, FilledQty: dec("2"), AvgPrice: dec("1")}, now.Add(time.Second))
	assert.False(t, changed)
	assert.Equal(t, OrderStatusFilled, o.Status)
	assert.True(t, o.FilledQty.Equal(dec("1")))
	assert.True(t, o.AvgPrice.Equal(dec("65000")))
	// Only the timestamp moves.
	assert.Equal(t, now.Add(time.Second), o.UpdatedAt)
}

func TestApplyUpdateFilledNeverShrinks(t *testing.T) {
	o := Order{Status: OrderStatusOpen, Quantity: dec("1"), FilledQty: dec("0.6")}
	o.ApplyUpdate(Order{Status: OrderStatusOpen, FilledQty: dec("0.2")}, time.Now())
	assert.True(t, o.FilledQty.Equal(dec("0.6")))
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, OrderStatusFilled.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.True(t, OrderStatusRejected.Terminal())
	assert.False(t, OrderStatusOpen.Terminal())
	assert.False(t, OrderStatusPartiallyFilled.Terminal())
	assert.False(t, OrderStatusPending.Terminal())
	assert.False(t, OrderStatusUnknown.Terminal())
}

package risk

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

func TestVolatilityBreakerTripAndProbe(t *testing.T) {
	sym := domain.MustParseSymbol("BTCUSDT")
	window := time.Minute
	cooldown := 5 * time.Minute
	b := NewVolatilityBreaker(window, dec("0.05"), cooldown, slog.Default())

	t0 := time.Now()
	b.Observe(sym, dec("65000"), t0)
	b.Observe(sym, dec("65100"), t0.Add(time.Second))
	assert.Equal(t, StateClosed, b.State(sym))
	assert.True(t, b.Allowed(sym, t0.Add(time.Second)))

	// A 7.7% move against the window's oldest price trips the breaker.
	b.Observe(sym, dec("70000"), t0.Add(2*time.Second))
	assert.Equal(t, StateOpen, b.State(sym))
	assert.False(t, b.Allowed(sym, t0.Add(3*time.Second)))

	// Still blocked inside the cooldown; tripping is monotonic.
	assert.False(t, b.Allowed(sym, t0.Add(cooldown-time.Second)))
	assert.Equal(t, StateOpen, b.State(sym))

	// Cooldown elapsed: half-open, but no order until a probe lands.
	assert.False(t, b.Allowed(sym, t0.Add(cooldown+3*time.Second)))
	assert.Equal(t, StateHalfOpen, b.State(sym))

	// Probe snapshots within bounds close it. The old history has fallen
	// out of the window by now.
	probeAt := t0.Add(cooldown + 4*time.Second)
	b.Observe(sym, dec("70000"), probeAt)
	b.Observe(sym, dec("70010"), probeAt.Add(time.Second))
	assert.Equal(t, StateClosed, b.State(sym))
	assert.True(t, b.Allowed(sym, probeAt.Add(2*time.Second)))
}

func TestVolatilityBreakerIsPerSymbol(t *testing.T) {
	btc := domain.MustParseSymbol("BTCUSDT")
	eth := domain.MustParseSymbol("ETHUSDT")
	b := NewVolatilityBreaker(time.Minute, dec("0.05"), time.Minute, slog.Default())

	t0 := time.Now()
	b.Observe(btc, dec("65000"), t0)
	b.Observe(btc, dec("75000"), t0.Add(time.Second))
	assert.Equal(t, StateOpen, b.State(btc))
	assert.True(t, b.Allowed(eth, t0.Add(time.Second)))
}

func TestConnectivityBreaker(t *testing.T) {
	b := NewConnectivityBreaker(3, time.Minute, slog.Default())
	v := domain.VenueNobitex
	t0 := time.Now()

	b.RecordFailure(v, t0)
	b.RecordFailure(v, t0)
	assert.Equal(t, StateClosed, b.State(v))

	// A success resets the consecutive run.
	b.RecordSuccess(v)
	b.RecordFailure(v, t0)
	b.RecordFailure(v, t0)
	assert.Equal(t, StateClosed, b.State(v))

	b.RecordFailure(v, t0)
	assert.Equal(t, StateOpen, b.State(v))
	assert.False(t, b.Allowed(v, t0.Add(time.Second)))

	// After the cooldown a probe is allowed.
	require.True(t, b.Allowed(v, t0.Add(2*time.Minute)))
	assert.Equal(t, StateHalfOpen, b.State(v))

	// Probe success closes.
	b.RecordSuccess(v)
	assert.Equal(t, StateClosed, b.State(v))
}

func TestConnectivityBreakerReopensOnFailedProbe(t *testing.T) {
	b := NewConnectivityBreaker(1, time.Minute, slog.Default())
	v := domain.VenueWallex
	t0 := time.Now()

	b.RecordFailure(v, t0)
	assert.Equal(t, StateOpen, b.State(v))
	require.True(t, b.Allowed(v, t0.Add(2*time.Minute)))
	b.RecordFailure(v, t0.Add(2*time.Minute))
	assert.Equal(t, StateOpen, b.State(v))
	assert.False(t, b.Allowed(v, t0.Add(2*time.Minute+time.Second)))
}

func TestErrorRateBreaker(t *testing.T) {
	b := NewErrorRateBreaker(10, 4, 0.5, time.Minute, slog.Default())
	v := domain.VenueTabdeal
	t0 := time.Now()

	// Below the sample floor nothing trips even at 100% failure.
	b.Record(v, false, t0)
	b.Record(v, false, t0)
	b.Record(v, false, t0)
	assert.Equal(t, StateClosed, b.State(v))

	// Fourth failure: 4/4 > 0.5 with the floor met.
	b.Record(v, false, t0)
	assert.Equal(t, StateOpen, b.State(v))
	assert.False(t, b.Allowed(v, t0.Add(time.Second)))

	// Half-open after cooldown; a success closes and clears the window.
	require.True(t, b.Allowed(v, t0.Add(2*time.Minute)))
	b.Record(v, true, t0.Add(2*time.Minute))
	assert.Equal(t, StateClosed, b.State(v))
}

package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
)

// RateTable converts quote-currency amounts into the reference currency.
// Rates are keyed by quote family so IRT, IRR and TMN share one entry.
type RateTable struct {
	reference string
	rates     map[string]decimal.Decimal
}

// NewRateTable builds a table from quote→rate pairs. The reference currency
// itself always converts at 1.
func NewRateTable(reference string, rates map[string]decimal.Decimal) *RateTable {
	normalised := make(map[string]decimal.Decimal, len(rates)+1)
	for quote, rate := range rates {
		normalised[domain.QuoteFamily(quote)] = rate
	}
	normalised[domain.QuoteFamily(reference)] = decimal.NewFromInt(1)
	return &RateTable{reference: reference, rates: normalised}
}

// Reference returns the reference currency code.
func (t *RateTable) Reference() string { return t.reference }

// Convert converts an amount denominated in quote into the reference
// currency. The second result is false when the table lacks the pair; the
// caller then keeps the raw quote amount and marks it unconverted.
func (t *RateTable) Convert(quote string, amount decimal.Decimal) (decimal.Decimal, bool) {
	rate, ok := t.rates[domain.QuoteFamily(quote)]
	if !ok {
		return amount, false
	}
	return amount.Mul(rate), true
}

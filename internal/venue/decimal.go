package venue

import "github.com/shopspring/decimal"

// RenderDecimal formats a price or quantity for the wire. shopspring's
// String never emits scientific notation, which is exactly the requirement:
// venues reject exponent forms.
func RenderDecimal(d decimal.Decimal) string {
	return d.String()
}

// RenderDecimalFixed formats with exactly places fractional digits,
// truncating toward zero rather than rounding so a quantity never exceeds
// what the caller sized.
func RenderDecimalFixed(d decimal.Decimal, places int32) string {
	return d.Truncate(places).StringFixed(places)
}

// TruncateToStep truncates qty toward zero to a multiple of step. A zero or
// negative step leaves qty unchanged.
func TruncateToStep(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return qty
	}
	return qty.Div(step).Truncate(0).Mul(step)
}

// Package money converts between the store's major-unit amounts (GHS) and
// Paystack's minor unit (pesewas, 1/100 GHS). Amounts are decimals end to
// end; floats would drift on values like 49.99.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// GhsToPesewas converts a GHS amount to pesewas, rounding to the nearest
// whole pesewa.
func GhsToPesewas(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// PesewasToGhs converts a pesewa amount back to GHS exactly.
func PesewasToGhs(pesewas int64) decimal.Decimal {
	return decimal.New(pesewas, -2)
}

// FormatGHS renders an amount for customer-facing messages, e.g. "GH₵150.00".
func FormatGHS(amount decimal.Decimal) string {
	return "GH₵" + amount.StringFixed(2)
}

package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatPrice renders an amount the way the shop shows it to Argentine
// buyers: "$ 1.234,56".
func FormatPrice(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}

	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	return sign + "$ " + b.String() + "," + frac
}

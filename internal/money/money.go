// Package money renders sale amounts for the operator console.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Locale and Currency of the play center.
var (
	Locale   = language.MustParse("es-MX")
	Currency = currency.MustParseISO("MXN")
)

var printer = message.NewPrinter(Locale)

// Format renders amount as pesos with es-MX digit grouping and two decimal
// places, e.g. "$1,234.50".
func Format(amount decimal.Decimal) string {
	digits, _ := currency.Standard.Rounding(Currency)
	rounded := amount.Round(int32(digits))

	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Neg()
	}
	return sign + "$" + printer.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(digits)))
}

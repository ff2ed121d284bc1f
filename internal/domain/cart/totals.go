package cart

import "github.com/shopspring/decimal"

// TaxRate is the sales tax applied to every sale.
var TaxRate = decimal.RequireFromString("0.16")

// CurrencyPlaces is the number of decimal places of the sale currency.
const CurrencyPlaces = 2

// Totals holds the amounts derived from a cart. They are computed on every
// read and never stored next to the cart.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Subtotal is the sum of price times quantity over all items.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Totals computes subtotal, tax and total for the current cart.
func (c *Cart) Totals() Totals {
	return ComputeTotals(c.Subtotal())
}

// ComputeTotals applies TaxRate to subtotal. Tax is rounded to currency
// precision and total is subtotal plus the rounded tax.
func ComputeTotals(subtotal decimal.Decimal) Totals {
	tax := subtotal.Mul(TaxRate).Round(CurrencyPlaces)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

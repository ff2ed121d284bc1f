// Package cart implements the point-of-sale cart: stock-bounded line items and
// the totals derived from them.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/astroplay-pos/internal/domain/product"
)

// Item pairs a product with the quantity being sold. The product is a copy of
// the catalog record taken when the item was added; the cart never writes it
// back.
type Item struct {
	Product  product.Product
	Quantity int
}

// LineTotal is price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is an ordered set of items, unique by product ID.
//
// Every mutation keeps 1 <= quantity <= product stock for every item. Requests
// that would break that bound are refused silently: they return false and leave
// the cart unchanged. The zero value is an empty cart. A Cart is not safe for
// concurrent use.
type Cart struct {
	items []Item
}

// Items returns a copy of the cart lines in insertion order.
func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of distinct products in the cart.
func (c *Cart) Len() int { return len(c.items) }

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool { return len(c.items) == 0 }

// Units returns the total number of units across all items.
func (c *Cart) Units() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Quantity returns the quantity held for productID, or 0.
func (c *Cart) Quantity(productID string) int {
	if i := c.index(productID); i >= 0 {
		return c.items[i].Quantity
	}
	return 0
}

func (c *Cart) index(productID string) int {
	for i := range c.items {
		if c.items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// Add puts one unit of p in the cart.
//
// Out-of-stock products are refused. An existing item is incremented only
// while the new quantity stays within p.Stock. The stock bound is checked
// against p, the caller's current view of the product.
func (c *Cart) Add(p product.Product) bool {
	if p.Stock <= 0 {
		return false
	}
	if i := c.index(p.ID); i >= 0 {
		if c.items[i].Quantity >= p.Stock {
			return false
		}
		c.items[i].Quantity++
		return true
	}
	c.items = append(c.items, Item{Product: p, Quantity: 1})
	return true
}

// Remove deletes the item for productID regardless of its quantity. Removing
// an absent product is a no-op.
func (c *Cart) Remove(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

// AdjustQuantity moves the quantity of productID by delta, which must be +1 or
// -1. It never deletes: a change that would leave zero units is refused, and
// callers wanting the item gone call Remove. A change above the product's stock
// is refused too.
func (c *Cart) AdjustQuantity(productID string, delta int) bool {
	if delta != 1 && delta != -1 {
		return false
	}
	i := c.index(productID)
	if i < 0 {
		return false
	}
	next := c.items[i].Quantity + delta
	if next <= 0 || next > c.items[i].Product.Stock {
		return false
	}
	c.items[i].Quantity = next
	return true
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = nil
}

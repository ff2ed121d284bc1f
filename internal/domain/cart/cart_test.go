package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/astroplay-pos/internal/domain/product"
)

func newTestProduct(id, name string, price string, stock int) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		MinStock: 1,
		Category: product.CategorySnacks,
	}
}

func TestAdd_OutOfStock(t *testing.T) {
	var c Cart
	p := newTestProduct("1", "Chips", "10", 0)

	assert.False(t, c.Add(p))
	assert.True(t, c.IsEmpty())
}

func TestAdd_StockCeiling(t *testing.T) {
	var c Cart
	chips := newTestProduct("1", "Chips", "10", 2)

	require.True(t, c.Add(chips))
	require.True(t, c.Add(chips))
	assert.False(t, c.Add(chips), "third add exceeds stock")

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].Product.ID)
	assert.Equal(t, 2, items[0].Quantity)

	totals := c.Totals()
	assert.True(t, decimal.RequireFromString("20").Equal(totals.Subtotal), totals.Subtotal)
	assert.True(t, decimal.RequireFromString("3.2").Equal(totals.Tax), totals.Tax)
	assert.True(t, decimal.RequireFromString("23.2").Equal(totals.Total), totals.Total)
}

func TestAdd_KeepsInsertionOrderAndUniqueness(t *testing.T) {
	var c Cart
	a := newTestProduct("a", "Chips", "10", 5)
	b := newTestProduct("b", "Soda", "15", 5)

	c.Add(a)
	c.Add(b)
	c.Add(a)

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Product.ID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "b", items[1].Product.ID)
	assert.Equal(t, 3, c.Units())
}

func TestAdd_UsesCallerStock(t *testing.T) {
	var c Cart
	c.Add(newTestProduct("1", "Chips", "10", 5))
	c.Add(newTestProduct("1", "Chips", "10", 5))

	// A reload reports only two units left.
	assert.False(t, c.Add(newTestProduct("1", "Chips", "10", 2)))
	assert.Equal(t, 2, c.Quantity("1"))
}

func TestRemove_Idempotent(t *testing.T) {
	var c Cart
	c.Add(newTestProduct("1", "Chips", "10", 3))
	c.Add(newTestProduct("1", "Chips", "10", 3))

	assert.True(t, c.Remove("1"))
	assert.True(t, c.IsEmpty())
	assert.False(t, c.Remove("1"))
	assert.True(t, c.IsEmpty())
}

func TestAdjustQuantity(t *testing.T) {
	tests := []struct {
		name    string
		stock   int
		adds    int
		delta   int
		want    int
		changed bool
	}{
		{name: "increment within stock", stock: 3, adds: 1, delta: 1, want: 2, changed: true},
		{name: "increment at stock refused", stock: 2, adds: 2, delta: 1, want: 2},
		{name: "decrement", stock: 3, adds: 2, delta: -1, want: 1, changed: true},
		{name: "decrement at one keeps item", stock: 3, adds: 1, delta: -1, want: 1},
		{name: "delta outside unit step refused", stock: 9, adds: 1, delta: 3, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Cart
			p := newTestProduct("1", "Chips", "10", tt.stock)
			for range tt.adds {
				c.Add(p)
			}

			assert.Equal(t, tt.changed, c.AdjustQuantity("1", tt.delta))
			assert.Equal(t, tt.want, c.Quantity("1"))
			assert.Equal(t, 1, c.Len())
		})
	}
}

func TestAdjustQuantity_ThenRemove(t *testing.T) {
	var c Cart
	c.Add(newTestProduct("1", "Chips", "10", 2))

	assert.False(t, c.AdjustQuantity("1", -1))
	assert.Equal(t, 1, c.Quantity("1"))

	c.Remove("1")
	assert.True(t, c.IsEmpty())
}

func TestAdjustQuantity_Missing(t *testing.T) {
	var c Cart
	assert.False(t, c.AdjustQuantity("nope", 1))
}

func TestClear(t *testing.T) {
	var c Cart
	c.Add(newTestProduct("1", "Chips", "10", 2))
	c.Add(newTestProduct("2", "Soda", "12", 2))

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.True(t, decimal.Zero.Equal(c.Subtotal()))
}

func TestItems_ReturnsCopy(t *testing.T) {
	var c Cart
	c.Add(newTestProduct("1", "Chips", "10", 2))

	items := c.Items()
	items[0].Quantity = 99
	assert.Equal(t, 1, c.Quantity("1"))
}

func TestTotals(t *testing.T) {
	var c Cart
	c.Add(newTestProduct("1", "Chips", "12.50", 10))
	c.Add(newTestProduct("1", "Chips", "12.50", 10))
	c.Add(newTestProduct("2", "Socks", "33.33", 10))

	totals := c.Totals()
	assert.True(t, decimal.RequireFromString("58.33").Equal(totals.Subtotal), totals.Subtotal)
	// 58.33 * 0.16 = 9.3328
	assert.True(t, decimal.RequireFromString("9.33").Equal(totals.Tax), totals.Tax)
	assert.True(t, decimal.RequireFromString("67.66").Equal(totals.Total), totals.Total)
}

func TestTotals_Empty(t *testing.T) {
	var c Cart
	totals := c.Totals()
	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, totals.Tax.IsZero())
	assert.True(t, totals.Total.IsZero())
}

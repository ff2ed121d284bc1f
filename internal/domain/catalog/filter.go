package catalog

import (
	"strings"

	"github.com/xenking/astroplay-pos/internal/domain/product"
)

// Query narrows the catalog shown on the sales screen.
type Query struct {
	// Search is matched case-insensitively as a substring of the product name.
	Search string
	// Category must equal the product category. Empty or product.CategoryAll
	// matches everything.
	Category product.Category
}

func (q Query) matchCategory(p product.Product) bool {
	return q.Category == "" || q.Category == product.CategoryAll || p.Category == q.Category
}

func matchName(name, needle string) bool {
	return needle == "" || strings.Contains(strings.ToLower(name), needle)
}

// Filter returns the products matching q in their original order. The input
// slice is not modified.
func Filter(products []product.Product, q Query) []product.Product {
	needle := strings.ToLower(q.Search)
	out := make([]product.Product, 0, len(products))
	for _, p := range products {
		if q.matchCategory(p) && matchName(p.Name, needle) {
			out = append(out, p)
		}
	}
	return out
}

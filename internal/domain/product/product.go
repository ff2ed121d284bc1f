package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Category groups products on the sales floor.
type Category string

const (
	CategorySnacks Category = "Snacks"
	CategoryDrinks Category = "Drinks"
	CategorySocks  Category = "Socks"

	// CategoryAll is the filter sentinel that matches every category. It is
	// never stored on a product.
	CategoryAll Category = "All"
)

// Categories lists the categories a product may belong to, in display order.
var Categories = []Category{CategorySnacks, CategoryDrinks, CategorySocks}

// IsValid reports whether c is one of the storable categories.
func (c Category) IsValid() bool {
	switch c {
	case CategorySnacks, CategoryDrinks, CategorySocks:
		return true
	default:
		return false
	}
}

// StockStatus is the advisory stock badge shown next to a product.
type StockStatus string

const (
	StockOK  StockStatus = "ok"
	StockLow StockStatus = "low"
	StockOut StockStatus = "out"
)

// Product represents a catalog item available for sale.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Stock    int
	MinStock int
	Category Category
	Cost     decimal.NullDecimal
	// Image is a fetchable URL, or empty when the product has no image.
	Image   string
	Created time.Time
}

// StockStatus derives the stock badge. Min-stock only affects display: a low
// product can still be sold down to zero.
func (p Product) StockStatus() StockStatus {
	switch {
	case p.Stock <= 0:
		return StockOut
	case p.MinStock > 0 && p.Stock < p.MinStock:
		return StockLow
	default:
		return StockOK
	}
}

// ListParams selects a page of the catalog.
type ListParams struct {
	Page    int
	PerPage int
	// Sort follows the "-field" convention for descending order.
	Sort string
}

// DefaultListParams fetches the newest 50 products.
var DefaultListParams = ListParams{Page: 1, PerPage: 50, Sort: "-created"}

// Repository is the catalog store: the remote collection holding product
// records.
type Repository interface {
	List(ctx context.Context, params ListParams) ([]Product, error)
	Create(ctx context.Context, form Form) (*Product, error)
	Update(ctx context.Context, id string, form Form) (*Product, error)
	Delete(ctx context.Context, id string) error
	// FileURL maps a stored file reference of a record to a fetchable URL.
	// An empty filename yields an empty URL.
	FileURL(recordID, filename string) string
}

// StockDecrementer is implemented by stores able to take units out of stock
// when a sale completes.
type StockDecrementer interface {
	DecrementStock(ctx context.Context, lines []StockLine) error
}

// StockLine is a quantity to take out of a product's stock.
type StockLine struct {
	ProductID string
	Quantity  int
}

// ErrInsufficientStock is returned by a StockDecrementer when a line asks for
// more units than the store holds.
var ErrInsufficientStock = errors.New("insufficient stock")

// Package catalog holds the in-memory product catalog of the sales screen:
// wholesale reloads from the catalog store, live filtering, and the
// administrator's create/update/delete path.
package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/astroplay-pos/internal/domain/product"
)

// Catalog is a snapshot of the catalog store. It is replaced wholesale on
// every reload and never patched locally.
//
// Each reload takes a sequence number when it starts. A reload that finishes
// after a newer one has already been applied is discarded, so a slow response
// cannot overwrite fresher data.
type Catalog struct {
	repo   product.Repository
	params product.ListParams
	now    func() time.Time

	seq atomic.Uint64

	mu       sync.RWMutex
	products []product.Product
	applied  uint64
	loadedAt time.Time
}

// New creates an empty Catalog reading pages described by params from repo.
func New(repo product.Repository, params product.ListParams) *Catalog {
	return &Catalog{
		repo:   repo,
		params: params,
		now:    time.Now,
	}
}

// Reload fetches the catalog from the store. On failure the snapshot stays
// at its last known state. It reports whether the fetched data was applied.
func (c *Catalog) Reload(ctx context.Context) (bool, error) {
	seq := c.seq.Add(1)

	products, err := c.repo.List(ctx, c.params)
	if err != nil {
		return false, errors.Wrap(err, "list products")
	}
	return c.apply(seq, products), nil
}

func (c *Catalog) apply(seq uint64, products []product.Product) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.applied {
		return false
	}
	c.products = products
	c.applied = seq
	c.loadedAt = c.now()
	return true
}

// Products returns a copy of the whole snapshot in store order.
func (c *Catalog) Products() []product.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]product.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Find returns the snapshot record for id.
func (c *Catalog) Find(id string) (product.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return product.Product{}, false
}

// Search filters the current snapshot.
func (c *Catalog) Search(q Query) []product.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Filter(c.products, q)
}

// LoadedAt returns when the current snapshot was applied, or the zero time
// before the first successful reload.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.loadedAt
}

// Stats summarises the snapshot for the dashboard.
type Stats struct {
	Products   int
	LowStock   int
	OutOfStock int
	Units      int
}

// Stats counts products per stock status.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s Stats
	for _, p := range c.products {
		s.Products++
		s.Units += p.Stock
		switch p.StockStatus() {
		case product.StockLow:
			s.LowStock++
		case product.StockOut:
			s.OutOfStock++
		}
	}
	return s
}

package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/astroplay-pos/internal/domain/product"
)

var (
	// ErrSaveFailed is the generic save failure reported when the store's
	// response carries no field-level detail.
	ErrSaveFailed = errors.New("unknown error while saving product")
	// ErrConfirmationRequired is returned by Delete when the caller has not
	// confirmed the deletion.
	ErrConfirmationRequired = errors.New("product deletion must be confirmed")
)

// Admin is the administrator's write path to the catalog store. Every
// successful write is followed by a full reload of the catalog rather than a
// local patch.
type Admin struct {
	repo    product.Repository
	catalog *Catalog
}

// NewAdmin creates an Admin writing to repo and refreshing catalog.
func NewAdmin(repo product.Repository, catalog *Catalog) *Admin {
	return &Admin{repo: repo, catalog: catalog}
}

// Save creates a product when id is empty and updates product id otherwise.
//
// A rejected form yields the store's *product.ValidationError. Any other
// failure is reported as ErrSaveFailed wrapping the cause, except
// product.ErrNotFound which is passed through.
func (a *Admin) Save(ctx context.Context, id string, form product.Form) (*product.Product, error) {
	var (
		p   *product.Product
		err error
	)
	if id == "" {
		p, err = a.repo.Create(ctx, form)
	} else {
		p, err = a.repo.Update(ctx, id, form)
	}
	if err != nil {
		var verr *product.ValidationError
		switch {
		case errors.As(err, &verr):
			return nil, verr
		case errors.Is(err, product.ErrNotFound):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
		}
	}

	a.reload(ctx)
	return p, nil
}

// Delete removes product id. It refuses to touch the store unless confirmed.
func (a *Admin) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := a.repo.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete product %s", id)
	}

	a.reload(ctx)
	return nil
}

// reload refreshes the catalog after a write. The write already succeeded, so
// a failed reload only leaves the snapshot stale until the next one.
func (a *Admin) reload(ctx context.Context) {
	if _, err := a.catalog.Reload(ctx); err != nil {
		zctx.From(ctx).Warn("Catalog reload after write failed", zap.Error(err))
	}
}

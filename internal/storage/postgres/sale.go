package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/cart"
	"github.com/xenking/astroplay-pos/internal/domain/checkout"
)

const insertSaleSQL = `INSERT INTO sales (id, terminal, operator_id, items, subtotal, tax, total, payment_method, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

var _ checkout.Ledger = (*SaleRepository)(nil)

// SaleRepository implements checkout.Ledger backed by PostgreSQL.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// Record persists a completed sale. The sold lines are stored as a JSONB
// snapshot so later catalog edits do not rewrite history.
func (r *SaleRepository) Record(ctx context.Context, terminal string, rc *checkout.Receipt) error {
	var operator string
	if sess, ok := auth.FromContext(ctx); ok {
		operator = sess.User.ID
	}

	_, err := r.pool.Exec(ctx, insertSaleSQL,
		rc.ID, terminal, operator, encodeSaleItems(rc.Items),
		rc.Totals.Subtotal, rc.Totals.Tax, rc.Totals.Total,
		string(rc.PaymentMethod), rc.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("recording sale %q: %w", rc.ID, err)
	}
	return nil
}

func encodeSaleItems(items []cart.Item) string {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("product_id", func(e *jx.Encoder) { e.Str(it.Product.ID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(it.Product.Name) })
				e.Field("price", func(e *jx.Encoder) {
					e.Num(jx.Num(it.Product.Price.StringFixed(cart.CurrencyPlaces)))
				})
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
			})
		}
	})
	return e.String()
}

package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/cart"
	"github.com/xenking/astroplay-pos/internal/domain/checkout"
	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/domain/product"
	"github.com/xenking/astroplay-pos/internal/money"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 64 << 10

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// respond encodes a single object built by fn with status 200.
func respond(w http.ResponseWriter, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	e.Obj(fn)
	writeJSON(w, http.StatusOK, &e)
}

// decodeObject reads a JSON object from the request body and calls fn for
// every key. An empty body is treated as {}.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	if err != nil {
		return badRequest("request body too large")
	}
	if len(data) == 0 {
		return nil
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return badRequest("request body must be a JSON object")
	}
	if err := d.Obj(fn); err != nil {
		var bad *badRequestError
		if errors.As(err, &bad) {
			return err
		}
		return badRequest("malformed JSON body")
	}
	return nil
}

func encodeMoney(e *jx.Encoder, name string, amount decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) {
		e.Num(jx.Num(amount.StringFixed(cart.CurrencyPlaces)))
	})
	e.Field(name+"Formatted", func(e *jx.Encoder) { e.Str(money.Format(amount)) })
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		encodeMoney(e, "price", p.Price)
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
		e.Field("minStock", func(e *jx.Encoder) { e.Int(p.MinStock) })
		e.Field("category", func(e *jx.Encoder) { e.Str(string(p.Category)) })
		e.Field("cost", func(e *jx.Encoder) {
			if !p.Cost.Valid {
				e.Null()
				return
			}
			e.Num(jx.Num(p.Cost.Decimal.StringFixed(cart.CurrencyPlaces)))
		})
		e.Field("image", func(e *jx.Encoder) {
			if p.Image == "" {
				e.Null()
				return
			}
			e.Str(p.Image)
		})
		e.Field("stockStatus", func(e *jx.Encoder) { e.Str(string(p.StockStatus())) })
		if !p.Created.IsZero() {
			e.Field("created", func(e *jx.Encoder) { e.Str(p.Created.UTC().Format(time.RFC3339)) })
		}
	})
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			encodeProduct(e, p)
		}
	})
}

func encodeItems(e *jx.Encoder, items []cart.Item) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("product", func(e *jx.Encoder) { encodeProduct(e, it.Product) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
				encodeMoney(e, "lineTotal", it.LineTotal())
			})
		}
	})
}

func encodeTotals(e *jx.Encoder, t cart.Totals) {
	e.Obj(func(e *jx.Encoder) {
		encodeMoney(e, "subtotal", t.Subtotal)
		encodeMoney(e, "tax", t.Tax)
		encodeMoney(e, "total", t.Total)
	})
}

func encodeCart(e *jx.Encoder, v pos.CartView) {
	units := 0
	for _, it := range v.Items {
		units += it.Quantity
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, v.Items) })
		e.Field("units", func(e *jx.Encoder) { e.Int(units) })
		e.Field("totals", func(e *jx.Encoder) { encodeTotals(e, v.Totals) })
	})
}

func encodeReceipt(e *jx.Encoder, r *checkout.Receipt) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(r.ID) })
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, r.Items) })
		e.Field("totals", func(e *jx.Encoder) { encodeTotals(e, r.Totals) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(r.PaymentMethod)) })
		e.Field("message", func(e *jx.Encoder) { e.Str(r.Message) })
		e.Field("completedAt", func(e *jx.Encoder) { e.Str(r.CompletedAt.UTC().Format(time.RFC3339)) })
	})
}

func encodeUser(e *jx.Encoder, u auth.User) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(u.ID) })
		e.Field("email", func(e *jx.Encoder) { e.Str(u.Email) })
		e.Field("name", func(e *jx.Encoder) { e.Str(u.Name) })
		e.Field("role", func(e *jx.Encoder) { e.Str(string(u.Role)) })
	})
}

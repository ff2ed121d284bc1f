package docstore

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/astroplay-pos/internal/domain/product"
)

// createdLayout is the timestamp format of system fields.
const createdLayout = "2006-01-02 15:04:05.999Z07:00"

// imageField is the file field holding a product image.
const imageField = "imagen"

// ProductRepository implements product.Repository on the document database.
type ProductRepository struct {
	c *Client
}

// Products returns the product collection of c.
func (c *Client) Products() *ProductRepository {
	return &ProductRepository{c: c}
}

var (
	_ product.Repository       = (*ProductRepository)(nil)
	_ product.StockDecrementer = (*ProductRepository)(nil)
)

// List fetches one page of products.
func (r *ProductRepository) List(ctx context.Context, params product.ListParams) ([]product.Product, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		q.Set("perPage", strconv.Itoa(params.PerPage))
	}
	if params.Sort != "" {
		q.Set("sort", params.Sort)
	}
	body, err := r.c.do(ctx, request{
		method: http.MethodGet,
		url:    r.c.endpoint(q, "api", "collections", r.c.products, "records"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	var products []product.Product
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			p, err := r.decodeRecord(d)
			if err != nil {
				return err
			}
			products = append(products, p)
			return nil
		})
	}); err != nil {
		return nil, errors.Wrap(err, "decode product list")
	}
	return products, nil
}

// Create stores a new product record.
func (r *ProductRepository) Create(ctx context.Context, form product.Form) (*product.Product, error) {
	return r.write(ctx, http.MethodPost, r.c.endpoint(nil, "api", "collections", r.c.products, "records"), form)
}

// Update replaces the fields of record id. The image is only replaced when
// the form carries one.
func (r *ProductRepository) Update(ctx context.Context, id string, form product.Form) (*product.Product, error) {
	return r.write(ctx, http.MethodPatch, r.c.endpoint(nil, "api", "collections", r.c.products, "records", id), form)
}

func (r *ProductRepository) write(ctx context.Context, method, endpoint string, form product.Form) (*product.Product, error) {
	body, contentType, err := encodeForm(form)
	if err != nil {
		return nil, errors.Wrap(err, "encode form")
	}
	resp, err := r.c.do(ctx, request{
		method:      method,
		url:         endpoint,
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, err
	}
	p, err := r.decodeRecord(jx.DecodeBytes(resp))
	if err != nil {
		return nil, errors.Wrap(err, "decode product")
	}
	return &p, nil
}

// Delete removes record id.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	_, err := r.c.do(ctx, request{
		method: http.MethodDelete,
		url:    r.c.endpoint(nil, "api", "collections", r.c.products, "records", id),
	})
	return err
}

// FileURL returns the download URL of a file attached to a product record.
func (r *ProductRepository) FileURL(recordID, filename string) string {
	if recordID == "" || filename == "" {
		return ""
	}
	return r.c.endpoint(nil, "api", "files", r.c.products, recordID, filename)
}

// DecrementStock takes the sold units out of each product. The server
// rejects a negative stock, which is reported as product.ErrInsufficientStock.
// Lines are applied one at a time; a failure leaves earlier lines applied.
func (r *ProductRepository) DecrementStock(ctx context.Context, lines []product.StockLine) error {
	for _, line := range lines {
		var e jx.Encoder
		e.Obj(func(e *jx.Encoder) {
			e.Field("stock-", func(e *jx.Encoder) { e.Int(line.Quantity) })
		})
		_, err := r.c.do(ctx, request{
			method:      http.MethodPatch,
			url:         r.c.endpoint(nil, "api", "collections", r.c.products, "records", line.ProductID),
			body:        e.Bytes(),
			contentType: "application/json",
		})
		if err != nil {
			var verr *product.ValidationError
			if errors.As(err, &verr) {
				if _, ok := verr.Field("stock"); ok {
					return errors.Wrapf(product.ErrInsufficientStock, "product %s", line.ProductID)
				}
			}
			return errors.Wrapf(err, "decrement stock of %s", line.ProductID)
		}
	}
	return nil
}

func encodeForm(form product.Form) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"name", form.Name},
		{"price", form.Price.String()},
		{"stock", strconv.Itoa(form.Stock)},
		{"min_stock", strconv.Itoa(form.MinStock)},
		{"category", string(form.Category)},
	}
	if form.Cost.Valid {
		fields = append(fields, struct{ name, value string }{"cost", form.Cost.Decimal.String()})
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if img := form.Image; img != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, imageField, img.Name))
		contentType := img.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// decodeRecord reads a product record. Unknown fields are skipped. A cost of
// zero is treated as not set, since the server stores an empty number as 0.
func (r *ProductRepository) decodeRecord(d *jx.Decoder) (product.Product, error) {
	var (
		p     product.Product
		image string
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "stock":
			p.Stock, err = decodeInt(d)
		case "min_stock":
			p.MinStock, err = decodeInt(d)
		case "category":
			var c string
			c, err = d.Str()
			p.Category = product.Category(c)
		case "cost":
			var cost decimal.Decimal
			cost, err = decodeDecimal(d)
			if err == nil && !cost.IsZero() {
				p.Cost = decimal.NewNullDecimal(cost)
			}
		case imageField:
			image, err = decodeOptionalStr(d)
		case "created":
			var s string
			s, err = d.Str()
			if err == nil && s != "" {
				p.Created, err = time.Parse(createdLayout, s)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %s", key)
		}
		return nil
	})
	if err != nil {
		return product.Product{}, err
	}
	p.Image = r.FileURL(p.ID, image)
	return p, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}

func decodeInt(d *jx.Decoder) (int, error) {
	v, err := decodeDecimal(d)
	if err != nil {
		return 0, err
	}
	return int(v.IntPart()), nil
}

func decodeOptionalStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

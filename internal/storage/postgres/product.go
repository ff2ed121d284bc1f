package postgres

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/astroplay-pos/internal/domain/product"
)

const (
	productColumns = `id, name, price, stock, min_stock, category, cost, image_name, created`

	insertProductSQL = `INSERT INTO products (id, name, price, stock, min_stock, category, cost, image_name, image_type, image_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + productColumns

	updateProductSQL = `UPDATE products
		SET name = $2, price = $3, stock = $4, min_stock = $5, category = $6, cost = $7
		WHERE id = $1
		RETURNING ` + productColumns

	updateProductImageSQL = `UPDATE products
		SET name = $2, price = $3, stock = $4, min_stock = $5, category = $6, cost = $7,
			image_name = $8, image_type = $9, image_data = $10
		WHERE id = $1
		RETURNING ` + productColumns

	upsertProductSQL = `INSERT INTO products (id, name, price, stock, min_stock, category, cost, image_name, image_type, image_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock,
			min_stock = EXCLUDED.min_stock, category = EXCLUDED.category, cost = EXCLUDED.cost,
			image_name = CASE WHEN EXCLUDED.image_name = '' THEN products.image_name ELSE EXCLUDED.image_name END,
			image_type = CASE WHEN EXCLUDED.image_name = '' THEN products.image_type ELSE EXCLUDED.image_type END,
			image_data = CASE WHEN EXCLUDED.image_name = '' THEN products.image_data ELSE EXCLUDED.image_data END
		RETURNING ` + productColumns

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	getImageSQL = `SELECT image_name, image_type, image_data FROM products WHERE id = $1`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	// maxImageSize bounds stored image bytes.
	maxImageSize = 5 << 20
)

// sortColumns maps accepted sort keys to SQL.
var sortColumns = map[string]string{
	"created":  "created ASC, id ASC",
	"-created": "created DESC, id DESC",
	"name":     "name ASC, id ASC",
	"-name":    "name DESC, id DESC",
	"price":    "price ASC, id ASC",
	"-price":   "price DESC, id DESC",
}

var (
	_ product.Repository       = (*ProductRepository)(nil)
	_ product.StockDecrementer = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository backed by PostgreSQL.
// Images are stored inline and served under FilesURL.
type ProductRepository struct {
	pool     *pgxpool.Pool
	filesURL string
}

// NewProductRepository returns a ProductRepository that uses the given pool.
// filesURL is the public prefix image URLs are built on, e.g. "/api/files".
func NewProductRepository(pool *pgxpool.Pool, filesURL string) *ProductRepository {
	return &ProductRepository{pool: pool, filesURL: strings.TrimRight(filesURL, "/")}
}

// List returns one page of the catalog.
func (r *ProductRepository) List(ctx context.Context, params product.ListParams) ([]product.Product, error) {
	order, ok := sortColumns[params.Sort]
	if !ok {
		order = sortColumns[product.DefaultListParams.Sort]
	}
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = product.DefaultListParams.PerPage
	}
	page := max(params.Page, 1)

	query := fmt.Sprintf(`SELECT %s FROM products ORDER BY %s LIMIT $1 OFFSET $2`, productColumns, order)
	rows, err := r.pool.Query(ctx, query, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, r.scanProduct)
}

// Create validates form and inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, form product.Form) (*product.Product, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	img, err := checkImage(form.Image)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, insertProductSQL,
		uuid.NewString(), form.Name, form.Price, form.Stock, form.MinStock, string(form.Category), form.Cost,
		img.name, img.contentType, img.data,
	)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, r.scanProduct)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}
	return &p, nil
}

// Update validates form and overwrites product id. The stored image is kept
// unless the form carries a new one.
func (r *ProductRepository) Update(ctx context.Context, id string, form product.Form) (*product.Product, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	args := []any{id, form.Name, form.Price, form.Stock, form.MinStock, string(form.Category), form.Cost}
	query := updateProductSQL
	if form.Image != nil {
		img, err := checkImage(form.Image)
		if err != nil {
			return nil, err
		}
		query = updateProductImageSQL
		args = append(args, img.name, img.contentType, img.data)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, r.scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("updating product %q: %w", id, err)
	}
	return &p, nil
}

// Upsert validates form and writes it under id, creating the product when it
// does not exist. The stored image is kept unless the form carries one.
func (r *ProductRepository) Upsert(ctx context.Context, id string, form product.Form) (*product.Product, error) {
	if id == "" {
		return nil, errors.New("product id is required")
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}
	img, err := checkImage(form.Image)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, upsertProductSQL,
		id, form.Name, form.Price, form.Stock, form.MinStock, string(form.Category), form.Cost,
		img.name, img.contentType, img.data,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, r.scanProduct)
	if err != nil {
		return nil, fmt.Errorf("upserting product %q: %w", id, err)
	}
	return &p, nil
}

// Delete removes product id.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// FileURL returns the URL the API serves the image of record id under.
func (r *ProductRepository) FileURL(recordID, filename string) string {
	if recordID == "" || filename == "" {
		return ""
	}
	return r.filesURL + "/" + url.PathEscape(recordID) + "/" + url.PathEscape(filename)
}

// Image returns the stored image of product id. It returns
// product.ErrNotFound when the product does not exist, has no image, or the
// image is stored under another name.
func (r *ProductRepository) Image(ctx context.Context, id, filename string) (*product.File, error) {
	var f product.File
	err := r.pool.QueryRow(ctx, getImageSQL, id).Scan(&f.Name, &f.ContentType, &f.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting image of %q: %w", id, err)
	}
	if f.Name == "" || f.Name != filename {
		return nil, product.ErrNotFound
	}
	return &f, nil
}

// DecrementStock takes the sold units out of stock in one transaction. No
// line is applied unless all of them fit.
func (r *ProductRepository) DecrementStock(ctx context.Context, lines []product.StockLine) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, line := range lines {
			tag, err := tx.Exec(ctx, decrementStockSQL, line.ProductID, line.Quantity)
			if err != nil {
				return fmt.Errorf("decrementing stock of %q: %w", line.ProductID, err)
			}
			if tag.RowsAffected() > 0 {
				continue
			}
			var exists bool
			if err := tx.QueryRow(ctx, productExistsSQL, line.ProductID).Scan(&exists); err != nil {
				return fmt.Errorf("checking product %q: %w", line.ProductID, err)
			}
			if !exists {
				return errors.Wrapf(product.ErrNotFound, "product %s", line.ProductID)
			}
			return errors.Wrapf(product.ErrInsufficientStock, "product %s", line.ProductID)
		}
		return nil
	})
}

func (r *ProductRepository) scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		price    decimal.Decimal
		category string
		image    string
	)
	err := row.Scan(
		&p.ID, &p.Name, &price, &p.Stock, &p.MinStock, &category, &p.Cost, &image, &p.Created,
	)
	p.Price = price
	p.Category = product.Category(category)
	p.Image = r.FileURL(p.ID, image)
	return p, err
}

type storedImage struct {
	name        string
	contentType string
	data        []byte
}

// checkImage sniffs the uploaded bytes and rejects anything but images.
func checkImage(f *product.File) (storedImage, error) {
	if f == nil || len(f.Data) == 0 {
		return storedImage{}, nil
	}
	invalid := func(code, msg string) error {
		return &product.ValidationError{Fields: []product.FieldError{{Field: "imagen", Code: code, Message: msg}}}
	}
	if len(f.Data) > maxImageSize {
		return storedImage{}, invalid("validation_file_size_limit", fmt.Sprintf("Failed to upload %q - the maximum allowed file size is %d bytes.", f.Name, maxImageSize))
	}
	mt := mimetype.Detect(f.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return storedImage{}, invalid("validation_invalid_mime_type", fmt.Sprintf("%q mime type must be one of: image/*.", f.Name))
	}

	name := path.Base(strings.ReplaceAll(f.Name, `\`, "/"))
	if name == "." || name == "/" {
		name = "image"
	}
	if path.Ext(name) == "" {
		name += mt.Extension()
	}
	return storedImage{name: name, contentType: mt.String(), data: f.Data}, nil
}

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/product"
	"github.com/xenking/astroplay-pos/internal/storage/postgres"
)

const workers = 4

// seedProduct is one entry of the products file. Image is a path relative to
// the images directory.
type seedProduct struct {
	ID    string
	Form  product.Form
	Image string
}

type options struct {
	databaseURL   string
	productsFile  string
	imagesDir     string
	adminEmail    string
	adminName     string
	adminPassword string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally gzipped (.gz)")
	flag.StringVar(&opts.imagesDir, "images-dir", "", "directory product image paths are relative to (defaults to the products file directory)")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@astroplay.mx", "administrator email")
	flag.StringVar(&opts.adminName, "admin-name", "Administrador", "administrator display name")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "administrator password (or POS_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.adminPassword == "" {
		opts.adminPassword = os.Getenv("POS_SEED_ADMIN_PASSWORD")
	}
	if opts.adminPassword == "" {
		lg.Fatal("Admin password is required: set --admin-password or POS_SEED_ADMIN_PASSWORD")
	}
	if opts.imagesDir == "" {
		opts.imagesDir = filepath.Dir(opts.productsFile)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	products, err := readProducts(opts.productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}
	lg.Info("Read products file",
		zap.String("path", opts.productsFile),
		zap.Int("count", len(products)),
	)

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool, "/api/files"), products, opts.imagesDir); err != nil {
		return errors.Wrap(err, "seed products")
	}

	id, err := postgres.NewUserRepository(pool).Upsert(ctx, auth.User{
		Email: opts.adminEmail,
		Name:  opts.adminName,
		Role:  auth.RoleAdmin,
	}, opts.adminPassword)
	if err != nil {
		return errors.Wrap(err, "seed admin")
	}
	lg.Info("Upserted administrator", zap.String("id", id), zap.String("email", opts.adminEmail))
	return nil
}

// seedProducts upserts products concurrently.
func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, products []seedProduct, imagesDir string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sp := range products {
		g.Go(func() error {
			form := sp.Form
			if sp.Image != "" {
				f, err := readImage(filepath.Join(imagesDir, sp.Image))
				if err != nil {
					return errors.Wrapf(err, "product %s", sp.ID)
				}
				form.Image = f
			}
			p, err := repo.Upsert(ctx, sp.ID, form)
			if err != nil {
				return errors.Wrapf(err, "upsert product %s", sp.ID)
			}
			lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
			return nil
		})
	}
	return g.Wait()
}

func readImage(path string) (*product.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}
	return &product.File{Name: filepath.Base(path), Data: data}, nil
}

// readProducts parses the products file, decompressing it when it ends in
// ".gz".
func readProducts(path string) ([]seedProduct, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decodeProducts(data)
}

// decodeProducts parses a JSON array of
// {"id","name","price","stock","minStock","category","cost","image"}.
// Missing fields keep the defaults of a blank product form.
func decodeProducts(data []byte) ([]seedProduct, error) {
	var out []seedProduct
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		sp := seedProduct{Form: product.NewForm()}
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				sp.ID, err = d.Str()
			case "name":
				sp.Form.Name, err = d.Str()
			case "price":
				sp.Form.Price, err = decodeDecimal(d)
			case "stock":
				sp.Form.Stock, err = d.Int()
			case "minStock":
				sp.Form.MinStock, err = d.Int()
			case "category":
				var s string
				s, err = d.Str()
				sp.Form.Category = product.Category(s)
			case "cost":
				if d.Next() == jx.Null {
					return d.Null()
				}
				var c decimal.Decimal
				c, err = decodeDecimal(d)
				sp.Form.Cost = decimal.NewNullDecimal(c)
			case "image":
				sp.Image, err = d.Str()
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			return nil
		}); err != nil {
			return err
		}
		if sp.ID == "" {
			return errors.Errorf("product %q has no id", sp.Form.Name)
		}
		out = append(out, sp)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return out, nil
}

// decodeDecimal accepts prices written as JSON numbers or strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

package main

import (
	"os"
	"path/filepath"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/astroplay-pos/internal/domain/product"
)

const sample = `[
	{"id":"a","name":"Papas","price":25,"stock":4,"minStock":2,"category":"Snacks","cost":"14.50","image":"papas.png"},
	{"id":"b","name":"Agua","price":"18.5","category":"Drinks","cost":null,"extra":[1,2]}
]`

func TestDecodeProducts(t *testing.T) {
	products, err := decodeProducts([]byte(sample))
	require.NoError(t, err)
	require.Len(t, products, 2)

	a := products[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, "papas.png", a.Image)
	assert.True(t, decimal.NewFromInt(25).Equal(a.Form.Price))
	assert.Equal(t, 2, a.Form.MinStock)
	require.True(t, a.Form.Cost.Valid)
	assert.True(t, decimal.RequireFromString("14.5").Equal(a.Form.Cost.Decimal))

	b := products[1]
	assert.True(t, decimal.RequireFromString("18.5").Equal(b.Form.Price))
	assert.Equal(t, product.DefaultMinStock, b.Form.MinStock, "missing fields keep form defaults")
	assert.Equal(t, product.CategoryDrinks, b.Form.Category)
	assert.False(t, b.Form.Cost.Valid)
}

func TestDecodeProducts_Errors(t *testing.T) {
	_, err := decodeProducts([]byte(`[{"name":"No id"}]`))
	assert.ErrorContains(t, err, "has no id")

	_, err = decodeProducts([]byte(`[{"id":"x","stock":"many"}]`))
	assert.ErrorContains(t, err, `field "stock"`)
}

func TestReadProducts_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := pgzip.NewWriter(f)
	_, err = zw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	products, err := readProducts(path)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestReadProducts_SeedFile(t *testing.T) {
	products, err := readProducts(filepath.Join("..", "..", "db", "seed", "products.json"))
	require.NoError(t, err)
	require.NotEmpty(t, products)
	for _, p := range products {
		assert.NoError(t, p.Form.Validate(), p.ID)
	}
}

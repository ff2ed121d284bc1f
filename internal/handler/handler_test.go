package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/catalog"
	"github.com/xenking/astroplay-pos/internal/domain/checkout"
	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/domain/product"
	"github.com/xenking/astroplay-pos/internal/storage/memory"
)

// --- Mock implementations ---

type mockRepo struct {
	mu       sync.Mutex
	products []product.Product
	listErr  error
	nextID   int
}

func (m *mockRepo) List(_ context.Context, _ product.ListParams) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]product.Product, len(m.products))
	copy(out, m.products)
	return out, nil
}

func (m *mockRepo) Create(_ context.Context, form product.Form) (*product.Product, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p := product.Product{
		ID:       "new" + string(rune('0'+m.nextID)),
		Name:     form.Name,
		Price:    form.Price,
		Stock:    form.Stock,
		MinStock: form.MinStock,
		Category: form.Category,
		Cost:     form.Cost,
	}
	m.products = append([]product.Product{p}, m.products...)
	return &p, nil
}

func (m *mockRepo) Update(_ context.Context, id string, form product.Form) (*product.Product, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.products {
		if p.ID == id {
			p.Name, p.Price, p.Stock = form.Name, form.Price, form.Stock
			m.products[i] = p
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.products {
		if p.ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return product.ErrNotFound
}

func (m *mockRepo) FileURL(recordID, filename string) string {
	if filename == "" {
		return ""
	}
	return "/api/files/" + recordID + "/" + filename
}

type mockAuthenticator struct {
	users map[string]auth.User
}

func (m *mockAuthenticator) Authenticate(_ context.Context, email, password string) (*auth.Identity, error) {
	u, ok := m.users[email]
	if !ok || password != "secret" {
		return nil, auth.ErrInvalidCredentials
	}
	return &auth.Identity{User: u}, nil
}

type mockImages struct{}

func (mockImages) Image(_ context.Context, id, name string) (*product.File, error) {
	if id != "1" || name != "chips.png" {
		return nil, product.ErrNotFound
	}
	return &product.File{Name: name, ContentType: "image/png", Data: []byte("png")}, nil
}

// --- Helpers ---

type testEnv struct {
	repo    *mockRepo
	handler http.Handler
}

func seedProducts() []product.Product {
	return []product.Product{
		{ID: "1", Name: "Papas Chips", Price: decimal.NewFromInt(10), Stock: 2, MinStock: 5, Category: product.CategorySnacks},
		{ID: "2", Name: "Agua", Price: decimal.RequireFromString("12.50"), Stock: 10, MinStock: 5, Category: product.CategoryDrinks},
		{ID: "3", Name: "Calcetas", Price: decimal.NewFromInt(45), Stock: 0, Category: product.CategorySocks},
	}
}

func newEnv(t *testing.T, images ImageSource) *testEnv {
	t.Helper()
	return newEnvWithCheckout(t, images, checkout.Config{})
}

func newEnvWithCheckout(t *testing.T, images ImageSource, checkoutCfg checkout.Config) *testEnv {
	t.Helper()
	repo := &mockRepo{products: seedProducts()}
	cat := catalog.New(repo, product.DefaultListParams)
	_, err := cat.Reload(context.Background())
	require.NoError(t, err)

	authSvc := auth.NewService(&mockAuthenticator{users: map[string]auth.User{
		"admin@astroplay.mx": {ID: "u1", Email: "admin@astroplay.mx", Name: "Admin", Role: auth.RoleAdmin},
		"caja@astroplay.mx":  {ID: "u2", Email: "caja@astroplay.mx", Name: "Caja", Role: auth.RoleOperator},
	}}, memory.NewSessionStore(), auth.TokenConfig{Secret: "secret", Issuer: "astroplay", TTL: time.Hour})

	co, err := checkout.NewService(checkoutCfg, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	h := New(Config{CaptureEndpoint: "/capture"}, Deps{
		Auth:      authSvc,
		Catalog:   cat,
		Admin:     catalog.NewAdmin(repo, cat),
		Terminals: pos.NewRegistry(),
		Checkout:  co,
		Images:    images,
	})
	return &testEnv{repo: repo, handler: h.Routes()}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func (env *testEnv) doJSON(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return env.do(t, method, path, token, r, "application/json")
}

func (env *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	w := env.doJSON(t, http.MethodPost, "/api/auth/login", "", `{"email":"`+email+`","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func cartOf(t *testing.T, body map[string]any) (items []any, totals map[string]any) {
	t.Helper()
	c, ok := body["cart"].(map[string]any)
	require.True(t, ok, "cart missing")
	items, _ = c["items"].([]any)
	totals, _ = c["totals"].(map[string]any)
	return items, totals
}

func productForm(t *testing.T, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// --- Tests ---

func TestLogin(t *testing.T) {
	env := newEnv(t, nil)

	t.Run("wrong password", func(t *testing.T) {
		w := env.doJSON(t, http.MethodPost, "/api/auth/login", "", `{"email":"caja@astroplay.mx","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, auth.ErrInvalidCredentials.Error(), decode(t, w)["message"])
	})

	t.Run("malformed body", func(t *testing.T) {
		w := env.doJSON(t, http.MethodPost, "/api/auth/login", "", `[1,2]`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("me and logout", func(t *testing.T) {
		token := env.login(t, "caja@astroplay.mx")

		w := env.doJSON(t, http.MethodGet, "/api/auth/me", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		user := decode(t, w)["user"].(map[string]any)
		assert.Equal(t, "operator", user["role"])

		w = env.doJSON(t, http.MethodPost, "/api/auth/logout", token, "")
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = env.doJSON(t, http.MethodGet, "/api/auth/me", token, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireSession(t *testing.T) {
	env := newEnv(t, nil)

	w := env.doJSON(t, http.MethodGet, "/api/products", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, http.StatusUnauthorized, body["code"])

	w = env.doJSON(t, http.MethodGet, "/api/products", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newEnv(t, nil)
	w := env.doJSON(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestListProducts(t *testing.T) {
	env := newEnv(t, nil)
	token := env.login(t, "caja@astroplay.mx")

	tests := []struct {
		name  string
		query string
		ids   []string
	}{
		{name: "all", query: "", ids: []string{"1", "2", "3"}},
		{name: "sentinel", query: "?category=All", ids: []string{"1", "2", "3"}},
		{name: "category", query: "?category=Drinks", ids: []string{"2"}},
		{name: "search is case-insensitive", query: "?search=CHIPS", ids: []string{"1"}},
		{name: "search and category", query: "?search=a&category=Socks", ids: []string{"3"}},
		{name: "no match", query: "?search=zzz", ids: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.doJSON(t, http.MethodGet, "/api/products"+tt.query, token, "")
			require.Equal(t, http.StatusOK, w.Code)
			items := decode(t, w)["items"].([]any)
			ids := make([]string, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.(map[string]any)["id"].(string))
			}
			assert.Equal(t, tt.ids, ids)
		})
	}

	t.Run("unknown category", func(t *testing.T) {
		w := env.doJSON(t, http.MethodGet, "/api/products?category=Toys", token, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("product fields", func(t *testing.T) {
		w := env.doJSON(t, http.MethodGet, "/api/products?category=Snacks", token, "")
		p := decode(t, w)["items"].([]any)[0].(map[string]any)
		assert.EqualValues(t, 10, p["price"])
		assert.Equal(t, "$10.00", p["priceFormatted"])
		assert.Equal(t, "low", p["stockStatus"])
		assert.Nil(t, p["cost"])
		assert.Nil(t, p["image"])
	})
}

func TestReloadProducts(t *testing.T) {
	env := newEnv(t, nil)
	token := env.login(t, "caja@astroplay.mx")

	w := env.doJSON(t, http.MethodPost, "/api/products/reload", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["applied"])

	env.repo.listErr = errors.New("connection refused")
	w = env.doJSON(t, http.MethodPost, "/api/products/reload", token, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	// The snapshot survives a failed reload.
	w = env.doJSON(t, http.MethodGet, "/api/products", token, "")
	assert.Len(t, decode(t, w)["items"], 3)
}

func TestCart(t *testing.T) {
	env := newEnv(t, nil)
	token := env.login(t, "caja@astroplay.mx")

	add := func(id string) *httptest.ResponseRecorder {
		return env.doJSON(t, http.MethodPost, "/api/cart/items", token, `{"productId":"`+id+`"}`)
	}

	w := add("1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["changed"])

	w = add("1")
	body = decode(t, w)
	assert.Equal(t, true, body["changed"])
	items, totals := cartOf(t, body)
	require.Len(t, items, 1)
	assert.EqualValues(t, 2, items[0].(map[string]any)["quantity"])
	assert.EqualValues(t, 20, totals["subtotal"])
	assert.EqualValues(t, 3.2, totals["tax"])
	assert.EqualValues(t, 23.2, totals["total"])
	assert.Equal(t, "$23.20", totals["totalFormatted"])

	t.Run("stock bound", func(t *testing.T) {
		body := decode(t, add("1"))
		assert.Equal(t, false, body["changed"])
	})

	t.Run("out of stock", func(t *testing.T) {
		body := decode(t, add("3"))
		assert.Equal(t, false, body["changed"])
	})

	t.Run("unknown product", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, add("missing").Code)
	})

	t.Run("missing product id", func(t *testing.T) {
		w := env.doJSON(t, http.MethodPost, "/api/cart/items", token, `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("adjust", func(t *testing.T) {
		w := env.doJSON(t, http.MethodPatch, "/api/cart/items/1", token, `{"delta":-1}`)
		body := decode(t, w)
		assert.Equal(t, true, body["changed"])

		// Quantity never drops below one.
		w = env.doJSON(t, http.MethodPatch, "/api/cart/items/1", token, `{"delta":-1}`)
		body = decode(t, w)
		assert.Equal(t, false, body["changed"])
		items, _ := cartOf(t, body)
		assert.Len(t, items, 1)

		w = env.doJSON(t, http.MethodPatch, "/api/cart/items/1", token, `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("remove and clear", func(t *testing.T) {
		add("2")
		w := env.doJSON(t, http.MethodDelete, "/api/cart/items/1", token, "")
		body := decode(t, w)
		assert.Equal(t, true, body["changed"])
		items, _ := cartOf(t, body)
		assert.Len(t, items, 1)

		w = env.doJSON(t, http.MethodDelete, "/api/cart", token, "")
		body = decode(t, w)
		assert.Equal(t, true, body["changed"])
		items, _ = cartOf(t, body)
		assert.Empty(t, items)

		w = env.doJSON(t, http.MethodDelete, "/api/cart", token, "")
		assert.Equal(t, false, decode(t, w)["changed"])
	})

	t.Run("carts are per session", func(t *testing.T) {
		add("2")
		other := env.login(t, "caja@astroplay.mx")
		w := env.doJSON(t, http.MethodGet, "/api/cart", other, "")
		items, _ := cartOf(t, decode(t, w))
		assert.Empty(t, items)
	})
}

func TestCheckout(t *testing.T) {
	env := newEnv(t, nil)
	token := env.login(t, "caja@astroplay.mx")

	w := env.doJSON(t, http.MethodPost, "/api/checkout", token, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, checkout.ErrEmptyCart.Error(), decode(t, w)["message"])

	env.doJSON(t, http.MethodPost, "/api/cart/items", token, `{"productId":"2"}`)

	w = env.doJSON(t, http.MethodPost, "/api/checkout", token, `{"paymentMethod":"bitcoin"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.doJSON(t, http.MethodPost, "/api/checkout", token, `{"paymentMethod":"card"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	receipt := decode(t, w)["receipt"].(map[string]any)
	assert.Equal(t, "card", receipt["paymentMethod"])
	assert.Equal(t, checkout.SuccessMessage, receipt["message"])
	assert.EqualValues(t, 14.5, receipt["totals"].(map[string]any)["total"])

	w = env.doJSON(t, http.MethodGet, "/api/cart", token, "")
	items, _ := cartOf(t, decode(t, w))
	assert.Empty(t, items)
}

func TestCheckout_ClientGone(t *testing.T) {
	env := newEnvWithCheckout(t, nil, checkout.Config{Delay: time.Hour})
	token := env.login(t, "caja@astroplay.mx")
	env.doJSON(t, http.MethodPost, "/api/cart/items", token, `{"productId":"2"}`)

	core, logs := observer.New(zap.ErrorLevel)
	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), zap.New(core)))
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, statusClientClosedRequest, w.Code)
	assert.Zero(t, logs.Len(), "client disconnects are not logged as failures")

	w = env.doJSON(t, http.MethodGet, "/api/cart", token, "")
	items, _ := cartOf(t, decode(t, w))
	assert.Len(t, items, 1, "cart kept when the sale is abandoned")
}

func TestProductAdmin(t *testing.T) {
	env := newEnv(t, nil)
	admin := env.login(t, "admin@astroplay.mx")
	operator := env.login(t, "caja@astroplay.mx")

	t.Run("operator is forbidden", func(t *testing.T) {
		body, ct := productForm(t, map[string]string{"name": "Jugo", "price": "15"})
		w := env.do(t, http.MethodPost, "/api/products", operator, body, ct)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("validation error names the field", func(t *testing.T) {
		body, ct := productForm(t, map[string]string{"price": "15"})
		w := env.do(t, http.MethodPost, "/api/products", admin, body, ct)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "name", decode(t, w)["field"])
	})

	t.Run("unparsable number", func(t *testing.T) {
		body, ct := productForm(t, map[string]string{"name": "Jugo", "stock": "many"})
		w := env.do(t, http.MethodPost, "/api/products", admin, body, ct)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "stock", decode(t, w)["field"])
	})

	t.Run("not multipart", func(t *testing.T) {
		w := env.doJSON(t, http.MethodPost, "/api/products", admin, `{"name":"Jugo"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("create applies defaults and reloads", func(t *testing.T) {
		body, ct := productForm(t, map[string]string{"name": "Jugo", "price": "15", "stock": "4"})
		w := env.do(t, http.MethodPost, "/api/products", admin, body, ct)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		p := decode(t, w)
		assert.Equal(t, "Snacks", p["category"])
		assert.EqualValues(t, 5, p["minStock"])

		w = env.doJSON(t, http.MethodGet, "/api/products?search=jugo", admin, "")
		assert.Len(t, decode(t, w)["items"], 1)
	})

	t.Run("update unknown product", func(t *testing.T) {
		body, ct := productForm(t, map[string]string{"name": "Jugo"})
		w := env.do(t, http.MethodPut, "/api/products/missing", admin, body, ct)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete requires confirmation", func(t *testing.T) {
		w := env.doJSON(t, http.MethodDelete, "/api/products/2", admin, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.doJSON(t, http.MethodDelete, "/api/products/2?confirm=true", admin, "")
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = env.doJSON(t, http.MethodDelete, "/api/products/2?confirm=true", admin, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestViews(t *testing.T) {
	env := newEnv(t, nil)
	token := env.login(t, "caja@astroplay.mx")

	t.Run("dashboard", func(t *testing.T) {
		w := env.doJSON(t, http.MethodGet, "/api/views/dashboard", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		stats := body["catalog"].(map[string]any)
		assert.EqualValues(t, 3, stats["products"])
		assert.EqualValues(t, 1, stats["lowStock"])
		assert.EqualValues(t, 1, stats["outOfStock"])
		assert.EqualValues(t, 0, body["shift"].(map[string]any)["sales"])
	})

	t.Run("checkin", func(t *testing.T) {
		w := env.doJSON(t, http.MethodGet, "/api/views/CheckIn", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "checkin", body["view"])
		assert.Equal(t, "/capture", body["captureEndpoint"])
		assert.Len(t, body["fields"], len(checkInFields))
	})

	t.Run("inventory", func(t *testing.T) {
		w := env.doJSON(t, http.MethodGet, "/api/views/inventory?category=Drinks", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Len(t, body["products"], 1)
		assert.Contains(t, body, "cart")
	})

	t.Run("unknown", func(t *testing.T) {
		w := env.doJSON(t, http.MethodGet, "/api/views/settings", token, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestFiles(t *testing.T) {
	t.Run("served by store", func(t *testing.T) {
		env := newEnv(t, nil)
		w := env.doJSON(t, http.MethodGet, "/api/files/1/chips.png", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("served by api", func(t *testing.T) {
		env := newEnv(t, mockImages{})
		w := env.doJSON(t, http.MethodGet, "/api/files/1/chips.png", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, "png", w.Body.String())

		w = env.doJSON(t, http.MethodGet, "/api/files/1/other.png", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", bearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(req))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err        error
		status     int
		unexpected bool
	}{
		{err: &product.ValidationError{Fields: []product.FieldError{{Field: "price"}}}, status: 422},
		{err: &product.ValidationError{Message: "Failed to create record."}, status: 422},
		{err: errors.Wrap(pos.ErrBusy, "reload"), status: 409},
		{err: checkout.ErrCheckoutInProgress, status: 409},
		{err: errors.Wrap(product.ErrInsufficientStock, "decrement stock"), status: 409},
		{err: catalog.ErrConfirmationRequired, status: 400},
		{err: errors.Wrap(catalog.ErrSaveFailed, "boom"), status: 502, unexpected: true},
		{err: storeError(errors.New("refused")), status: 502, unexpected: true},
		{err: context.DeadlineExceeded, status: 504, unexpected: true},
		{err: errors.Wrap(context.Canceled, "checkout"), status: 499},
		{err: errors.New("boom"), status: 500, unexpected: true},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			e, unexpected := classify(tt.err)
			assert.Equal(t, tt.status, e.status)
			assert.Equal(t, tt.unexpected, unexpected)
		})
	}
}

// Package handler serves the point-of-sale HTTP API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/catalog"
	"github.com/xenking/astroplay-pos/internal/domain/checkout"
	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/domain/product"
	"github.com/xenking/astroplay-pos/pkg/httpmiddleware"
)

// ImageSource serves product images stored by the catalog store itself.
type ImageSource interface {
	// Image returns product.ErrNotFound when there is no such image.
	Image(ctx context.Context, productID, filename string) (*product.File, error)
}

// Config holds non-dependency settings of the Handler.
type Config struct {
	// MaxUploadSize bounds multipart product forms.
	MaxUploadSize int64
	// CaptureEndpoint is advertised by the check-in view for the camera flow.
	CaptureEndpoint string
}

// Deps are the domain services the handlers delegate to.
type Deps struct {
	Auth      *auth.Service
	Catalog   *catalog.Catalog
	Admin     *catalog.Admin
	Terminals *pos.Registry
	Checkout  *checkout.Service
	// Images is nil when the catalog store serves its own files.
	Images ImageSource
}

// Handler implements the HTTP API on top of the domain services.
type Handler struct {
	cfg       Config
	auth      *auth.Service
	catalog   *catalog.Catalog
	admin     *catalog.Admin
	terminals *pos.Registry
	checkout  *checkout.Service
	images    ImageSource
	now       func() time.Time
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 10 << 20
	}
	return &Handler{
		cfg:       cfg,
		auth:      deps.Auth,
		catalog:   deps.Catalog,
		admin:     deps.Admin,
		terminals: deps.Terminals,
		checkout:  deps.Checkout,
		images:    deps.Images,
		now:       time.Now,
	}
}

// Routes mounts the API under /api. The given middlewares run inside the
// router, where the matched route pattern is known.
func (h *Handler) Routes(middlewares ...httpmiddleware.Middleware) chi.Router {
	r := chi.NewRouter()
	for _, mw := range middlewares {
		r.Use(mw)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.login)
		r.Get("/files/{id}/{name}", h.file)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Post("/auth/logout", h.logout)
			r.Get("/auth/me", h.me)

			r.Get("/products", h.listProducts)
			r.Post("/products/reload", h.reloadProducts)
			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/products", h.createProduct)
				r.Put("/products/{id}", h.updateProduct)
				r.Delete("/products/{id}", h.deleteProduct)
			})

			r.Get("/cart", h.getCart)
			r.Delete("/cart", h.clearCart)
			r.Post("/cart/items", h.addCartItem)
			r.Patch("/cart/items/{id}", h.adjustCartItem)
			r.Delete("/cart/items/{id}", h.removeCartItem)

			r.Post("/checkout", h.checkoutCart)

			r.Get("/views/{view}", h.view)
		})
	})
	return r
}

// terminal returns the sales terminal of the request's session.
func (h *Handler) terminal(r *http.Request) *pos.Terminal {
	s, _ := auth.FromContext(r.Context())
	return h.terminals.Get(s.ID)
}

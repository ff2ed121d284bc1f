package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/domain/product"
)

// writeCart answers a cart mutation. Refused mutations are not errors: they
// report changed=false with the unchanged cart.
func writeCart(w http.ResponseWriter, changed bool, v pos.CartView) {
	respond(w, func(e *jx.Encoder) {
		e.Field("changed", func(e *jx.Encoder) { e.Bool(changed) })
		e.Field("cart", func(e *jx.Encoder) { encodeCart(e, v) })
	})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	v := h.terminal(r).View()
	respond(w, func(e *jx.Encoder) {
		e.Field("cart", func(e *jx.Encoder) { encodeCart(e, v) })
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	changed, v := h.terminal(r).Clear()
	writeCart(w, changed, v)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "productId" {
			return d.Skip()
		}
		var err error
		id, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if id == "" {
		writeError(w, r, badRequest("productId is required"))
		return
	}

	p, ok := h.catalog.Find(id)
	if !ok {
		writeError(w, r, product.ErrNotFound)
		return
	}
	changed, v := h.terminal(r).Add(p)
	writeCart(w, changed, v)
}

func (h *Handler) adjustCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		delta int
		set   bool
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "delta" {
			return d.Skip()
		}
		var err error
		delta, err = d.Int()
		set = err == nil
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if !set {
		writeError(w, r, badRequest("delta is required"))
		return
	}

	changed, v := h.terminal(r).AdjustQuantity(chi.URLParam(r, "id"), delta)
	writeCart(w, changed, v)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	changed, v := h.terminal(r).Remove(chi.URLParam(r, "id"))
	writeCart(w, changed, v)
}

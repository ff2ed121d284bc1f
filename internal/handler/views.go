package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/view"
)

// checkInFields are the inputs of the child check-in form.
var checkInFields = []struct {
	name     string
	label    string
	kind     string
	required bool
}{
	{name: "parentName", label: "Nombre del tutor", kind: "text", required: true},
	{name: "parentPhone", label: "Teléfono", kind: "tel", required: true},
	{name: "parentEmail", label: "Correo", kind: "email"},
	{name: "childName", label: "Nombre del niño", kind: "text", required: true},
	{name: "childBirthDate", label: "Fecha de nacimiento", kind: "date", required: true},
	{name: "allergies", label: "Alergias", kind: "textarea"},
}

// view renders the data behind one console screen.
func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	v, err := view.Parse(chi.URLParam(r, "view"))
	if err != nil {
		writeError(w, r, errNotFound)
		return
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("view", func(e *jx.Encoder) { e.Str(v.String()) })
		switch v {
		case view.Dashboard:
			h.dashboard(e, r)
		case view.CheckIn:
			h.checkIn(e, r)
		case view.Inventory:
			h.inventory(e, r)
		}
	})
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) dashboard(e *jx.Encoder, r *http.Request) {
	stats := h.catalog.Stats()
	shift := h.checkout.Shift()
	cartView := h.terminal(r).View()

	e.Field("catalog", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("products", func(e *jx.Encoder) { e.Int(stats.Products) })
			e.Field("lowStock", func(e *jx.Encoder) { e.Int(stats.LowStock) })
			e.Field("outOfStock", func(e *jx.Encoder) { e.Int(stats.OutOfStock) })
			e.Field("units", func(e *jx.Encoder) { e.Int(stats.Units) })
			if at := h.catalog.LoadedAt(); !at.IsZero() {
				e.Field("loadedAt", func(e *jx.Encoder) { e.Str(at.UTC().Format(time.RFC3339)) })
			}
		})
	})
	e.Field("cartLines", func(e *jx.Encoder) { e.Int(len(cartView.Items)) })
	e.Field("shift", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("sales", func(e *jx.Encoder) { e.Int(shift.Sales) })
			encodeMoney(e, "revenue", shift.Revenue)
		})
	})
	e.Field("serverTime", func(e *jx.Encoder) { e.Str(h.now().UTC().Format(time.RFC3339)) })
}

func (h *Handler) checkIn(e *jx.Encoder, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	e.Field("operator", func(e *jx.Encoder) { encodeUser(e, sess.User) })
	e.Field("captureEndpoint", func(e *jx.Encoder) {
		if h.cfg.CaptureEndpoint == "" {
			e.Null()
			return
		}
		e.Str(h.cfg.CaptureEndpoint)
	})
	e.Field("fields", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, f := range checkInFields {
				e.Obj(func(e *jx.Encoder) {
					e.Field("name", func(e *jx.Encoder) { e.Str(f.name) })
					e.Field("label", func(e *jx.Encoder) { e.Str(f.label) })
					e.Field("type", func(e *jx.Encoder) { e.Str(f.kind) })
					e.Field("required", func(e *jx.Encoder) { e.Bool(f.required) })
				})
			}
		})
	})
}

func (h *Handler) inventory(e *jx.Encoder, r *http.Request) {
	q, _ := parseQuery(r)
	products := h.catalog.Search(q)
	cartView := h.terminal(r).View()

	e.Field("products", func(e *jx.Encoder) { encodeProducts(e, products) })
	e.Field("cart", func(e *jx.Encoder) { encodeCart(e, cartView) })
}

package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/astroplay-pos/internal/domain/checkout"
)

func (h *Handler) checkoutCart(w http.ResponseWriter, r *http.Request) {
	var raw string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "paymentMethod" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	method, err := checkout.ParsePaymentMethod(raw)
	if err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}

	receipt, err := h.checkout.Checkout(r.Context(), h.terminal(r), method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, func(e *jx.Encoder) {
		e.Field("receipt", func(e *jx.Encoder) { encodeReceipt(e, receipt) })
	})
}

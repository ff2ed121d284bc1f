package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// file serves a product image kept by the catalog store.
func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		writeError(w, r, errNotFound)
		return
	}
	f, err := h.images.Image(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

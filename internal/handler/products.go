package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/astroplay-pos/internal/domain/catalog"
	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/domain/product"
)

// parseQuery reads the search and category filters. On an unknown category
// the returned query keeps the search and matches every category.
func parseQuery(r *http.Request) (catalog.Query, error) {
	q := catalog.Query{
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
		Category: product.Category(r.URL.Query().Get("category")),
	}
	if q.Category != "" && q.Category != product.CategoryAll && !q.Category.IsValid() {
		bad := q.Category
		q.Category = ""
		return q, badRequest("unknown category " + strconv.Quote(string(bad)))
	}
	return q, nil
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	products := h.catalog.Search(q)
	respond(w, func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) { encodeProducts(e, products) })
		e.Field("total", func(e *jx.Encoder) { e.Int(len(products)) })
	})
}

func (h *Handler) reloadProducts(w http.ResponseWriter, r *http.Request) {
	release, err := h.terminal(r).Begin(pos.OpReload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer release()

	applied, err := h.catalog.Reload(r.Context())
	if err != nil {
		writeError(w, r, storeError(err))
		return
	}
	products := h.catalog.Products()
	respond(w, func(e *jx.Encoder) {
		e.Field("applied", func(e *jx.Encoder) { e.Bool(applied) })
		e.Field("items", func(e *jx.Encoder) { encodeProducts(e, products) })
	})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) saveProduct(w http.ResponseWriter, r *http.Request, id string) {
	release, err := h.terminal(r).Begin(pos.OpSave)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer release()

	form, err := h.parseForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.admin.Save(r.Context(), id, form)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	var e jx.Encoder
	encodeProduct(&e, *p)
	writeJSON(w, status, &e)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	release, err := h.terminal(r).Begin(pos.OpDelete)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer release()

	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	err = h.admin.Delete(r.Context(), chi.URLParam(r, "id"), confirmed)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, catalog.ErrConfirmationRequired), errors.Is(err, product.ErrNotFound):
		writeError(w, r, err)
	default:
		writeError(w, r, storeError(err))
	}
}

// Multipart field names of the product form.
const (
	fieldName     = "name"
	fieldPrice    = "price"
	fieldStock    = "stock"
	fieldMinStock = "min_stock"
	fieldCategory = "category"
	fieldCost     = "cost"
	fieldImage    = "imagen"
)

// parseForm reads a multipart product form. Fields missing from the request
// keep the defaults of product.NewForm.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (product.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return product.Form{}, badRequest("product form too large")
		}
		return product.Form{}, badRequest("expected a multipart product form")
	}

	form := product.NewForm()
	var fields []product.FieldError
	invalid := func(field string) {
		fields = append(fields, product.FieldError{
			Field:   field,
			Code:    "validation_invalid_number",
			Message: "Must be a valid number.",
		})
	}
	value := func(name string) (string, bool) {
		vs, ok := r.MultipartForm.Value[name]
		if !ok || len(vs) == 0 {
			return "", false
		}
		return strings.TrimSpace(vs[0]), true
	}

	if v, ok := value(fieldName); ok {
		form.Name = v
	}
	if v, ok := value(fieldPrice); ok && v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			invalid(fieldPrice)
		}
		form.Price = d
	}
	if v, ok := value(fieldStock); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			invalid(fieldStock)
		}
		form.Stock = n
	}
	if v, ok := value(fieldMinStock); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			invalid(fieldMinStock)
		}
		form.MinStock = n
	}
	if v, ok := value(fieldCategory); ok && v != "" {
		form.Category = product.Category(v)
	}
	if v, ok := value(fieldCost); ok && v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			invalid(fieldCost)
		}
		form.Cost = decimal.NewNullDecimal(d)
	}
	if len(fields) > 0 {
		return product.Form{}, &product.ValidationError{Fields: fields}
	}

	if fhs := r.MultipartForm.File[fieldImage]; len(fhs) > 0 {
		f, err := readImage(fhs[0])
		if err != nil {
			return product.Form{}, err
		}
		form.Image = f
	}
	return form, nil
}

func readImage(fh *multipart.FileHeader) (*product.File, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}
	return &product.File{
		Name:        fh.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-catalog/internal/domain/product"
)

// allowedImageTypes are the sniffed content types accepted for uploads.
var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// multipartMemory is how much of a multipart body is buffered in memory
// before parts spill to temporary files.
const multipartMemory = 8 << 20

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productsBody(list))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productBody(*p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	values, images, err := h.parseProductForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	f := product.Fields{
		Name:        values.Get("name"),
		Description: values.Get("description"),
		Brand:       values.Get("brand"),
		Category:    values.Get("category"),
	}
	if price, ok, err := parsePrice(values); err != nil {
		writeError(w, r, err)
		return
	} else if ok {
		f.Price = price
	}

	p, err := h.catalog.CreateProduct(r.Context(), f, images)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, productBody(*p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	values, images, err := h.parseProductForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	patch := product.Patch{
		Name:        optional(values, "name"),
		Description: optional(values, "description"),
		Brand:       optional(values, "brand"),
		Category:    optional(values, "category"),
	}
	if price, ok, err := parsePrice(values); err != nil {
		writeError(w, r, err)
		return
	} else if ok {
		patch.Price = &price
	}

	p, err := h.catalog.UpdateProduct(r.Context(), chi.URLParam(r, "id"), patch, images)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productBody(*p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("message", func(e *jx.Encoder) { e.Str("deleted") })
		e.Field("id", func(e *jx.Encoder) { e.Str(id) })
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) debug(w http.ResponseWriter, r *http.Request) {
	n, err := h.catalog.CountProducts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("count", func(e *jx.Encoder) { e.Int64(n) })
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

// parseProductForm reads the text fields and the "images" file parts of a
// multipart (or urlencoded) body. Image bytes are sniffed, not trusted from
// the part header.
func (h *Handler) parseProductForm(w http.ResponseWriter, r *http.Request) (url.Values, []product.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)

	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, &product.ValidationError{
				Field:  "body",
				Reason: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			}
		}
		return nil, nil, &product.ValidationError{Field: "body", Reason: "malformed form body"}
	}
	if r.MultipartForm == nil {
		return r.PostForm, nil, nil
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var files []*multipart.FileHeader
	for _, fh := range r.MultipartForm.File["images"] {
		// Browsers send an empty part for an untouched file input.
		if fh.Size == 0 && fh.Filename == "" {
			continue
		}
		files = append(files, fh)
	}
	if len(files) > product.MaxImages {
		return nil, nil, &product.ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("at most %d images are allowed, got %d", product.MaxImages, len(files)),
		}
	}

	images := make([]product.Image, 0, len(files))
	for _, fh := range files {
		img, err := h.readImage(fh)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, img)
	}
	return r.PostForm, images, nil
}

func (h *Handler) readImage(fh *multipart.FileHeader) (product.Image, error) {
	if fh.Size > h.maxImageBytes {
		return product.Image{}, &product.ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("image %q exceeds %d bytes", fh.Filename, h.maxImageBytes),
		}
	}

	f, err := fh.Open()
	if err != nil {
		return product.Image{}, errors.Wrapf(err, "open image %q", fh.Filename)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, h.maxImageBytes+1))
	if err != nil {
		return product.Image{}, errors.Wrapf(err, "read image %q", fh.Filename)
	}
	if int64(len(data)) > h.maxImageBytes {
		return product.Image{}, &product.ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("image %q exceeds %d bytes", fh.Filename, h.maxImageBytes),
		}
	}
	if len(data) == 0 {
		return product.Image{}, &product.ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("image %q is empty", fh.Filename),
		}
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedImageTypes...) {
		return product.Image{}, &product.ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("image %q has unsupported type %s", fh.Filename, mt.String()),
		}
	}

	return product.Image{Name: fh.Filename, ContentType: mt.String(), Data: data}, nil
}

// parsePrice returns the "price" field. An absent or blank value reports
// ok=false.
func parsePrice(values url.Values) (decimal.Decimal, bool, error) {
	raw := strings.TrimSpace(values.Get("price"))
	if raw == "" {
		return decimal.Decimal{}, false, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false, &product.ValidationError{Field: "price", Reason: "price must be a number"}
	}
	return price, true, nil
}

// optional returns a pointer to the first value of key, or nil when the key
// is absent from the form.
func optional(values url.Values, key string) *string {
	vs, ok := values[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &v
}

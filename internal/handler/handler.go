// Package handler exposes the catalog over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/boutique-catalog/internal/domain/auth"
	"github.com/xenking/boutique-catalog/internal/domain/product"
	"github.com/xenking/boutique-catalog/pkg/httpmiddleware"
)

// Catalog is the product service consumed by the handlers.
type Catalog interface {
	ListProducts(ctx context.Context) ([]product.Product, error)
	GetProduct(ctx context.Context, id string) (*product.Product, error)
	CreateProduct(ctx context.Context, f product.Fields, images []product.Image) (*product.Product, error)
	UpdateProduct(ctx context.Context, id string, patch product.Patch, images []product.Image) (*product.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	CountProducts(ctx context.Context) (int64, error)
}

// Authenticator checks admin credentials.
type Authenticator interface {
	Check(c auth.Credential) error
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// MaxRequestBytes bounds a whole multipart request body.
	MaxRequestBytes int64
	// MaxImageBytes bounds a single uploaded image.
	MaxImageBytes int64
}

const (
	defaultMaxRequestBytes = 32 << 20
	defaultMaxImageBytes   = 10 << 20
	maxLoginBytes          = 1 << 20
)

// Handler serves the /api routes.
type Handler struct {
	catalog Catalog
	gate    Authenticator

	maxRequestBytes int64
	maxImageBytes   int64
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, catalog Catalog, gate Authenticator) *Handler {
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = defaultMaxRequestBytes
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	return &Handler{
		catalog:         catalog,
		gate:            gate,
		maxRequestBytes: cfg.MaxRequestBytes,
		maxImageBytes:   cfg.MaxImageBytes,
	}
}

// Router returns the API routes, to be mounted at /api. The guard
// middlewares, typically a rate limiter, wrap login and every mutation.
func (h *Handler) Router(guard ...httpmiddleware.Middleware) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "route not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/debug", h.debug)

	r.Group(func(r chi.Router) {
		for _, m := range guard {
			r.Use(m)
		}
		r.Post("/admin/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/products", h.createProduct)
			r.Put("/products/{id}", h.updateProduct)
			r.Delete("/products/{id}", h.deleteProduct)
		})
	})
	return r
}

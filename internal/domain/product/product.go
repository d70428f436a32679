package product

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxImages is the maximum number of images a product may hold.
const MaxImages = 4

// CheckPrice reports whether price is non-negative and representable as a
// finite double, the form it takes in JSON responses and document storage.
func CheckPrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "price cannot be negative"}
	}
	f, _ := price.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) || (f == 0 && !price.IsZero()) {
		return &ValidationError{Field: "price", Reason: "price is out of range"}
	}
	return nil
}

// Product represents a catalog item shown in the storefront.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Brand       string
	Category    string
	// Images holds image URLs in insertion order.
	Images    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fields holds the attributes supplied when creating a product.
type Fields struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Brand       string
	Category    string
}

// Patch holds a partial update. A nil field leaves the attribute unchanged.
type Patch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Brand       *string
	Category    *string
}

// Changes is the full set of modifications handed to a Repository.
type Changes struct {
	Patch
	// Images replaces the stored image list. Nil leaves it unchanged.
	Images []string
}

// Apply copies every set attribute of c onto p.
func (c Changes) Apply(p *Product) {
	if c.Name != nil {
		p.Name = *c.Name
	}
	if c.Description != nil {
		p.Description = *c.Description
	}
	if c.Price != nil {
		p.Price = *c.Price
	}
	if c.Brand != nil {
		p.Brand = *c.Brand
	}
	if c.Category != nil {
		p.Category = *c.Category
	}
	if c.Images != nil {
		p.Images = append([]string(nil), c.Images...)
	}
}

// Repository defines persistence operations for the product catalog.
//
// Implementations assign IDs and timestamps and return ErrNotFound for
// unknown (or unparseable) IDs.
type Repository interface {
	// Insert persists p, filling its ID, CreatedAt and UpdatedAt, and
	// returns the new ID.
	Insert(ctx context.Context, p *Product) (string, error)
	FindByID(ctx context.Context, id string) (*Product, error)
	// FindAll returns every product, newest first.
	FindAll(ctx context.Context) ([]Product, error)
	// ReplaceFields atomically applies c, refreshes UpdatedAt and returns
	// the stored result.
	ReplaceFields(ctx context.Context, id string, c Changes) (*Product, error)
	// Delete removes the product and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// Image is a binary image payload waiting to be uploaded.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// ImageStore uploads image bytes and returns a stable retrieval URL.
type ImageStore interface {
	Upload(ctx context.Context, img Image) (string, error)
}

// ImageRemover is implemented by image stores able to delete content they
// previously returned.
type ImageRemover interface {
	Remove(ctx context.Context, url string) error
}

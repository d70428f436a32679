// Package memory provides an in-process product repository.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/boutique-catalog/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

type record struct {
	p   product.Product
	seq uint64
}

// ProductRepository implements product.Repository with a mutex-guarded map.
// Readers always receive copies, so a half-written record is never visible.
type ProductRepository struct {
	mu   sync.RWMutex
	byID map[string]*record
	seq  uint64
	now  func() time.Time
}

// NewProductRepository returns an empty ProductRepository.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		byID: make(map[string]*record),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores a copy of p under a fresh UUID.
func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Images == nil {
		p.Images = []string{}
	}

	r.seq++
	r.byID[p.ID] = &record{p: clone(*p), seq: r.seq}
	return p.ID, nil
}

// FindByID returns a copy of the product with the given ID.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p := clone(rec.p)
	return &p, nil
}

// FindAll returns every product ordered by CreatedAt descending. Products
// created within the same instant keep reverse insertion order.
func (r *ProductRepository) FindAll(ctx context.Context) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	recs := make([]*record, 0, len(r.byID))
	for _, rec := range r.byID {
		recs = append(recs, rec)
	}
	out := make([]product.Product, 0, len(recs))
	slices.SortFunc(recs, func(a, b *record) int {
		if c := b.p.CreatedAt.Compare(a.p.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})
	for _, rec := range recs {
		out = append(out, clone(rec.p))
	}
	r.mu.RUnlock()

	return out, nil
}

// ReplaceFields applies c under the write lock and refreshes UpdatedAt.
func (r *ProductRepository) ReplaceFields(ctx context.Context, id string, c product.Changes) (*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}

	next := clone(rec.p)
	c.Apply(&next)
	next.UpdatedAt = r.now()
	if next.UpdatedAt.Before(next.CreatedAt) {
		next.UpdatedAt = next.CreatedAt
	}
	rec.p = next

	out := clone(next)
	return &out, nil
}

// Delete removes the product and reports whether it existed.
func (r *ProductRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return false, nil
	}
	delete(r.byID, id)
	return true, nil
}

// Count returns the number of stored products.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byID)), nil
}

func clone(p product.Product) product.Product {
	p.Images = append([]string{}, p.Images...)
	return p
}

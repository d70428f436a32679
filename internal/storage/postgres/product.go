package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-catalog/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

const productColumns = `id, name, description, price, brand, category, images, created_at, updated_at`

type productRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Brand       string          `db:"brand"`
	Category    string          `db:"category"`
	Images      []string        `db:"images"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Insert stores p under a fresh UUID and fills its timestamps from the
// database clock.
func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) (string, error) {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	id := uuid.New().String()

	var createdAt, updatedAt time.Time
	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, description, price, brand, category, images)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		id, p.Name, p.Description, p.Price, p.Brand, p.Category, images,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return "", errors.Wrap(err, "insert product")
	}

	p.ID = id
	p.Images = images
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return id, nil
}

// FindByID returns a single product by its identifier.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[productRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p := mapProduct(row)
	return &p, nil
}

// FindAll returns every product, newest first.
func (r *ProductRepository) FindAll(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[productRow])
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	out := make([]product.Product, len(list))
	for i, row := range list {
		out[i] = mapProduct(row)
	}
	return out, nil
}

// ReplaceFields overwrites the columns present in c in one statement.
func (r *ProductRepository) ReplaceFields(ctx context.Context, id string, c product.Changes) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE products SET
			name        = COALESCE($2::text, name),
			description = COALESCE($3::text, description),
			price       = COALESCE($4::numeric, price),
			brand       = COALESCE($5::text, brand),
			category    = COALESCE($6::text, category),
			images      = COALESCE($7::text[], images),
			updated_at  = GREATEST(now(), created_at)
		WHERE id = $1
		RETURNING `+productColumns,
		id, c.Name, c.Description, c.Price, c.Brand, c.Category, c.Images,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "update product %q", id)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[productRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "update product %q", id)
	}

	p := mapProduct(row)
	return &p, nil
}

// Delete removes the product and reports whether a row was affected.
func (r *ProductRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, errors.Wrapf(err, "delete product %q", id)
	}
	return tag.RowsAffected() > 0, nil
}

// Count returns the number of products.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count products")
	}
	return n, nil
}

func mapProduct(row productRow) product.Product {
	images := row.Images
	if images == nil {
		images = []string{}
	}
	return product.Product{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Price:       row.Price,
		Brand:       row.Brand,
		Category:    row.Category,
		Images:      images,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

//go:build integration

package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/xenking/boutique-catalog/internal/domain/product"
)

func newTestRepository(t *testing.T) *ProductRepository {
	t.Helper()
	ctx := context.Background()

	container, err := tcmongo.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("catalog_test")
	require.NoError(t, EnsureIndexes(ctx, db))
	return NewProductRepository(db)
}

func TestProductRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	p := &product.Product{
		Name:     "Chair",
		Price:    decimal.RequireFromString("49.5"),
		Brand:    "Acme",
		Category: "Furniture",
		Images:   []string{"https://img.test/a.jpg"},
	}
	id, err := repo.Insert(ctx, p)
	require.NoError(t, err)
	assert.Len(t, id, 24)

	got, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Chair", got.Name)
	assert.True(t, decimal.RequireFromString("49.5").Equal(got.Price))
	assert.Equal(t, []string{"https://img.test/a.jpg"}, got.Images)
	assert.Equal(t, p.CreatedAt, got.CreatedAt)

	time.Sleep(5 * time.Millisecond)
	second, err := repo.Insert(ctx, &product.Product{Name: "Table"})
	require.NoError(t, err)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID)
	assert.Equal(t, []string{}, all[0].Images)

	name := "Armchair"
	updated, err := repo.ReplaceFields(ctx, id, product.Changes{
		Patch:  product.Patch{Name: &name},
		Images: []string{"https://img.test/a.jpg", "https://img.test/b.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Armchair", updated.Name)
	assert.Equal(t, "Acme", updated.Brand)
	assert.Len(t, updated.Images, 2)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := repo.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.FindByID(ctx, id)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestProductRepository_InvalidID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "not-an-object-id")
	require.ErrorIs(t, err, product.ErrNotFound)

	_, err = repo.ReplaceFields(ctx, "not-an-object-id", product.Changes{})
	require.ErrorIs(t, err, product.ErrNotFound)

	ok, err := repo.Delete(ctx, "not-an-object-id")
	require.NoError(t, err)
	assert.False(t, ok)
}

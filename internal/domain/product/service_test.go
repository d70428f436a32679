package product

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeRepo struct {
	mu        sync.Mutex
	byID      map[string]*Product
	seq       int
	clock     time.Time
	findErr   error
	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:  make(map[string]*Product),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeRepo) Insert(_ context.Context, p *Product) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return "", r.insertErr
	}
	r.seq++
	now := r.tick()
	p.ID = strconv.Itoa(r.seq)
	p.CreatedAt, p.UpdatedAt = now, now
	stored := *p
	stored.Images = slices.Clone(p.Images)
	r.byID[p.ID] = &stored
	return p.ID, nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	out.Images = slices.Clone(p.Images)
	return &out, nil
}

func (r *fakeRepo) FindAll(_ context.Context) ([]Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	out := make([]Product, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Product) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *fakeRepo) ReplaceFields(_ context.Context, id string, c Changes) (*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Apply(p)
	p.UpdatedAt = r.tick()
	out := *p
	return &out, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[id]
	delete(r.byID, id)
	return ok, nil
}

func (r *fakeRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.byID)), nil
}

type fakeImages struct {
	mu      sync.Mutex
	failOn  map[string]error
	delay   map[string]time.Duration
	stored  []string
	removed []string
}

func (f *fakeImages) Upload(ctx context.Context, img Image) (string, error) {
	if d := f.delay[img.Name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.failOn[img.Name]; err != nil {
		return "", err
	}
	url := "https://img.test/" + img.Name
	f.mu.Lock()
	f.stored = append(f.stored, url)
	f.mu.Unlock()
	return url, nil
}

func (f *fakeImages) Remove(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, url)
	return nil
}

// --- Helpers ---

func newTestService(t *testing.T, repo Repository, images ImageStore) *Service {
	t.Helper()
	svc, err := NewService(repo, images, ServiceConfig{UploadConcurrency: 4})
	require.NoError(t, err)
	return svc
}

func testImages(names ...string) []Image {
	out := make([]Image, len(names))
	for i, n := range names {
		out[i] = Image{Name: n, ContentType: "image/png", Data: []byte(n)}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// --- Tests ---

func TestCreateProduct_ImagesInFileOrder(t *testing.T) {
	images := &fakeImages{
		// The first file finishes last; order must still follow the input.
		delay: map[string]time.Duration{"a.png": 30 * time.Millisecond},
	}
	svc := newTestService(t, newFakeRepo(), images)

	for n := 0; n <= MaxImages; n++ {
		names := []string{"a.png", "b.png", "c.png", "d.png"}[:n]
		p, err := svc.CreateProduct(context.Background(), Fields{Name: "Chair"}, testImages(names...))
		require.NoError(t, err)

		want := make([]string, n)
		for i, name := range names {
			want[i] = "https://img.test/" + name
		}
		assert.Equal(t, want, p.Images, "%d images", n)
		assert.NotEmpty(t, p.ID)
		assert.False(t, p.CreatedAt.After(p.UpdatedAt))
	}
}

func TestCreateProduct_Validation(t *testing.T) {
	tests := []struct {
		name      string
		fields    Fields
		images    []Image
		wantField string
	}{
		{name: "empty name", fields: Fields{Name: ""}, wantField: "name"},
		{name: "blank name", fields: Fields{Name: "   "}, wantField: "name"},
		{name: "negative price", fields: Fields{Name: "Chair", Price: decimal.NewFromInt(-1)}, wantField: "price"},
		{name: "price overflows", fields: Fields{Name: "Chair", Price: decimal.RequireFromString("1e400")}, wantField: "price"},
		{name: "price underflows", fields: Fields{Name: "Chair", Price: decimal.RequireFromString("1e-400")}, wantField: "price"},
		{
			name:      "too many images",
			fields:    Fields{Name: "Chair"},
			images:    testImages("1", "2", "3", "4", "5"),
			wantField: "images",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			images := &fakeImages{}
			svc := newTestService(t, repo, images)

			_, err := svc.CreateProduct(context.Background(), tt.fields, tt.images)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Empty(t, repo.byID, "nothing must be persisted")
			assert.Empty(t, images.stored, "nothing must be uploaded")
		})
	}
}

func TestCreateProduct_UploadFailureDoesNotPersist(t *testing.T) {
	repo := newFakeRepo()
	images := &fakeImages{failOn: map[string]error{"b.png": errors.New("gateway down")}}
	svc := newTestService(t, repo, images)

	_, err := svc.CreateProduct(context.Background(), Fields{Name: "Chair"}, testImages("a.png", "b.png"))
	require.ErrorIs(t, err, ErrUploadFailed)

	var uerr *UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 1, uerr.Index)
	assert.Equal(t, "b.png", uerr.Name)

	assert.Empty(t, repo.byID)
	assert.ElementsMatch(t, images.stored, images.removed, "uploaded images are rolled back")
}

func TestCreateProduct_InsertFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.insertErr = errors.New("connection reset")
	images := &fakeImages{}
	svc := newTestService(t, repo, images)

	_, err := svc.CreateProduct(context.Background(), Fields{Name: "Chair"}, testImages("a.png"))
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, []string{"https://img.test/a.png"}, images.removed)
}

func TestGetProduct(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeImages{})

	created, err := svc.CreateProduct(context.Background(), Fields{Name: "Lamp"}, nil)
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		p, err := svc.GetProduct(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lamp", p.Name)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.GetProduct(context.Background(), "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("storage failure", func(t *testing.T) {
		repo.findErr = errors.New("db down")
		defer func() { repo.findErr = nil }()

		_, err := svc.GetProduct(context.Background(), created.ID)
		require.ErrorIs(t, err, ErrStorageUnavailable)
	})
}

func TestListProducts_NewestFirst(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeImages{})

	for _, name := range []string{"first", "second", "third"} {
		_, err := svc.CreateProduct(context.Background(), Fields{Name: name}, nil)
		require.NoError(t, err)
	}

	products, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "third", products[0].Name)
	assert.Equal(t, "first", products[2].Name)
}

func TestListProducts_StorageUnavailable(t *testing.T) {
	repo := newFakeRepo()
	repo.findErr = errors.New("db down")
	svc := newTestService(t, repo, &fakeImages{})

	products, err := svc.ListProducts(context.Background())
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Nil(t, products)
}

func TestUpdateProduct_PriceOnly(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeImages{})
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, Fields{
		Name:        "Chair",
		Description: "Oak",
		Price:       decimal.NewFromInt(100),
		Brand:       "Acme",
		Category:    "Furniture",
	}, testImages("a.png"))
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, created.ID, Patch{Price: ptr(decimal.NewFromInt(150))}, nil)
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(150).Equal(updated.Price))
	assert.Equal(t, created.Name, updated.Name)
	assert.Equal(t, created.Description, updated.Description)
	assert.Equal(t, created.Brand, updated.Brand)
	assert.Equal(t, created.Category, updated.Category)
	assert.Equal(t, created.Images, updated.Images)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdateProduct_AppendsImages(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeImages{})
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, Fields{Name: "Chair"}, testImages("a.png", "b.png"))
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, created.ID, Patch{}, testImages("c.png", "d.png"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://img.test/a.png",
		"https://img.test/b.png",
		"https://img.test/c.png",
		"https://img.test/d.png",
	}, updated.Images)
}

func TestUpdateProduct_ImageLimit(t *testing.T) {
	images := &fakeImages{}
	svc := newTestService(t, newFakeRepo(), images)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, Fields{Name: "Chair"}, testImages("a.png", "b.png", "c.png"))
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, created.ID, Patch{}, testImages("d.png", "e.png"))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "images", verr.Field)
	assert.Len(t, images.stored, 3, "overflowing images are never uploaded")

	p, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, p.Images, 3)
}

func TestUpdateProduct_Validation(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeImages{})
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, Fields{Name: "Chair"}, nil)
	require.NoError(t, err)

	var verr *ValidationError

	_, err = svc.UpdateProduct(ctx, created.ID, Patch{Name: ptr("  ")}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)

	_, err = svc.UpdateProduct(ctx, created.ID, Patch{Price: ptr(decimal.NewFromInt(-5))}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "price", verr.Field)
}

func TestUpdateProduct_UploadFailure(t *testing.T) {
	images := &fakeImages{failOn: map[string]error{"bad.png": errors.New("rejected")}}
	svc := newTestService(t, newFakeRepo(), images)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, Fields{Name: "Chair"}, testImages("a.png"))
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, created.ID, Patch{Name: ptr("Stool")}, testImages("bad.png"))
	require.ErrorIs(t, err, ErrUploadFailed)

	p, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chair", p.Name, "a failed upload leaves the product untouched")
}

func TestMissingIDs(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeImages{})
	ctx := context.Background()

	for _, id := range []string{"", "nope", "42"} {
		t.Run(fmt.Sprintf("id=%q", id), func(t *testing.T) {
			_, err := svc.GetProduct(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = svc.UpdateProduct(ctx, id, Patch{Name: ptr("x")}, nil)
			assert.ErrorIs(t, err, ErrNotFound)

			err = svc.DeleteProduct(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDeleteProduct(t *testing.T) {
	images := &fakeImages{}
	svc := newTestService(t, newFakeRepo(), images)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, Fields{Name: "Chair"}, testImages("a.png", "b.png"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, created.ID))
	assert.Equal(t, created.Images, images.removed)

	err = svc.DeleteProduct(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound, "second delete reports not found")

	_, err = svc.GetProduct(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCountProducts(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeImages{})
	ctx := context.Background()

	for i := range 3 {
		_, err := svc.CreateProduct(ctx, Fields{Name: fmt.Sprintf("p%d", i)}, nil)
		require.NoError(t, err)
	}

	n, err := svc.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

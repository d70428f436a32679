package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/xenking/boutique-catalog/internal/domain/product"

// ServiceConfig holds non-dependency configuration for the Service.
type ServiceConfig struct {
	// UploadConcurrency bounds parallel uploads within a single call.
	// Values below 1 mean sequential uploads.
	UploadConcurrency int
	TracerProvider    trace.TracerProvider
	MeterProvider     metric.MeterProvider
}

// Service encapsulates catalog business logic: field contracts, image
// upload before persistence and image list merging on update.
type Service struct {
	repo   Repository
	images ImageStore
	limit  int

	tracer         trace.Tracer
	uploaded       metric.Int64Counter
	uploadFailures metric.Int64Counter
	uploadDuration metric.Float64Histogram
}

// NewService creates a catalog Service.
func NewService(repo Repository, images ImageStore, cfg ServiceConfig) (*Service, error) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}
	if cfg.UploadConcurrency < 1 {
		cfg.UploadConcurrency = 1
	}

	meter := cfg.MeterProvider.Meter(instrumentationName)
	s := &Service{
		repo:   repo,
		images: images,
		limit:  cfg.UploadConcurrency,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	var err error
	if s.uploaded, err = meter.Int64Counter("catalog.images.uploaded",
		metric.WithDescription("Images stored by the image gateway"),
	); err != nil {
		return nil, errors.Wrap(err, "create uploaded counter")
	}
	if s.uploadFailures, err = meter.Int64Counter("catalog.images.upload_failures",
		metric.WithDescription("Image uploads rejected or failed by the image gateway"),
	); err != nil {
		return nil, errors.Wrap(err, "create upload failures counter")
	}
	if s.uploadDuration, err = meter.Float64Histogram("catalog.image.upload.duration",
		metric.WithDescription("Duration of a single image upload"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "create upload duration histogram")
	}

	return s, nil
}

// ListProducts returns every product, newest first.
func (s *Service) ListProducts(ctx context.Context) (_ []Product, rerr error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ListProducts")
	defer func() { endSpan(span, rerr) }()

	products, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, storageError("list products", err)
	}
	span.SetAttributes(attribute.Int("catalog.products", len(products)))
	return products, nil
}

// GetProduct returns a single product by ID.
func (s *Service) GetProduct(ctx context.Context, id string) (_ *Product, rerr error) {
	ctx, span := s.tracer.Start(ctx, "catalog.GetProduct",
		trace.WithAttributes(attribute.String("product.id", id)),
	)
	defer func() { endSpan(span, rerr) }()

	return s.find(ctx, id)
}

// CreateProduct uploads images in file order and then persists the product.
// Nothing is persisted unless every upload succeeds.
func (s *Service) CreateProduct(ctx context.Context, f Fields, images []Image) (_ *Product, rerr error) {
	ctx, span := s.tracer.Start(ctx, "catalog.CreateProduct",
		trace.WithAttributes(attribute.Int("catalog.images", len(images))),
	)
	defer func() { endSpan(span, rerr) }()

	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "name is required"}
	}
	if err := CheckPrice(f.Price); err != nil {
		return nil, err
	}
	if len(images) > MaxImages {
		return nil, &ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("at most %d images are allowed, got %d", MaxImages, len(images)),
		}
	}

	urls, err := s.uploadAll(ctx, images)
	if err != nil {
		return nil, err
	}

	p := &Product{
		Name:        f.Name,
		Description: f.Description,
		Price:       f.Price,
		Brand:       f.Brand,
		Category:    f.Category,
		Images:      urls,
	}
	id, err := s.repo.Insert(ctx, p)
	if err != nil {
		s.discard(ctx, urls)
		return nil, storageError("insert product", err)
	}
	span.SetAttributes(attribute.String("product.id", id))

	zctx.From(ctx).Info("Product created",
		zap.String("product_id", id),
		zap.Int("images", len(urls)),
	)
	return p, nil
}

// UpdateProduct applies patch to the product and appends newly uploaded images
// to its existing image list.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch Patch, images []Image) (_ *Product, rerr error) {
	ctx, span := s.tracer.Start(ctx, "catalog.UpdateProduct",
		trace.WithAttributes(
			attribute.String("product.id", id),
			attribute.Int("catalog.images", len(images)),
		),
	)
	defer func() { endSpan(span, rerr) }()

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, &ValidationError{Field: "name", Reason: "name cannot be empty"}
		}
		patch.Name = &name
	}
	if patch.Price != nil {
		if err := CheckPrice(*patch.Price); err != nil {
			return nil, err
		}
	}

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if total := len(current.Images) + len(images); total > MaxImages {
		return nil, &ValidationError{
			Field: "images",
			Reason: fmt.Sprintf("product has %d images, adding %d exceeds the limit of %d",
				len(current.Images), len(images), MaxImages),
		}
	}

	urls, err := s.uploadAll(ctx, images)
	if err != nil {
		return nil, err
	}

	changes := Changes{Patch: patch}
	if len(urls) > 0 {
		merged := make([]string, 0, len(current.Images)+len(urls))
		merged = append(merged, current.Images...)
		changes.Images = append(merged, urls...)
	}

	updated, err := s.repo.ReplaceFields(ctx, id, changes)
	if err != nil {
		s.discard(ctx, urls)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("update product", err)
	}
	return updated, nil
}

// DeleteProduct removes the product record and then removes its images from
// the image store on a best-effort basis.
func (s *Service) DeleteProduct(ctx context.Context, id string) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "catalog.DeleteProduct",
		trace.WithAttributes(attribute.String("product.id", id)),
	)
	defer func() { endSpan(span, rerr) }()

	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return storageError("delete product", err)
	}
	if !deleted {
		return ErrNotFound
	}

	s.discard(ctx, current.Images)
	zctx.From(ctx).Info("Product deleted", zap.String("product_id", id))
	return nil
}

// CountProducts returns the number of stored products.
func (s *Service) CountProducts(ctx context.Context) (_ int64, rerr error) {
	ctx, span := s.tracer.Start(ctx, "catalog.CountProducts")
	defer func() { endSpan(span, rerr) }()

	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, storageError("count products", err)
	}
	return n, nil
}

func (s *Service) find(ctx context.Context, id string) (*Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("find product", err)
	}
	return p, nil
}

// uploadAll uploads images with bounded concurrency. The URL of images[i] is
// always placed at index i. On failure every image already stored by this
// call is discarded.
func (s *Service) uploadAll(ctx context.Context, images []Image) ([]string, error) {
	urls := make([]string, len(images))
	if len(images) == 0 {
		return urls, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, img := range images {
		g.Go(func() error {
			url, err := s.upload(gctx, img)
			if err != nil {
				return &UploadError{Index: i, Name: img.Name, Err: err}
			}
			urls[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.discard(ctx, urls)
		zctx.From(ctx).Error("Image upload failed", zap.Error(err))
		return nil, err
	}
	return urls, nil
}

func (s *Service) upload(ctx context.Context, img Image) (string, error) {
	start := time.Now()
	url, err := s.images.Upload(ctx, img)
	if err == nil && url == "" {
		err = errors.New("image store returned an empty url")
	}
	s.uploadDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		s.uploadFailures.Add(ctx, 1)
		return "", err
	}
	s.uploaded.Add(ctx, 1)
	return url, nil
}

// discard removes images from stores that support removal. Failures are
// logged and never returned.
func (s *Service) discard(ctx context.Context, urls []string) {
	remover, ok := s.images.(ImageRemover)
	if !ok {
		return
	}
	// Cleanup runs even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	lg := zctx.From(ctx)
	for _, url := range urls {
		if url == "" {
			continue
		}
		if err := remover.Remove(ctx, url); err != nil {
			lg.Warn("Remove image", zap.String("url", url), zap.Error(err))
		}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

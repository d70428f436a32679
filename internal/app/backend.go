package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/boutique-catalog/internal/domain/product"
	"github.com/xenking/boutique-catalog/internal/imagestore"
	cldstore "github.com/xenking/boutique-catalog/internal/imagestore/cloudinary"
	"github.com/xenking/boutique-catalog/internal/imagestore/local"
	"github.com/xenking/boutique-catalog/internal/storage/memory"
	mongostore "github.com/xenking/boutique-catalog/internal/storage/mongo"
	pgstore "github.com/xenking/boutique-catalog/internal/storage/postgres"
)

// Backend is an opened product repository together with its lifecycle hooks.
type Backend struct {
	Name     string
	Products product.Repository
	// Ping reports backend reachability for readiness probes.
	Ping  func(ctx context.Context) error
	close func()
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenBackend connects the repository selected by cfg.Driver and prepares
// its schema or indexes.
func OpenBackend(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (*Backend, error) {
	switch cfg.Driver {
	case "mongo":
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, errors.Wrap(err, "connect mongo")
		}
		db := client.Database(cfg.MongoDatabase)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, errors.Wrap(err, "ensure mongo indexes")
		}
		lg.Info("Connected to MongoDB", zap.String("database", cfg.MongoDatabase))
		return &Backend{
			Name:     "mongo",
			Products: mongostore.NewProductRepository(db),
			Ping:     mongostore.Ping(client),
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := pgstore.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		lg.Info("Connected to PostgreSQL")
		return &Backend{
			Name:     "postgres",
			Products: pgstore.NewProductRepository(pool),
			Ping:     pool.Ping,
			close:    pool.Close,
		}, nil

	case "memory":
		lg.Warn("Using in-memory storage, products are lost on restart")
		return &Backend{
			Name:     "memory",
			Products: memory.NewProductRepository(),
			Ping:     func(context.Context) error { return nil },
		}, nil

	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// openImageStore builds the gateway selected by cfg.Driver, bounded by the
// upload timeout. For the local driver the file store is also returned so it
// can be served.
func openImageStore(cfg ImagesConfig) (product.ImageStore, *local.Store, error) {
	switch cfg.Driver {
	case "cloudinary":
		store, err := cldstore.NewFromURL(cfg.CloudinaryURL, cfg.Folder)
		if err != nil {
			return nil, nil, err
		}
		return imagestore.WithTimeout(store, cfg.UploadTimeout), nil, nil

	case "local":
		store, err := local.New(cfg.Dir, cfg.PublicURL)
		if err != nil {
			return nil, nil, err
		}
		return imagestore.WithTimeout(store, cfg.UploadTimeout), store, nil

	default:
		return nil, nil, errors.Errorf("unknown images driver %q", cfg.Driver)
	}
}

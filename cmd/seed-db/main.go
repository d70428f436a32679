// Command seed-db loads products from a JSON file, optionally gzip
// compressed, into the configured repository.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/boutique-catalog/internal/app"
	"github.com/xenking/boutique-catalog/internal/domain/product"
)

func main() {
	var (
		storage      app.StorageConfig
		productsFile string
	)

	flag.StringVar(&storage.Driver, "driver", "mongo", "repository backend: mongo or postgres")
	flag.StringVar(&storage.MongoURI, "mongo-uri", "", "MongoDB connection URI (or MONGO_URI env)")
	flag.StringVar(&storage.MongoDatabase, "mongo-database", "boutique", "MongoDB database name")
	flag.StringVar(&storage.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to a products JSON or .json.gz file")
	flag.Parse()

	if storage.MongoURI == "" {
		storage.MongoURI = os.Getenv("MONGO_URI")
	}
	if storage.DatabaseURL == "" {
		storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, storage, productsFile); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, storage app.StorageConfig, productsFile string) error {
	if storage.Driver != "mongo" && storage.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: want mongo or postgres", storage.Driver)
	}
	products, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}
	lg.Info("Read products", zap.String("path", productsFile), zap.Int("count", len(products)))

	backend, err := app.OpenBackend(ctx, lg, storage)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer backend.Close()

	for i := range products {
		p := &products[i]
		id, err := backend.Products.Insert(ctx, p)
		if err != nil {
			return errors.Wrapf(err, "insert product %q", p.Name)
		}
		lg.Info("Inserted product", zap.String("id", id), zap.String("name", p.Name))
	}
	return nil
}

func readProducts(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return decodeProducts(data)
}

// decodeProducts parses a JSON array of products. Images are taken as
// already-hosted URLs.
func decodeProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "name":
				p.Name, err = d.Str()
			case "description":
				p.Description, err = d.Str()
			case "brand":
				p.Brand, err = d.Str()
			case "category":
				p.Category, err = d.Str()
			case "price":
				p.Price, err = decodePrice(d)
			case "images":
				err = d.Arr(func(d *jx.Decoder) error {
					url, err := d.Str()
					p.Images = append(p.Images, url)
					return err
				})
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}

		if err := check(p); err != nil {
			return errors.Wrapf(err, "product %d", len(out))
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return out, nil
}

// decodePrice accepts a JSON number or a numeric string.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

func check(p product.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if err := product.CheckPrice(p.Price); err != nil {
		return err
	}
	if len(p.Images) > product.MaxImages {
		return errors.Errorf("at most %d images are allowed", product.MaxImages)
	}
	return nil
}

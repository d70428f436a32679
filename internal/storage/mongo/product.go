package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/boutique-catalog/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// productDoc is the stored document. Price is a double, matching documents
// written by the legacy Number schema.
type productDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Description string             `bson:"description"`
	Price       float64            `bson:"price"`
	Brand       string             `bson:"brand"`
	Category    string             `bson:"category"`
	Images      []string           `bson:"images"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

// ProductRepository implements product.Repository backed by MongoDB.
type ProductRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewProductRepository returns a ProductRepository using the products
// collection of db.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{
		coll: db.Collection(ProductsCollection),
		// BSON datetimes carry millisecond precision.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Insert stores p as a new document with a fresh ObjectID.
func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) (string, error) {
	now := r.now()
	doc := toDoc(*p)
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return "", errors.Wrap(err, "insert product")
	}

	p.ID = doc.ID.Hex()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Images = doc.Images
	return p.ID, nil
}

// FindByID returns the product with the given hex ObjectID.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*product.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, product.ErrNotFound
	}

	var doc productDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find product %q", id)
	}

	p := fromDoc(doc)
	return &p, nil
}

// FindAll returns every product, newest first.
func (r *ProductRepository) FindAll(ctx context.Context) ([]product.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find products")
	}

	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode products")
	}

	out := make([]product.Product, len(docs))
	for i, doc := range docs {
		out[i] = fromDoc(doc)
	}
	return out, nil
}

// ReplaceFields applies c with a single $set and returns the updated
// document.
func (r *ProductRepository) ReplaceFields(ctx context.Context, id string, c product.Changes) (*product.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, product.ErrNotFound
	}

	set := bson.M{"updatedAt": r.now()}
	if c.Name != nil {
		set["name"] = *c.Name
	}
	if c.Description != nil {
		set["description"] = *c.Description
	}
	if c.Price != nil {
		set["price"] = c.Price.InexactFloat64()
	}
	if c.Brand != nil {
		set["brand"] = *c.Brand
	}
	if c.Category != nil {
		set["category"] = *c.Category
	}
	if c.Images != nil {
		set["images"] = c.Images
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc productDoc
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "update product %q", id)
	}

	p := fromDoc(doc)
	return &p, nil
}

// Delete removes the document and reports whether it existed.
func (r *ProductRepository) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, errors.Wrapf(err, "delete product %q", id)
	}
	return res.DeletedCount > 0, nil
}

// Count returns the number of product documents.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, errors.Wrap(err, "count products")
	}
	return n, nil
}

func toDoc(p product.Product) productDoc {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return productDoc{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		Brand:       p.Brand,
		Category:    p.Category,
		Images:      images,
	}
}

func fromDoc(doc productDoc) product.Product {
	images := doc.Images
	if images == nil {
		images = []string{}
	}
	return product.Product{
		ID:          doc.ID.Hex(),
		Name:        doc.Name,
		Description: doc.Description,
		Price:       decimal.NewFromFloat(doc.Price),
		Brand:       doc.Brand,
		Category:    doc.Category,
		Images:      images,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
}

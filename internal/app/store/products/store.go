// internal/app/store/products/store.go
package products

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dalemusser/productcatalog/internal/app/store/catalogdb"
	"github.com/dalemusser/productcatalog/internal/app/system/cache"
	"github.com/dalemusser/productcatalog/internal/domain/models"
	"github.com/dalemusser/productcatalog/metrics"
	"github.com/dalemusser/productcatalog/toolkit/db/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrNotFound   = errors.New("product not found")
	ErrInvalidID  = errors.New("invalid product id")
	ErrInvalid    = errors.New("product failed validation")
	ErrBadCursor  = errors.New("invalid page cursor")
	ErrBadType    = errors.New("unknown product type")
	ErrDuplicated = errors.New("product already exists")
)

const (
	DefaultLimit = 50
	MaxLimit     = 200

	cacheKeyPrefix = "product:"
	genStripes     = 256
)

// ListOptions selects one page of products ordered by (name, _id).
type ListOptions struct {
	// Type restricts the page to one product type when set.
	Type models.ProductType
	// Query is a case-insensitive name prefix.
	Query string
	// After is the Next cursor of the previous page.
	After string
	// Limit is clamped to 1..MaxLimit; 0 means DefaultLimit.
	Limit int
}

// Page is one window of a listing. Next is empty on the last page.
type Page struct {
	Items []models.Product `json:"items"`
	Next  string           `json:"next,omitempty"`
}

// Store is typed access to the products collection.
type Store struct {
	coll   *mongo.Collection
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger

	// gens counts invalidations per id stripe. A Get fills the cache only
	// if its stripe did not move while it read from the collection.
	gens [genStripes]atomic.Uint64
}

// Option configures a Store.
type Option func(*Store)

// WithCache puts c in front of Get. Writes through the Store invalidate it.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithLogger sets the logger; the default discards.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps the published products collection.
func New(coll *mongo.Collection, opts ...Option) *Store {
	s := &Store{coll: coll, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EnsureIndexes creates the indexes backing the listing order, with and
// without the type filter.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("name_1__id_1"),
		},
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "name", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("type_1_name_1__id_1"),
		},
	})
	if err != nil {
		return fmt.Errorf("create products indexes: %w", err)
	}
	return nil
}

// Create validates p, inserts it and returns it with its assigned ID.
// Any ID already set on p is ignored.
func (s *Store) Create(ctx context.Context, p models.Product) (models.Product, error) {
	p.ID = primitive.NilObjectID
	if err := preflight(p); err != nil {
		return models.Product{}, err
	}

	res, err := s.coll.InsertOne(ctx, p)
	if err != nil {
		return models.Product{}, classifyWrite(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		p.ID = oid
	}
	return p, nil
}

// Get returns the product with the given hex id.
func (s *Store) Get(ctx context.Context, id string) (models.Product, error) {
	oid, err := parseID(id)
	if err != nil {
		return models.Product{}, err
	}

	if s.cache != nil {
		p, err := cache.GetJSON[models.Product](ctx, s.cache, cacheKey(oid))
		switch {
		case err == nil:
			metrics.CacheLookup("hit")
			return p, nil
		case errors.Is(err, cache.ErrNotFound):
			metrics.CacheLookup("miss")
		default:
			metrics.CacheLookup("error")
			s.logger.Warn("product cache read failed", zap.String("id", id), zap.Error(err))
		}
	}

	gen := s.generation(oid)

	var p models.Product
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Product{}, ErrNotFound
		}
		return models.Product{}, fmt.Errorf("find product %s: %w", id, err)
	}

	s.fill(ctx, oid, gen, p)
	return p, nil
}

// List returns one page ordered by (name, _id).
func (s *Store) List(ctx context.Context, opts ListOptions) (Page, error) {
	filter, err := listFilter(opts)
	if err != nil {
		return Page{}, err
	}
	limit := clampLimit(opts.Limit)

	findOpts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit) + 1)

	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return Page{}, fmt.Errorf("list products: %w", err)
	}
	var items []models.Product
	if err := cur.All(ctx, &items); err != nil {
		return Page{}, fmt.Errorf("decode products: %w", err)
	}
	return pageOf(items, limit), nil
}

// All returns every product ordered by (name, _id).
func (s *Store) All(ctx context.Context) ([]models.Product, error) {
	cur, err := s.coll.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list all products: %w", err)
	}
	items := []models.Product{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return items, nil
}

// Update replaces the product with the given id by p. The validator
// forbids unknown fields, so there is no partial update.
func (s *Store) Update(ctx context.Context, id string, p models.Product) (models.Product, error) {
	oid, err := parseID(id)
	if err != nil {
		return models.Product{}, err
	}
	p.ID = oid
	if err := preflight(p); err != nil {
		return models.Product{}, err
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": oid}, p)
	if err != nil {
		return models.Product{}, classifyWrite(err)
	}
	if res.MatchedCount == 0 {
		return models.Product{}, ErrNotFound
	}
	s.invalidate(ctx, oid)
	return p, nil
}

// Delete removes the product with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx, oid)
	return nil
}

func (s *Store) generation(oid primitive.ObjectID) uint64 {
	return s.gens[stripe(oid)].Load()
}

// fill caches p, read when oid's stripe was at gen. If an invalidation
// landed in between, nothing is cached; if one lands during the write, the
// entry is dropped again so the stale read cannot outlive it.
func (s *Store) fill(ctx context.Context, oid primitive.ObjectID, gen uint64, p models.Product) {
	if s.cache == nil || s.generation(oid) != gen {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, cacheKey(oid), p, s.ttl); err != nil {
		s.logger.Warn("product cache write failed", zap.String("id", oid.Hex()), zap.Error(err))
		return
	}
	if s.generation(oid) != gen {
		s.dropCached(ctx, oid)
	}
}

// invalidate must run after the write reached the collection.
func (s *Store) invalidate(ctx context.Context, oid primitive.ObjectID) {
	s.gens[stripe(oid)].Add(1)
	s.dropCached(ctx, oid)
}

func (s *Store) dropCached(ctx context.Context, oid primitive.ObjectID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(oid)); err != nil {
		s.logger.Warn("product cache invalidate failed", zap.String("id", oid.Hex()), zap.Error(err))
	}
}

// listFilter builds the Find filter for opts: optional type equality, an
// anchored case-insensitive name prefix, and the keyset window after the
// cursor.
func listFilter(opts ListOptions) (bson.M, error) {
	var clauses []bson.M

	if opts.Type != "" {
		if !opts.Type.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrBadType, opts.Type)
		}
		clauses = append(clauses, bson.M{"type": string(opts.Type)})
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		clauses = append(clauses, bson.M{"name": primitive.Regex{
			Pattern: "^" + regexp.QuoteMeta(q),
			Options: "i",
		}})
	}
	if opts.After != "" {
		c, ok := mongodb.DecodeCursor(opts.After)
		if !ok {
			return nil, ErrBadCursor
		}
		clauses = append(clauses, mongodb.KeysetWindow("name", "gt", c.Key, c.ID))
	}

	switch len(clauses) {
	case 0:
		return bson.M{}, nil
	case 1:
		return clauses[0], nil
	}
	return bson.M{"$and": clauses}, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// pageOf trims a limit+1 fetch to limit items and sets Next when the extra
// item proved there is more.
func pageOf(items []models.Product, limit int) Page {
	if items == nil {
		items = []models.Product{}
	}
	if len(items) <= limit {
		return Page{Items: items}
	}
	items = items[:limit]
	last := items[len(items)-1]
	return Page{Items: items, Next: mongodb.EncodeCursor(last.Name, last.ID)}
}

// preflight runs the products schema in-process so callers get every
// violation at once instead of the server's single failure code.
func preflight(p models.Product) error {
	raw, err := bson.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	if err := catalogdb.ProductsSchema().Check(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func classifyWrite(err error) error {
	switch {
	case mongodb.IsDocumentValidationFailure(err):
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	case mongodb.IsDup(err):
		return fmt.Errorf("%w: %v", ErrDuplicated, err)
	}
	return fmt.Errorf("write product: %w", err)
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

// stripe uses the low bytes of the ObjectID counter, which vary fastest.
func stripe(oid primitive.ObjectID) int {
	return int(oid[11]) % genStripes
}

func cacheKey(oid primitive.ObjectID) string {
	return cacheKeyPrefix + oid.Hex()
}

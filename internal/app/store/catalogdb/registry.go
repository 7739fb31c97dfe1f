// internal/app/store/catalogdb/registry.go
package catalogdb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dalemusser/productcatalog/toolkit/db/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ErrAlreadyInitialized is returned by Registry.Init once the slot is set.
var ErrAlreadyInitialized = errors.New("catalogdb: already initialized")

// Options bound the startup round trips. Zero values use the defaults:
// 10s for the connection, the caller's context for the schema command.
type Options struct {
	ConnectTimeout time.Duration
	SchemaTimeout  time.Duration
}

// Collections is the published result of a successful Open.
type Collections struct {
	Client   *mongo.Client
	Database *mongo.Database
	Products *mongo.Collection

	// Schema records how the validator was attached at startup.
	Schema SchemaOutcome
}

// Open connects to uri, selects DatabaseName, enforces the products
// validator and returns the handles. Nothing is retried. On any failure
// the client is disconnected and no Collections are returned; a connection
// failure is a *mongodb.ConnectError.
func Open(ctx context.Context, uri string, opts Options, logger *zap.Logger) (*Collections, error) {
	return open(ctx, uri, DatabaseName, opts, logger)
}

func open(ctx context.Context, uri, dbName string, opts Options, logger *zap.Logger) (*Collections, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongodb.Connect(ctx, uri, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to MongoDB", zap.String("uri", mongodb.RedactURI(uri)))

	schemaCtx := ctx
	if opts.SchemaTimeout > 0 {
		var cancel context.CancelFunc
		schemaCtx, cancel = context.WithTimeout(ctx, opts.SchemaTimeout)
		defer cancel()
	}

	db := client.Database(dbName)
	outcome, err := EnsureSchema(schemaCtx, db, logger)
	if err != nil {
		mongodb.Disconnect(client)
		return nil, err
	}
	logger.Info("products validator in place",
		zap.String("database", dbName),
		zap.String("outcome", string(outcome)))

	return &Collections{
		Client:   client,
		Database: db,
		Products: db.Collection(ProductsCollection),
		Schema:   outcome,
	}, nil
}

// Registry owns the catalog's database handles for the life of the process.
// It is set at most once by Init and read by any number of consumers; pass
// it (or the Collections it returns) explicitly rather than storing it in a
// package variable.
type Registry struct {
	mu     sync.Mutex
	cols   atomic.Pointer[Collections]
	open   func(ctx context.Context, uri string, opts Options, logger *zap.Logger) (*Collections, error)
	logger *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{open: Open, logger: logger}
}

// Init runs Open and publishes the result. Calls are serialized: once one
// succeeds, every later call returns ErrAlreadyInitialized without touching
// the network. A failed Init publishes nothing, so the caller may try again.
func (r *Registry) Init(ctx context.Context, uri string, opts Options) (*Collections, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cols.Load() != nil {
		return nil, ErrAlreadyInitialized
	}
	cols, err := r.open(ctx, uri, opts, r.logger)
	if err != nil {
		return nil, err
	}
	r.cols.Store(cols)
	return cols, nil
}

// Collections returns the published handles, or false before Init succeeds.
func (r *Registry) Collections() (*Collections, bool) {
	cols := r.cols.Load()
	return cols, cols != nil
}

// Products returns the products collection, or false before Init succeeds.
func (r *Registry) Products() (*mongo.Collection, bool) {
	cols := r.cols.Load()
	if cols == nil {
		return nil, false
	}
	return cols.Products, true
}

// Close disconnects the client. The handles stay published; using them
// afterwards fails with the driver's client-disconnected error.
func (r *Registry) Close(ctx context.Context) error {
	cols := r.cols.Load()
	if cols == nil || cols.Client == nil {
		return nil
	}
	return cols.Client.Disconnect(ctx)
}

// internal/app/store/catalogdb/enforce.go
package catalogdb

import (
	"context"
	"fmt"

	"github.com/dalemusser/productcatalog/toolkit/db/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// SchemaOutcome reports which command attached the validator.
type SchemaOutcome string

const (
	// SchemaModified: collMod replaced the validator on an existing collection.
	SchemaModified SchemaOutcome = "modified"
	// SchemaCreated: the collection did not exist and was created with it.
	SchemaCreated SchemaOutcome = "created"
)

// commandRunner is the part of *mongo.Database the enforcer needs.
type commandRunner interface {
	collMod(ctx context.Context, coll string, validator bson.M) error
	createCollection(ctx context.Context, coll string, validator bson.M) error
}

type databaseRunner struct {
	db *mongo.Database
}

func (d databaseRunner) collMod(ctx context.Context, coll string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: coll},
		{Key: "validator", Value: validator},
	}
	return d.db.RunCommand(ctx, cmd).Err()
}

func (d databaseRunner) createCollection(ctx context.Context, coll string, validator bson.M) error {
	return d.db.CreateCollection(ctx, coll, options.CreateCollection().SetValidator(validator))
}

// EnsureSchema attaches Validator() to the products collection in db,
// creating the collection when it does not exist yet.
//
// It issues collMod first and falls back to createCollection only when the
// server classifies the failure as NamespaceNotFound. Every other error is
// returned wrapped. Calling it again with an unchanged validator is a no-op
// on the server and reports SchemaModified.
func EnsureSchema(ctx context.Context, db *mongo.Database, logger *zap.Logger) (SchemaOutcome, error) {
	return ensureSchema(ctx, databaseRunner{db: db}, logger)
}

func ensureSchema(ctx context.Context, r commandRunner, logger *zap.Logger) (SchemaOutcome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	validator := Validator()

	err := r.collMod(ctx, ProductsCollection, validator)
	if err == nil {
		logger.Debug("validator applied", zap.String("collection", ProductsCollection))
		return SchemaModified, nil
	}
	if !mongodb.IsNamespaceNotFound(err) {
		return "", fmt.Errorf("collMod %s: %w", ProductsCollection, err)
	}

	logger.Info("collection not found; creating with validator",
		zap.String("collection", ProductsCollection))
	if err := r.createCollection(ctx, ProductsCollection, validator); err != nil {
		return "", fmt.Errorf("create collection %s: %w", ProductsCollection, err)
	}
	return SchemaCreated, nil
}

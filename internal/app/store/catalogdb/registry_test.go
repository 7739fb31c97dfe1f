package catalogdb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/productcatalog/toolkit/db/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// offlineCollections builds real handles without contacting a server;
// mongo.Connect does not dial until the first operation.
func offlineCollections(t *testing.T) *Collections {
	t.Helper()
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("mongo.Connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(DatabaseName)
	return &Collections{
		Client:   client,
		Database: db,
		Products: db.Collection(ProductsCollection),
		Schema:   SchemaModified,
	}
}

func TestRegistry_EmptyBeforeInit(t *testing.T) {
	r := NewRegistry(nil)

	if coll, ok := r.Products(); ok || coll != nil {
		t.Errorf("Products() = %v, %v before Init; want nil, false", coll, ok)
	}
	if _, ok := r.Collections(); ok {
		t.Error("Collections() reported present before Init")
	}
	if err := r.Close(context.Background()); err != nil {
		t.Errorf("Close() on empty registry = %v, want nil", err)
	}
}

func TestRegistry_InitPublishesOnce(t *testing.T) {
	cols := offlineCollections(t)
	var opens int32

	r := NewRegistry(zap.NewNop())
	r.open = func(context.Context, string, Options, *zap.Logger) (*Collections, error) {
		atomic.AddInt32(&opens, 1)
		return cols, nil
	}

	got, err := r.Init(context.Background(), "mongodb://example", Options{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got != cols {
		t.Error("Init returned different Collections than were opened")
	}

	coll, ok := r.Products()
	if !ok || coll == nil {
		t.Fatal("Products() absent after Init")
	}
	if coll.Name() != ProductsCollection || coll.Database().Name() != DatabaseName {
		t.Errorf("Products() = %s.%s, want %s.%s",
			coll.Database().Name(), coll.Name(), DatabaseName, ProductsCollection)
	}

	if _, err := r.Init(context.Background(), "mongodb://example", Options{}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init error = %v, want ErrAlreadyInitialized", err)
	}
	if n := atomic.LoadInt32(&opens); n != 1 {
		t.Errorf("open called %d times, want 1", n)
	}
}

func TestRegistry_ConcurrentInit(t *testing.T) {
	cols := offlineCollections(t)
	var opens int32

	r := NewRegistry(nil)
	r.open = func(context.Context, string, Options, *zap.Logger) (*Collections, error) {
		atomic.AddInt32(&opens, 1)
		time.Sleep(10 * time.Millisecond)
		return cols, nil
	}

	const callers = 8
	var (
		wg        sync.WaitGroup
		successes int32
		already   int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Init(context.Background(), "mongodb://example", Options{})
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, ErrAlreadyInitialized):
				atomic.AddInt32(&already, 1)
			default:
				t.Errorf("unexpected Init error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || already != callers-1 {
		t.Errorf("successes=%d already=%d, want 1 and %d", successes, already, callers-1)
	}
	if opens != 1 {
		t.Errorf("open called %d times, want 1", opens)
	}
}

func TestRegistry_FailedInitLeavesSlotEmpty(t *testing.T) {
	cols := offlineCollections(t)
	boom := &mongodb.ConnectError{Op: "ping", Err: errors.New("no primary")}
	fail := true

	r := NewRegistry(nil)
	r.open = func(context.Context, string, Options, *zap.Logger) (*Collections, error) {
		if fail {
			return nil, boom
		}
		return cols, nil
	}

	if _, err := r.Init(context.Background(), "mongodb://example", Options{}); !errors.Is(err, mongodb.ErrConnect) {
		t.Fatalf("Init error = %v, want ErrConnect", err)
	}
	if _, ok := r.Products(); ok {
		t.Fatal("Products() present after failed Init")
	}

	fail = false
	if _, err := r.Init(context.Background(), "mongodb://example", Options{}); err != nil {
		t.Fatalf("retry Init: %v", err)
	}
	if _, ok := r.Products(); !ok {
		t.Error("Products() absent after successful retry")
	}
}

func TestRegistry_UnreachableHost(t *testing.T) {
	r := NewRegistry(nil)

	uri := "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200"
	cols, err := r.Init(context.Background(), uri, Options{ConnectTimeout: 2 * time.Second})
	if err == nil {
		t.Fatal("Init against an unreachable host succeeded")
	}
	if cols != nil {
		t.Error("Init returned Collections alongside an error")
	}

	var ce *mongodb.ConnectError
	if !errors.As(err, &ce) {
		t.Errorf("Init error %v is not a *mongodb.ConnectError", err)
	}
	if _, ok := r.Products(); ok {
		t.Error("registry slot set after a connection failure")
	}
}

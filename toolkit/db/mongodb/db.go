// toolkit/db/mongodb/db.go
package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectTimeout     = 5 * time.Second
)

// Connect opens a Mongo connection and pings the primary, bounded by timeout
// (10s when timeout <= 0) derived from the parent context. Pool settings are
// the driver defaults.
//
// Any failure is returned as a *ConnectError and no client is returned; a
// client that connected but failed the ping is disconnected first. URI syntax
// is checked by the driver, not here. The returned client must be
// disconnected by the caller.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &ConnectError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		Disconnect(client)
		return nil, &ConnectError{Op: "ping", Err: err}
	}

	return client, nil
}

// Disconnect closes client with its own short timeout, ignoring the error.
// Use it on failure paths where the original error is what matters.
func Disconnect(client *mongo.Client) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	_ = client.Disconnect(ctx)
}

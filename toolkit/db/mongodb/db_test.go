package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConnect_InvalidURI(t *testing.T) {
	client, err := Connect(context.Background(), "http://not-mongo", time.Second)
	if err == nil {
		t.Fatal("Connect with a non-mongo URI succeeded")
	}
	if client != nil {
		t.Error("Connect returned a client alongside an error")
	}
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not a *ConnectError", err)
	}
	if ce.Op != "connect" {
		t.Errorf("Op = %q, want %q", ce.Op, "connect")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	uri := "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200"
	client, err := Connect(context.Background(), uri, 2*time.Second)
	if err == nil {
		t.Fatal("Connect to an unreachable host succeeded")
	}
	if client != nil {
		t.Error("Connect returned a client alongside an error")
	}
	if !errors.Is(err, ErrConnect) {
		t.Errorf("errors.Is(%v, ErrConnect) = false", err)
	}
}

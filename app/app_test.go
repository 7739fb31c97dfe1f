package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/productcatalog/config"
	"go.uber.org/zap"
)

type testCfg struct{}

type testDB struct{ closed *bool }

func baseCore() *config.CoreConfig {
	return &config.CoreConfig{
		Env:               "dev",
		LogLevel:          "error",
		SchemaBootTimeout: time.Second,
		HTTP:              config.HTTPConfig{ShutdownTimeout: time.Second},
	}
}

func TestRun_ConfigError(t *testing.T) {
	boom := errors.New("bad config")
	err := Run(context.Background(), Hooks[testCfg, testDB]{
		Name: "test",
		LoadConfig: func(*zap.Logger) (*config.CoreConfig, testCfg, error) {
			return nil, testCfg{}, boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestRun_ConnectError(t *testing.T) {
	boom := errors.New("no route to host")
	shutdownCalled := false
	err := Run(context.Background(), Hooks[testCfg, testDB]{
		Name: "test",
		LoadConfig: func(*zap.Logger) (*config.CoreConfig, testCfg, error) {
			return baseCore(), testCfg{}, nil
		},
		ConnectDB: func(context.Context, *config.CoreConfig, testCfg, *zap.Logger) (testDB, error) {
			return testDB{}, boom
		},
		Shutdown: func(context.Context, *config.CoreConfig, testCfg, testDB, *zap.Logger) error {
			shutdownCalled = true
			return nil
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if shutdownCalled {
		t.Error("Shutdown ran although ConnectDB failed")
	}
}

func TestRun_SchemaErrorReleasesBackends(t *testing.T) {
	boom := errors.New("not authorized on meanStackExample")
	closed := false
	var buildCalled bool

	err := Run(context.Background(), Hooks[testCfg, testDB]{
		Name: "test",
		LoadConfig: func(*zap.Logger) (*config.CoreConfig, testCfg, error) {
			return baseCore(), testCfg{}, nil
		},
		ConnectDB: func(context.Context, *config.CoreConfig, testCfg, *zap.Logger) (testDB, error) {
			return testDB{closed: &closed}, nil
		},
		EnsureSchema: func(ctx context.Context, _ *config.CoreConfig, _ testCfg, _ testDB, _ *zap.Logger) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("EnsureSchema context has no deadline")
			}
			return boom
		},
		BuildHandler: func(*config.CoreConfig, testCfg, testDB, *zap.Logger) (http.Handler, error) {
			buildCalled = true
			return http.NotFoundHandler(), nil
		},
		Shutdown: func(_ context.Context, _ *config.CoreConfig, _ testCfg, db testDB, _ *zap.Logger) error {
			*db.closed = true
			return nil
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if buildCalled {
		t.Error("BuildHandler ran after schema failure")
	}
	if !closed {
		t.Error("Shutdown hook not called")
	}
}

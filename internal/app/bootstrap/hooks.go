// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/productcatalog/app"
	"github.com/dalemusser/productcatalog/config"
	productsfeature "github.com/dalemusser/productcatalog/internal/app/features/products"
	"github.com/dalemusser/productcatalog/internal/app/store/catalogdb"
	productstore "github.com/dalemusser/productcatalog/internal/app/store/products"
	"github.com/dalemusser/productcatalog/internal/app/system/cache"
	"github.com/dalemusser/productcatalog/internal/app/system/health"
	"github.com/dalemusser/productcatalog/httputil"
	"github.com/dalemusser/productcatalog/metrics"
	"github.com/dalemusser/productcatalog/router"
	"go.uber.org/zap"
)

// LoadConfig loads the core config and the catalog's app keys.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, values, err := config.LoadWithAppConfig(logger, AppKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}
	appCfg, err := appConfigFrom(values)
	if err != nil {
		return nil, AppConfig{}, err
	}
	if coreCfg.Env == "prod" && appCfg.APIKey == "" {
		logger.Warn("api_key is empty; product writes are unauthenticated")
	}
	return coreCfg, appCfg, nil
}

// ConnectDB connects to MongoDB, enforces the products validator and
// publishes the handles, then opens the product cache. A failure at any
// step releases what was already opened.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	reg := catalogdb.NewRegistry(logger)
	cols, err := reg.Init(ctx, appCfg.MongoURI, catalogdb.Options{
		ConnectTimeout: coreCfg.DBConnectTimeout,
		SchemaTimeout:  coreCfg.SchemaBootTimeout,
	})
	if err != nil {
		return DBDeps{}, err
	}
	metrics.SchemaEnforced(string(cols.Schema))

	c, kind, err := openCache(ctx, coreCfg, appCfg)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Close(closeCtx)
		return DBDeps{}, err
	}
	logger.Info("product cache ready", zap.String("kind", kind), zap.Duration("ttl", appCfg.CacheTTL))

	return DBDeps{
		Registry:  reg,
		Cols:      cols,
		Cache:     c,
		CacheKind: kind,
		Products: productstore.New(cols.Products,
			productstore.WithCache(c, appCfg.CacheTTL),
			productstore.WithLogger(logger)),
	}, nil
}

func openCache(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig) (cache.Cache, string, error) {
	if appCfg.RedisAddr == "" {
		return cache.NewMemory(time.Minute), "memory", nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, coreCfg.DBConnectTimeout)
	defer cancel()
	r, err := cache.NewRedis(pingCtx, cache.RedisConfig{
		Address:     appCfg.RedisAddr,
		Password:    appCfg.RedisPassword,
		DB:          appCfg.RedisDB,
		KeyPrefix:   "catalog:",
		DialTimeout: coreCfg.DBConnectTimeout,
	})
	if err != nil {
		return nil, "", fmt.Errorf("connect redis %s: %w", appCfg.RedisAddr, err)
	}
	return r, "redis", nil
}

// EnsureSchema creates the indexes behind the product listing order. The
// validator itself is already in place once ConnectDB returns.
func EnsureSchema(ctx context.Context, _ *config.CoreConfig, _ AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := deps.Products.EnsureIndexes(ctx); err != nil {
		return err
	}
	logger.Info("product indexes ensured")
	return nil
}

// BuildHandler mounts /health, /metrics and /products on the standard router.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	httputil.SetLogger(logger)
	r := router.New(coreCfg, logger)

	checks := map[string]health.Check{
		"mongo": health.MongoCheck(deps.Cols.Client),
	}
	if deps.CacheKind == "redis" {
		checks["redis"] = health.PingCheck(deps.Cache)
	}
	health.Mount(r, checks, health.DefaultTimeout, logger)
	r.Handle("/metrics", metrics.Handler())

	h := productsfeature.NewHandler(deps.Products, appCfg.APIKey, appCfg.PageSize, logger)
	r.Mount("/products", h.Routes())

	return r, nil
}

// Shutdown closes the cache and disconnects MongoDB.
func Shutdown(ctx context.Context, _ *config.CoreConfig, _ AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Cache != nil {
		if err := deps.Cache.Close(); err != nil {
			logger.Warn("close product cache", zap.Error(err))
		}
	}
	if deps.Registry == nil {
		return nil
	}
	return deps.Registry.Close(ctx)
}

// Hooks wires the catalog into the app lifecycle.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:         "productcatalog",
	LoadConfig:   LoadConfig,
	ConnectDB:    ConnectDB,
	EnsureSchema: EnsureSchema,
	BuildHandler: BuildHandler,
	Shutdown:     Shutdown,
}

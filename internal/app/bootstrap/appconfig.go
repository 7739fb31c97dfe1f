// internal/app/bootstrap/appconfig.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/productcatalog/config"
	productstore "github.com/dalemusser/productcatalog/internal/app/store/products"
	"github.com/dalemusser/productcatalog/toolkit/db/mongodb"
)

// AppConfig holds the catalog-specific configuration.
type AppConfig struct {
	MongoURI string

	// APIKey guards POST/PUT/DELETE on /products when set.
	APIKey string

	// RedisAddr selects the Redis product cache; empty uses an in-process cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheTTL time.Duration
	PageSize int
}

// AppKeys are loaded alongside the core config (CATALOG_<NAME> in the env).
var AppKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection string", Secret: true},
	{Name: "api_key", Default: "", Desc: "API key required for mutating product routes (empty: open)", Secret: true},
	{Name: "redis_addr", Default: "", Desc: "Redis host:port for the product cache (empty: in-process cache)"},
	{Name: "redis_password", Default: "", Desc: "Redis password", Secret: true},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "cache_ttl", Default: "5m", Desc: "Product cache entry lifetime (e.g. \"5m\", \"300\")"},
	{Name: "page_size", Default: productstore.DefaultLimit, Desc: "Default page size for GET /products"},
}

// appConfigFrom converts loaded values into AppConfig and validates them.
func appConfigFrom(v config.AppConfigValues) (AppConfig, error) {
	cfg := AppConfig{
		MongoURI:      strings.TrimSpace(v.String("mongo_uri")),
		APIKey:        strings.TrimSpace(v.String("api_key")),
		RedisAddr:     strings.TrimSpace(v.String("redis_addr")),
		RedisPassword: v.String("redis_password"),
		RedisDB:       v.Int("redis_db"),
		CacheTTL:      v.Duration("cache_ttl", 5*time.Minute),
		PageSize:      v.Int("page_size"),
	}

	var problems []string
	if err := mongodb.ValidateURI(cfg.MongoURI); err != nil {
		problems = append(problems, "mongo_uri: "+err.Error())
	}
	if cfg.RedisDB < 0 {
		problems = append(problems, "redis_db must be >= 0")
	}
	if cfg.PageSize < 1 || cfg.PageSize > productstore.MaxLimit {
		problems = append(problems, fmt.Sprintf("page_size must be in 1..%d", productstore.MaxLimit))
	}
	if len(problems) > 0 {
		return AppConfig{}, fmt.Errorf("app configuration errors: %s", strings.Join(problems, ", "))
	}
	return cfg, nil
}

// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/productcatalog/internal/app/store/catalogdb"
	productstore "github.com/dalemusser/productcatalog/internal/app/store/products"
	"github.com/dalemusser/productcatalog/internal/app/system/cache"
)

// DBDeps holds the backends opened at startup.
type DBDeps struct {
	// Registry owns the published MongoDB handles.
	Registry *catalogdb.Registry
	Cols     *catalogdb.Collections

	// Cache fronts product reads; Redis when configured, else Memory.
	Cache     cache.Cache
	CacheKind string

	Products *productstore.Store
}

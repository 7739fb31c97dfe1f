// router/router.go
package router

import (
	"github.com/dalemusser/productcatalog/config"
	"github.com/dalemusser/productcatalog/logging"
	"github.com/dalemusser/productcatalog/metrics"
	"github.com/dalemusser/productcatalog/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// New creates a chi.Router pre-wired with the standard middleware stack:
// - RequestID
// - RealIP
// - Recoverer (panic → JSON 500)
// - API response headers
// - CORS (when enabled in config)
// - body size limit (MaxRequestBodyBytes)
// - metrics HTTP middleware
// - request logging
// - NotFound / MethodNotAllowed JSON handlers
// It does NOT mount health or metrics endpoints; the app decides where those live.
func New(coreCfg *config.CoreConfig, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Request context & safety
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.Recoverer(logger))
	r.Use(middleware.APIHeaders)
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Body size limit (if configured)
	r.Use(middleware.LimitBodySize(coreCfg.MaxRequestBodyBytes))

	// Metrics
	r.Use(metrics.HTTPMetrics)

	// Access logging
	r.Use(logging.RequestLogger(logger))

	// NotFound / MethodNotAllowed JSON handlers
	r.NotFound(middleware.NotFoundHandler(logger))
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler(logger))

	return r
}

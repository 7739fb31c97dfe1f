// middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/productcatalog/config"
	"github.com/go-chi/cors"
)

// CORSFromConfig applies go-chi/cors from the CORS section of coreCfg, or
// returns an identity middleware when CORS is disabled, so it is safe to
// install unconditionally. The catalog front end is typically served from
// a different origin than the API.
func CORSFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.CORS.EnableCORS {
		return func(next http.Handler) http.Handler { return next }
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   coreCfg.CORS.CORSAllowedOrigins,
		AllowedMethods:   coreCfg.CORS.CORSAllowedMethods,
		AllowedHeaders:   coreCfg.CORS.CORSAllowedHeaders,
		ExposedHeaders:   coreCfg.CORS.CORSExposedHeaders,
		AllowCredentials: coreCfg.CORS.CORSAllowCredentials,
		MaxAge:           coreCfg.CORS.CORSMaxAge,
	})
}

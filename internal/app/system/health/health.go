// internal/app/system/health/health.go
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dalemusser/productcatalog/httputil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// DefaultTimeout bounds each check when the handler is built with timeout <= 0.
const DefaultTimeout = 2 * time.Second

// Check is a single dependency probe; nil means healthy.
type Check func(ctx context.Context) error

// Pinger is anything with a context-aware Ping, such as the product cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Response is the JSON structure returned by the health handler.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// MongoCheck pings the primary through client.
func MongoCheck(client *mongo.Client) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
}

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) Check {
	return p.Ping
}

// Handler runs every check concurrently, each under timeout, and answers
//
//	200 {"status":"ok","checks":{"mongo":"ok",...}}
//
// or, when any check fails,
//
//	503 {"status":"error","checks":{"mongo":"error: ...",...}}
//
// With no checks it is a plain liveness probe: 200 {"status":"ok"}.
func Handler(checks map[string]Check, timeout time.Duration, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]string, len(checks))
			failed  bool
		)
		// Nil checks are recorded before any goroutine can write results.
		for name, check := range checks {
			if check == nil {
				results[name] = "ok"
			}
		}
		for name, check := range checks {
			if check == nil {
				continue
			}
			wg.Add(1)
			go func(name string, check Check) {
				defer wg.Done()
				err := check(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					results[name] = "ok"
					return
				}
				failed = true
				results[name] = "error: " + err.Error()
				logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			}(name, check)
		}
		wg.Wait()

		if failed {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, Response{Status: "error", Checks: results})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok", Checks: results})
	})
}

// Mount attaches GET /health to r.
func Mount(r chi.Router, checks map[string]Check, timeout time.Duration, logger *zap.Logger) {
	r.Method(http.MethodGet, "/health", Handler(checks, timeout, logger))
}

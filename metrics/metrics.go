// metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// reqDuration is a histogram of HTTP request durations in seconds, labeled
// by route pattern, method, and status code.
var reqDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5},
	},
	[]string{"path", "method", "status"},
)

// schemaEnforcements counts products validator applications by outcome
// ("modified" or "created").
var schemaEnforcements = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_schema_enforcements_total",
		Help: "Products collection validator applications by outcome.",
	},
	[]string{"outcome"},
)

// cacheRequests counts product cache lookups by result ("hit", "miss", "error").
var cacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_product_cache_requests_total",
		Help: "Product cache lookups by result.",
	},
	[]string{"result"},
)

// RegisterDefault registers the Go runtime and process collectors, the
// HTTP request histogram and the catalog counters. Call once at startup;
// repeated calls are harmless.
//
// It panics (or logs fatally when logger is set) if registration fails for
// any reason other than the collector already being registered.
func RegisterDefault(logger *zap.Logger) {
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mustRegister(logger, "HTTP request histogram", reqDuration)
	mustRegister(logger, "schema enforcement counter", schemaEnforcements)
	mustRegister(logger, "product cache counter", cacheRequests)
}

func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
		if logger != nil {
			logger.Fatal("failed to register "+name, zap.Error(err))
		}
		panic("metrics: failed to register " + name + ": " + err.Error())
	}
}

// SchemaEnforced records one validator application.
func SchemaEnforced(outcome string) {
	schemaEnforcements.WithLabelValues(outcome).Inc()
}

// CacheLookup records one product cache lookup.
func CacheLookup(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}

// maxPathLabelLength caps the path label to bound cardinality.
const maxPathLabelLength = 256

// HTTPMetrics is a middleware that records request duration into the
// http_request_duration_seconds histogram.
//
// The path label is the chi route pattern (e.g. "/products/{id}"), falling
// back to the raw path outside chi, truncated to 256 bytes. Place it after
// the recovery middleware so panics are recorded as 500.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		next.ServeHTTP(ww, r)

		statusCode := ww.Status()
		if statusCode == 0 {
			// WriteHeader never called: net/http sent 200.
			statusCode = http.StatusOK
		}
		if statusCode < 100 || statusCode > 599 {
			statusCode = http.StatusInternalServerError
		}

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		if len(path) > maxPathLabelLength {
			path = truncateUTF8(path, maxPathLabelLength-3) + "..."
		}

		reqDuration.WithLabelValues(path, r.Method, strconv.Itoa(statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler returns an http.Handler that exposes the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// truncateUTF8 truncates s to at most maxBytes bytes without splitting a rune.
func truncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

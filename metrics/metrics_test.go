package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"no split inside rune", "aé", 2, "a"},
		{"zero", "abc", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateUTF8(tt.in, tt.max); got != tt.want {
				t.Errorf("truncateUTF8(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(cacheRequests.WithLabelValues("hit"))
	CacheLookup("hit")
	CacheLookup("hit")
	if got := testutil.ToFloat64(cacheRequests.WithLabelValues("hit")) - before; got != 2 {
		t.Errorf("cache hit delta = %v, want 2", got)
	}

	before = testutil.ToFloat64(schemaEnforcements.WithLabelValues("created"))
	SchemaEnforced("created")
	if got := testutil.ToFloat64(schemaEnforcements.WithLabelValues("created")) - before; got != 1 {
		t.Errorf("schema created delta = %v, want 1", got)
	}
}

func TestHTTPMetrics_UsesRoutePattern(t *testing.T) {
	RegisterDefault(nil)

	r := chi.NewRouter()
	r.Use(HTTPMetrics)
	r.Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/abc123", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `path="/products/{id}"`) {
		t.Error("scrape lacks a series labeled with the route pattern")
	}
	if strings.Contains(body, "abc123") {
		t.Error("path label contains the raw id instead of the route pattern")
	}
	if !strings.Contains(body, `status="204"`) {
		t.Error("scrape lacks the 204 status label")
	}
}

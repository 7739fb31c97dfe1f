// auth/apikey/apikey.go
package apikey

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dalemusser/productcatalog/httputil"
	"go.uber.org/zap"
)

// DefaultRealm is used in the WWW-Authenticate header when Options.Realm is empty.
const DefaultRealm = "catalog"

// Options control how the API-key middleware behaves.
type Options struct {
	// Realm is used in the WWW-Authenticate header, e.g. "catalog-admin".
	Realm string

	// AllowQuery also accepts the key from the api_key query parameter.
	// Off by default since query strings end up in access logs.
	AllowQuery bool
}

// Require returns a middleware that enforces a static API key.
// Key lookup order:
//  1. Authorization: Bearer <token>
//  2. X-API-Key header
//  3. api_key query param (if Options.AllowQuery)
func Require(expected string, opts Options, logger *zap.Logger) func(next http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	if logger == nil {
		logger = zap.NewNop()
	}
	realm := strings.TrimSpace(opts.Realm)
	if realm == "" {
		realm = DefaultRealm
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				logger.Warn("apikey.Require used with empty expected key")
				httputil.JSONError(w, http.StatusInternalServerError, "server_misconfigured", "API key is not configured")
				return
			}

			key, ok := FromRequest(r, opts.AllowQuery)
			if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				logger.Warn("API key unauthorized",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("remote_ip", r.RemoteAddr),
					zap.Bool("key_present", ok),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="`+realm+`"`)
				httputil.JSONError(w, http.StatusUnauthorized, "unauthorized", "A valid API key is required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// FromRequest extracts an API key from the request headers, and from the
// api_key query parameter when allowQuery is set.
func FromRequest(r *http.Request, allowQuery bool) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		if token := strings.TrimSpace(auth[len("bearer "):]); token != "" {
			return token, true
		}
	}

	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}

	if allowQuery {
		if key := strings.TrimSpace(r.URL.Query().Get("api_key")); key != "" {
			return key, true
		}
	}

	return "", false
}

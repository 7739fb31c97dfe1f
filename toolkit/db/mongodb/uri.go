// toolkit/db/mongodb/uri.go
package mongodb

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURI does a lightweight shape check of a Mongo connection string
// for config validation. It accepts mongodb:// and mongodb+srv:// schemes,
// requires a non-empty host and rejects CR/LF characters. Full parsing is
// left to the driver at connect time.
func ValidateURI(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("empty")
	}
	if strings.ContainsAny(raw, "\r\n") {
		return fmt.Errorf("contains CR/LF")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	switch u.Scheme {
	case "mongodb", "mongodb+srv":
	default:
		return fmt.Errorf(`scheme must be "mongodb" or "mongodb+srv" (got %q)`, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// RedactURI returns uri with any password replaced, for logging.
func RedactURI(uri string) string {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

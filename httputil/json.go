// httputil/json.go
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrorResponse is the JSON error envelope used by every handler.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

var encodeLogger atomic.Pointer[zap.Logger]

// SetLogger configures where encoding failures are reported. Call once at startup.
func SetLogger(logger *zap.Logger) {
	encodeLogger.Store(logger)
}

// WriteJSON writes v as JSON with the given status. Status codes outside
// 100-599 are clamped to 500. Encoding errors happen after the header is
// sent, so they are only logged.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		if l := encodeLogger.Load(); l != nil {
			l.Error("json encoding failed after headers sent",
				zap.String("type", fmt.Sprintf("%T", v)), zap.Error(err))
		}
	}
}

// JSONError writes {"error": code, "message": message}.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// JSONErrorDetails is JSONError with a machine-readable details payload,
// e.g. per-field validation failures.
func JSONErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// BindJSON decodes the request body into v, rejecting unknown fields and
// trailing data. Returned errors are safe to show to clients.
//
//	var in productInput
//	if err := httputil.BindJSON(r, &in); err != nil {
//	    httputil.JSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
//	    return
//	}
func BindJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return parseJSONError(err)
	}
	if dec.More() {
		return errors.New("request body contains multiple JSON values")
	}
	return nil
}

func parseJSONError(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("invalid value for field %q: expected %s", typeErr.Field, typeErr.Type.String())
	}

	// "json: unknown field \"foo\"" (DisallowUnknownFields)
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return fmt.Errorf("unknown field %q", strings.Trim(field, `"`))
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errors.New("request body too large")
	}

	return errors.New("invalid JSON in request body")
}

// toolkit/db/mongodb/errors.go
package mongodb

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// Server error codes this package classifies.
const (
	CodeNamespaceNotFound         = 26
	CodeDocumentValidationFailure = 121
	CodeDuplicateKey              = 11000
)

// ErrConnect matches any *ConnectError via errors.Is.
var ErrConnect = errors.New("mongodb: connection failed")

// ConnectError reports that a client could not be established. Op is the
// step that failed: "connect" (option/URI validation, client start) or
// "ping" (no reachable primary within the timeout).
type ConnectError struct {
	Op  string
	Err error
}

func (e *ConnectError) Error() string {
	return "mongodb " + e.Op + ": " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConnect) true for every ConnectError.
func (e *ConnectError) Is(target error) bool { return target == ErrConnect }

// IsNamespaceNotFound reports whether err is the server's "collection does
// not exist" classification (code 26, codeName NamespaceNotFound), as
// returned by collMod against a missing collection.
func IsNamespaceNotFound(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Name == "NamespaceNotFound" {
		return true
	}
	return hasCode(err, CodeNamespaceNotFound)
}

// IsDocumentValidationFailure reports whether a write or command was
// rejected by the collection validator (code 121).
func IsDocumentValidationFailure(err error) bool {
	return hasCode(err, CodeDocumentValidationFailure)
}

// IsDup reports whether err is a Mongo duplicate-key error (E11000).
// It handles WriteException, BulkWriteException and CommandError through
// mongo.ServerError, and falls back to a text check for hosts that only
// surface "E11000" in the message.
func IsDup(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, CodeDuplicateKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "e11000") || strings.Contains(s, "duplicate key")
}

func hasCode(err error, code int) bool {
	if err == nil {
		return false
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(code)
	}
	return false
}

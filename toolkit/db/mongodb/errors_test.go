package mongodb

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsNamespaceNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("ns not found"), false},
		{"code 26", mongo.CommandError{Code: 26, Message: "ns does not exist"}, true},
		{"codeName only", mongo.CommandError{Name: "NamespaceNotFound"}, true},
		{"wrapped", fmt.Errorf("collMod: %w", mongo.CommandError{Code: 26, Name: "NamespaceNotFound"}), true},
		{"other command error", mongo.CommandError{Code: 13, Name: "Unauthorized"}, false},
		{"validation failure", mongo.CommandError{Code: 121, Name: "DocumentValidationFailure"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNamespaceNotFound(tt.err); got != tt.want {
				t.Errorf("IsNamespaceNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsDocumentValidationFailure(t *testing.T) {
	writeErr := mongo.WriteException{
		WriteErrors: []mongo.WriteError{{Code: 121, Message: "Document failed validation"}},
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"write exception", writeErr, true},
		{"wrapped write exception", fmt.Errorf("insert: %w", writeErr), true},
		{"command error", mongo.CommandError{Code: 121}, true},
		{"duplicate key", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDocumentValidationFailure(tt.err); got != tt.want {
				t.Errorf("IsDocumentValidationFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsDup(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"write exception", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}, true},
		{"command error", mongo.CommandError{Code: 11000}, true},
		{"text only", errors.New("E11000 duplicate key error collection"), true},
		{"unrelated", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDup(tt.err); got != tt.want {
				t.Errorf("IsDup(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestConnectError(t *testing.T) {
	cause := errors.New("server selection timeout")
	var err error = &ConnectError{Op: "ping", Err: cause}
	wrapped := fmt.Errorf("init: %w", err)

	if !errors.Is(wrapped, ErrConnect) {
		t.Error("errors.Is(wrapped, ErrConnect) = false, want true")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is(wrapped, cause) = false, want true")
	}
	var ce *ConnectError
	if !errors.As(wrapped, &ce) || ce.Op != "ping" {
		t.Errorf("errors.As did not recover the ConnectError, got %+v", ce)
	}
	if got, want := err.Error(), "mongodb ping: server selection timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

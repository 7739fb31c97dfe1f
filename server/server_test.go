package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/dalemusser/productcatalog/config"
	"go.uber.org/zap"
)

func TestIsValidHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"shop.example", true},
		{"shop.example:8443", true},
		{"[::1]:8080", true},
		{"[fe80::1%eth0]:443", true},
		{"", false},
		{"shop.example:0", false},
		{"shop.example:99999", false},
		{"[nope]:80", false},
		{"evil\r\nLocation: x", false},
		{"http://shop.example", false},
		{"/shop", false},
	}
	for _, tt := range tests {
		if got := isValidHost(tt.host); got != tt.want {
			t.Errorf("isValidHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestHTTPRedirectHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://shop.example/products?type=wine", nil)
	httpRedirectHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://shop.example/products?type=wine" {
		t.Errorf("Location = %q", got)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Host = "bad host\x00"
	httpRedirectHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid host status = %d", rec.Code)
	}
}

func TestValidateTLSFiles(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(cert, []byte("cert"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(key, []byte("key"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := validateTLSFiles(cert, key); err != nil {
		t.Errorf("valid files: %v", err)
	}
	if err := validateTLSFiles(filepath.Join(dir, "missing.pem"), key); err == nil {
		t.Error("missing cert accepted")
	}
	if err := validateTLSFiles(cert, dir); err == nil {
		t.Error("directory as key accepted")
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(key, 0o644); err != nil {
			t.Fatal(err)
		}
		if err := validateTLSFiles(cert, key); !errors.Is(err, errInsecureKey) {
			t.Errorf("world-readable key: err = %v, want errInsecureKey", err)
		}
	}
}

func TestListenAndServeWithContext_HTTPShutdown(t *testing.T) {
	cfg := &config.CoreConfig{HTTP: config.HTTPConfig{
		HTTPPort:        0, // any free port
		ShutdownTimeout: 2 * time.Second,
	}}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ListenAndServeWithContext(ctx, cfg, handler, zap.NewNop()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServeWithContext = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestListenAndServeWithContext_NilArgs(t *testing.T) {
	h := http.NotFoundHandler()
	if err := ListenAndServeWithContext(context.Background(), nil, h, nil); err == nil {
		t.Error("nil cfg accepted")
	}
	if err := ListenAndServeWithContext(context.Background(), &config.CoreConfig{}, nil, nil); err == nil {
		t.Error("nil handler accepted")
	}
}

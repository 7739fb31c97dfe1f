// server/server.go
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dalemusser/productcatalog/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/acme/autocert"
)

// errInsecureKey marks a key file readable by group or others.
var errInsecureKey = errors.New("TLS key file has overly permissive permissions")

// WithShutdownSignals returns a context that is canceled when the process
// receives SIGINT or SIGTERM. The returned cancel function also stops
// signal delivery.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", zap.Any("signal", sig))
			}
			cancel()
		case <-ctx.Done():
		}
		// sigCh is left open; nothing reads it after Stop.
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// ListenAndServeWithContext starts an HTTP or HTTPS server (manual
// certificates or Let's Encrypt via http-01) and blocks until ctx is
// canceled or the server hits a terminal error.
//
// It does NOT wire any routes itself; callers pass a fully configured
// http.Handler.
func ListenAndServeWithContext(
	ctx context.Context,
	cfg *config.CoreConfig,
	handler http.Handler,
	logger *zap.Logger,
) error {
	if cfg == nil {
		return fmt.Errorf("ListenAndServeWithContext: cfg is nil")
	}
	if handler == nil {
		return fmt.Errorf("ListenAndServeWithContext: handler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := newHTTPServer(cfg, handler, logger)
	httpAddr := ":" + strconv.Itoa(cfg.HTTP.HTTPPort)
	httpsAddr := ":" + strconv.Itoa(cfg.HTTP.HTTPSPort)

	var (
		auxSrv   *http.Server // :80 ACME or redirect server (HTTPS modes)
		ln       net.Listener // primary listener we Serve() on
		baseLn   net.Listener // underlying TCP listener (for TLS cleanup)
		serveErr = make(chan error, 1)
		auxErr   chan error // nil in HTTP-only mode; a nil channel never fires in select
		err      error
	)

	cleanupListener := func() {
		if baseLn != nil {
			_ = baseLn.Close()
		}
	}

	startAux := func(h http.Handler) {
		auxSrv = newHTTPServer(cfg, h, logger)
		auxSrv.Addr = ":80"
		auxErr = make(chan error, 1)
		go serveAuxiliary(auxSrv, auxErr)
	}

	switch {
	// ----------------------------- HTTP only -------------------------------
	case !cfg.HTTP.UseHTTPS:
		baseLn, err = net.Listen("tcp", httpAddr)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", httpAddr, err)
		}
		ln = baseLn
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		go servePrimary(srv, ln, serveErr)

	// ----------------------- HTTPS via Let's Encrypt -----------------------
	case cfg.TLS.UseLetsEncrypt:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Cache:      autocert.DirCache(cfg.TLS.LetsEncryptCacheDir),
			Email:      cfg.TLS.LetsEncryptEmail,
		}

		// Port 80: ACME challenge + HTTPS redirect for everything else.
		startAux(m.HTTPHandler(httpRedirectHandler()))
		logger.Info("ACME + redirect server listening", zap.String("addr", auxSrv.Addr))

		// Pre-warm before binding the HTTPS port.
		if err := waitForCert(ctx, m, cfg.TLS.Domain, 60*time.Second); err != nil {
			logger.Warn("autocert pre-warm failed; first HTTPS hits may see TLS errors", zap.Error(err))
		}

		tlsCfg := &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: m.GetCertificate,
		}
		srv.TLSConfig = tlsCfg

		baseLn, err = net.Listen("tcp", httpsAddr)
		if err != nil {
			_ = shutdownAux(context.Background(), auxSrv)
			return fmt.Errorf("listen https %s: %w", httpsAddr, err)
		}
		ln = tls.NewListener(baseLn, tlsCfg)
		logger.Info("HTTPS server (Let's Encrypt http-01) listening",
			zap.String("addr", httpsAddr),
			zap.String("domain", cfg.TLS.Domain))
		go servePrimary(srv, ln, serveErr)

	// ----------------------- HTTPS via manual certs ------------------------
	default:
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("manual TLS selected but cert_file / key_file not provided")
		}
		if err := validateTLSFiles(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
			if !errors.Is(err, errInsecureKey) {
				return err
			}
			if cfg.Env == "prod" {
				return fmt.Errorf("production security: %w", err)
			}
			logger.Warn("TLS key file security warning (would block in prod)", zap.Error(err))
		}

		cert, loadErr := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if loadErr != nil {
			return fmt.Errorf("load TLS cert/key: %w", loadErr)
		}
		tlsCfg := &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		srv.TLSConfig = tlsCfg

		startAux(httpRedirectHandler())
		logger.Info("HTTP → HTTPS redirect server listening", zap.String("addr", auxSrv.Addr))

		baseLn, err = net.Listen("tcp", httpsAddr)
		if err != nil {
			_ = shutdownAux(context.Background(), auxSrv)
			return fmt.Errorf("listen https %s: %w", httpsAddr, err)
		}
		ln = tls.NewListener(baseLn, tlsCfg)
		logger.Info("HTTPS server (manual TLS) listening",
			zap.String("addr", httpsAddr),
			zap.String("cert_file", cfg.TLS.CertFile))
		go servePrimary(srv, ln, serveErr)
	}

	// ---------- wait for shutdown / errors ----------
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down server…")
			// ctx is already canceled; the shutdown window starts now.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			_ = shutdownAux(shutdownCtx, auxSrv)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				cleanupListener()
				return fmt.Errorf("server shutdown: %w", err)
			}
			cleanupListener()
			logger.Info("server stopped gracefully")
			return nil

		case err := <-serveErr:
			_ = shutdownAux(context.Background(), auxSrv)
			cleanupListener()
			if err != nil {
				return fmt.Errorf("primary server error: %w", err)
			}
			return nil

		case err := <-auxErr:
			if err != nil {
				if closeErr := srv.Close(); closeErr != nil {
					logger.Error("failed to close primary server after auxiliary crash", zap.Error(closeErr))
				}
				// srv.Close does not close listeners passed to Serve.
				cleanupListener()
				return fmt.Errorf("auxiliary server error: %w", err)
			}
			// serveAuxiliary sends at most once.
			auxSrv = nil
			auxErr = nil
		}
	}
}

// newHTTPServer builds an http.Server with the configured timeouts and the
// stdlib error log routed into zap at Warn.
func newHTTPServer(cfg *config.CoreConfig, handler http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	} else {
		logger.Warn("failed to attach stdlib error logger", zap.Error(err))
	}
	return srv
}

// servePrimary runs srv.Serve on ln and reports terminal errors (nil on clean close).
func servePrimary(srv *http.Server, ln net.Listener, ch chan<- error) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		ch <- err
		return
	}
	ch <- nil
}

// serveAuxiliary runs auxSrv.ListenAndServe and reports terminal errors.
func serveAuxiliary(auxSrv *http.Server, ch chan<- error) {
	if err := auxSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		ch <- err
		return
	}
	ch <- nil
}

func shutdownAux(ctx context.Context, auxSrv *http.Server) error {
	if auxSrv == nil {
		return nil
	}
	return auxSrv.Shutdown(ctx)
}

// httpRedirectHandler redirects any HTTP request to HTTPS preserving host + path.
// Hosts and request targets carrying control characters are rejected.
func httpRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		reqURI := r.URL.RequestURI()
		if !isValidHost(host) || !isValidRequestURI(reqURI) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+host+reqURI, http.StatusMovedPermanently)
	})
}

func isValidRequestURI(uri string) bool {
	for _, c := range uri {
		if (c < 0x20 && c != '\t') || c == 0x7f {
			return false
		}
	}
	return true
}

// isValidHost reports whether host is safe to echo into a Location header.
func isValidHost(host string) bool {
	if host == "" || strings.Contains(host, "://") || strings.HasPrefix(host, "/") {
		return false
	}

	hostPart, portStr, err := net.SplitHostPort(host)
	if err != nil {
		// No port; a bare IPv6 literal lands here too.
		hostPart = host
	} else if portStr != "" {
		port, perr := strconv.Atoi(portStr)
		if perr != nil || port <= 0 || port > 65535 {
			return false
		}
	}
	if hostPart == "" {
		return false
	}

	if strings.HasPrefix(hostPart, "[") && strings.HasSuffix(hostPart, "]") {
		ip := hostPart[1 : len(hostPart)-1]
		if i := strings.Index(ip, "%"); i != -1 {
			ip = ip[:i]
		}
		if net.ParseIP(ip) == nil {
			return false
		}
	}

	for _, c := range hostPart {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

// validateTLSFiles checks that the certificate and key exist and are regular
// files. A key readable by group or others yields an error wrapping
// errInsecureKey so the caller can decide whether it is fatal.
func validateTLSFiles(certFile, keyFile string) error {
	if _, err := statRegular("certificate", certFile); err != nil {
		return err
	}
	keyInfo, err := statRegular("key", keyFile)
	if err != nil {
		return err
	}

	// Unix permission bits are meaningless on Windows.
	if runtime.GOOS != "windows" && keyInfo.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("%w: %s is %o (recommended: 0600)", errInsecureKey, keyFile, keyInfo.Mode().Perm())
	}
	return nil
}

func statRegular(kind, path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("TLS %s file does not exist: %s", kind, path)
		}
		return nil, fmt.Errorf("cannot access TLS %s file %s: %w", kind, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("TLS %s path is a directory, not a file: %s", kind, path)
	}
	return info, nil
}

// waitForCert blocks until autocert has a certificate for host, the timeout
// passes, or ctx ends, whichever comes first.
func waitForCert(ctx context.Context, m *autocert.Manager, host string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
		if err == nil {
			return nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for cert for %q: %w", host, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

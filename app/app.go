// app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/productcatalog/config"
	"github.com/dalemusser/productcatalog/logging"
	"github.com/dalemusser/productcatalog/metrics"
	"github.com/dalemusser/productcatalog/server"
	"go.uber.org/zap"
)

// shutdownGrace bounds the Shutdown hook after the server has stopped.
const shutdownGrace = 10 * time.Second

// Hooks defines the integration points an application provides to Run.
// C is the app config type, D the bundle of connected backends.
type Hooks[C any, D any] struct {
	// Name is used only for logging/diagnostics.
	Name string

	// LoadConfig returns the core config and the app-specific config,
	// typically via config.LoadWithAppConfig plus app-level validation.
	LoadConfig func(logger *zap.Logger) (*config.CoreConfig, C, error)

	// ConnectDB connects the databases and backends the app needs. It
	// should respect core.DBConnectTimeout for its own timeouts.
	ConnectDB func(ctx context.Context, core *config.CoreConfig, appCfg C, logger *zap.Logger) (D, error)

	// EnsureSchema runs index creation or other startup tasks that need
	// the connected backends. It runs under core.SchemaBootTimeout and may
	// be nil.
	EnsureSchema func(ctx context.Context, core *config.CoreConfig, appCfg C, db D, logger *zap.Logger) error

	// BuildHandler constructs the final http.Handler: router, middleware
	// and routes.
	BuildHandler func(core *config.CoreConfig, appCfg C, db D, logger *zap.Logger) (http.Handler, error)

	// Shutdown releases what ConnectDB opened. It runs after the server
	// stops, and also when a later startup step fails. May be nil.
	Shutdown func(ctx context.Context, core *config.CoreConfig, appCfg C, db D, logger *zap.Logger) error
}

// Run executes the standard startup sequence:
//
//  1. Bootstrap logger
//  2. Load core + app config (Hooks.LoadConfig)
//  3. Build final logger based on core config
//  4. Register default metrics
//  5. Connect DB/backends (Hooks.ConnectDB)
//  6. Ensure schema/indexes (Hooks.EnsureSchema, if provided)
//  7. Wire shutdown signals to a context
//  8. Build the HTTP handler (Hooks.BuildHandler)
//  9. Start the HTTP(S) server and block until shutdown
//  10. Release backends (Hooks.Shutdown, if provided)
//
// Any startup failure is logged and returned; nothing is retried.
func Run[C any, D any](ctx context.Context, hooks Hooks[C, D]) error {
	// 1) Bootstrap logger for early startup
	bootstrap := logging.BootstrapLogger()
	defer func() { _ = bootstrap.Sync() }()
	bootstrap.Info("bootstrap logger initialized", zap.String("app", hooks.Name))

	// 2) Load config (core + app-specific)
	coreCfg, appCfg, err := hooks.LoadConfig(bootstrap)
	if err != nil {
		bootstrap.Error("config load failed", zap.Error(err))
		return fmt.Errorf("load config: %w", err)
	}
	bootstrap.Info("config loaded",
		zap.String("env", coreCfg.Env),
		zap.String("log_level", coreCfg.LogLevel),
	)

	// 3) Build final logger
	logger, err := logging.BuildLogger(coreCfg.LogLevel, coreCfg.Env)
	if err != nil {
		bootstrap.Error("logger build failed", zap.Error(err))
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("logger initialized", zap.String("app", hooks.Name))
	logger.Debug("core config", zap.String("config", coreCfg.Dump()))

	// 4) Register default metrics (Go, process, HTTP histograms, domain counters)
	metrics.RegisterDefault(logger)

	// 5) Connect DB/backends
	dbBundle, err := hooks.ConnectDB(ctx, coreCfg, appCfg, logger)
	if err != nil {
		logger.Error("DB connect failed", zap.Error(err))
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if hooks.Shutdown == nil {
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := hooks.Shutdown(sctx, coreCfg, appCfg, dbBundle, logger); err != nil {
			logger.Warn("shutdown hook failed", zap.Error(err))
		}
	}()

	// 6) Ensure schema/indexes (optional)
	if hooks.EnsureSchema != nil {
		schemaCtx, cancel := context.WithTimeout(ctx, coreCfg.SchemaBootTimeout)
		err := hooks.EnsureSchema(schemaCtx, coreCfg, appCfg, dbBundle, logger)
		cancel()
		if err != nil {
			logger.Error("schema ensure failed", zap.Error(err))
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	// 7) Wire shutdown signals → context
	ctx, cancel := server.WithShutdownSignals(ctx, logger)
	defer cancel()

	// 8) Build HTTP handler (router + middleware + routes)
	handler, err := hooks.BuildHandler(coreCfg, appCfg, dbBundle, logger)
	if err != nil {
		logger.Error("handler build failed", zap.Error(err))
		return fmt.Errorf("build handler: %w", err)
	}

	// 9) Start HTTP server
	if err := server.ListenAndServeWithContext(ctx, coreCfg, handler, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

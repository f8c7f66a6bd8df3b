package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/kieranpgray/coinbag-sub006/internal/config"
	"github.com/kieranpgray/coinbag-sub006/internal/core"
	"github.com/kieranpgray/coinbag-sub006/internal/logging"
	"github.com/kieranpgray/coinbag-sub006/internal/realtime"
	"github.com/kieranpgray/coinbag-sub006/internal/storage"
	"github.com/kieranpgray/coinbag-sub006/internal/store"
	"github.com/kieranpgray/coinbag-sub006/internal/trigger"
	"github.com/kieranpgray/coinbag-sub006/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_file_size", cfg.Import.MaxFileSize,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	log := slog.Default()

	// Record store; the schema is idempotent, so applying it at boot is safe.
	imports := store.New(pool, log)
	if err := imports.InitSchema(ctx); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// Pipeline collaborators
	files := storage.NewClient(
		cfg.Storage.Endpoint,
		cfg.Storage.Bucket,
		storage.StaticToken(cfg.Storage.Token),
		cfg.Storage.Timeout,
		log,
	)
	parser := trigger.NewClient(cfg.Parser.TriggerURL, cfg.Parser.APIKey, cfg.Parser.TriggerTimeout, log)
	statuses := realtime.NewPoller(imports, cfg.Import.StatusPollInterval, log)
	revisions := web.NewViewRevisions()

	validator := core.NewFileValidator(
		cfg.Import.MaxFileSize,
		cfg.Import.AllowedMIMETypes,
		cfg.Import.AllowedExtensions,
	)
	orch := core.NewOrchestrator(validator, imports, files, parser, statuses, revisions, log)
	service := core.NewService(orch, cfg.Import.BatchRetention, log)

	// Create server with config
	server := web.NewServer(cfg, service, imports, revisions)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Stop watching active batches; parsing jobs keep running server-side.
		service.CloseAll()
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

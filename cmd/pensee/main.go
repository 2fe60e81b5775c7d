// Entry point for the pensee thinking-session server: MCP on stdio by
// default, a chi HTTP mirror when PORT is set, and an SQLite audit trail
// when AUDIT_DB is set.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pensee"
	"github.com/hazyhaar/pensee/internal/audit"
	"github.com/hazyhaar/pensee/internal/dbopen"
)

const version = "0.1.0"

func main() {
	logLevel := env("LOG_LEVEL", "info")
	configPath := env("PENSEE_CONFIG", "")
	storageDir := env("PENSEE_STORAGE_DIR", "")
	defaultProject := env("PENSEE_PROJECT", "")
	auditPath := env("AUDIT_DB", "")
	port := env("PORT", "")

	// Logging. MCP owns stdout when serving stdio, so logs go to stderr.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config: YAML file if given, env overrides on top.
	cfg := &pensee.Config{}
	if configPath != "" {
		loaded, err := pensee.LoadConfigFile(configPath)
		if err != nil {
			slog.Error("load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if storageDir != "" {
		cfg.StorageDir = storageDir
	}
	if defaultProject != "" {
		cfg.DefaultProject = defaultProject
	}

	var opts []pensee.ServiceOption
	if auditPath != "" {
		db, err := dbopen.Open(auditPath, dbopen.WithMkdirAll())
		if err != nil {
			slog.Error("audit db", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		auditLogger := audit.NewSQLiteLogger(db, audit.WithLogger(logger))
		if err := auditLogger.Init(); err != nil {
			slog.Error("audit init", "error", err)
			os.Exit(1)
		}
		defer auditLogger.Close()
		opts = append(opts, pensee.WithAudit(auditLogger))
	}

	svc, err := pensee.New(cfg, logger, opts...)
	if err != nil {
		slog.Error("service init", "error", err)
		os.Exit(1)
	}

	// Optional HTTP mirror.
	if port != "" {
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		svc.RegisterHTTP(r)

		httpSrv := &http.Server{
			Addr:              ":" + port,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			slog.Info("http server starting", "port", port)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server", "error", err)
				os.Exit(1)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				slog.Error("http shutdown", "error", err)
			}
		}()
	}

	// MCP server on stdio.
	srv := mcp.NewServer(&mcp.Implementation{Name: "pensee", Version: version}, nil)
	svc.RegisterMCP(srv)
	svc.RegisterPrompts(srv)

	slog.Info("mcp server starting", "transport", "stdio", "storage_dir", cfg.StorageDir)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp server", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

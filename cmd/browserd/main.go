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

	"github.com/quarev/browserd"
)

func main() {
	configPath := env("CONFIG", "")
	mcpTransport := env("MCP_TRANSPORT", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
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
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config: optional YAML file, env overrides.
	var cfg browserd.Config
	if configPath != "" {
		loaded, err := browserd.LoadConfig(configPath)
		if err != nil {
			slog.Error("config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if v := os.Getenv("LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("CHROME_URL"); v != "" {
		cfg.Engine.RemoteURL = v
	}
	if os.Getenv("STEALTH") == "true" {
		cfg.Engine.Stealth = true
	}
	if v := os.Getenv("HISTORY_DB"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("AUTH_USER"); v != "" {
		cfg.Auth.Username = v
		cfg.Auth.PasswordHash = os.Getenv("AUTH_PASSWORD_HASH")
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8089"
	}

	svc, err := browserd.New(cfg, logger)
	if err != nil {
		slog.Error("service", "error", err)
		os.Exit(1)
	}

	// Launch the engine at boot; a failure is logged and left for an
	// explicit re-initialize, the service still serves its API.
	if err := svc.Initialize(ctx); err != nil {
		slog.Error("engine initialize", "error", err)
	}

	// Optional MCP stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "browserd",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// HTTP server.
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(browserd.BasicAuth(cfg.Auth))
	svc.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	if err := svc.Close(shutdownCtx); err != nil {
		slog.Error("service close", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

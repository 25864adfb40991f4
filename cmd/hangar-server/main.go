// Package main provides the hangar server entry point: the HTTP API
// for uploading, managing, and distributing app builds.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/hangarhq/hangar/pkg/db"
	"github.com/hangarhq/hangar/pkg/server"
)

func main() {
	var (
		configPath   string
		listenAddr   string
		databaseType string
		databaseDSN  string
		storageDir   string
		baseURL      string
	)

	flag.StringVar(&configPath, "config", "", "Path to YAML config (optional)")
	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&databaseType, "db-type", "", "Database type (postgres, mysql, or sqlite)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string")
	flag.StringVar(&storageDir, "storage-dir", "", "Artifact storage directory")
	flag.StringVar(&baseURL, "base-url", "", "Public base URL for download links")
	flag.Parse()

	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	// Flags beat both file and environment.
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if databaseType != "" {
		cfg.Database.Type = databaseType
	}
	if databaseDSN != "" {
		cfg.Database.DSN = databaseDSN
	}
	if storageDir != "" {
		cfg.Storage.Dir = storageDir
	}
	if baseURL != "" {
		cfg.PublicBaseURL = baseURL
	}

	logger.Info("starting hangar server",
		"listen", cfg.Listen,
		"db", cfg.Database.Type,
		"storage", cfg.Storage.Dir,
		"baseURL", cfg.PublicBaseURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	gormDB, err := db.Connect(cfg.Database.Type, cfg.Database.DSN, db.Options{})
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	srv, err := server.New(cfg, gormDB, logger)
	if err != nil {
		glog.Fatalf("Failed to build server: %v", err)
	}

	if err := seedAdmin(srv, logger); err != nil {
		glog.Fatalf("Failed to seed admin account: %v", err)
	}

	if err := srv.Run(ctx); err != nil {
		glog.Fatalf("Server exited: %v", err)
	}
}

// seedAdmin bootstraps the first admin account from HANGAR_ADMIN_EMAIL
// and HANGAR_ADMIN_PASSWORD. A no-op when the variables are unset or
// the account already exists.
func seedAdmin(srv *server.Server, logger *slog.Logger) error {
	email := os.Getenv("HANGAR_ADMIN_EMAIL")
	password := os.Getenv("HANGAR_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	created, err := srv.Identity().EnsureAdmin(email, password)
	if err != nil {
		return err
	}
	if created {
		logger.Info("seeded admin account", "email", email)
	}
	return nil
}

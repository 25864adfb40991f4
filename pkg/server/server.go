// Package server assembles the application: stores, services,
// middleware, routes, and the HTTP listener lifecycle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/hangarhq/hangar/pkg/admin"
	"github.com/hangarhq/hangar/pkg/apperror"
	"github.com/hangarhq/hangar/pkg/artifact"
	"github.com/hangarhq/hangar/pkg/audit"
	"github.com/hangarhq/hangar/pkg/catalog"
	"github.com/hangarhq/hangar/pkg/cleanup"
	"github.com/hangarhq/hangar/pkg/download"
	"github.com/hangarhq/hangar/pkg/identity"
	"github.com/hangarhq/hangar/pkg/inspect"
	"github.com/hangarhq/hangar/pkg/statcache"
)

// Server wires the application together and runs the HTTP listener.
type Server struct {
	cfg       *Config
	db        *gorm.DB
	logger    *slog.Logger
	artifacts artifact.Store

	identity  *identity.Service
	catalog   *catalog.Service
	downloads *download.Service
	admin     *admin.Service
	workers   *cleanup.WorkerPool
	auditing  *audit.Store
	retention *audit.RetentionWorker

	router    chi.Router
	startedAt time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithArtifactStore overrides the filesystem artifact store, e.g. for
// tests or alternative backends.
func WithArtifactStore(store artifact.Store) ServerOption {
	return func(s *Server) {
		s.artifacts = store
	}
}

// New builds a fully wired Server. The database connection must
// already be open; New runs migrations and constructs every service.
func New(cfg *Config, gdb *gorm.DB, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		db:        gdb,
		logger:    logger,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.artifacts == nil {
		store, err := artifact.NewFilesystemStore(cfg.Storage.Dir, "/api/files")
		if err != nil {
			return nil, fmt.Errorf("open artifact store: %w", err)
		}
		s.artifacts = store
	}

	userStore := identity.NewUserStore(gdb)
	catalogStore := catalog.NewStore(gdb)
	taskStore := cleanup.NewTaskStore(gdb)
	s.auditing = audit.NewStore(gdb)
	for name, migrate := range map[string]func() error{
		"users":   userStore.AutoMigrate,
		"catalog": catalogStore.AutoMigrate,
		"cleanup": taskStore.AutoMigrate,
		"audit":   s.auditing.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			return nil, fmt.Errorf("migrate %s tables: %w", name, err)
		}
	}

	s.identity = identity.NewService(userStore, identity.Config{
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  cfg.Auth.TokenTTL,
	}, logger)

	workerCfg := cleanup.DefaultConfig()
	if cfg.Cleanup.Enabled != nil {
		workerCfg.Enabled = *cfg.Cleanup.Enabled
	}
	if cfg.Cleanup.Concurrency > 0 {
		workerCfg.Concurrency = cfg.Cleanup.Concurrency
	}
	if cfg.Cleanup.MaxRetries > 0 {
		workerCfg.MaxRetries = cfg.Cleanup.MaxRetries
	}
	if cfg.Cleanup.PollInterval > 0 {
		workerCfg.PollInterval = cfg.Cleanup.PollInterval
	}
	s.workers = cleanup.NewWorkerPool(taskStore, s.artifacts, workerCfg, logger)

	s.catalog = catalog.NewService(catalogStore, s.artifacts, inspect.New(), s.workers, catalog.Config{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		PublicBaseURL:  cfg.PublicBaseURL,
	}, logger)

	s.downloads = download.NewService(catalogStore, s.artifacts, cfg.PublicBaseURL, logger)

	cache := statcache.New(64, cfg.StatsCacheTTL)
	s.admin = admin.NewService(userStore, catalogStore, s.catalog, cache, logger)

	s.retention = audit.NewRetentionWorker(s.auditing, cfg.Audit.RetentionDays, logger)

	s.router = s.mountRoutes()
	return s, nil
}

// mountRoutes builds the chi router with the common middleware stack
// and every API surface mounted.
func (s *Server) mountRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	audited := audit.Middleware(s.auditing, s.cfg.Audit, s.logger)

	r.Mount("/api/auth", identity.NewRouter(s.identity))
	r.Mount("/api/apps", audited(catalog.NewAppsRouter(s.catalog, s.identity)))
	r.Mount("/api/versions", audited(catalog.NewVersionsRouter(s.catalog, s.identity)))
	r.Mount("/api/download", download.NewRouter(s.downloads))
	r.Mount("/api/admin", audited(adminRouter(s)))

	r.Get("/api/files/*", s.fileHandler)
	r.Get("/healthz", s.healthHandler)

	return r
}

// adminRouter groups the admin API with the audit trail nested under
// /audit.
func adminRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Mount("/audit", audit.NewRouter(s.auditing, s.identity))
	r.Mount("/", admin.NewRouter(s.admin, s.identity))
	return r
}

// Router returns the assembled router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Identity returns the identity service, used by cmd wiring for admin
// seeding.
func (s *Server) Identity() *identity.Service { return s.identity }

// fileHandler serves stored objects (icons and anything else exposed
// through URLFor) by locator. Locator keys are random, so this is
// public but not enumerable.
func (s *Server) fileHandler(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "*")
	rc, _, err := s.artifacts.Open(locator)
	if err != nil {
		apperror.WriteError(w, apperror.NotFound("no such file"))
		return
	}
	defer rc.Close()
	http.ServeContent(w, r, locator, time.Time{}, rc)
}

// healthHandler reports liveness: process up, database reachable,
// storage directory writable.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	components := map[string]string{
		"database": "up",
		"storage":  "up",
	}

	if sqlDB, err := s.db.DB(); err != nil {
		components["database"] = "down"
	} else if err := sqlDB.Ping(); err != nil {
		components["database"] = "down"
	}
	if fs, ok := s.artifacts.(*artifact.FilesystemStore); ok {
		if _, err := os.Stat(fs.Root()); err != nil {
			components["storage"] = "down"
		}
	}
	for _, v := range components {
		if v != "up" {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"components": components,
	})
}

// Run serves HTTP until ctx is cancelled, then drains in-flight
// requests. The cleanup worker pool runs for the same lifetime.
func (s *Server) Run(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		s.workers.Run(workerCtx)
		close(workersDone)
	}()
	if s.cfg.Audit.Enabled {
		go s.retention.Run(workerCtx)
	}

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http shutdown error", "error", err)
		}
	case err := <-errCh:
		stopWorkers()
		<-workersDone
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	stopWorkers()
	<-workersDone
	s.logger.Info("server stopped")
	return nil
}

package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/hangarhq/hangar/pkg/apperror"
	"github.com/hangarhq/hangar/pkg/artifact"
	"github.com/hangarhq/hangar/pkg/identity"
	"github.com/hangarhq/hangar/pkg/inspect"
)

// DefaultMaxUploadBytes is the upload size ceiling: 500 MiB.
const DefaultMaxUploadBytes = 500 << 20

// tokenRollAttempts bounds the re-roll loop on token collisions.
// Collisions are cryptographically negligible; the loop exists so the
// unique-index backstop never turns into a user-visible failure.
const tokenRollAttempts = 5

// Remover queues best-effort artifact removals. Removal failures must
// never fail the catalog operation that triggered them.
type Remover interface {
	EnqueueRemoval(locator string)
}

// Config holds catalog service settings.
type Config struct {
	// MaxUploadBytes caps package uploads. Defaults to 500 MiB.
	MaxUploadBytes int64
	// PublicBaseURL prefixes download links handed to clients, e.g.
	// "https://builds.example.com". Empty means relative links.
	PublicBaseURL string
}

// Service orchestrates the upload-store-record pipeline and owns all
// app/version state transitions.
type Service struct {
	store     *Store
	artifacts artifact.Store
	inspector *inspect.Inspector
	remover   Remover
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a catalog Service. inspector may be nil to
// disable package introspection; remover may be nil to delete
// artifacts inline.
func NewService(store *Store, artifacts artifact.Store, inspector *inspect.Inspector, remover Remover, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		artifacts: artifacts,
		inspector: inspector,
		remover:   remover,
		cfg:       cfg,
		logger:    logger,
	}
}

// Store exposes the catalog store for the download resolver and admin
// reporting.
func (s *Service) Store() *Store { return s.store }

// MaxUploadBytes reports the configured upload ceiling.
func (s *Service) MaxUploadBytes() int64 { return s.cfg.MaxUploadBytes }

// CreateAppInput carries the caller-supplied app fields.
type CreateAppInput struct {
	BundleID    string `json:"bundle_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Platform    string `json:"platform"`
	IsPublic    *bool  `json:"is_public"`
}

// CreateApp registers a new app owned by the caller. The (platform,
// bundle_id) pair is unique across the whole system, not per user,
// mirroring real package namespaces.
func (s *Service) CreateApp(p *identity.Principal, in CreateAppInput) (*App, error) {
	record, err := s.buildAppRecord(p, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateApp(record); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict("an app with bundle id %q already exists on %s", in.BundleID, record.Platform)
		}
		return nil, apperror.Internal(err, "create app")
	}
	s.logger.Info("app created",
		"app_id", record.ID, "platform", record.Platform, "bundle_id", record.BundleID, "owner", p.UserID)
	return s.appToAPI(record)
}

// FindOrCreateApp atomically resolves the (platform, bundle_id) pair
// to an app, creating it when absent. This replaces the racy
// client-side try-create-then-find dance: the unique index decides the
// winner and the loser simply reads the existing row.
func (s *Service) FindOrCreateApp(p *identity.Principal, in CreateAppInput) (*App, bool, error) {
	record, err := s.buildAppRecord(p, in)
	if err != nil {
		return nil, false, err
	}

	createErr := s.store.CreateApp(record)
	if createErr == nil {
		app, err := s.appToAPI(record)
		return app, true, err
	}
	if !errors.Is(createErr, gorm.ErrDuplicatedKey) {
		return nil, false, apperror.Internal(createErr, "create app")
	}

	existing, err := s.store.GetAppByBundle(record.Platform, record.BundleID)
	if err != nil {
		return nil, false, apperror.Internal(err, "find existing app")
	}
	if existing == nil {
		// Created and deleted between our insert and read; treat as a
		// conflict the caller can retry.
		return nil, false, apperror.Conflict("app %s/%s is being modified concurrently", record.Platform, record.BundleID)
	}
	if existing.OwnerID != p.UserID && !p.IsAdmin {
		return nil, false, apperror.Conflict("bundle id %q on %s is owned by another user", in.BundleID, record.Platform)
	}
	app, err := s.appToAPI(existing)
	return app, false, err
}

func (s *Service) buildAppRecord(p *identity.Principal, in CreateAppInput) (*AppRecord, error) {
	bundleID := strings.TrimSpace(in.BundleID)
	platform := strings.ToLower(strings.TrimSpace(in.Platform))
	name := strings.TrimSpace(in.Name)

	if bundleID == "" {
		return nil, apperror.Validation("bundle_id must not be empty")
	}
	if !ValidPlatform(platform) {
		return nil, apperror.Validation("platform must be %q or %q", PlatformAndroid, PlatformIOS)
	}
	if name == "" {
		name = bundleID
	}

	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	return &AppRecord{
		OwnerID:     p.UserID,
		Platform:    platform,
		BundleID:    bundleID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		IsPublic:    isPublic,
	}, nil
}

// GetApp returns one app. Owners and admins see their apps always;
// other callers only see public apps, and private apps deny with
// NotFound so their existence does not leak.
func (s *Service) GetApp(p *identity.Principal, id uint) (*App, error) {
	record, err := s.authorizeRead(p, id)
	if err != nil {
		return nil, err
	}
	return s.appToAPI(record)
}

// ListApps returns a page of the caller's own apps.
func (s *Service) ListApps(p *identity.Principal, platform string, page, pageSize int) (*AppList, error) {
	if platform != "" && !ValidPlatform(platform) {
		return nil, apperror.Validation("platform must be %q or %q", PlatformAndroid, PlatformIOS)
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page < 1 {
		page = 1
	}

	records, total, err := s.store.ListApps(AppFilter{OwnerID: p.UserID, Platform: platform}, page, pageSize)
	if err != nil {
		return nil, apperror.Internal(err, "list apps")
	}

	items, err := s.appsToAPI(records)
	if err != nil {
		return nil, err
	}
	return &AppList{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// UpdateAppInput carries the mutable app fields. Nil pointers leave a
// field untouched.
type UpdateAppInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

// UpdateApp patches mutable app fields. Platform and bundle_id are
// immutable after creation.
func (s *Service) UpdateApp(p *identity.Principal, id uint, in UpdateAppInput) (*App, error) {
	record, err := s.authorizeWrite(p, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperror.Validation("name must not be empty")
		}
		record.Name = name
	}
	if in.Description != nil {
		record.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsPublic != nil {
		record.IsPublic = *in.IsPublic
	}

	if err := s.store.UpdateApp(record); err != nil {
		return nil, apperror.Internal(err, "update app")
	}
	return s.appToAPI(record)
}

// DeleteApp removes an app and cascades to its versions. Stored
// artifacts are queued for best-effort removal: a storage failure
// must not resurrect catalog state, so a leak is preferred over an
// inconsistency.
func (s *Service) DeleteApp(p *identity.Principal, id uint) error {
	if _, err := s.authorizeWrite(p, id); err != nil {
		return err
	}

	locators, err := s.store.DeleteAppCascade(id)
	if err != nil {
		return apperror.Internal(err, "delete app")
	}
	for _, locator := range locators {
		s.removeArtifact(locator)
	}
	s.logger.Info("app deleted", "app_id", id, "artifacts", len(locators), "caller", p.UserID)
	return nil
}

// authorizeRead loads an app and checks read visibility.
func (s *Service) authorizeRead(p *identity.Principal, id uint) (*AppRecord, error) {
	record, err := s.store.GetApp(id)
	if err != nil {
		return nil, apperror.Internal(err, "load app")
	}
	if record == nil {
		return nil, apperror.NotFound("app %d does not exist", id)
	}
	if record.OwnerID == p.UserID || p.IsAdmin || record.IsPublic {
		return record, nil
	}
	// Private app, foreign caller: indistinguishable from absent.
	return nil, apperror.NotFound("app %d does not exist", id)
}

// authorizeWrite loads an app and checks ownership. Foreign callers
// get Forbidden for public apps and NotFound for private ones.
func (s *Service) authorizeWrite(p *identity.Principal, id uint) (*AppRecord, error) {
	record, err := s.store.GetApp(id)
	if err != nil {
		return nil, apperror.Internal(err, "load app")
	}
	if record == nil {
		return nil, apperror.NotFound("app %d does not exist", id)
	}
	if record.OwnerID == p.UserID || p.IsAdmin {
		return record, nil
	}
	if record.IsPublic {
		return nil, apperror.Forbidden("app %d belongs to another user", id)
	}
	return nil, apperror.NotFound("app %d does not exist", id)
}

// removeArtifact queues (or performs) a best-effort artifact removal.
func (s *Service) removeArtifact(locator string) {
	if locator == "" {
		return
	}
	if s.remover != nil {
		s.remover.EnqueueRemoval(locator)
		return
	}
	if err := s.artifacts.Remove(context.Background(), locator); err != nil {
		s.logger.Warn("artifact removal failed", "locator", locator, "error", err)
	}
}

func (s *Service) appsToAPI(records []AppRecord) ([]App, error) {
	ids := make([]uint, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	counts, latest, err := s.store.VersionStats(ids)
	if err != nil {
		return nil, apperror.Internal(err, "compute version stats")
	}

	items := make([]App, len(records))
	for i := range records {
		items[i] = s.buildAppAPI(&records[i], counts[records[i].ID], latest[records[i].ID])
	}
	return items, nil
}

func (s *Service) appToAPI(record *AppRecord) (*App, error) {
	counts, latest, err := s.store.VersionStats([]uint{record.ID})
	if err != nil {
		return nil, apperror.Internal(err, "compute version stats")
	}
	app := s.buildAppAPI(record, counts[record.ID], latest[record.ID])
	return &app, nil
}

func (s *Service) buildAppAPI(record *AppRecord, versionCount int64, latestVersion string) App {
	var iconURL *string
	if record.IconPath != "" {
		u := s.artifacts.URLFor(record.IconPath)
		iconURL = &u
	}
	return App{
		ID:            record.ID,
		UserID:        record.OwnerID,
		BundleID:      record.BundleID,
		Name:          record.Name,
		IconURL:       iconURL,
		Description:   optional(record.Description),
		Platform:      record.Platform,
		IsPublic:      record.IsPublic,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
		VersionCount:  versionCount,
		LatestVersion: optional(latestVersion),
	}
}

// versionToAPI converts a version record to its API shape.
func (s *Service) versionToAPI(record *VersionRecord) Version {
	return Version{
		ID:            record.ID,
		AppID:         record.AppID,
		VersionCode:   record.VersionCode,
		VersionName:   record.VersionName,
		FileSize:      record.FileSize,
		Channel:       record.Channel,
		ReleaseNotes:  optional(record.ReleaseNotes),
		ForceUpdate:   record.ForceUpdate,
		IsPublished:   record.IsPublished,
		DownloadToken: record.DownloadToken,
		DownloadCount: record.DownloadCount,
		CreatedAt:     record.CreatedAt,
		DownloadURL:   s.cfg.PublicBaseURL + "/api/download/" + record.DownloadToken + "/file",
	}
}

// Content is the uploaded payload. multipart.File satisfies it; tests
// use bytes.Reader.
type Content interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// UploadInput carries one package upload.
type UploadInput struct {
	Filename     string
	Size         int64
	Content      Content
	VersionCode  string
	VersionName  string
	Channel      string
	ReleaseNotes string
	ForceUpdate  bool
}

// CreateVersion runs the upload pipeline: authorize, validate the
// package against the app's platform, optionally inspect it, store the
// artifact, and record the version under a fresh download token. Every
// stage completes or the whole operation unwinds; a failed upload
// leaves neither a version row nor a stored artifact behind.
//
// Inspection failures never abort the upload: the version falls back
// to caller-supplied or default metadata and the failure is returned
// as a warning string.
func (s *Service) CreateVersion(ctx context.Context, p *identity.Principal, appID uint, in UploadInput) (*Version, string, error) {
	app, err := s.authorizeWrite(p, appID)
	if err != nil {
		return nil, "", err
	}

	if in.Size > s.cfg.MaxUploadBytes {
		return nil, "", apperror.PayloadTooLarge("package exceeds the %d byte upload ceiling", s.cfg.MaxUploadBytes)
	}
	if in.Size <= 0 {
		return nil, "", apperror.Validation("uploaded file is empty")
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	if expected := platformExt(app.Platform); ext != expected {
		return nil, "", apperror.Validation("a %s app requires a %s package, got %q", app.Platform, expected, ext)
	}

	record := &VersionRecord{
		AppID:        app.ID,
		VersionCode:  strings.TrimSpace(in.VersionCode),
		VersionName:  strings.TrimSpace(in.VersionName),
		Channel:      strings.TrimSpace(in.Channel),
		ReleaseNotes: in.ReleaseNotes,
		ForceUpdate:  in.ForceUpdate,
		IsPublished:  true,
	}

	info, warning := s.applyInspection(app, record, in)
	if record.VersionCode == "" {
		record.VersionCode = "1"
	}
	if record.VersionName == "" {
		record.VersionName = "1.0.0"
	}
	if record.Channel == "" {
		record.Channel = "default"
	}

	// Stage the binary. The artifact store guarantees all-or-nothing,
	// so a disconnect mid-stream leaves nothing to clean up.
	if _, err := in.Content.Seek(0, io.SeekStart); err != nil {
		return nil, "", apperror.Internal(err, "rewind upload")
	}
	key := artifact.RandomKey("builds", ext)
	put, err := s.artifacts.Put(ctx, key, in.Content, in.Size)
	if err != nil {
		return nil, "", apperror.Storage(err, "store package")
	}
	record.FilePath = put.Locator
	record.FileSize = put.Size

	// Stage the icon, if inspection produced one and the app has none.
	iconLocator, iconErr := s.stageIcon(ctx, app, info)
	if iconErr != nil && warning == "" {
		warning = iconErr.Error()
	}

	if err := s.insertWithFreshToken(record); err != nil {
		// Unwind storage so the catalog looks untouched.
		s.removeInline(ctx, put.Locator)
		s.removeInline(ctx, iconLocator)
		return nil, "", err
	}

	if iconLocator != "" {
		app.IconPath = iconLocator
		if err := s.store.UpdateApp(app); err != nil {
			s.logger.Warn("failed to attach extracted icon", "app_id", app.ID, "error", err)
		}
	}

	s.logger.Info("version created",
		"app_id", app.ID, "version_id", record.ID,
		"version_name", record.VersionName, "size", record.FileSize,
		"warning", warning != "")
	version := s.versionToAPI(record)
	return &version, warning, nil
}

// applyInspection cross-checks and fills version metadata from the
// package binary. It only ever fills blanks; caller-supplied values
// win. Returns the parsed package info (nil when inspection is off or
// failed) and a warning describing any degradation.
func (s *Service) applyInspection(app *AppRecord, record *VersionRecord, in UploadInput) (*inspect.PackageInfo, string) {
	if s.inspector == nil {
		return nil, ""
	}
	info, err := s.inspector.Inspect(in.Content, in.Size, app.Platform)
	if err != nil {
		s.logger.Warn("package inspection failed",
			"app_id", app.ID, "filename", in.Filename, "error", err)
		return nil, fmt.Sprintf("package inspection failed (%v); using caller-supplied metadata", err)
	}

	if record.VersionCode == "" {
		record.VersionCode = info.VersionCode
	}
	if record.VersionName == "" {
		record.VersionName = info.VersionName
	}
	if info.BundleID != "" && info.BundleID != app.BundleID {
		return info, fmt.Sprintf("package bundle id %q does not match app bundle id %q", info.BundleID, app.BundleID)
	}
	return info, ""
}

// stageIcon stores the inspected icon for an app that has none yet.
// Failures are reported as a warning error, never fatal.
func (s *Service) stageIcon(ctx context.Context, app *AppRecord, info *inspect.PackageInfo) (string, error) {
	if info == nil || len(info.Icon) == 0 || app.IconPath != "" {
		return "", nil
	}
	key := artifact.RandomKey("icons", ".png")
	put, err := s.artifacts.Put(ctx, key, bytes.NewReader(info.Icon), int64(len(info.Icon)))
	if err != nil {
		return "", fmt.Errorf("storing extracted icon failed: %w", err)
	}
	return put.Locator, nil
}

// insertWithFreshToken rolls download tokens until the insert lands.
// The pre-check keeps error messages clean; the unique index is the
// real guarantee under concurrency.
func (s *Service) insertWithFreshToken(record *VersionRecord) error {
	for attempt := 0; attempt < tokenRollAttempts; attempt++ {
		token, err := newDownloadToken()
		if err != nil {
			return apperror.Internal(err, "generate token")
		}
		inUse, err := s.store.TokenInUse(token)
		if err != nil {
			return apperror.Internal(err, "check token uniqueness")
		}
		if inUse {
			continue
		}

		record.DownloadToken = token
		err = s.store.CreateVersion(record)
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue // lost the race on this token, roll again
		}
		return apperror.Internal(err, "record version")
	}
	return apperror.Internal(nil, "could not allocate a unique download token")
}

// removeInline deletes an artifact immediately as part of an unwind.
func (s *Service) removeInline(ctx context.Context, locator string) {
	if locator == "" {
		return
	}
	if err := s.artifacts.Remove(ctx, locator); err != nil {
		s.logger.Warn("unwind artifact removal failed", "locator", locator, "error", err)
	}
}

// ListVersions returns all versions of an app the caller may read.
func (s *Service) ListVersions(p *identity.Principal, appID uint) (*VersionList, error) {
	if _, err := s.authorizeRead(p, appID); err != nil {
		return nil, err
	}
	records, err := s.store.ListVersions(appID)
	if err != nil {
		return nil, apperror.Internal(err, "list versions")
	}
	items := make([]Version, len(records))
	for i := range records {
		items[i] = s.versionToAPI(&records[i])
	}
	return &VersionList{Items: items, Total: int64(len(items))}, nil
}

// UpdateVersionInput carries the mutable version metadata. All other
// version fields are immutable after creation.
type UpdateVersionInput struct {
	Channel      *string `json:"channel"`
	ReleaseNotes *string `json:"release_notes"`
	ForceUpdate  *bool   `json:"force_update"`
}

// UpdateVersion patches mutable version metadata.
func (s *Service) UpdateVersion(p *identity.Principal, versionID uint, in UpdateVersionInput) (*Version, error) {
	record, err := s.authorizeVersionWrite(p, versionID)
	if err != nil {
		return nil, err
	}

	if in.Channel != nil {
		channel := strings.TrimSpace(*in.Channel)
		if channel == "" {
			channel = "default"
		}
		record.Channel = channel
	}
	if in.ReleaseNotes != nil {
		record.ReleaseNotes = *in.ReleaseNotes
	}
	if in.ForceUpdate != nil {
		record.ForceUpdate = *in.ForceUpdate
	}

	if err := s.store.UpdateVersionMeta(record); err != nil {
		return nil, apperror.Internal(err, "update version")
	}
	version := s.versionToAPI(record)
	return &version, nil
}

// TogglePublish flips a version's publish state and reports the
// resulting value.
func (s *Service) TogglePublish(p *identity.Principal, versionID uint) (bool, error) {
	if _, err := s.authorizeVersionWrite(p, versionID); err != nil {
		return false, err
	}
	published, err := s.store.TogglePublished(versionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, apperror.NotFound("version %d does not exist", versionID)
		}
		return false, apperror.Internal(err, "toggle publish")
	}
	s.logger.Info("publish toggled", "version_id", versionID, "is_published", published)
	return published, nil
}

// DeleteVersion removes a version, retires its token, and queues the
// artifact for best-effort removal.
func (s *Service) DeleteVersion(p *identity.Principal, versionID uint) error {
	if _, err := s.authorizeVersionWrite(p, versionID); err != nil {
		return err
	}
	locator, err := s.store.DeleteVersion(versionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("version %d does not exist", versionID)
		}
		return apperror.Internal(err, "delete version")
	}
	s.removeArtifact(locator)
	s.logger.Info("version deleted", "version_id", versionID, "caller", p.UserID)
	return nil
}

// authorizeVersionWrite resolves a version and checks write access on
// its parent app.
func (s *Service) authorizeVersionWrite(p *identity.Principal, versionID uint) (*VersionRecord, error) {
	record, err := s.store.GetVersion(versionID)
	if err != nil {
		return nil, apperror.Internal(err, "load version")
	}
	if record == nil {
		return nil, apperror.NotFound("version %d does not exist", versionID)
	}
	if _, err := s.authorizeWrite(p, record.AppID); err != nil {
		return nil, err
	}
	return record, nil
}

// platformExt maps a platform to its package file extension.
func platformExt(platform string) string {
	if platform == PlatformIOS {
		return ".ipa"
	}
	return ".apk"
}

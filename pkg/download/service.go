// Package download serves tokenized, unauthenticated install links.
// The download token is the capability: whoever holds it may fetch the
// page info, the binary, and (for iOS) the OTA manifest.
package download

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hangarhq/hangar/pkg/apperror"
	"github.com/hangarhq/hangar/pkg/artifact"
	"github.com/hangarhq/hangar/pkg/catalog"
)

// PageInfo is the payload behind GET /api/download/{token}. Field
// names follow the install page's client contract.
type PageInfo struct {
	AppName       string    `json:"app_name"`
	AppIcon       *string   `json:"app_icon"`
	BundleID      string    `json:"bundle_id"`
	Platform      string    `json:"platform"`
	VersionName   string    `json:"version_name"`
	VersionCode   string    `json:"version_code"`
	FileSize      int64     `json:"file_size"`
	ReleaseNotes  *string   `json:"release_notes"`
	ForceUpdate   bool      `json:"force_update"`
	DownloadCount int64     `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
	DownloadURL   string    `json:"download_url"`
	PlistURL      *string   `json:"plist_url,omitempty"`
	ItmsURL       *string   `json:"itms_url,omitempty"`
}

// Service resolves download tokens against the catalog.
type Service struct {
	store      *catalog.Store
	artifacts  artifact.Store
	publicBase string
	logger     *slog.Logger
}

// NewService creates a download Service. publicBase is the externally
// reachable URL prefix; iOS OTA installs require it to be https.
func NewService(store *catalog.Store, artifacts artifact.Store, publicBase string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		artifacts:  artifacts,
		publicBase: strings.TrimRight(publicBase, "/"),
		logger:     logger,
	}
}

// resolve maps a token to its live version and app. Unknown tokens are
// NotFound; retired tokens, unpublished versions, and orphaned
// versions are Gone — the link existed once but no longer works.
func (s *Service) resolve(token string) (*catalog.VersionRecord, *catalog.AppRecord, error) {
	if token == "" {
		return nil, nil, apperror.NotFound("unknown download link")
	}
	version, err := s.store.GetVersionByToken(token)
	if err != nil {
		return nil, nil, apperror.Internal(err, "resolve token")
	}
	if version == nil {
		retired, err := s.store.TokenInUse(token)
		if err != nil {
			return nil, nil, apperror.Internal(err, "resolve token")
		}
		if retired {
			return nil, nil, apperror.Gone("this download link has been withdrawn")
		}
		return nil, nil, apperror.NotFound("unknown download link")
	}
	if !version.IsPublished {
		return nil, nil, apperror.Gone("this version is no longer published")
	}
	app, err := s.store.GetApp(version.AppID)
	if err != nil {
		return nil, nil, apperror.Internal(err, "load app for token")
	}
	if app == nil {
		return nil, nil, apperror.Gone("the app behind this link has been removed")
	}
	return version, app, nil
}

// Page builds the install page info for a token.
func (s *Service) Page(token string) (*PageInfo, error) {
	version, app, err := s.resolve(token)
	if err != nil {
		return nil, err
	}

	info := &PageInfo{
		AppName:       app.Name,
		BundleID:      app.BundleID,
		Platform:      app.Platform,
		VersionName:   version.VersionName,
		VersionCode:   version.VersionCode,
		FileSize:      version.FileSize,
		ForceUpdate:   version.ForceUpdate,
		DownloadCount: version.DownloadCount,
		CreatedAt:     version.CreatedAt,
		DownloadURL:   s.fileURL(token),
	}
	if app.IconPath != "" {
		icon := s.publicBase + s.artifacts.URLFor(app.IconPath)
		info.AppIcon = &icon
	}
	if version.ReleaseNotes != "" {
		notes := version.ReleaseNotes
		info.ReleaseNotes = &notes
	}
	if app.Platform == catalog.PlatformIOS {
		plistURL := s.manifestURL(token)
		itmsURL := itmsServicesURL(plistURL)
		info.PlistURL = &plistURL
		info.ItmsURL = &itmsURL
	}
	return info, nil
}

// FileStream opens the binary behind a token and bumps the download
// counter. The returned count is unique per successful resolve even
// under concurrent fetches.
func (s *Service) FileStream(token string) (io.ReadSeekCloser, *catalog.VersionRecord, *catalog.AppRecord, error) {
	version, app, err := s.resolve(token)
	if err != nil {
		return nil, nil, nil, err
	}
	rc, _, err := s.artifacts.Open(version.FilePath)
	if err != nil {
		return nil, nil, nil, apperror.Storage(err, "open package")
	}
	count, err := s.store.IncrementDownload(version.ID)
	if err != nil {
		rc.Close()
		return nil, nil, nil, apperror.Internal(err, "count download")
	}
	s.logger.Info("download served",
		"app_id", app.ID, "version_id", version.ID, "download_count", count)
	return rc, version, app, nil
}

// Manifest builds the iOS OTA property list for a token. Android
// tokens are a NotFound: the route only exists on iOS links.
func (s *Service) Manifest(token string) ([]byte, error) {
	version, app, err := s.resolve(token)
	if err != nil {
		return nil, err
	}
	if app.Platform != catalog.PlatformIOS {
		return nil, apperror.NotFound("manifests exist only for ios apps")
	}
	return renderManifest(manifestInput{
		PackageURL: s.fileURL(token),
		BundleID:   app.BundleID,
		Version:    version.VersionName,
		Title:      app.Name,
		IconURL:    s.iconURL(app),
	})
}

// InstallURL is the link encoded into the QR code: the itms-services
// URI for iOS so the camera app installs directly, the install page
// for Android.
func (s *Service) InstallURL(token string) (string, error) {
	_, app, err := s.resolve(token)
	if err != nil {
		return "", err
	}
	if app.Platform == catalog.PlatformIOS {
		return itmsServicesURL(s.manifestURL(token)), nil
	}
	return s.publicBase + "/d/" + token, nil
}

func (s *Service) fileURL(token string) string {
	return s.publicBase + "/api/download/" + token + "/file"
}

func (s *Service) manifestURL(token string) string {
	return s.publicBase + "/api/download/" + token + "/manifest.plist"
}

func (s *Service) iconURL(app *catalog.AppRecord) string {
	if app.IconPath == "" {
		return ""
	}
	return s.publicBase + s.artifacts.URLFor(app.IconPath)
}

// itmsServicesURL wraps a manifest URL in the Apple OTA install
// scheme.
func itmsServicesURL(manifestURL string) string {
	return fmt.Sprintf("itms-services://?action=download-manifest&url=%s", url.QueryEscape(manifestURL))
}

// Package catalog owns the App and Version entities and the
// upload-store-record pipeline. It enforces the (platform, bundle_id)
// and download-token uniqueness invariants and manages publish state.
package catalog

import (
	"time"
)

// Platforms an app can target. The platform namespaces bundle
// identifiers: android and ios apps may share a bundle_id.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

// ValidPlatform reports whether p is a known platform label.
func ValidPlatform(p string) bool {
	return p == PlatformAndroid || p == PlatformIOS
}

// AppRecord is the persisted app row. The composite unique index on
// (platform, bundle_id) makes bundle identity platform-global: the
// database, not the application, is the final arbiter of duplicates.
type AppRecord struct {
	ID          uint   `gorm:"primaryKey"`
	OwnerID     uint   `gorm:"index;not null"`
	Platform    string `gorm:"size:16;not null;uniqueIndex:idx_apps_platform_bundle,priority:1"`
	BundleID    string `gorm:"size:255;not null;uniqueIndex:idx_apps_platform_bundle,priority:2"`
	Name        string `gorm:"size:255;not null"`
	IconPath    string `gorm:"size:512"` // artifact locator, empty when no icon
	Description string `gorm:"type:text"`
	IsPublic    bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the GORM table name.
func (AppRecord) TableName() string { return "apps" }

// VersionRecord is the persisted version row. Immutable after creation
// except is_published and download_count.
type VersionRecord struct {
	ID            uint   `gorm:"primaryKey"`
	AppID         uint   `gorm:"index;not null"`
	VersionCode   string `gorm:"size:64;not null"`
	VersionName   string `gorm:"size:128;not null"`
	FileSize      int64  `gorm:"not null"`
	FilePath      string `gorm:"size:512;not null"` // artifact locator
	Channel       string `gorm:"size:64;not null;default:default"`
	ReleaseNotes  string `gorm:"type:text"`
	ForceUpdate   bool   `gorm:"not null;default:false"`
	IsPublished   bool   `gorm:"not null;default:true"`
	DownloadToken string `gorm:"size:64;uniqueIndex;not null"`
	DownloadCount int64  `gorm:"not null;default:0"`
	CreatedAt     time.Time
}

// TableName returns the GORM table name.
func (VersionRecord) TableName() string { return "versions" }

// RetiredTokenRecord remembers every download token that ever existed,
// so a deleted version's token can never be reissued onto a new
// resource.
type RetiredTokenRecord struct {
	Token     string `gorm:"primaryKey;size:64"`
	RetiredAt time.Time
}

// TableName returns the GORM table name.
func (RetiredTokenRecord) TableName() string { return "retired_tokens" }

// App is the API-facing app shape. VersionCount and LatestVersion are
// derived on read, never stored.
type App struct {
	ID            uint      `json:"id"`
	UserID        uint      `json:"user_id"`
	BundleID      string    `json:"bundle_id"`
	Name          string    `json:"name"`
	IconURL       *string   `json:"icon_url"`
	Description   *string   `json:"description"`
	Platform      string    `json:"platform"`
	IsPublic      bool      `json:"is_public"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	VersionCount  int64     `json:"version_count"`
	LatestVersion *string   `json:"latest_version"`
}

// Version is the API-facing version shape.
type Version struct {
	ID            uint      `json:"id"`
	AppID         uint      `json:"app_id"`
	VersionCode   string    `json:"version_code"`
	VersionName   string    `json:"version_name"`
	FileSize      int64     `json:"file_size"`
	Channel       string    `json:"channel"`
	ReleaseNotes  *string   `json:"release_notes"`
	ForceUpdate   bool      `json:"force_update"`
	IsPublished   bool      `json:"is_published"`
	DownloadToken string    `json:"download_token"`
	DownloadCount int64     `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
	DownloadURL   string    `json:"download_url"`
}

// AppList is a page of apps.
type AppList struct {
	Items    []App `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// VersionList is the full version listing of one app.
type VersionList struct {
	Items []Version `json:"items"`
	Total int64     `json:"total"`
}

// optional maps an empty string to a JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

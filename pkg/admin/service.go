// Package admin implements the reporting and moderation surface
// behind /api/admin. Everything here assumes the caller already passed
// the admin middleware.
package admin

import (
	"log/slog"
	"time"

	"github.com/hangarhq/hangar/pkg/apperror"
	"github.com/hangarhq/hangar/pkg/catalog"
	"github.com/hangarhq/hangar/pkg/identity"
	"github.com/hangarhq/hangar/pkg/statcache"
)

const statsCacheKey = "admin-stats"

// Stats are the aggregate counts on the admin dashboard.
type Stats struct {
	TotalUsers     int64 `json:"total_users"`
	TotalApps      int64 `json:"total_apps"`
	TotalVersions  int64 `json:"total_versions"`
	TotalDownloads int64 `json:"total_downloads"`
}

// User is the admin view of an account: the public shape plus how
// many apps the account owns.
type User struct {
	identity.User
	AppCount int64 `json:"app_count"`
}

// UserList is one page of admin user rows.
type UserList struct {
	Items    []User `json:"items"`
	Total    int64  `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// App is the admin view of an app with ownership and download totals
// denormalized in.
type App struct {
	ID             uint      `json:"id"`
	BundleID       string    `json:"bundle_id"`
	Name           string    `json:"name"`
	Platform       string    `json:"platform"`
	IsPublic       bool      `json:"is_public"`
	CreatedAt      time.Time `json:"created_at"`
	OwnerUsername  string    `json:"owner_username"`
	VersionCount   int64     `json:"version_count"`
	TotalDownloads int64     `json:"total_downloads"`
}

// AppList is one page of admin app rows.
type AppList struct {
	Items    []App `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Service aggregates reporting queries across the identity and
// catalog stores.
type Service struct {
	users  *identity.UserStore
	apps   *catalog.Store
	cat    *catalog.Service
	cache  *statcache.Cache
	logger *slog.Logger
}

// NewService creates an admin Service. cache may be nil to disable
// stats caching.
func NewService(users *identity.UserStore, apps *catalog.Store, cat *catalog.Service, cache *statcache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, apps: apps, cat: cat, cache: cache, logger: logger}
}

// Stats returns the aggregate counts, cached for a short TTL.
func (s *Service) Stats() (*Stats, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(statsCacheKey); ok {
			if stats, ok := v.(*Stats); ok {
				return stats, nil
			}
		}
	}

	users, err := s.users.Count()
	if err != nil {
		return nil, apperror.Internal(err, "count users")
	}
	apps, err := s.apps.CountApps()
	if err != nil {
		return nil, apperror.Internal(err, "count apps")
	}
	versions, err := s.apps.CountVersions()
	if err != nil {
		return nil, apperror.Internal(err, "count versions")
	}
	downloads, err := s.apps.SumDownloads()
	if err != nil {
		return nil, apperror.Internal(err, "sum downloads")
	}

	stats := &Stats{
		TotalUsers:     users,
		TotalApps:      apps,
		TotalVersions:  versions,
		TotalDownloads: downloads,
	}
	if s.cache != nil {
		s.cache.Set(statsCacheKey, stats)
	}
	return stats, nil
}

// invalidate drops cached aggregates after a mutation.
func (s *Service) invalidate() {
	if s.cache != nil {
		s.cache.InvalidateAll()
	}
}

// ListUsers returns one page of accounts with their app counts.
func (s *Service) ListUsers(search string, page, pageSize int) (*UserList, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page < 1 {
		page = 1
	}

	records, total, err := s.users.List(search, page, pageSize)
	if err != nil {
		return nil, apperror.Internal(err, "list users")
	}

	ids := make([]uint, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	counts, err := s.apps.AppCountsByOwner(ids)
	if err != nil {
		return nil, apperror.Internal(err, "count apps by owner")
	}

	items := make([]User, len(records))
	for i, r := range records {
		items[i] = User{User: r.ToAPI(), AppCount: counts[r.ID]}
	}
	return &UserList{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// SetUserFlags updates is_active/is_admin on an account. The system
// never lets the last active admin demote or deactivate itself into
// an unadministered instance.
func (s *Service) SetUserFlags(targetID uint, isActive, isAdmin *bool) (*User, error) {
	target, err := s.users.GetByID(targetID)
	if err != nil {
		return nil, apperror.Internal(err, "load user")
	}
	if target == nil {
		return nil, apperror.NotFound("user %d does not exist", targetID)
	}

	losesAdmin := target.IsAdmin && target.IsActive &&
		((isAdmin != nil && !*isAdmin) || (isActive != nil && !*isActive))
	if losesAdmin {
		admins, err := s.users.CountAdmins()
		if err != nil {
			return nil, apperror.Internal(err, "count admins")
		}
		if admins <= 1 {
			return nil, apperror.Conflict("cannot remove the last active admin")
		}
	}

	updated, err := s.users.SetFlags(targetID, isActive, isAdmin)
	if err != nil {
		return nil, apperror.Internal(err, "update user flags")
	}
	if updated == nil {
		return nil, apperror.NotFound("user %d does not exist", targetID)
	}

	s.invalidate()
	s.logger.Info("user flags updated",
		"user_id", targetID, "is_active", updated.IsActive, "is_admin", updated.IsAdmin)

	counts, err := s.apps.AppCountsByOwner([]uint{targetID})
	if err != nil {
		return nil, apperror.Internal(err, "count apps by owner")
	}
	return &User{User: updated.ToAPI(), AppCount: counts[targetID]}, nil
}

// ListApps returns one page of apps across all owners.
func (s *Service) ListApps(platform, search string, page, pageSize int) (*AppList, error) {
	if platform != "" && !catalog.ValidPlatform(platform) {
		return nil, apperror.Validation("platform must be %q or %q", catalog.PlatformAndroid, catalog.PlatformIOS)
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

	records, total, err := s.apps.ListApps(catalog.AppFilter{Platform: platform, Search: search}, page, pageSize)
	if err != nil {
		return nil, apperror.Internal(err, "list apps")
	}

	appIDs := make([]uint, len(records))
	for i, r := range records {
		appIDs[i] = r.ID
	}
	versionCounts, _, err := s.apps.VersionStats(appIDs)
	if err != nil {
		return nil, apperror.Internal(err, "compute version stats")
	}
	downloads, err := s.apps.DownloadsByApp(appIDs)
	if err != nil {
		return nil, apperror.Internal(err, "sum downloads by app")
	}

	items := make([]App, len(records))
	for i, r := range records {
		owner, err := s.users.GetByID(r.OwnerID)
		if err != nil {
			return nil, apperror.Internal(err, "load owner")
		}
		username := ""
		if owner != nil {
			username = owner.Username
		}
		items[i] = App{
			ID:             r.ID,
			BundleID:       r.BundleID,
			Name:           r.Name,
			Platform:       r.Platform,
			IsPublic:       r.IsPublic,
			CreatedAt:      r.CreatedAt,
			OwnerUsername:  username,
			VersionCount:   versionCounts[r.ID],
			TotalDownloads: downloads[r.ID],
		}
	}
	return &AppList{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// ToggleAppPublic flips an app's visibility and reports the new
// state.
func (s *Service) ToggleAppPublic(appID uint) (bool, error) {
	record, err := s.apps.GetApp(appID)
	if err != nil {
		return false, apperror.Internal(err, "load app")
	}
	if record == nil {
		return false, apperror.NotFound("app %d does not exist", appID)
	}

	record.IsPublic = !record.IsPublic
	if err := s.apps.UpdateApp(record); err != nil {
		return false, apperror.Internal(err, "update app")
	}
	s.invalidate()
	s.logger.Info("app visibility toggled", "app_id", appID, "is_public", record.IsPublic)
	return record.IsPublic, nil
}

// DeleteApp removes any app with the catalog's full cascade.
func (s *Service) DeleteApp(p *identity.Principal, appID uint) error {
	if err := s.cat.DeleteApp(p, appID); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

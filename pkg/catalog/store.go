package catalog

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Store persists apps, versions, and the retired-token ledger on a
// shared gorm handle so cascades run in one transaction.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the catalog tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AppRecord{}, &VersionRecord{}, &RetiredTokenRecord{}); err != nil {
		return fmt.Errorf("auto-migrate catalog: %w", err)
	}
	return nil
}

// CreateApp inserts a new app row. A (platform, bundle_id) duplicate
// surfaces as gorm.ErrDuplicatedKey.
func (s *Store) CreateApp(record *AppRecord) error {
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return nil
}

// GetApp retrieves an app by primary key. Returns nil, nil if no
// record exists.
func (s *Store) GetApp(id uint) (*AppRecord, error) {
	var record AppRecord
	err := s.db.First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get app %d: %w", id, err)
	}
	return &record, nil
}

// GetAppByBundle retrieves an app by its platform-scoped bundle id.
// Returns nil, nil if no record exists.
func (s *Store) GetAppByBundle(platform, bundleID string) (*AppRecord, error) {
	var record AppRecord
	err := s.db.Where("platform = ? AND bundle_id = ?", platform, bundleID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get app %s/%s: %w", platform, bundleID, err)
	}
	return &record, nil
}

// AppFilter narrows ListApps.
type AppFilter struct {
	// OwnerID restricts to one owner when non-zero.
	OwnerID uint
	// Platform restricts to one platform when non-empty.
	Platform string
	// Search substring-matches name or bundle_id when non-empty.
	Search string
}

// ListApps returns a page of apps ordered by creation (newest first)
// and the total match count.
func (s *Store) ListApps(filter AppFilter, page, pageSize int) ([]AppRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Model(&AppRecord{})
	if filter.OwnerID != 0 {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR bundle_id LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count apps: %w", err)
	}

	var records []AppRecord
	err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list apps: %w", err)
	}
	return records, total, nil
}

// UpdateApp persists mutable app fields (name, description, is_public,
// icon_path). Platform and bundle_id are immutable and never written.
func (s *Store) UpdateApp(record *AppRecord) error {
	err := s.db.Model(record).
		Select("name", "description", "is_public", "icon_path", "updated_at").
		Updates(record).Error
	if err != nil {
		return fmt.Errorf("update app %d: %w", record.ID, err)
	}
	return nil
}

// DeleteAppCascade removes an app, its versions, and retires every
// version's download token in one transaction. It returns the artifact
// locators (packages and icon) that the caller must queue for removal;
// storage cleanup is best-effort and deliberately outside the
// transaction.
func (s *Store) DeleteAppCascade(appID uint) ([]string, error) {
	var locators []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var app AppRecord
		if err := tx.First(&app, appID).Error; err != nil {
			return err
		}

		var versions []VersionRecord
		if err := tx.Where("app_id = ?", appID).Find(&versions).Error; err != nil {
			return err
		}
		for _, v := range versions {
			if err := retireToken(tx, v.DownloadToken); err != nil {
				return err
			}
			locators = append(locators, v.FilePath)
		}
		if app.IconPath != "" {
			locators = append(locators, app.IconPath)
		}

		if err := tx.Where("app_id = ?", appID).Delete(&VersionRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&AppRecord{}, appID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("delete app %d: %w", appID, err)
	}
	return locators, nil
}

// CountApps returns the total number of apps.
func (s *Store) CountApps() (int64, error) {
	var n int64
	if err := s.db.Model(&AppRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count apps: %w", err)
	}
	return n, nil
}

// AppCountsByOwner returns the number of apps per owner for the given
// owner ids.
func (s *Store) AppCountsByOwner(ownerIDs []uint) (map[uint]int64, error) {
	counts := map[uint]int64{}
	if len(ownerIDs) == 0 {
		return counts, nil
	}
	rows := []struct {
		OwnerID uint
		N       int64
	}{}
	err := s.db.Model(&AppRecord{}).
		Select("owner_id, COUNT(*) AS n").
		Where("owner_id IN ?", ownerIDs).
		Group("owner_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count apps by owner: %w", err)
	}
	for _, row := range rows {
		counts[row.OwnerID] = row.N
	}
	return counts, nil
}

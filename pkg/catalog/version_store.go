package catalog

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CreateVersion inserts a new immutable version row. A download-token
// collision surfaces as gorm.ErrDuplicatedKey so the caller can re-roll.
func (s *Store) CreateVersion(record *VersionRecord) error {
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("create version: %w", err)
	}
	return nil
}

// GetVersion retrieves a version by primary key. Returns nil, nil if
// no record exists.
func (s *Store) GetVersion(id uint) (*VersionRecord, error) {
	var record VersionRecord
	err := s.db.First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get version %d: %w", id, err)
	}
	return &record, nil
}

// GetVersionByToken retrieves a version by its download token.
// Returns nil, nil if no record exists.
func (s *Store) GetVersionByToken(token string) (*VersionRecord, error) {
	var record VersionRecord
	err := s.db.Where("download_token = ?", token).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get version by token: %w", err)
	}
	return &record, nil
}

// ListVersions returns all versions of an app, newest first.
func (s *Store) ListVersions(appID uint) ([]VersionRecord, error) {
	var records []VersionRecord
	err := s.db.Where("app_id = ?", appID).Order("id DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list versions of app %d: %w", appID, err)
	}
	return records, nil
}

// UpdateVersionMeta persists the mutable metadata fields of a version
// (channel, release_notes, force_update). Everything else is immutable.
func (s *Store) UpdateVersionMeta(record *VersionRecord) error {
	err := s.db.Model(record).
		Select("channel", "release_notes", "force_update").
		Updates(record).Error
	if err != nil {
		return fmt.Errorf("update version %d: %w", record.ID, err)
	}
	return nil
}

// TogglePublished flips is_published in a single UPDATE and returns
// the resulting state. Returns gorm.ErrRecordNotFound if the version
// does not exist.
func (s *Store) TogglePublished(id uint) (bool, error) {
	var published bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&VersionRecord{}).
			Where("id = ?", id).
			UpdateColumn("is_published", gorm.Expr("NOT is_published"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var record VersionRecord
		if err := tx.First(&record, id).Error; err != nil {
			return err
		}
		published = record.IsPublished
		return nil
	})
	if err != nil {
		return false, err
	}
	return published, nil
}

// DeleteVersion removes a version row and retires its download token
// in one transaction. It returns the artifact locator for best-effort
// removal. Returns "", gorm.ErrRecordNotFound if the version does not
// exist.
func (s *Store) DeleteVersion(id uint) (string, error) {
	var locator string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var record VersionRecord
		if err := tx.First(&record, id).Error; err != nil {
			return err
		}
		if err := retireToken(tx, record.DownloadToken); err != nil {
			return err
		}
		locator = record.FilePath
		return tx.Delete(&VersionRecord{}, id).Error
	})
	if err != nil {
		return "", err
	}
	return locator, nil
}

// IncrementDownload atomically bumps download_count and returns the
// new value. The update and read run in one transaction so concurrent
// resolves never observe or return the same count.
func (s *Store) IncrementDownload(id uint) (int64, error) {
	var count int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&VersionRecord{}).
			Where("id = ?", id).
			UpdateColumn("download_count", gorm.Expr("download_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var record VersionRecord
		if err := tx.First(&record, id).Error; err != nil {
			return err
		}
		count = record.DownloadCount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment download count of version %d: %w", id, err)
	}
	return count, nil
}

// TokenInUse reports whether a token exists on a live version or in
// the retired ledger. Used to re-roll candidate tokens; the unique
// index remains the backstop under concurrency.
func (s *Store) TokenInUse(token string) (bool, error) {
	var n int64
	if err := s.db.Model(&VersionRecord{}).Where("download_token = ?", token).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check live token: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if err := s.db.Model(&RetiredTokenRecord{}).Where("token = ?", token).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check retired token: %w", err)
	}
	return n > 0, nil
}

// CountVersions returns the total number of versions.
func (s *Store) CountVersions() (int64, error) {
	var n int64
	if err := s.db.Model(&VersionRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return n, nil
}

// SumDownloads returns the sum of download_count across all versions.
func (s *Store) SumDownloads() (int64, error) {
	var total *int64
	err := s.db.Model(&VersionRecord{}).
		Select("SUM(download_count)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum downloads: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// VersionStats returns the version count and latest version name per
// app for the given app ids. "Latest" is the most recently created
// version.
func (s *Store) VersionStats(appIDs []uint) (map[uint]int64, map[uint]string, error) {
	counts := map[uint]int64{}
	latest := map[uint]string{}
	if len(appIDs) == 0 {
		return counts, latest, nil
	}

	countRows := []struct {
		AppID uint
		N     int64
		MaxID uint
	}{}
	err := s.db.Model(&VersionRecord{}).
		Select("app_id, COUNT(*) AS n, MAX(id) AS max_id").
		Where("app_id IN ?", appIDs).
		Group("app_id").
		Find(&countRows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("version stats: %w", err)
	}

	newestIDs := make([]uint, 0, len(countRows))
	for _, row := range countRows {
		counts[row.AppID] = row.N
		newestIDs = append(newestIDs, row.MaxID)
	}
	if len(newestIDs) == 0 {
		return counts, latest, nil
	}

	var newest []VersionRecord
	if err := s.db.Where("id IN ?", newestIDs).Find(&newest).Error; err != nil {
		return nil, nil, fmt.Errorf("latest versions: %w", err)
	}
	for _, v := range newest {
		latest[v.AppID] = v.VersionName
	}
	return counts, latest, nil
}

// DownloadsByApp returns the summed download counts per app for the
// given app ids.
func (s *Store) DownloadsByApp(appIDs []uint) (map[uint]int64, error) {
	totals := map[uint]int64{}
	if len(appIDs) == 0 {
		return totals, nil
	}
	rows := []struct {
		AppID uint
		N     int64
	}{}
	err := s.db.Model(&VersionRecord{}).
		Select("app_id, SUM(download_count) AS n").
		Where("app_id IN ?", appIDs).
		Group("app_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("downloads by app: %w", err)
	}
	for _, row := range rows {
		totals[row.AppID] = row.N
	}
	return totals, nil
}

// retireToken writes a token to the retirement ledger inside tx.
func retireToken(tx *gorm.DB, token string) error {
	return tx.Create(&RetiredTokenRecord{Token: token, RetiredAt: time.Now()}).Error
}

package identity

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// UserStore provides CRUD operations for user records.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// AutoMigrate creates or updates the users table.
func (s *UserStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&UserRecord{}); err != nil {
		return fmt.Errorf("auto-migrate users: %w", err)
	}
	return nil
}

// Create inserts a new user. The email and username unique indexes are
// the authority on duplicates; a violation surfaces as
// gorm.ErrDuplicatedKey for the service to translate.
func (s *UserStore) Create(record *UserRecord) error {
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by primary key. Returns nil, nil if no
// record exists.
func (s *UserStore) GetByID(id uint) (*UserRecord, error) {
	var record UserRecord
	err := s.db.First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &record, nil
}

// GetByEmail retrieves a user by email. Returns nil, nil if no record
// exists.
func (s *UserStore) GetByEmail(email string) (*UserRecord, error) {
	var record UserRecord
	err := s.db.Where("email = ?", email).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &record, nil
}

// List returns a page of users ordered by id, optionally filtered by a
// substring match on email or username, with the total count.
func (s *UserStore) List(search string, page, pageSize int) ([]UserRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Model(&UserRecord{})
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("email LIKE ? OR username LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	var records []UserRecord
	err := query.Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return records, total, nil
}

// SetFlags updates is_active and/or is_admin. Nil pointers leave the
// flag untouched. Returns the updated record, or nil, nil if the user
// does not exist.
func (s *UserStore) SetFlags(id uint, isActive, isAdmin *bool) (*UserRecord, error) {
	record, err := s.GetByID(id)
	if err != nil || record == nil {
		return record, err
	}

	updates := map[string]any{}
	if isActive != nil {
		updates["is_active"] = *isActive
	}
	if isAdmin != nil {
		updates["is_admin"] = *isAdmin
	}
	if len(updates) == 0 {
		return record, nil
	}

	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update user flags: %w", err)
	}
	return record, nil
}

// Count returns the total number of users.
func (s *UserStore) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&UserRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CountAdmins returns the number of active admin accounts. Used to
// refuse stripping the last admin.
func (s *UserStore) CountAdmins() (int64, error) {
	var n int64
	err := s.db.Model(&UserRecord{}).
		Where("is_admin = ? AND is_active = ?", true, true).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

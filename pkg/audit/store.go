package audit

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store persists audit events.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Event{})
}

// Append writes a single event.
func (s *Store) Append(event *Event) error {
	if err := s.db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// GetByID returns an event, or nil when no row matches.
func (s *Store) GetByID(id string) (*Event, error) {
	var event Event
	err := s.db.Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return &event, nil
}

// ListFilter narrows a listing. Zero values match everything.
type ListFilter struct {
	Actor        string
	Action       string
	ResourceType string
	Outcome      string
}

// List returns events newest-first with offset pagination.
func (s *Store) List(filter ListFilter, page, pageSize int) (*EventList, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	q := s.db.Model(&Event{})
	if filter.Actor != "" {
		q = q.Where("actor_name = ?", filter.Actor)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		q = q.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", filter.Outcome)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	var items []Event
	err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}

	return &EventList{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// DeleteOlderThan removes events created before the cutoff and
// reports how many rows went away.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff).Delete(&Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

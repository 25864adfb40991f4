// Package audit records mutating API calls so administrators can
// answer "who uploaded, deleted, or republished what, and when".
// Events are written best-effort after the handler completes and are
// pruned by a retention worker.
package audit

import "time"

// Event is one recorded mutation.
type Event struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ActorID      uint      `gorm:"index" json:"actor_id"`
	ActorName    string    `gorm:"type:varchar(255);index" json:"actor_name"`
	Action       string    `gorm:"type:varchar(64);index" json:"action"`
	ResourceType string    `gorm:"type:varchar(32);index" json:"resource_type"`
	ResourceID   string    `gorm:"type:varchar(255)" json:"resource_id,omitempty"`
	Outcome      string    `gorm:"type:varchar(16)" json:"outcome"`
	StatusCode   int       `json:"status_code"`
	Method       string    `gorm:"type:varchar(8)" json:"method"`
	Path         string    `gorm:"type:varchar(512)" json:"path"`
	RequestID    string    `gorm:"type:varchar(64)" json:"request_id,omitempty"`
	RemoteAddr   string    `gorm:"type:varchar(64)" json:"remote_addr,omitempty"`
	Duration     string    `gorm:"type:varchar(32)" json:"duration,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (Event) TableName() string { return "audit_events" }

// EventList is the paginated listing payload.
type EventList struct {
	Items    []Event `json:"items"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Package identity owns user accounts: registration, credential
// verification, JWT bearer tokens, and the request middleware that
// resolves the calling identity.
package identity

import (
	"time"
)

// UserRecord is the persisted user row.
type UserRecord struct {
	ID           uint      `gorm:"primaryKey"`
	Email        string    `gorm:"size:120;uniqueIndex;not null"`
	Username     string    `gorm:"size:64;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:128;not null"`
	IsAdmin      bool      `gorm:"not null;default:false"`
	IsActive     bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the GORM table name.
func (UserRecord) TableName() string { return "users" }

// User is the API-facing account shape. The password hash never leaves
// the record.
type User struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ToAPI converts a record to its API shape.
func (r *UserRecord) ToAPI() User {
	return User{
		ID:        r.ID,
		Email:     r.Email,
		Username:  r.Username,
		IsAdmin:   r.IsAdmin,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
	}
}

// TokenResponse is the login payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Principal is the resolved caller identity attached to a request.
type Principal struct {
	UserID   uint
	Username string
	IsAdmin  bool
}

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a dashboard account. Identity (FullName, CRMID) is resolved from the
// CRM at registration, the password is local.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash string     `gorm:"type:varchar(255);not null;column:password_hash" json:"-"`
	FullName     string     `gorm:"type:varchar(255);not null;column:full_name" json:"fullName"`
	CRMID        string     `gorm:"type:varchar(64);column:crm_id" json:"crmId,omitempty"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updatedAt"`
}

// TableName pins the table name used by migrations
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns an ID so inserts work without database-side defaults
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address for lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailLocalPart returns the lower-cased part of an address before "@"
func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return strings.ToLower(strings.TrimSpace(local))
}

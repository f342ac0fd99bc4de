package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PermissionNewsCreate allows a key to submit articles to the news gateway.
const PermissionNewsCreate = "news:create"

// KnownPermissions lists every permission string an API key may carry.
var KnownPermissions = []string{PermissionNewsCreate}

// DefaultRateLimit is the per-hour limit given to keys created without one.
const DefaultRateLimit = 100

// APIKey is a credential for programmatic access to the news gateway.
// The secret is compared verbatim and is never serialized.
type APIKey struct {
	ID          uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	KeyName     string     `gorm:"size:100;not null" json:"key_name"`
	Key         string     `gorm:"column:api_key;size:128;uniqueIndex;not null" json:"-"`
	IsActive    bool       `gorm:"not null" json:"is_active"`
	Permissions []string   `gorm:"serializer:json" json:"permissions"`
	RateLimit   int        `gorm:"not null" json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at"`
	LastUsed    *time.Time `gorm:"column:last_used" json:"last_used"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	ensureID(&k.ID)
	return nil
}

// HasPermission reports whether the key carries the given permission.
func (k *APIKey) HasPermission(permission string) bool {
	return slices.Contains(k.Permissions, permission)
}

// IsExpired reports whether the key has an expiry at or before now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Prefix returns the first characters of the secret for display.
func (k *APIKey) Prefix() string {
	const n = 8
	if len(k.Key) <= n {
		return k.Key
	}
	return k.Key[:n]
}

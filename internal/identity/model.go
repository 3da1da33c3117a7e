package identity

import (
	"strings"
	"time"
)

// Identity is the durable principal record, keyed by verified email. At most
// one row exists per email; repeat logins reuse the row.
type Identity struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email       string    `gorm:"column:user_email;size:320;not null;uniqueIndex:idx_identity_email"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	Admin       bool      `gorm:"column:is_admin;not null;default:false"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing identities.
func (Identity) TableName() string {
	return "identities"
}

// Membership grants an identity an explicit role on a single competition.
type Membership struct {
	UserID        string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	CompetitionID string    `gorm:"column:competition_id;primaryKey;size:190;not null"`
	Role          string    `gorm:"column:role;size:32;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing competition memberships.
func (Membership) TableName() string {
	return "competition_memberships"
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

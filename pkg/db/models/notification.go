package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a best-effort side-channel notice addressed to a platform
// user. Delivery failures are never allowed to roll back the primary change.
type Notification struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PiUID     string    `gorm:"column:pi_uid;type:text;not null;index"`
	Reason    string    `gorm:"column:reason;type:text;not null"`
	IsCleared bool      `gorm:"column:is_cleared;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

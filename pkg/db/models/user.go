package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the resolved platform identity referenced by orders. Authentication
// happens at the boundary; the core only reads these rows.
type User struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PiUID      string    `gorm:"column:pi_uid;type:text;not null;uniqueIndex"`
	PiUsername string    `gorm:"column:pi_username;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment is one append-only audit entry attached to an order. Comments are
// never updated or deleted; the order number is denormalized for fast lookup.
type Comment struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	OrderNo   string    `gorm:"column:order_no;type:text;not null;index"`
	Body      string    `gorm:"column:body;type:text;not null"`
	Author    string    `gorm:"column:author;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

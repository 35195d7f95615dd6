package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/piescrow/piescrow-backend/pkg/db/types"
	"github.com/piescrow/piescrow-backend/pkg/enums"
)

// PayoutJob is one pending app-to-user disbursement, possibly aggregating the
// payouts of several orders to the same receiver.
//
// PiPaymentID stays stable across retries of one logical disbursement: a new
// upstream payment is only created when it is empty, which is what keeps
// retries idempotent on the platform side.
type PayoutJob struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReceiverPiUID string             `gorm:"column:receiver_pi_uid;type:text;not null;index"`
	SenderPiUID   string             `gorm:"column:sender_pi_uid;type:text;not null"`
	Amount        decimal.Decimal    `gorm:"column:amount;type:numeric(18,8);not null"`
	XRefIDs       dbtypes.OrderRefs  `gorm:"column:xref_ids;type:uuid[];not null"`
	Memo          string             `gorm:"column:memo;type:text;not null"`
	Status        enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Attempts      int                `gorm:"column:attempts;not null;default:0"`
	LastError     *string            `gorm:"column:last_error;type:text"`
	LastA2UDate   *time.Time         `gorm:"column:last_a2u_date;type:timestamptz"`
	PiPaymentID   *string            `gorm:"column:pi_payment_id;type:text"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

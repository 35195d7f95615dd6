package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/piescrow/piescrow-backend/pkg/enums"
)

// Order is the escrow order coordinating a U2A/A2U payment pair.
//
// Sender/receiver usernames and platform uids are snapshotted at creation so
// later renames never rewrite historical orders. The amount is fixed at
// creation. The two payment correlation ids must never be equal within one
// order; a sparse-unique compound index enforces cross-document uniqueness.
type Order struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNo          string          `gorm:"column:order_no;type:text;not null;uniqueIndex:orders_order_no_key"`
	SenderID         uuid.UUID       `gorm:"column:sender_id;type:uuid;not null;index"`
	ReceiverID       uuid.UUID       `gorm:"column:receiver_id;type:uuid;not null;index"`
	SenderPiUID      string          `gorm:"column:sender_pi_uid;type:text;not null"`
	ReceiverPiUID    string          `gorm:"column:receiver_pi_uid;type:text;not null"`
	SenderUsername   string          `gorm:"column:sender_username;type:text;not null"`
	ReceiverUsername string          `gorm:"column:receiver_username;type:text;not null"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(18,8);not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null;default:'initiated'"`
	U2APaymentID     *string         `gorm:"column:u2a_payment_id;type:text"`
	A2UPaymentID     *string         `gorm:"column:a2u_payment_id;type:text"`
	U2ACompletedAt   *time.Time      `gorm:"column:u2a_completed_at;type:timestamptz"`
	A2UCompletedAt   *time.Time      `gorm:"column:a2u_completed_at;type:timestamptz"`
	Dispute          *Dispute        `gorm:"column:dispute;type:jsonb;serializer:json"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Participant reports whether the given platform uid is the order's sender
// or receiver.
func (o *Order) Participant(piUID string) bool {
	return piUID != "" && (o.SenderPiUID == piUID || o.ReceiverPiUID == piUID)
}

// PaymentIDsCollide reports whether both legs reference the same upstream
// payment, which is a data-integrity violation.
func (o *Order) PaymentIDsCollide() bool {
	return o.U2APaymentID != nil && o.A2UPaymentID != nil && *o.U2APaymentID == *o.A2UPaymentID
}

// Dispute is the embedded dispute sub-document.
type Dispute struct {
	IsDisputed       bool                `json:"is_disputed"`
	Status           enums.DisputeStatus `json:"status"`
	Percent          *decimal.Decimal    `json:"percent,omitempty"`
	Amount           *decimal.Decimal    `json:"amount,omitempty"`
	ProposerPiUID    string              `json:"proposer_pi_uid,omitempty"`
	ProposerUsername string              `json:"proposer_username,omitempty"`
	ResolvedByPiUID  *string             `json:"resolved_by_pi_uid,omitempty"`
	ResolvedAt       *time.Time          `json:"resolved_at,omitempty"`
	History          []DisputeEvent      `json:"history"`
}

// DisputeEvent is one append-only entry in the dispute history. Entries are
// never rewritten or truncated.
type DisputeEvent struct {
	Action        enums.DisputeAction `json:"action"`
	ActorPiUID    string              `json:"actor_pi_uid"`
	ActorUsername string              `json:"actor_username"`
	Percent       *decimal.Decimal    `json:"percent,omitempty"`
	Amount        *decimal.Decimal    `json:"amount,omitempty"`
	Note          string              `json:"note,omitempty"`
	At            time.Time           `json:"at"`
}

// ActiveProposal reports whether the dispute is sitting in the proposed state.
func (d *Dispute) ActiveProposal() bool {
	return d != nil && d.IsDisputed && d.Status == enums.DisputeStatusProposed
}

// SameProposal reports whether an incoming proposal matches the current one
// (same proposer, same percent/amount), which makes a repeat call idempotent.
func (d *Dispute) SameProposal(proposerPiUID string, percent, amount *decimal.Decimal) bool {
	if !d.ActiveProposal() || d.ProposerPiUID != proposerPiUID {
		return false
	}
	return decimalPtrEqual(d.Percent, percent) && decimalPtrEqual(d.Amount, amount)
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

package pi

// Direction distinguishes who initiates a payment on the Pi platform.
type Direction string

const (
	// DirectionU2A is a user-to-app payment (buyer funds the escrow).
	DirectionU2A Direction = "U2A"
	// DirectionA2U is an app-to-user payment (escrow disburses funds).
	DirectionA2U Direction = "A2U"
)

// PaymentMetadata rides along with every payment so the backend can tie
// platform callbacks back to its own records.
type PaymentMetadata struct {
	Direction     Direction `json:"direction,omitempty"`
	OrderNo       string    `json:"order_no,omitempty"`
	ReceiverPiUID string    `json:"receiverPiUid,omitempty"`
	SenderPiUID   string    `json:"senderPiUid,omitempty"`
	OrderIDs      []string  `json:"orderIds,omitempty"`
}

// PaymentTransaction is the blockchain leg of a payment, present once the
// transaction has been broadcast.
type PaymentTransaction struct {
	TxID     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link"`
}

// PaymentDTO mirrors the payment resource returned by the Pi platform.
type PaymentDTO struct {
	Identifier string              `json:"identifier"`
	UserUID    string              `json:"user_uid"`
	Amount     float64             `json:"amount"`
	Memo       string              `json:"memo"`
	Metadata   PaymentMetadata     `json:"metadata"`
	Direction  string              `json:"direction"`
	Network    string              `json:"network"`
	CreatedAt  string              `json:"created_at"`
	Status     PaymentStatusDTO    `json:"status"`
	Transaction *PaymentTransaction `json:"transaction,omitempty"`
}

// PaymentStatusDTO tracks the approval / completion flags the platform keeps
// per payment.
type PaymentStatusDTO struct {
	DeveloperApproved      bool `json:"developer_approved"`
	TransactionVerified    bool `json:"transaction_verified"`
	DeveloperCompleted     bool `json:"developer_completed"`
	Cancelled              bool `json:"cancelled"`
	UserCancelled          bool `json:"user_cancelled"`
}

// CreatePaymentParams describes an A2U payment to open on the platform.
type CreatePaymentParams struct {
	Amount   float64         `json:"amount" validate:"required,gt=0"`
	Memo     string          `json:"memo" validate:"required"`
	Metadata PaymentMetadata `json:"metadata"`
	UID      string          `json:"uid" validate:"required"`
}

type createPaymentRequest struct {
	Payment CreatePaymentParams `json:"payment"`
}

type createPaymentResponse struct {
	Identifier string `json:"identifier"`
}

type submitPaymentResponse struct {
	TxID string `json:"txid"`
}

type completePaymentRequest struct {
	TxID string `json:"txid"`
}

type incompletePaymentsResponse struct {
	IncompleteServerPayments []PaymentDTO `json:"incomplete_server_payments"`
}

package payments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/piescrow/piescrow-backend/internal/orders"
	"github.com/piescrow/piescrow-backend/internal/payout"
	"github.com/piescrow/piescrow-backend/internal/users"
	"github.com/piescrow/piescrow-backend/pkg/enums"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
	"github.com/piescrow/piescrow-backend/pkg/logger"
	"github.com/piescrow/piescrow-backend/pkg/pi"
)

// PiClient is the slice of the platform API the user-to-app flow needs.
type PiClient interface {
	GetPayment(ctx context.Context, paymentID string) (*pi.PaymentDTO, error)
	ApprovePayment(ctx context.Context, paymentID string) (*pi.PaymentDTO, error)
	CompletePayment(ctx context.Context, paymentID, txid string) (*pi.PaymentDTO, error)
	CancelPayment(ctx context.Context, paymentID string) (*pi.PaymentDTO, error)
}

var _ PiClient = (*pi.Client)(nil)

// Service drives the user-to-app funding leg: approval when the buyer signs,
// completion once the transaction lands on chain, and the recovery paths for
// payments the platform still holds open.
type Service interface {
	Approve(ctx context.Context, paymentID string) error
	Complete(ctx context.Context, paymentID, txid string) error
	Cancel(ctx context.Context, paymentID string) error
	ResolveIncomplete(ctx context.Context, payment *pi.PaymentDTO) error
	HandleError(ctx context.Context, payment *pi.PaymentDTO) error
}

// ServiceParams wires payment flow dependencies.
type ServiceParams struct {
	Pi     PiClient
	Orders orders.Service
	Users  users.Repository
	Payout payout.Service
	Logger *logger.Logger
}

type service struct {
	pi     PiClient
	orders orders.Service
	users  users.Repository
	payout payout.Service
	log    *logger.Logger
	now    func() time.Time
}

// NewService validates dependencies and returns the payment flow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Pi == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments pi client required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments orders service required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments users repository required")
	}
	if params.Payout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments payout service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments logger required")
	}

	return &service{
		pi:     params.Pi,
		orders: params.Orders,
		users:  params.Users,
		payout: params.Payout,
		log:    params.Logger,
		now:    time.Now,
	}, nil
}

// Approve correlates the platform payment with its order and approves the
// payment upstream. The order keeps status initiated but records the payment
// identifier so completion can find it.
func (s *service) Approve(ctx context.Context, paymentID string) error {
	if strings.TrimSpace(paymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	lctx := s.log.WithPaymentID(ctx, paymentID)

	payment, err := s.pi.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	orderNo := payment.Metadata.OrderNo
	if orderNo == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment carries no order number")
	}

	if _, err := s.orders.UpdateStatus(ctx, orders.UpdateParams{
		OrderNo:         orderNo,
		RequestedStatus: enums.OrderStatusInitiated,
		U2APaymentID:    &payment.Identifier,
	}); err != nil {
		return err
	}

	if _, err := s.pi.ApprovePayment(ctx, payment.Identifier); err != nil {
		return err
	}

	s.log.Info(s.log.WithOrderNo(lctx, orderNo), "payment approved")
	return nil
}

// Complete marks the funded order paid, enqueues the seller disbursement, and
// confirms the payment upstream. A payment whose order is already paid is a
// replayed callback: the upstream completion is re-sent but the order and the
// queue are left untouched.
func (s *service) Complete(ctx context.Context, paymentID, txid string) error {
	if strings.TrimSpace(paymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if strings.TrimSpace(txid) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	lctx := s.log.WithPaymentID(ctx, paymentID)

	payment, err := s.pi.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	orderNo := payment.Metadata.OrderNo
	if orderNo == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment carries no order number")
	}
	lctx = s.log.WithOrderNo(lctx, orderNo)

	detail, err := s.orders.Get(ctx, orderNo)
	if err != nil {
		return err
	}
	if alreadyFunded(detail.Order.Status) {
		s.log.Warn(lctx, "completion replayed for funded order")
		_, err := s.pi.CompletePayment(ctx, payment.Identifier, txid)
		return err
	}

	actor := orders.Actor{PiUID: payment.UserUID}
	if buyer, err := s.users.FindByPiUID(ctx, payment.UserUID); err == nil {
		actor.Username = buyer.PiUsername
	}

	completedAt := s.now().UTC()
	result, err := s.orders.UpdateStatus(ctx, orders.UpdateParams{
		OrderNo:         orderNo,
		RequestedStatus: enums.OrderStatusPaid,
		Actor:           actor,
		U2APaymentID:    &payment.Identifier,
		U2ACompletedAt:  &completedAt,
	})
	if err != nil {
		return err
	}

	if err := s.enqueueDisbursement(ctx, result.Order.ID, payment.Memo); err != nil {
		// The order stays paid; the sweep or a manual requeue recovers it.
		s.log.Error(lctx, "enqueueing disbursement", err)
	}

	if _, err := s.pi.CompletePayment(ctx, payment.Identifier, txid); err != nil {
		return err
	}

	s.log.Info(lctx, "payment completed")
	return nil
}

// Cancel notifies the platform the payment will not proceed.
func (s *service) Cancel(ctx context.Context, paymentID string) error {
	if strings.TrimSpace(paymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}

	if _, err := s.pi.CancelPayment(ctx, paymentID); err != nil {
		return err
	}
	s.log.Info(s.log.WithPaymentID(ctx, paymentID), "payment cancelled")
	return nil
}

// ResolveIncomplete finishes a payment the client abandoned after the
// blockchain transaction was broadcast. Without a transaction there is
// nothing to finish and the caller gets a validation error.
func (s *service) ResolveIncomplete(ctx context.Context, payment *pi.PaymentDTO) error {
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment required")
	}
	if payment.Transaction == nil || payment.Transaction.Link == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "no blockchain transaction for payment")
	}
	return s.Complete(ctx, payment.Identifier, payment.Transaction.TxID)
}

// HandleError recovers a payment the client reported as errored. A broadcast
// transaction means the money moved, so the payment is completed; otherwise
// it is cancelled upstream.
func (s *service) HandleError(ctx context.Context, payment *pi.PaymentDTO) error {
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment required")
	}

	if payment.Transaction != nil && payment.Transaction.Link != "" {
		return s.ResolveIncomplete(ctx, payment)
	}

	s.log.Warn(s.log.WithPaymentID(ctx, payment.Identifier), "no transaction for errored payment, cancelling")
	return s.Cancel(ctx, payment.Identifier)
}

func (s *service) enqueueDisbursement(ctx context.Context, orderID uuid.UUID, memo string) error {
	_, err := s.payout.EnqueueOrderPayout(ctx, orderID, memo)
	return err
}

func alreadyFunded(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPaid, enums.OrderStatusFulfilled, enums.OrderStatusReleased, enums.OrderStatusDisputed:
		return true
	}
	return false
}

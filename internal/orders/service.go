package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/internal/comments"
	"github.com/piescrow/piescrow-backend/internal/notifications"
	"github.com/piescrow/piescrow-backend/internal/sequence"
	"github.com/piescrow/piescrow-backend/pkg/config"
	"github.com/piescrow/piescrow-backend/pkg/db"
	"github.com/piescrow/piescrow-backend/pkg/db/models"
	"github.com/piescrow/piescrow-backend/pkg/enums"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
	"github.com/piescrow/piescrow-backend/pkg/logger"
)

// TxRunner abstracts the transaction boundary so services can be exercised
// without a live database.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

var _ TxRunner = (*db.Client)(nil)

// Service orchestrates order creation, status transitions, and the dispute
// sub-flow. Every primary mutation commits inside a transaction; comments on
// updates and all notifications are best-effort enrichment.
type Service interface {
	Create(ctx context.Context, params CreateParams) (string, error)
	UpdateStatus(ctx context.Context, params UpdateParams) (*UpdateResult, error)
	ProposeDispute(ctx context.Context, params ProposeDisputeParams) (*models.Order, error)
	AcceptDispute(ctx context.Context, params ResolveDisputeParams) (*models.Order, error)
	DeclineDispute(ctx context.Context, params ResolveDisputeParams) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	Get(ctx context.Context, orderNo string) (*OrderDetail, error)
}

// Actor identifies who performs an operation. A zero Actor is rendered as
// "System" in comments.
type Actor struct {
	PiUID    string
	Username string
}

func (a Actor) displayName() string {
	if strings.TrimSpace(a.Username) == "" {
		return "System"
	}
	return a.Username
}

// CreateParams describes one new escrow order between two resolved parties.
type CreateParams struct {
	Sender   *models.User
	Receiver *models.User
	Amount   decimal.Decimal
	Actor    Actor
	Comment  string
}

// UpdateParams carries a requested status plus any payment correlation fields
// that arrived with it. Absent pointer fields are left untouched.
type UpdateParams struct {
	OrderNo         string
	RequestedStatus enums.OrderStatus
	Actor           Actor
	U2APaymentID    *string
	U2ACompletedAt  *time.Time
	A2UPaymentID    *string
	Comment         string
}

// UpdateResult pairs the persisted order with the synthesized audit comment.
type UpdateResult struct {
	Order   *models.Order
	Comment *models.Comment
}

// ProposeDisputeParams opens or re-states a dispute on an order. Exactly one
// of Percent or Amount must be set.
type ProposeDisputeParams struct {
	OrderNo string
	Actor   Actor
	Percent *decimal.Decimal
	Amount  *decimal.Decimal
	Note    string
}

// ResolveDisputeParams accepts or declines an active proposal.
type ResolveDisputeParams struct {
	OrderNo string
	Actor   Actor
	Note    string
}

// OrderDetail is an order plus its full audit trail.
type OrderDetail struct {
	Order    *models.Order
	Comments []models.Comment
}

// ServiceParams wires order orchestration dependencies.
type ServiceParams struct {
	Tx       TxRunner
	Repo     Repository
	Sequence sequence.Generator
	Comments comments.Service
	Notifier notifications.Service
	Config   config.OrdersConfig
	Logger   *logger.Logger
}

type service struct {
	tx       TxRunner
	repo     Repository
	seq      sequence.Generator
	comments comments.Service
	notifier notifications.Service
	cfg      config.OrdersConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewService validates dependencies and returns the order orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders transaction runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if params.Sequence == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders sequence generator required")
	}
	if params.Comments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders comments service required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders logger required")
	}
	if params.Config.CreateAttempts <= 0 {
		params.Config.CreateAttempts = 3
	}

	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		seq:      params.Sequence,
		comments: params.Comments,
		notifier: params.Notifier,
		cfg:      params.Config,
		log:      params.Logger,
		now:      time.Now,
	}, nil
}

// buildStatusComment renders the canonical audit sentence for a status
// change, with any caller-supplied note appended on a new line.
func buildStatusComment(actor string, status enums.OrderStatus, extra string) string {
	if actor == "" {
		actor = "System"
	}

	var base string
	switch status {
	case enums.OrderStatusInitiated:
		base = fmt.Sprintf("%s has initiated a new payment.", actor)
	case enums.OrderStatusRequested:
		base = fmt.Sprintf("%s has requested a new payment.", actor)
	case enums.OrderStatusPaid:
		base = "System has marked the order as paid."
	case enums.OrderStatusReleased:
		base = "System has confirmed this order as completed."
	default:
		base = fmt.Sprintf("%s has marked the order as %s.", actor, status)
	}

	if trimmed := strings.TrimSpace(extra); trimmed != "" {
		return base + "\n" + trimmed
	}
	return base
}

// resolveNextStatus applies the transition rule: a requested order that gets
// paid jumps straight to fulfilled.
func resolveNextStatus(current, requested enums.OrderStatus) enums.OrderStatus {
	if current == enums.OrderStatusRequested && requested == enums.OrderStatusPaid {
		return enums.OrderStatusFulfilled
	}
	return requested
}

func (s *service) Create(ctx context.Context, params CreateParams) (string, error) {
	if params.Sender == nil || params.Receiver == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "sender and receiver required")
	}
	if params.Sender.ID == params.Receiver.ID {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "sender and receiver must differ")
	}
	if !params.Amount.IsPositive() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var orderNo string
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(s.cfg.CreateAttempts-1), retry.NewConstant(25*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			no, err := s.seq.NextOrderNo(ctx, tx)
			if err != nil {
				return err
			}

			order := &models.Order{
				OrderNo:          no,
				SenderID:         params.Sender.ID,
				ReceiverID:       params.Receiver.ID,
				SenderPiUID:      params.Sender.PiUID,
				ReceiverPiUID:    params.Receiver.PiUID,
				SenderUsername:   params.Sender.PiUsername,
				ReceiverUsername: params.Receiver.PiUsername,
				Amount:           params.Amount,
				Status:           enums.OrderStatusInitiated,
			}
			if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
				return err
			}

			body := buildStatusComment(params.Actor.displayName(), enums.OrderStatusInitiated, params.Comment)
			if _, err := s.comments.Add(ctx, tx, comments.AddParams{
				OrderID: order.ID,
				OrderNo: no,
				Body:    body,
				Author:  params.Actor.displayName(),
			}); err != nil {
				return err
			}

			orderNo = no
			return nil
		})
		if txErr != nil && db.IsUniqueViolation(txErr, "orders_order_no_key") {
			lctx := s.log.WithField(ctx, "attempt", attempt)
			s.log.Warn(lctx, "order number collision, retrying creation")
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order creation failed")
	}

	lctx := s.log.WithOrderNo(ctx, orderNo)
	s.log.Info(lctx, "order created")

	counterparty := params.Receiver.PiUID
	if params.Actor.PiUID == params.Receiver.PiUID {
		counterparty = params.Sender.PiUID
	}
	s.notifier.Notify(ctx, counterparty, buildStatusComment(params.Actor.displayName(), enums.OrderStatusInitiated, ""))

	return orderNo, nil
}

func (s *service) UpdateStatus(ctx context.Context, params UpdateParams) (*UpdateResult, error) {
	if strings.TrimSpace(params.OrderNo) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if !params.RequestedStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", params.RequestedStatus))
	}

	var (
		order     *models.Order
		effective enums.OrderStatus
		comment   *models.Comment
	)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindByOrderNo(ctx, params.OrderNo)
		if err != nil {
			return err
		}

		effective = resolveNextStatus(current.Status, params.RequestedStatus)

		current.Status = effective
		if params.U2APaymentID != nil {
			current.U2APaymentID = params.U2APaymentID
		}
		if params.U2ACompletedAt != nil {
			current.U2ACompletedAt = params.U2ACompletedAt
		}
		if params.A2UPaymentID != nil {
			current.A2UPaymentID = params.A2UPaymentID
		}
		if current.PaymentIDsCollide() {
			return pkgerrors.New(pkgerrors.CodeValidation, "u2a and a2u payment ids must differ")
		}

		if err := repo.Save(ctx, current); err != nil {
			return err
		}

		body := buildStatusComment(params.Actor.displayName(), effective, params.Comment)
		created, err := s.comments.Add(ctx, tx, comments.AddParams{
			OrderID: current.ID,
			OrderNo: current.OrderNo,
			Body:    body,
			Author:  params.Actor.displayName(),
		})
		if err != nil {
			return err
		}

		order = current
		comment = created
		return nil
	})
	if err != nil {
		if coded := pkgerrors.As(err); coded != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}

	lctx := s.log.WithFields(ctx, map[string]any{
		"order_no":   order.OrderNo,
		"new_status": effective.String(),
	})
	s.log.Info(lctx, "order status updated")

	// Creation already notified, skip the no-op notice.
	if effective != enums.OrderStatusInitiated {
		s.notifyCounterparty(ctx, order, params.Actor, buildStatusComment(params.Actor.displayName(), effective, ""))
	}

	return &UpdateResult{Order: order, Comment: comment}, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list user orders")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, orderNo string) (*OrderDetail, error) {
	if strings.TrimSpace(orderNo) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}

	order, err := s.repo.FindByOrderNo(ctx, orderNo)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	trail, err := s.comments.ListByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	return &OrderDetail{Order: order, Comments: trail}, nil
}

// notifyCounterparty addresses the participant who is not the acting user.
// When the actor is neither party (system operations), the sender is
// notified.
func (s *service) notifyCounterparty(ctx context.Context, order *models.Order, actor Actor, reason string) {
	target := order.SenderPiUID
	if actor.PiUID == order.SenderPiUID {
		target = order.ReceiverPiUID
	}
	s.notifier.Notify(ctx, target, reason)
}

package payout

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/piescrow/piescrow-backend/internal/orders"
	"github.com/piescrow/piescrow-backend/pkg/config"
	"github.com/piescrow/piescrow-backend/pkg/db/models"
	dbtypes "github.com/piescrow/piescrow-backend/pkg/db/types"
	"github.com/piescrow/piescrow-backend/pkg/enums"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
	"github.com/piescrow/piescrow-backend/pkg/logger"
)

// Service enqueues disbursements once an order's funding leg is confirmed.
// The fixed gas fee is deducted from every order's payable at enqueue time.
type Service interface {
	EnqueueOrderPayout(ctx context.Context, orderID uuid.UUID, memo string) (*models.PayoutJob, error)
	BatchSellerRevenue(ctx context.Context, params BatchParams) (*models.PayoutJob, error)
}

// BatchParams folds one paid order into a receiver's accumulating payout.
type BatchParams struct {
	OrderID       uuid.UUID
	ReceiverPiUID string
	SenderPiUID   string
	Amount        decimal.Decimal
}

// ServiceParams wires payout queue dependencies.
type ServiceParams struct {
	Repo   Repository
	Orders orders.Repository
	Config config.PayoutConfig
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	orders orders.Repository
	gasFee decimal.Decimal
	memo   string
	log    *logger.Logger
}

// NewService validates dependencies and returns the enqueue service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout orders repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout logger required")
	}
	gasFee, err := params.Config.GasFeeAmount()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payout gas fee")
	}

	return &service{
		repo:   params.Repo,
		orders: params.Orders,
		gasFee: gasFee,
		memo:   params.Config.Memo,
		log:    params.Logger,
	}, nil
}

// EnqueueOrderPayout inserts a single-order pending disbursement, net of the
// gas fee.
func (s *service) EnqueueOrderPayout(ctx context.Context, orderID uuid.UUID, memo string) (*models.PayoutJob, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	payable, err := s.payable(order.Amount)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(memo) == "" {
		memo = s.memo
	}

	job := &models.PayoutJob{
		ReceiverPiUID: order.ReceiverPiUID,
		SenderPiUID:   order.SenderPiUID,
		Amount:        payable,
		XRefIDs:       dbtypes.OrderRefs{order.ID},
		Memo:          memo,
		Status:        enums.PayoutStatusPending,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue payout")
	}

	lctx := s.log.WithFields(ctx, map[string]any{
		"order_no": order.OrderNo,
		"pi_uid":   order.ReceiverPiUID,
		"amount":   payable.String(),
	})
	s.log.Info(lctx, "payout enqueued")
	return job, nil
}

// BatchSellerRevenue merges this order's payable into the receiver's open
// batch, creating one when none is accumulating. Each order bears its own gas
// fee deduction before joining the batch.
func (s *service) BatchSellerRevenue(ctx context.Context, params BatchParams) (*models.PayoutJob, error) {
	if params.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(params.ReceiverPiUID) == "" || strings.TrimSpace(params.SenderPiUID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receiver and sender pi uids required")
	}

	payable, err := s.payable(params.Amount)
	if err != nil {
		return nil, err
	}

	batch, err := s.repo.FindOpenBatch(ctx, params.ReceiverPiUID)
	if err != nil {
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open batch")
		}

		job := &models.PayoutJob{
			ReceiverPiUID: params.ReceiverPiUID,
			SenderPiUID:   params.SenderPiUID,
			Amount:        payable,
			XRefIDs:       dbtypes.OrderRefs{params.OrderID},
			Memo:          s.memo,
			Status:        enums.PayoutStatusBatching,
		}
		if err := s.repo.Create(ctx, job); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create batch")
		}
		return job, nil
	}

	updated, err := s.repo.Accumulate(ctx, batch.ID, payable, params.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accumulate batch")
	}

	lctx := s.log.WithFields(ctx, map[string]any{
		"pi_uid": params.ReceiverPiUID,
		"amount": updated.Amount.String(),
		"orders": len(updated.XRefIDs),
	})
	s.log.Info(lctx, "payout batch accumulated")
	return updated, nil
}

func (s *service) payable(amount decimal.Decimal) (decimal.Decimal, error) {
	payable := amount.Sub(s.gasFee)
	if !payable.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "order amount does not cover the gas fee")
	}
	return payable, nil
}

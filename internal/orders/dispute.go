package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/internal/comments"
	"github.com/piescrow/piescrow-backend/pkg/db/models"
	"github.com/piescrow/piescrow-backend/pkg/enums"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// ProposeDispute opens a dispute proposal on an order. A repeat of the
// identical proposal by the same proposer is a no-op returning the order
// unchanged.
func (s *service) ProposeDispute(ctx context.Context, params ProposeDisputeParams) (*models.Order, error) {
	if err := validateProposal(params); err != nil {
		return nil, err
	}

	var (
		order      *models.Order
		idempotent bool
	)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindByOrderNo(ctx, params.OrderNo)
		if err != nil {
			return err
		}
		if !current.Participant(params.Actor.PiUID) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "only order participants may open a dispute")
		}

		if current.Dispute.SameProposal(params.Actor.PiUID, params.Percent, params.Amount) {
			order = current
			idempotent = true
			return nil
		}

		now := s.now().UTC()
		dispute := current.Dispute
		if dispute == nil {
			dispute = &models.Dispute{}
		}
		dispute.IsDisputed = true
		dispute.Status = enums.DisputeStatusProposed
		dispute.Percent = params.Percent
		dispute.Amount = params.Amount
		dispute.ProposerPiUID = params.Actor.PiUID
		dispute.ProposerUsername = params.Actor.Username
		dispute.ResolvedByPiUID = nil
		dispute.ResolvedAt = nil
		dispute.History = append(dispute.History, models.DisputeEvent{
			Action:        enums.DisputeActionProposed,
			ActorPiUID:    params.Actor.PiUID,
			ActorUsername: params.Actor.Username,
			Percent:       params.Percent,
			Amount:        params.Amount,
			Note:          params.Note,
			At:            now,
		})

		current.Dispute = dispute
		current.Status = enums.OrderStatusDisputed
		if err := repo.Save(ctx, current); err != nil {
			return err
		}

		if _, err := s.comments.Add(ctx, tx, comments.AddParams{
			OrderID: current.ID,
			OrderNo: current.OrderNo,
			Body:    disputeComment(params.Actor.displayName(), "proposed a dispute settlement", params.Percent, params.Amount, params.Note),
			Author:  params.Actor.displayName(),
		}); err != nil {
			return err
		}

		order = current
		return nil
	})
	if err != nil {
		return nil, wrapDisputeErr(err, "propose dispute")
	}

	if !idempotent {
		s.notifyCounterparty(ctx, order, params.Actor, fmt.Sprintf("%s has proposed a dispute settlement on order %s.", params.Actor.displayName(), order.OrderNo))
	}
	return order, nil
}

// AcceptDispute resolves an active proposal and, as a side effect, releases
// the order.
func (s *service) AcceptDispute(ctx context.Context, params ResolveDisputeParams) (*models.Order, error) {
	order, err := s.resolveDispute(ctx, params, enums.DisputeStatusAccepted)
	if err != nil {
		return nil, err
	}

	s.notifyCounterparty(ctx, order, params.Actor, fmt.Sprintf("%s has accepted the dispute settlement on order %s.", params.Actor.displayName(), order.OrderNo))
	s.notifyCounterparty(ctx, order, params.Actor, buildStatusComment(params.Actor.displayName(), enums.OrderStatusReleased, ""))
	return order, nil
}

// DeclineDispute resolves an active proposal without touching the order's
// top-level status.
func (s *service) DeclineDispute(ctx context.Context, params ResolveDisputeParams) (*models.Order, error) {
	order, err := s.resolveDispute(ctx, params, enums.DisputeStatusDeclined)
	if err != nil {
		return nil, err
	}

	s.notifyCounterparty(ctx, order, params.Actor, fmt.Sprintf("%s has declined the dispute settlement on order %s.", params.Actor.displayName(), order.OrderNo))
	return order, nil
}

func (s *service) resolveDispute(ctx context.Context, params ResolveDisputeParams, outcome enums.DisputeStatus) (*models.Order, error) {
	if strings.TrimSpace(params.OrderNo) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if strings.TrimSpace(params.Actor.PiUID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "acting user required")
	}

	var order *models.Order

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindByOrderNo(ctx, params.OrderNo)
		if err != nil {
			return err
		}
		if !current.Participant(params.Actor.PiUID) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "only order participants may resolve a dispute")
		}
		if !current.Dispute.ActiveProposal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no active dispute proposal")
		}
		if current.Dispute.ProposerPiUID == params.Actor.PiUID {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "proposer may not resolve their own proposal")
		}

		now := s.now().UTC()
		actorUID := params.Actor.PiUID

		action := enums.DisputeActionAccepted
		verb := "accepted"
		if outcome == enums.DisputeStatusDeclined {
			action = enums.DisputeActionDeclined
			verb = "declined"
		}

		current.Dispute.Status = outcome
		current.Dispute.ResolvedByPiUID = &actorUID
		current.Dispute.ResolvedAt = &now
		current.Dispute.History = append(current.Dispute.History, models.DisputeEvent{
			Action:        action,
			ActorPiUID:    params.Actor.PiUID,
			ActorUsername: params.Actor.Username,
			Note:          params.Note,
			At:            now,
		})

		if outcome == enums.DisputeStatusAccepted {
			current.Status = enums.OrderStatusReleased
		}

		if err := repo.Save(ctx, current); err != nil {
			return err
		}

		if _, err := s.comments.Add(ctx, tx, comments.AddParams{
			OrderID: current.ID,
			OrderNo: current.OrderNo,
			Body:    disputeComment(params.Actor.displayName(), verb+" the dispute settlement", nil, nil, params.Note),
			Author:  params.Actor.displayName(),
		}); err != nil {
			return err
		}

		if outcome == enums.DisputeStatusAccepted {
			if _, err := s.comments.Add(ctx, tx, comments.AddParams{
				OrderID: current.ID,
				OrderNo: current.OrderNo,
				Body:    buildStatusComment(params.Actor.displayName(), enums.OrderStatusReleased, ""),
				Author:  params.Actor.displayName(),
			}); err != nil {
				return err
			}
		}

		order = current
		return nil
	})
	if err != nil {
		return nil, wrapDisputeErr(err, "resolve dispute")
	}
	return order, nil
}

func validateProposal(params ProposeDisputeParams) error {
	if strings.TrimSpace(params.OrderNo) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if strings.TrimSpace(params.Actor.PiUID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "acting user required")
	}
	if (params.Percent == nil) == (params.Amount == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "exactly one of percent or amount required")
	}
	if params.Percent != nil && (params.Percent.IsNegative() || params.Percent.GreaterThan(hundred)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "dispute percent must be between 0 and 100")
	}
	if params.Amount != nil && !params.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "dispute amount must be positive")
	}
	return nil
}

func disputeComment(actor, verb string, percent, amount *decimal.Decimal, note string) string {
	base := fmt.Sprintf("%s has %s.", actor, verb)
	switch {
	case percent != nil:
		base = fmt.Sprintf("%s has %s (%s%%).", actor, verb, percent.String())
	case amount != nil:
		base = fmt.Sprintf("%s has %s (%s).", actor, verb, amount.String())
	}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		return base + "\n" + trimmed
	}
	return base
}

func wrapDisputeErr(err error, op string) error {
	if coded := pkgerrors.As(err); coded != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

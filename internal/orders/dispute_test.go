package orders

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/piescrow/piescrow-backend/pkg/enums"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
)

func decimalPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestProposeDispute_SetsProposalAndHistory(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusPaid)
	env := newTestEnv(t, order)

	updated, err := env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{
		OrderNo: order.OrderNo,
		Actor:   Actor{PiUID: sender.PiUID, Username: sender.PiUsername},
		Percent: decimalPtr(50),
		Note:    "item arrived damaged",
	})
	if err != nil {
		t.Fatalf("unexpected propose error: %v", err)
	}
	if updated.Status != enums.OrderStatusDisputed {
		t.Fatalf("expected disputed order, got %s", updated.Status)
	}
	if updated.Dispute == nil || updated.Dispute.Status != enums.DisputeStatusProposed {
		t.Fatalf("dispute not in proposed state: %+v", updated.Dispute)
	}
	if len(updated.Dispute.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(updated.Dispute.History))
	}
	if len(env.notifier.targets) != 1 || env.notifier.targets[0] != receiver.PiUID {
		t.Fatalf("expected counterparty notification, got %v", env.notifier.targets)
	}
}

func TestProposeDispute_RequiresParticipant(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusPaid)
	env := newTestEnv(t, order)

	_, err := env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{
		OrderNo: order.OrderNo,
		Actor:   Actor{PiUID: "uid-stranger", Username: "mallory"},
		Percent: decimalPtr(10),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestProposeDispute_ValidatesOneOfPercentAmount(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusPaid)
	env := newTestEnv(t, order)
	actor := Actor{PiUID: sender.PiUID, Username: sender.PiUsername}

	_, err := env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{OrderNo: order.OrderNo, Actor: actor})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for neither field, got %v", err)
	}

	_, err = env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{
		OrderNo: order.OrderNo, Actor: actor,
		Percent: decimalPtr(20), Amount: decimalPtr(5),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for both fields, got %v", err)
	}

	_, err = env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{
		OrderNo: order.OrderNo, Actor: actor,
		Percent: decimalPtr(150),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for out-of-range percent, got %v", err)
	}
}

func TestProposeDispute_IdempotentForIdenticalProposal(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusPaid)
	env := newTestEnv(t, order)
	actor := Actor{PiUID: sender.PiUID, Username: sender.PiUsername}

	first, err := env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{
		OrderNo: order.OrderNo, Actor: actor, Percent: decimalPtr(50),
	})
	if err != nil {
		t.Fatalf("unexpected propose error: %v", err)
	}

	second, err := env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{
		OrderNo: order.OrderNo, Actor: actor, Percent: decimalPtr(50),
	})
	if err != nil {
		t.Fatalf("unexpected repeat propose error: %v", err)
	}
	if len(second.Dispute.History) != len(first.Dispute.History) {
		t.Fatalf("repeat proposal appended history: %d entries", len(second.Dispute.History))
	}
	if len(env.comments.added) != 1 {
		t.Fatalf("repeat proposal appended comment: %d comments", len(env.comments.added))
	}
	if len(env.notifier.notices) != 1 {
		t.Fatalf("repeat proposal re-notified: %v", env.notifier.notices)
	}
}

func TestAcceptDispute_ReleasesOrder(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusPaid)
	env := newTestEnv(t, order)

	_, err := env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{
		OrderNo: order.OrderNo,
		Actor:   Actor{PiUID: sender.PiUID, Username: sender.PiUsername},
		Percent: decimalPtr(50),
	})
	if err != nil {
		t.Fatalf("unexpected propose error: %v", err)
	}

	updated, err := env.svc.AcceptDispute(context.Background(), ResolveDisputeParams{
		OrderNo: order.OrderNo,
		Actor:   Actor{PiUID: receiver.PiUID, Username: receiver.PiUsername},
	})
	if err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}
	if updated.Status != enums.OrderStatusReleased {
		t.Fatalf("expected released order, got %s", updated.Status)
	}
	if updated.Dispute.Status != enums.DisputeStatusAccepted {
		t.Fatalf("expected accepted dispute, got %s", updated.Dispute.Status)
	}
	if updated.Dispute.ResolvedByPiUID == nil || *updated.Dispute.ResolvedByPiUID != receiver.PiUID {
		t.Fatal("resolver not recorded")
	}
	// Proposal comment plus acceptance and status-change comments.
	if len(env.comments.added) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(env.comments.added))
	}
	// Proposal notice plus acceptance and status-change notices.
	if len(env.notifier.notices) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(env.notifier.notices))
	}
}

func TestAcceptDispute_ProposerCannotSelfResolve(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusPaid)
	env := newTestEnv(t, order)
	proposer := Actor{PiUID: sender.PiUID, Username: sender.PiUsername}

	_, err := env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{
		OrderNo: order.OrderNo, Actor: proposer, Percent: decimalPtr(30),
	})
	if err != nil {
		t.Fatalf("unexpected propose error: %v", err)
	}

	_, err = env.svc.AcceptDispute(context.Background(), ResolveDisputeParams{OrderNo: order.OrderNo, Actor: proposer})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized self-accept, got %v", err)
	}

	_, err = env.svc.DeclineDispute(context.Background(), ResolveDisputeParams{OrderNo: order.OrderNo, Actor: proposer})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized self-decline, got %v", err)
	}

	current := env.repo.orders[order.OrderNo]
	if current.Dispute.Status != enums.DisputeStatusProposed {
		t.Fatalf("dispute state mutated by rejected resolution: %s", current.Dispute.Status)
	}
}

func TestDeclineDispute_LeavesOrderStatusUntouched(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusPaid)
	env := newTestEnv(t, order)

	_, err := env.svc.ProposeDispute(context.Background(), ProposeDisputeParams{
		OrderNo: order.OrderNo,
		Actor:   Actor{PiUID: sender.PiUID, Username: sender.PiUsername},
		Amount:  decimalPtr(3),
	})
	if err != nil {
		t.Fatalf("unexpected propose error: %v", err)
	}

	updated, err := env.svc.DeclineDispute(context.Background(), ResolveDisputeParams{
		OrderNo: order.OrderNo,
		Actor:   Actor{PiUID: receiver.PiUID, Username: receiver.PiUsername},
	})
	if err != nil {
		t.Fatalf("unexpected decline error: %v", err)
	}
	if updated.Dispute.Status != enums.DisputeStatusDeclined {
		t.Fatalf("expected declined dispute, got %s", updated.Dispute.Status)
	}
	if updated.Status != enums.OrderStatusDisputed {
		t.Fatalf("decline must not change order status, got %s", updated.Status)
	}
	if len(updated.Dispute.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(updated.Dispute.History))
	}
}

func TestResolveDispute_RequiresActiveProposal(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusPaid)
	env := newTestEnv(t, order)

	_, err := env.svc.AcceptDispute(context.Background(), ResolveDisputeParams{
		OrderNo: order.OrderNo,
		Actor:   Actor{PiUID: receiver.PiUID, Username: receiver.PiUsername},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/internal/orders"
	"github.com/piescrow/piescrow-backend/pkg/config"
	"github.com/piescrow/piescrow-backend/pkg/db/models"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
	"github.com/piescrow/piescrow-backend/pkg/logger"
	"github.com/piescrow/piescrow-backend/pkg/pi"
)

// PiClient is the slice of the platform API the worker needs.
type PiClient interface {
	CreatePayment(ctx context.Context, params pi.CreatePaymentParams) (string, error)
	SubmitPayment(ctx context.Context, paymentID string) (string, error)
	CompletePayment(ctx context.Context, paymentID, txid string) (*pi.PaymentDTO, error)
	CancelPayment(ctx context.Context, paymentID string) (*pi.PaymentDTO, error)
	IncompleteServerPayments(ctx context.Context) ([]pi.PaymentDTO, error)
}

var _ PiClient = (*pi.Client)(nil)

// WorkerParams wires disbursement worker dependencies.
type WorkerParams struct {
	Tx     orders.TxRunner
	Repo   Repository
	Orders orders.Repository
	Pi     PiClient
	Config config.PayoutConfig
	Logger *logger.Logger
}

// Worker drains the disbursement queue one claimed entry per invocation. The
// atomic claim in the repository is the only concurrency control; the worker
// holds no in-process lock across platform calls.
type Worker struct {
	tx     orders.TxRunner
	repo   Repository
	orders orders.Repository
	pi     PiClient
	cfg    config.PayoutConfig
	log    *logger.Logger
	now    func() time.Time
}

// NewWorker validates dependencies and returns the payout worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout worker transaction runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout worker repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout worker orders repository required")
	}
	if params.Pi == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout worker pi client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout worker logger required")
	}
	if params.Config.MaxAttempts <= 0 {
		params.Config.MaxAttempts = 3
	}
	if params.Config.BatchWindow <= 0 {
		params.Config.BatchWindow = 72 * time.Hour
	}

	return &Worker{
		tx:     params.Tx,
		repo:   params.Repo,
		orders: params.Orders,
		pi:     params.Pi,
		cfg:    params.Config,
		log:    params.Logger,
		now:    time.Now,
	}, nil
}

// ProcessNextJob claims and disburses at most one queue entry. The returned
// bool reports whether an entry was claimed; an idle queue is a normal no-op.
// A claimed entry always leaves processing: either completed, or back to
// pending/failed with the error recorded.
func (w *Worker) ProcessNextJob(ctx context.Context) (bool, error) {
	cutoff := w.now().UTC().Add(-w.cfg.BatchWindow)

	job, err := w.repo.ClaimNext(ctx, w.cfg.MaxAttempts, cutoff)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payout job")
	}
	if job == nil {
		w.log.Info(ctx, "no pending payout jobs")
		return false, nil
	}

	lctx := w.log.WithFields(ctx, map[string]any{
		"job_id":   job.ID.String(),
		"pi_uid":   job.ReceiverPiUID,
		"attempts": job.Attempts,
		"amount":   job.Amount.String(),
	})
	w.log.Info(lctx, "processing payout")

	if err := w.disburse(ctx, job); err != nil {
		w.log.Error(lctx, "payout attempt failed", err)
		w.settleFailure(ctx, job.ID, err)

		// The platform may hold a payment our crash or failure orphaned.
		if sweepErr := w.ReconcileIncomplete(ctx); sweepErr != nil {
			w.log.Error(lctx, "incomplete payment sweep failed", sweepErr)
		}
		return true, nil
	}

	w.log.Info(lctx, "payout completed")
	return true, nil
}

// disburse runs the create/submit/complete sequence for one claimed entry and
// settles every referenced order. A payment is only created when the entry
// has none yet; the persisted payment id is what keeps retries from paying
// twice.
func (w *Worker) disburse(ctx context.Context, job *models.PayoutJob) error {
	paymentID := ""
	if job.PiPaymentID != nil {
		paymentID = *job.PiPaymentID
	}

	if paymentID == "" {
		amount, _ := job.Amount.Float64()
		created, err := w.pi.CreatePayment(ctx, pi.CreatePaymentParams{
			Amount: amount,
			Memo:   job.Memo,
			UID:    job.ReceiverPiUID,
			Metadata: pi.PaymentMetadata{
				Direction:     pi.DirectionA2U,
				ReceiverPiUID: job.ReceiverPiUID,
				SenderPiUID:   job.SenderPiUID,
				OrderIDs:      orderIDStrings(job.XRefIDs),
			},
		})
		if err != nil {
			return err
		}
		paymentID = created

		// Persist before submitting so a crash here cannot create a second
		// upstream payment on retry.
		if err := w.repo.SetPaymentID(ctx, job.ID, paymentID); err != nil {
			return err
		}
	}

	txid, err := w.pi.SubmitPayment(ctx, paymentID)
	if err != nil {
		return err
	}

	completedAt := w.now().UTC()
	err = w.tx.WithTx(ctx, func(tx *gorm.DB) error {
		released, err := w.orders.WithTx(tx).MarkReleased(ctx, job.XRefIDs, paymentID, completedAt)
		if err != nil {
			return err
		}
		if released != int64(len(job.XRefIDs)) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("released %d of %d referenced orders", released, len(job.XRefIDs)))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := w.pi.CompletePayment(ctx, paymentID, txid); err != nil {
		return err
	}

	return w.repo.MarkCompleted(ctx, job.ID, completedAt)
}

// settleFailure re-reads the attempt count and parks the entry as pending or
// failed. Nothing here may return an error to the claim path: a claimed entry
// must never stay processing.
func (w *Worker) settleFailure(ctx context.Context, jobID uuid.UUID, cause error) {
	lctx := w.log.WithField(ctx, "job_id", jobID.String())

	job, err := w.repo.Find(ctx, jobID)
	if err != nil {
		w.log.Error(lctx, "reloading failed payout job", err)
		return
	}

	if job.Attempts < w.cfg.MaxAttempts {
		if err := w.repo.MarkRetry(ctx, jobID, cause.Error()); err != nil {
			w.log.Error(lctx, "parking payout job for retry", err)
		}
		return
	}

	if err := w.repo.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		w.log.Error(lctx, "marking payout job failed", err)
		return
	}
	w.log.Warn(lctx, "payout job permanently failed")
}

// ReconcileIncomplete sweeps payments the platform still considers open. A
// payment with no blockchain transaction is cancelled upstream; one that
// already carries a transaction is completed and its orders settled, avoiding
// a double disbursement after a crash between create and complete.
func (w *Worker) ReconcileIncomplete(ctx context.Context) error {
	payments, err := w.pi.IncompleteServerPayments(ctx)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		return nil
	}

	var errs error
	for _, payment := range payments {
		lctx := w.log.WithPaymentID(ctx, payment.Identifier)

		if payment.Transaction == nil || payment.Transaction.TxID == "" {
			if _, err := w.pi.CancelPayment(ctx, payment.Identifier); err != nil {
				w.log.Error(lctx, "cancelling orphaned payment", err)
				errs = multierr.Append(errs, err)
			}
			continue
		}

		if _, err := w.pi.CompletePayment(ctx, payment.Identifier, payment.Transaction.TxID); err != nil {
			w.log.Error(lctx, "completing orphaned payment", err)
			errs = multierr.Append(errs, err)
			continue
		}

		completedAt := w.now().UTC()
		if ids := parseOrderIDs(payment.Metadata.OrderIDs); len(ids) > 0 {
			if _, err := w.orders.MarkReleased(ctx, ids, payment.Identifier, completedAt); err != nil {
				w.log.Error(lctx, "settling orders for reconciled payment", err)
				errs = multierr.Append(errs, err)
			}
		}

		job, err := w.repo.FindByPaymentID(ctx, payment.Identifier)
		if err != nil {
			if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				w.log.Error(lctx, "loading job for reconciled payment", err)
				errs = multierr.Append(errs, err)
			}
			continue
		}
		if err := w.repo.MarkCompleted(ctx, job.ID, completedAt); err != nil {
			w.log.Error(lctx, "completing job for reconciled payment", err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func orderIDStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func parseOrderIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

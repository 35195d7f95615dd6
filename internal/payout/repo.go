package payout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/pkg/db/models"
	"github.com/piescrow/piescrow-backend/pkg/enums"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
)

// Repository exposes persistence helpers for the disbursement queue.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.PayoutJob) error
	Find(ctx context.Context, id uuid.UUID) (*models.PayoutJob, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.PayoutJob, error)
	FindOpenBatch(ctx context.Context, receiverPiUID string) (*models.PayoutJob, error)
	Accumulate(ctx context.Context, id uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (*models.PayoutJob, error)
	ClaimNext(ctx context.Context, maxAttempts int, batchCutoff time.Time) (*models.PayoutJob, error)
	SetPaymentID(ctx context.Context, id uuid.UUID, paymentID string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a payout queue repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, job *models.PayoutJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repositoryImpl) Find(ctx context.Context, id uuid.UUID) (*models.PayoutJob, error) {
	var job models.PayoutJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout job not found")
		}
		return nil, err
	}
	return &job, nil
}

func (r *repositoryImpl) FindByPaymentID(ctx context.Context, paymentID string) (*models.PayoutJob, error) {
	var job models.PayoutJob
	err := r.db.WithContext(ctx).First(&job, "pi_payment_id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout job not found")
		}
		return nil, err
	}
	return &job, nil
}

// FindOpenBatch returns the receiver's accumulating entry that has never been
// disbursed, if any.
func (r *repositoryImpl) FindOpenBatch(ctx context.Context, receiverPiUID string) (*models.PayoutJob, error) {
	var job models.PayoutJob
	err := r.db.WithContext(ctx).
		Where("receiver_pi_uid = ? AND status = ? AND last_a2u_date IS NULL", receiverPiUID, enums.PayoutStatusBatching).
		Order("created_at ASC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no open batch")
		}
		return nil, err
	}
	return &job, nil
}

// Accumulate folds one more order's payable into an open batch. The guard on
// status and last_a2u_date makes the increment a no-op when the batch was
// flushed concurrently; callers must check the affected count via the
// returned job.
func (r *repositoryImpl) Accumulate(ctx context.Context, id uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (*models.PayoutJob, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE payout_jobs
		SET amount = amount + ?,
		    xref_ids = array_append(xref_ids, ?),
		    updated_at = NOW()
		WHERE id = ? AND status = ? AND last_a2u_date IS NULL`,
		amount, orderID, id, enums.PayoutStatusBatching)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "batch no longer accumulating")
	}
	return r.Find(ctx, id)
}

// ClaimNext atomically claims the oldest-updated eligible entry: pending,
// failed, or a batching entry whose last disbursement is older than the batch
// cutoff. Claiming sets processing and burns an attempt in the same
// statement, which is the sole guard against two workers disbursing one
// entry. Returns nil with no error when the queue is idle.
func (r *repositoryImpl) ClaimNext(ctx context.Context, maxAttempts int, batchCutoff time.Time) (*models.PayoutJob, error) {
	var job models.PayoutJob
	err := r.db.WithContext(ctx).Raw(`
		UPDATE payout_jobs
		SET status = ?, attempts = attempts + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM payout_jobs
			WHERE attempts < ?
			  AND (status IN (?, ?) OR (status = ? AND last_a2u_date <= ?))
			ORDER BY updated_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		enums.PayoutStatusProcessing,
		maxAttempts,
		enums.PayoutStatusPending, enums.PayoutStatusFailed,
		enums.PayoutStatusBatching, batchCutoff,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *repositoryImpl) SetPaymentID(ctx context.Context, id uuid.UUID, paymentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutJob{}).
		Where("id = ?", id).
		UpdateColumn("pi_payment_id", paymentID).Error
}

func (r *repositoryImpl) MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.PayoutStatusCompleted,
			"last_a2u_date": completedAt,
			"last_error":    nil,
			"updated_at":    completedAt,
		}).Error
}

func (r *repositoryImpl) MarkRetry(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.PayoutStatusPending,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.PayoutStatusFailed,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
}

package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/pkg/db/models"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error)
	Find(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	SetCleared(ctx context.Context, id uuid.UUID, cleared bool) (*models.Notification, error)
	DeleteClearedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listNotificationsParams struct {
	PiUID   string
	Skip    int
	Limit   int
	Cleared *bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("pi_uid = ?", params.PiUID)
	if params.Cleared != nil {
		query = query.Where("is_cleared = ?", *params.Cleared)
	}
	if params.Skip > 0 {
		query = query.Offset(params.Skip)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) Find(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var row models.Notification
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) SetCleared(ctx context.Context, id uuid.UUID, cleared bool) (*models.Notification, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		UpdateColumn("is_cleared", cleared)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.Find(ctx, id)
}

func (r *repositoryImpl) DeleteClearedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("is_cleared = ? AND updated_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/pkg/db/models"
	"github.com/piescrow/piescrow-backend/pkg/enums"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
)

// Repository exposes persistence helpers for escrow orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByOrderNo(ctx context.Context, orderNo string) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByU2APaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	Save(ctx context.Context, order *models.Order) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	MarkReleased(ctx context.Context, ids []uuid.UUID, a2uPaymentID string, completedAt time.Time) (int64, error)
	ExpireStaleBefore(ctx context.Context, statuses []enums.OrderStatus, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repositoryImpl) FindByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "order_no = ?", orderNo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) FindByU2APaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "u2a_payment_id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) Save(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repositoryImpl) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkReleased settles every order referenced by one disbursement in a single
// statement so a partial sweep cannot leave some orders released and others
// not.
func (r *repositoryImpl) MarkReleased(ctx context.Context, ids []uuid.UUID, a2uPaymentID string, completedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"a2u_payment_id":   a2uPaymentID,
			"a2u_completed_at": completedAt,
			"status":           enums.OrderStatusReleased,
			"updated_at":       completedAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) ExpireStaleBefore(ctx context.Context, statuses []enums.OrderStatus, cutoff time.Time) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status IN ? AND updated_at < ?", statuses, cutoff).
		Updates(map[string]any{
			"status":     enums.OrderStatusExpired,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

package comments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/pkg/db/models"
)

// Repository exposes persistence helpers for order comments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, comment *models.Comment) error
	ListByOrderNo(ctx context.Context, orderNo string) ([]models.Comment, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a comments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *repositoryImpl) ListByOrderNo(ctx context.Context, orderNo string) ([]models.Comment, error) {
	var rows []models.Comment
	err := r.db.WithContext(ctx).
		Where("order_no = ?", orderNo).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

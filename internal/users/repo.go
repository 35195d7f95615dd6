package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/pkg/db/models"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
)

// Repository reads resolved platform identities. Account provisioning happens
// at the boundary, so this layer is read-only plus an upsert used when a
// payment callback carries a username we have not seen yet.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByPiUID(ctx context.Context, piUID string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a users repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

func (r *repositoryImpl) FindByPiUID(ctx context.Context, piUID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "pi_uid = ?", piUID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

func (r *repositoryImpl) Upsert(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	existing, err := r.FindByPiUID(ctx, user.PiUID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return r.db.WithContext(ctx).Create(user).Error
		}
		return err
	}
	user.ID = existing.ID
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", existing.ID).
		UpdateColumn("pi_username", user.PiUsername).Error
}

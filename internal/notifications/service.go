package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/pkg/db/models"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
	"github.com/piescrow/piescrow-backend/pkg/logger"
)

// Service records and serves user-facing notices. Notify is deliberately
// best-effort: callers have already committed their primary change and a
// failed notice must never surface as an operation failure.
type Service interface {
	Notify(ctx context.Context, piUID, reason string)
	Add(ctx context.Context, piUID, reason string) (*models.Notification, error)
	List(ctx context.Context, params ListParams) ([]models.Notification, error)
	ToggleStatus(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	PurgeCleared(ctx context.Context, olderThan time.Duration) (int64, error)
}

type service struct {
	repo Repository
	log  *logger.Logger
}

// ListParams filters a user's notifications.
type ListParams struct {
	PiUID   string
	Skip    int
	Limit   int
	Cleared *bool
}

// NewService wires notifications dependencies.
func NewService(repo Repository, log *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if log == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications logger required")
	}
	return &service{repo: repo, log: log}, nil
}

// Notify is fire-and-forget: failures are logged and swallowed.
func (s *service) Notify(ctx context.Context, piUID, reason string) {
	if _, err := s.Add(ctx, piUID, reason); err != nil {
		ctx = s.log.WithPiUID(ctx, piUID)
		s.log.Error(ctx, "notification delivery failed", err)
	}
}

func (s *service) Add(ctx context.Context, piUID, reason string) (*models.Notification, error) {
	if strings.TrimSpace(piUID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient pi uid required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification reason required")
	}

	notification := &models.Notification{
		PiUID:     piUID,
		Reason:    reason,
		IsCleared: false,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return notification, nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]models.Notification, error) {
	if strings.TrimSpace(params.PiUID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pi uid required")
	}
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.repo.List(ctx, listNotificationsParams{
		PiUID:   params.PiUID,
		Skip:    params.Skip,
		Limit:   limit,
		Cleared: params.Cleared,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	return rows, nil
}

func (s *service) ToggleStatus(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	current, err := s.repo.Find(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}

	updated, err := s.repo.SetCleared(ctx, id, !current.IsCleared)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "toggle notification")
	}
	return updated, nil
}

// PurgeCleared removes cleared notifications older than the retention window.
func (s *service) PurgeCleared(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "retention window required")
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	count, err := s.repo.DeleteClearedBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge notifications")
	}
	return count, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || pkgerrors.HasCode(err, pkgerrors.CodeNotFound)
}

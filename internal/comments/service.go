package comments

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/pkg/db/models"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
)

// Service appends and lists the audit trail attached to an order. Comments
// are append-only; there is no update or delete.
type Service interface {
	Add(ctx context.Context, tx *gorm.DB, params AddParams) (*models.Comment, error)
	ListByOrderNo(ctx context.Context, orderNo string) ([]models.Comment, error)
}

type service struct {
	repo Repository
}

// AddParams describes one audit entry.
type AddParams struct {
	OrderID uuid.UUID
	OrderNo string
	Body    string
	Author  string
}

// NewService wires comments dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "comments repository required")
	}
	return &service{repo: repo}, nil
}

// Add persists one comment. When tx is non-nil the write joins the caller's
// transaction so the comment commits or aborts with the primary change.
func (s *service) Add(ctx context.Context, tx *gorm.DB, params AddParams) (*models.Comment, error) {
	if params.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(params.OrderNo) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if strings.TrimSpace(params.Body) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment body required")
	}

	author := strings.TrimSpace(params.Author)
	if author == "" {
		author = "System"
	}

	comment := &models.Comment{
		OrderID: params.OrderID,
		OrderNo: params.OrderNo,
		Body:    params.Body,
		Author:  author,
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	if err := repo.Create(ctx, comment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create comment")
	}
	return comment, nil
}

func (s *service) ListByOrderNo(ctx context.Context, orderNo string) ([]models.Comment, error) {
	if strings.TrimSpace(orderNo) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	rows, err := s.repo.ListByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list comments")
	}
	return rows, nil
}

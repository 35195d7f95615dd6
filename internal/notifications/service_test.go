package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/pkg/db/models"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
	"github.com/piescrow/piescrow-backend/pkg/logger"
)

type fakeRepository struct {
	createFn      func(ctx context.Context, notification *models.Notification) error
	listFn        func(ctx context.Context, params listNotificationsParams) ([]models.Notification, error)
	findFn        func(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	setClearedFn  func(ctx context.Context, id uuid.UUID, cleared bool) (*models.Notification, error)
	deleteBefore  func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, notification)
	}
	return nil
}

func (f *fakeRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil
}

func (f *fakeRepository) Find(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	if f.findFn != nil {
		return f.findFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) SetCleared(ctx context.Context, id uuid.UUID, cleared bool) (*models.Notification, error) {
	if f.setClearedFn != nil {
		return f.setClearedFn(ctx, id, cleared)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) DeleteClearedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.deleteBefore != nil {
		return f.deleteBefore(ctx, cutoff)
	}
	return 0, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
}

func newServiceWithRepo(repo Repository) Service {
	svc, _ := NewService(repo, testLogger())
	return svc
}

func TestNotify_SwallowsRepositoryFailure(t *testing.T) {
	repo := &fakeRepository{
		createFn: func(ctx context.Context, notification *models.Notification) error {
			return errors.New("insert failed")
		},
	}
	svc := newServiceWithRepo(repo)

	// Must not panic or surface an error.
	svc.Notify(context.Background(), "uid-1", "order update")
}

func TestAdd_ValidatesRecipient(t *testing.T) {
	svc := newServiceWithRepo(&fakeRepository{})
	_, err := svc.Add(context.Background(), "", "reason")
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestList_AppliesClearedFilter(t *testing.T) {
	cleared := true
	var got listNotificationsParams
	repo := &fakeRepository{
		listFn: func(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
			got = params
			return []models.Notification{{ID: uuid.New()}}, nil
		},
	}
	svc := newServiceWithRepo(repo)

	rows, err := svc.List(context.Background(), ListParams{PiUID: "uid-1", Cleared: &cleared})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(rows))
	}
	if got.Cleared == nil || !*got.Cleared {
		t.Fatal("cleared filter not forwarded")
	}
	if got.Limit != 20 {
		t.Fatalf("expected default limit 20, got %d", got.Limit)
	}
}

func TestToggleStatus_FlipsClearedFlag(t *testing.T) {
	id := uuid.New()
	repo := &fakeRepository{
		findFn: func(ctx context.Context, gotID uuid.UUID) (*models.Notification, error) {
			return &models.Notification{ID: gotID, IsCleared: false}, nil
		},
		setClearedFn: func(ctx context.Context, gotID uuid.UUID, cleared bool) (*models.Notification, error) {
			if !cleared {
				t.Fatal("expected toggle to set cleared=true")
			}
			return &models.Notification{ID: gotID, IsCleared: cleared}, nil
		},
	}
	svc := newServiceWithRepo(repo)

	updated, err := svc.ToggleStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected toggle error: %v", err)
	}
	if !updated.IsCleared {
		t.Fatal("expected cleared notification")
	}
}

func TestToggleStatus_NotFound(t *testing.T) {
	svc := newServiceWithRepo(&fakeRepository{})
	_, err := svc.ToggleStatus(context.Background(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPurgeCleared_UsesRetentionCutoff(t *testing.T) {
	var gotCutoff time.Time
	repo := &fakeRepository{
		deleteBefore: func(ctx context.Context, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 3, nil
		},
	}
	svc := newServiceWithRepo(repo)

	count, err := svc.PurgeCleared(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected purge error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 purged, got %d", count)
	}
	if time.Since(gotCutoff) < 29*24*time.Hour {
		t.Fatalf("cutoff %v not pushed back by retention window", gotCutoff)
	}
}

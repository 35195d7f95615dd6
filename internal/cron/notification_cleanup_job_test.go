package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/piescrow/piescrow-backend/pkg/logger"
)

type fakeNotificationPurger struct {
	lastRetention time.Duration
	deleted       int64
	err           error
	called        int
}

func (f *fakeNotificationPurger) PurgeCleared(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.called++
	f.lastRetention = olderThan
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted, nil
}

func TestNotificationCleanupJobPurgesWithRetention(t *testing.T) {
	purger := &fakeNotificationPurger{deleted: 42}
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Purger:    purger,
		Retention: 720 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewNotificationCleanupJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if purger.called != 1 {
		t.Fatalf("expected purger called once, got %d", purger.called)
	}
	if purger.lastRetention != 720*time.Hour {
		t.Fatalf("expected 720h retention, got %s", purger.lastRetention)
	}
}

func TestNotificationCleanupJobDefaultsRetention(t *testing.T) {
	purger := &fakeNotificationPurger{}
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Purger: purger,
	})
	if err != nil {
		t.Fatalf("NewNotificationCleanupJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if purger.lastRetention != defaultNotificationRetention {
		t.Fatalf("expected default retention, got %s", purger.lastRetention)
	}
}

func TestNotificationCleanupJobPropagatesErrors(t *testing.T) {
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Purger: &fakeNotificationPurger{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("NewNotificationCleanupJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/piescrow/piescrow-backend/pkg/logger"
)

const defaultNotificationRetention = 720 * time.Hour

// NotificationCleanupJobParams configure the cleared notification purge.
type NotificationCleanupJobParams struct {
	Logger    *logger.Logger
	Purger    notificationPurger
	Retention time.Duration
}

type notificationPurger interface {
	PurgeCleared(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NewNotificationCleanupJob builds the cron job that purges cleared
// notifications past retention. Uncleared notifications are never touched.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purger == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultNotificationRetention
	}
	return &notificationCleanupJob{
		logg:      params.Logger,
		purger:    params.Purger,
		retention: retention,
	}, nil
}

type notificationCleanupJob struct {
	logg      *logger.Logger
	purger    notificationPurger
	retention time.Duration
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.purger.PurgeCleared(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("notification cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "notification cleanup complete")
	return nil
}
